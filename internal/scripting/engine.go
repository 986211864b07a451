package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arenasim/server/internal/config"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Rules yields score deltas for match events.
type Rules interface {
	Shot() int
	Hit(damage int) int
	Kill() int
	Collision(speed float64) int
	MatchEnd(healthLeft int) int
}

// Fixed scores every event with a constant from the config.
type Fixed struct {
	cfg config.ScoreConfig
}

func NewFixed(cfg config.ScoreConfig) Fixed { return Fixed{cfg: cfg} }

func (f Fixed) Shot() int                   { return f.cfg.Shot }
func (f Fixed) Hit(int) int                 { return f.cfg.Hit }
func (f Fixed) Kill() int                   { return f.cfg.Kill }
func (f Fixed) Collision(float64) int       { return f.cfg.Collision }
func (f Fixed) MatchEnd(healthLeft int) int { return f.cfg.RemainingHealth * healthLeft }

// Engine wraps a single gopher-lua VM holding the score scripts. A hook the
// scripts do not define falls back to the fixed values.
// Single-goroutine access only (game loop).
type Engine struct {
	vm       *lua.LState
	fallback Fixed
	log      *zap.Logger
}

// NewEngine creates a Lua engine and loads every script in scriptsDir.
// A missing directory yields an engine that only uses the fallback.
func NewEngine(scriptsDir string, fallback config.ScoreConfig, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	setDefaults(vm, fallback)

	e := &Engine{vm: vm, fallback: NewFixed(fallback), log: log}
	if scriptsDir != "" {
		if err := e.loadDir(scriptsDir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load score scripts: %w", err)
		}
	}
	return e, nil
}

// setDefaults exposes the configured values to scripts as the DEFAULTS table.
func setDefaults(vm *lua.LState, s config.ScoreConfig) {
	t := vm.NewTable()
	t.RawSetString("kill", lua.LNumber(s.Kill))
	t.RawSetString("hit", lua.LNumber(s.Hit))
	t.RawSetString("collision", lua.LNumber(s.Collision))
	t.RawSetString("shot", lua.LNumber(s.Shot))
	t.RawSetString("remaining_health", lua.LNumber(s.RemainingHealth))
	vm.SetGlobal("DEFAULTS", t)
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) Shot() int {
	return e.callInt("score_shot", e.fallback.Shot())
}

func (e *Engine) Hit(damage int) int {
	return e.callInt("score_hit", e.fallback.Hit(damage), lua.LNumber(damage))
}

func (e *Engine) Kill() int {
	return e.callInt("score_kill", e.fallback.Kill())
}

func (e *Engine) Collision(speed float64) int {
	return e.callInt("score_collision", e.fallback.Collision(speed), lua.LNumber(speed))
}

func (e *Engine) MatchEnd(healthLeft int) int {
	return e.callInt("score_match_end", e.fallback.MatchEnd(healthLeft), lua.LNumber(healthLeft))
}

// callInt calls a Lua function and returns its result as an int. A missing
// function, a failing call or a non-number result yields fallback.
func (e *Engine) callInt(name string, fallback int, args ...lua.LValue) int {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return fallback
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua call error", zap.String("func", name), zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	n, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua function returned non-number", zap.String("func", name), zap.String("type", result.Type().String()))
		return fallback
	}
	return int(n)
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
