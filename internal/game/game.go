package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/core/event"
	coresys "github.com/arenasim/server/internal/core/system"
	"github.com/arenasim/server/internal/data"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/physics"
	"github.com/arenasim/server/internal/scripting"
	"github.com/arenasim/server/internal/session"
	"github.com/arenasim/server/internal/system"
	"github.com/arenasim/server/internal/world"
	"go.uber.org/zap"
)

// ErrStopped is returned to callers once the game loop has exited.
var ErrStopped = errors.New("game stopped")

// Deps bundles the collaborators of a Game. Zero fields get defaults.
type Deps struct {
	Arena    *data.Arena
	Rules    scripting.Rules
	Recorder system.ResultSubmitter
	Log      *zap.Logger
	Seed     int64  // 0 seeds from the clock
	TokenKey []byte // nil draws a random key
}

// Game is the authoritative arena. The world is owned by the goroutine that
// calls Step (normally Run); every exported method is safe to call from any
// goroutine.
type Game struct {
	cfg      *config.Config
	log      *zap.Logger
	reg      *world.Registry
	match    *match.Machine
	dir      *session.Directory
	bus      *event.Bus
	rules    scripting.Rules
	runner   *coresys.Runner
	matchSys *system.MatchSystem
	commands *CommandBuffer
	interval time.Duration
	tick     uint64

	inbox    chan request
	replies  []pendingReply
	dropped  map[ecs.EntityID]struct{}
	done     chan struct{}
	stopOnce sync.Once

	snap    atomic.Pointer[Snapshot]
	subMu   sync.Mutex
	subs    map[uint64]chan *Snapshot
	nextSub uint64

	noiseMu sync.Mutex
	noise   *rand.Rand

	obstacles []ObstacleView
	borders   []world.Boundary
}

type pendingReply struct {
	ch  chan reply
	rep reply
}

// New builds the world and registers the tick systems. The first snapshot
// is published before New returns.
func New(cfg *config.Config, deps Deps) (*Game, error) {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	arena := deps.Arena
	if arena == nil {
		arena = data.DefaultArena(cfg.Arena.Width, cfg.Arena.Height)
	}
	rules := deps.Rules
	if rules == nil {
		rules = scripting.NewFixed(cfg.Score)
	}
	seed := deps.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	phys := physics.NewWorld(physics.Config{
		Width:          arena.Width,
		Height:         arena.Height,
		CellSize:       cfg.Physics.CellSize,
		LinearDamping:  cfg.Physics.LinearDamping,
		AngularDamping: cfg.Physics.AngularDamping,
	})
	reg, err := world.NewRegistry(cfg, phys, arena, rand.New(rand.NewSource(seed)), log)
	if err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}
	dir, err := session.NewDirectory(deps.TokenKey)
	if err != nil {
		return nil, err
	}

	g := &Game{
		cfg:   cfg,
		log:   log,
		reg:   reg,
		rules: rules,
		dir:   dir,
		bus:   event.NewBus(),
		match: match.New(
			cfg.Tick.Ticks(cfg.Match.Countdown),
			cfg.Tick.Ticks(cfg.Match.Duration),
			cfg.Tick.Ticks(cfg.Match.AutoRestartAfter),
		),
		runner:   coresys.NewRunner(),
		commands: NewCommandBuffer(cfg.Tick.CommandCapacity, cfg.Tick.MaxCommandsPerTick),
		interval: cfg.Tick.Interval(),
		inbox:    make(chan request, cfg.Tick.RequestQueueSize),
		dropped:  make(map[ecs.EntityID]struct{}),
		done:     make(chan struct{}),
		subs:     make(map[uint64]chan *Snapshot),
		noise:    rand.New(rand.NewSource(seed + 1)),
	}
	for _, o := range reg.Obstacles() {
		g.obstacles = append(g.obstacles, ObstacleView{Position: o.Position, Radius: o.Radius})
	}
	for _, b := range reg.Boundaries() {
		g.borders = append(g.borders, *b)
	}

	physSys := system.NewPhysicsSystem(reg, g.match)
	g.matchSys = system.NewMatchSystem(reg, g.match, g.bus, rules, cfg, log)
	g.matchSys.SetRestarter(g)

	g.runner.Register(&inputSystem{g: g})
	g.runner.Register(system.NewEventSystem(g.bus))
	g.runner.Register(physSys)
	g.runner.Register(system.NewCombatSystem(reg, g.match, physSys, g.bus, rules, cfg, log))
	g.runner.Register(g.matchSys)
	g.runner.Register(system.NewCleanupSystem(reg))
	g.runner.Register(&outputSystem{g: g})
	if deps.Recorder != nil {
		g.runner.Register(system.NewStatsSystem(g.bus, deps.Recorder))
	}
	system.SubscribeLogging(g.bus, log)

	g.snap.Store(g.buildSnapshot())
	return g, nil
}

// Step runs exactly one tick. An error means the world is inconsistent; the
// tick is abandoned and waiting callers get the error.
func (g *Game) Step() error {
	g.tick++
	if err := g.runner.Tick(g.interval); err != nil {
		g.log.Error("tick aborted", zap.Uint64("tick", g.tick), zap.Error(err))
		g.failReplies(err)
		return err
	}
	return nil
}

// Run steps the game at the configured rate until ctx ends or a tick fails.
func (g *Game) Run(ctx context.Context) error {
	defer g.stopOnce.Do(func() { close(g.done) })

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	g.log.Info("game loop started", zap.Duration("tick", g.interval))

	for {
		select {
		case <-ticker.C:
			if err := g.Step(); err != nil {
				return fmt.Errorf("tick %d: %w", g.tick, err)
			}
		case <-ctx.Done():
			g.log.Info("game loop stopped", zap.Uint64("tick", g.tick))
			return nil
		}
	}
}

// Config returns the settings the game was built with.
func (g *Game) Config() *config.Config { return g.cfg }

// AutoRestart is called by the match system once the finished match has
// been shown for long enough.
func (g *Game) AutoRestart() error {
	_, err := g.restart("auto restart")
	return err
}

// restart starts a new generation: every connected agent gets a fresh player
// and the match returns to the lobby. An active match is concluded first so
// its result is recorded.
func (g *Game) restart(reason string) (map[string]ecs.EntityID, error) {
	if g.match.Phase() == match.Active {
		g.matchSys.Conclude("restarted")
	}
	for _, pr := range g.reg.Projectiles() {
		if err := g.reg.Remove(pr.ID); err != nil {
			return nil, fmt.Errorf("restart: %w", err)
		}
	}
	for _, p := range g.reg.Players() {
		if err := g.reg.Remove(p.ID); err != nil {
			return nil, fmt.Errorf("restart: %w", err)
		}
	}
	g.reg.AdvanceGeneration()
	tr := g.match.Restart()
	if g.reg.Generation() != g.match.Generation() {
		return nil, fmt.Errorf("%w: registry generation %d, match generation %d",
			world.ErrInvariant, g.reg.Generation(), g.match.Generation())
	}

	rebound := make(map[string]ecs.EntityID)
	for _, b := range g.dir.Connected() {
		p, err := g.reg.CreatePlayer(b.Name, b.Color)
		if err != nil {
			return nil, fmt.Errorf("restart: %w", err)
		}
		if err := g.dir.Rebind(b.Name, p.ID); err != nil {
			return nil, fmt.Errorf("%w: restart: %v", world.ErrInvariant, err)
		}
		rebound[b.Name] = p.ID
	}

	g.log.Info("match restarted",
		zap.String("reason", reason),
		zap.Uint32("generation", g.match.Generation()),
		zap.Int("agents", len(rebound)))
	if tr.Changed() {
		g.matchSys.Announce(tr)
	}
	event.Emit(g.bus, event.MatchRestarted{Generation: g.match.Generation(), Rebound: rebound})
	return rebound, nil
}

func (g *Game) queueReply(ch chan reply, rep reply) {
	g.replies = append(g.replies, pendingReply{ch: ch, rep: rep})
}

// flushReplies answers the requests applied this tick. Reply channels are
// buffered, so this never blocks.
func (g *Game) flushReplies() {
	for _, p := range g.replies {
		p.ch <- p.rep
	}
	g.replies = g.replies[:0]
}

func (g *Game) failReplies(err error) {
	for i := range g.replies {
		g.replies[i].rep = reply{err: fmt.Errorf("tick %d: %w", g.tick, err)}
	}
	g.flushReplies()
}

// outputSystem publishes the tick's snapshot and then answers callers, so a
// caller always observes its own request in the latest snapshot.
// Phase 6 (Output).
type outputSystem struct {
	g *Game
}

func (s *outputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *outputSystem) Update(_ time.Duration) error {
	snap := s.g.buildSnapshot()
	s.g.snap.Store(snap)
	s.g.flushReplies()
	s.g.broadcast(snap)
	return nil
}
