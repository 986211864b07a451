package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arenasim/server/internal/api"
	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/data"
	"github.com/arenasim/server/internal/game"
	"github.com/arenasim/server/internal/persist"
	"github.com/arenasim/server/internal/scripting"
	"github.com/arenasim/server/internal/stats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              arenad  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s\n\n", name)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("ARENA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	printSection("arena")
	arena := data.DefaultArena(cfg.Arena.Width, cfg.Arena.Height)
	if cfg.Arena.Layout != "" {
		arena, err = data.LoadArena(cfg.Arena.Layout, cfg.Arena.Width, cfg.Arena.Height)
		if err != nil {
			return fmt.Errorf("arena: %w", err)
		}
	}
	printOK(fmt.Sprintf("%gx%g, %d obstacles", arena.Width, arena.Height, len(arena.Obstacles)))

	rules, err := scripting.NewEngine(cfg.Score.ScriptsDir, cfg.Score, log)
	if err != nil {
		return fmt.Errorf("scoring scripts: %w", err)
	}
	defer rules.Close()
	printOK("scoring rules loaded")

	printSection("stats")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var sinks []stats.Sink
	if cfg.Stats.CSVPath != "" {
		sinks = append(sinks, stats.NewCSVWriter(cfg.Stats.CSVPath, cfg.Stats.History))
		printOK(fmt.Sprintf("csv %s (last %d matches)", cfg.Stats.CSVPath, cfg.Stats.History))
	}
	if cfg.Database.DSN != "" {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		sinks = append(sinks, persist.NewMatchRepo(db))
		printOK("postgres match history")
	}
	recorder := stats.NewRecorder(cfg.Stats.QueueSize, log, sinks...)
	defer recorder.Close()

	g, err := game.New(cfg, game.Deps{
		Arena:    arena,
		Rules:    rules,
		Recorder: recorder,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("game: %w", err)
	}
	srv := api.NewServer(g, cfg.API, log).HTTPServer(cfg.Server.HTTPAddress)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopErr := make(chan error, 1)
	go func() { loopErr <- g.Run(runCtx) }()

	httpErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", cfg.Server.HTTPAddress))
	printReady(fmt.Sprintf("game loop started (%d ticks/s)", cfg.Tick.Rate))
	fmt.Println()

	var runErr error
	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	case err := <-loopErr:
		runErr = err
		loopErr <- nil
		log.Error("game loop stopped", zap.Error(err))
	case err := <-httpErr:
		runErr = fmt.Errorf("http: %w", err)
		log.Error("http server stopped", zap.Error(err))
	}
	stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := <-loopErr; err != nil && runErr == nil {
		runErr = err
	}
	log.Info("server stopped")
	return runErr
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
