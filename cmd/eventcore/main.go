package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	corecfg "github.com/offlinekit/eventcore/internal/core/config"
	"github.com/offlinekit/eventcore/internal/core/storage"
	"github.com/offlinekit/eventcore/internal/core/storage/memory"
	"github.com/offlinekit/eventcore/internal/core/storage/sqlite"
	"github.com/offlinekit/eventcore/internal/dedup"
	"github.com/offlinekit/eventcore/internal/eventlog"
	"github.com/offlinekit/eventcore/internal/ingestion"
	"github.com/offlinekit/eventcore/internal/migrations"
	"github.com/offlinekit/eventcore/internal/projection"
	"github.com/offlinekit/eventcore/internal/server"
)

func main() {
	configPath := flag.String("config", "eventcore.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		// A missing config file is fine: run on defaults + env.
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("Config file not found, using defaults", "path", *configPath)
			cfg, err = corecfg.Load("")
		}
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Loaded config",
		"database_type", cfg.Database.Type,
		"dedup_enabled", cfg.Dedup.Enabled,
		"max_event_history", cfg.Log.MaxEventHistorySize,
	)

	// 2. Initialize Storage
	var (
		events     storage.EventStore
		snapshots  storage.SnapshotStore
		dedupStore dedup.Store
		health     server.HealthChecker
	)
	switch cfg.Database.Type {
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer store.Close()

		// 2.1. Run Database Migrations
		if err := migrations.RunMigrations(store.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}

		events = sqlite.NewEventAdapter(store.DB(), cfg.Log.MaxEventHistorySize)
		snapshots = sqlite.NewSnapshotAdapter(store.DB())
		dedupStore = sqlite.NewDedupAdapter(store.DB())
		health = store
	case "memory":
		log := memory.NewEventLog(cfg.Log.MaxEventHistorySize)
		events = log
		snapshots = log
		dedupStore = memory.NewDedupStore()
		health = log
	default:
		slog.Error("Unsupported database type", "type", cfg.Database.Type)
		os.Exit(1)
	}

	// 3. Initialize Deduplication
	identity, err := dedup.NewFileIdentity(cfg.Dedup.IdentityPath)
	if err != nil {
		slog.Error("Failed to initialize client identity", "error", err)
		os.Exit(1)
	}

	engine, err := dedup.NewEngine(dedup.EngineConfig{
		Enabled:           cfg.Dedup.Enabled,
		DefaultWindow:     cfg.Dedup.DefaultWindow,
		CrossClientWindow: cfg.Dedup.CrossClientWindow,
		SweepInterval:     cfg.Dedup.SweepInterval,
		MaxAge:            cfg.Dedup.MaxAge,
		EntityIDFields:    cfg.Dedup.EntityIDFields,
	}, identity, dedupStore)
	if err != nil {
		slog.Error("Failed to initialize dedup engine", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Event Log
	logSvc := eventlog.NewService(engine, events, snapshots)

	// 5. Initialize Ingestion
	ingestionSvc := ingestion.NewService(logSvc, cfg.Server.MaxBodySizeMB)

	// 6. Initialize Projection (query API)
	projectionSvc := projection.NewService(logSvc)

	// 7. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), health, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Dedup.Enabled {
		g.Go(func() error {
			return engine.RunSweeper(gctx)
		})
	} else {
		slog.Info("Deduplication disabled by config")
	}

	// HTTP server blocks until ctx is cancelled.
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
