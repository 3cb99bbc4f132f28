// Package app wires the pipeline, its workers and the HTTP surface into one
// supervised process.
package app

import (
	"context"
	"fmt"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/db"
	apphttp "github.com/yungbote/vizflow-backend/internal/http"
	"github.com/yungbote/vizflow-backend/internal/jobs/coordinator"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime"
	"github.com/yungbote/vizflow-backend/internal/realtime/bus"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type App struct {
	Log     *logger.Logger
	Cfg     *config.Config
	Store   store.Store
	DB      *db.Service
	Metrics *observability.Metrics

	Clients     Clients
	Repos       Repos
	Services    Services
	Coordinator *coordinator.Coordinator
	Notifier    bus.Notifier
	Hub         *realtime.SSEHub
	Server      *apphttp.Server
	Sweeper     *coordinator.Sweeper

	closers []func() error
}

// New connects to the configured store, database and vendors and wires
// everything on top of them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log.Info("Connecting to store...")
	st, err := store.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	database, err := db.Open(cfg.Database, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if database != nil {
		if err := database.AutoMigrateAll(); err != nil {
			_ = database.Close()
			_ = st.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	clients, err := wireClients(cfg, log)
	if err != nil {
		_ = database.Close()
		_ = st.Close()
		return nil, err
	}

	a, err := Build(Deps{
		Cfg:     cfg,
		Log:     log,
		Store:   st,
		DB:      database,
		Clients: clients,
		Metrics: observability.Init(cfg.Telemetry.MetricsEnabled),
	})
	if err != nil {
		_ = database.Close()
		_ = st.Close()
		return nil, err
	}
	a.closers = append(a.closers, st.Close, database.Close)
	return a, nil
}

// Deps are the already-connected pieces Build wires together. DB and
// Metrics may be nil.
type Deps struct {
	Cfg     *config.Config
	Log     *logger.Logger
	Store   store.Store
	DB      *db.Service
	Clients Clients
	Metrics *observability.Metrics
}

func Build(d Deps) (*App, error) {
	if d.Cfg == nil || d.Store == nil || d.Log == nil {
		return nil, fmt.Errorf("app: config, store and logger are required")
	}
	cfg, log := d.Cfg, d.Log

	reposet := wireRepos(cfg, d.Store, d.DB, log)
	notifier := bus.NewNotifier(d.Store, log, d.Metrics)
	coord := coordinator.New(d.Store, notifier, reposet.Events, reposet.FailedJobs, log, d.Metrics, coordinatorOptions(cfg))

	serviceset, err := wireServices(cfg, log, d.Clients, d.Metrics)
	if err != nil {
		return nil, err
	}
	if err := registerStages(cfg, log, coord, serviceset, reposet, notifier); err != nil {
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	handlerset := wireHandlers(cfg, log, d.Store, coord, reposet, hub)
	server := apphttp.NewServer(routerConfig(cfg, log, d.Metrics, handlerset), cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout.Duration)

	return &App{
		Log:         log,
		Cfg:         cfg,
		Store:       d.Store,
		DB:          d.DB,
		Metrics:     d.Metrics,
		Clients:     d.Clients,
		Repos:       reposet,
		Services:    serviceset,
		Coordinator: coord,
		Notifier:    notifier,
		Hub:         hub,
		Server:      server,
		Sweeper: coordinator.NewSweeper(coord, log, coordinator.SweepOptions{
			Interval:           cfg.Pipeline.SweepInterval.Duration,
			CompletedRetention: cfg.Pipeline.CompletedRetention.Duration,
			FailedRetention:    cfg.Pipeline.FailedRetention.Duration,
			StallAfter:         2 * cfg.Pipeline.JobTimeout.Duration,
		}),
	}, nil
}

// Run supervises every long-lived service until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Coordinator == nil {
		return fmt.Errorf("app not initialized")
	}
	workers, err := a.Coordinator.Workers()
	if err != nil {
		return err
	}
	tree := newSupervisorTree(a.Log, a.Cfg.HTTP.ShutdownTimeout.Duration)
	for _, w := range workers {
		tree.AddPipelineService(w)
	}
	tree.AddPipelineService(a.Sweeper)
	tree.AddRealtimeService(bus.NewForwarder(a.Store, a.Hub, a.Log))
	tree.AddAPIService(a.Server)

	a.Metrics.StartCollectors(ctx, a.Log, a.Cfg.Telemetry.QueueScrapeInterval.Duration, a.Coordinator, a.Store)

	a.Log.Info("Pipeline running", "addr", a.Cfg.HTTP.Addr, "workers", len(workers))
	err = tree.Serve(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
	a.Log.Sync()
}
