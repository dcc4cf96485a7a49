package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/api"
	"github.com/kagan-sh/kagan-core/internal/config"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/logging"
	"github.com/kagan-sh/kagan-core/internal/plugins"
	"github.com/kagan-sh/kagan-core/internal/scheduler"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/taskservice"
	"github.com/kagan-sh/kagan-core/internal/worktree"
)

// app bundles every service the core daemon owns, in construction order
// (§4's module dependency DAG: Store at the bottom, IPC Server at the
// top wired to the API Boundary as its Dispatcher).
type app struct {
	cfg       *config.Config
	db        *store.DB
	repos     *store.Repositories
	tasks     *taskservice.Service
	worktrees *worktree.Manager
	scheduler *scheduler.Scheduler
	registry  *plugins.Registry
	boundary  *api.Boundary

	files     *ipc.FileStore
	singleton *ipc.Singleton
	server    *ipc.Server
}

// buildApp wires every service together but does not yet take the
// instance lock or start accepting connections (run does both). Only
// start calls it; status/stop use ipc.Discover and the lease file
// directly.
func buildApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.CoreRuntimeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create core runtime dir: %w", err)
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	repos := store.NewRepositories(db)
	tasks := taskservice.New(repos)
	worktrees := worktree.NewManager(cfg.WorktreeBase)
	launcher := newCLIAgentLauncher(cfg)
	permission := agentsession.PermissionPolicy{
		PlannerAutoApprove: cfg.PlannerAutoApprove,
		PromptTimeout:      30 * time.Second,
	}

	sched := scheduler.New(repos, tasks, worktrees, launcher, permission, scheduler.Config{
		MaxConcurrentAgents: cfg.MaxConcurrentJobs,
		MaxRuns:             cfg.MaxRuns,
		AutoReviewEnabled:   cfg.AutoReviewEnabled,
		GitIdentity:         cfg.GitIdentity,
	})

	registry := plugins.NewRegistry()
	plugins.RegisterNoop(registry)
	plugins.RegisterGithub(registry)

	boundary := api.New(repos, tasks, sched, worktrees, registry)

	files := ipc.NewFileStore(cfg.CoreRuntimeDir)
	singleton := ipc.NewSingleton(files, cfg.InstanceLockPath())

	return &app{
		cfg:       cfg,
		db:        db,
		repos:     repos,
		tasks:     tasks,
		worktrees: worktrees,
		scheduler: sched,
		registry:  registry,
		boundary:  boundary,
		files:     files,
		singleton: singleton,
	}, nil
}

// run starts every background service and blocks until ctx is canceled,
// then tears them down in reverse order: stop accepting connections,
// cancel in-flight scheduler runs with a short grace period, close the
// store last (§5's shutdown ordering).
func (a *app) run(ctx context.Context) error {
	token := ipc.GenerateToken()
	ipcCfg := ipc.Config{SocketPath: filepath.Join(a.cfg.CoreRuntimeDir, "core.sock")}
	a.server = ipc.New(ipcCfg, token, a.boundary)
	if err := a.server.Listen(); err != nil {
		return fmt.Errorf("listen ipc: %w", err)
	}

	if err := a.singleton.Acquire(a.server.Endpoint(), token, os.Getpid(), ipc.Hostname()); err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		a.singleton.Release()
		return fmt.Errorf("start scheduler: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Start(ctx) }()

	logging.Info("core: listening on %s", a.server.Endpoint().Address)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logging.Error("core: ipc server stopped: %v", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.server.Stop(stopCtx)
	a.scheduler.Stop()
	if active, err := a.repos.Sessions.ListActive(stopCtx); err == nil {
		for _, rec := range active {
			if err := a.repos.Sessions.Close(stopCtx, rec.ID, store.SessionStatusClosed); err != nil {
				logging.Error("core: close session record %s: %v", rec.ID, err)
			}
		}
	}
	a.singleton.Release()
	a.db.Close()
	return nil
}
