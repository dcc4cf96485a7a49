// Package scheduler owns the AUTO run loop: for each IN_PROGRESS task of
// type AUTO it ensures a workspace, runs an agent turn, interprets the
// signal the agent emitted, and (on completion) drives a read-only review
// session before handing the task to DONE or back to IN_PROGRESS.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/logging"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/taskservice"
	"github.com/kagan-sh/kagan-core/internal/worktree"
)

// MaxReviewDiffBytes caps the unified diff text included in a review
// prompt (§9 open question: review diff size — this rewrite's chosen cap).
const MaxReviewDiffBytes = 64 * 1024

// MaxFollowUpBytes caps queued operator follow-up text folded into a
// review prompt.
const MaxFollowUpBytes = 4 * 1024

// sessionGrace bounds how long a cancel waits for cooperative shutdown
// before the scheduler escalates to process termination.
const sessionGrace = 5 * time.Second

// Config tunes the scheduler's concurrency and run-loop limits.
type Config struct {
	MaxConcurrentAgents int
	MaxRuns             int
	AutoReviewEnabled   bool
	GitIdentity         string
}

// Scheduler drives the AUTO run loop described in §4.D. It holds direct
// references to the services it needs (Store, Task Service, Worktree
// Manager) in a DAG — no back-references, no plugin-style indirection.
type Scheduler struct {
	repos      *store.Repositories
	tasks      *taskservice.Service
	worktrees  *worktree.Manager
	launcher   AgentLauncher
	permission agentsession.PermissionPolicy
	cfg        Config

	sem *semaphore.Weighted

	mu         sync.Mutex
	taskLocks  map[string]*sync.Mutex
	cancelFns  map[string]context.CancelFunc

	cron *cron.Cron
}

// New constructs a Scheduler. launcher resolves the concrete agent-backend
// binary per task (external collaborator; see AgentLauncher).
func New(repos *store.Repositories, tasks *taskservice.Service, worktrees *worktree.Manager, launcher AgentLauncher, permission agentsession.PermissionPolicy, cfg Config) *Scheduler {
	if cfg.MaxConcurrentAgents <= 0 {
		cfg.MaxConcurrentAgents = 3
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = 25
	}
	return &Scheduler{
		repos:      repos,
		tasks:      tasks,
		worktrees:  worktrees,
		launcher:   launcher,
		permission: permission,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentAgents)),
		taskLocks:  make(map[string]*sync.Mutex),
		cancelFns:  make(map[string]context.CancelFunc),
		cron:       cron.New(),
	}
}

// Start begins the periodic sweep that discovers IN_PROGRESS AUTO tasks
// and drives their run loop. The sweep itself never blocks on agent
// turns — each eligible task is dispatched to its own goroutine, with the
// per-task mutex and semaphore providing the actual serialization and
// concurrency bound.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 10s", func() { s.sweep(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: schedule sweep: %w", err)
	}
	s.cron.Start()
	logging.Info("scheduler: started (max_concurrent_agents=%d, max_runs=%d)", s.cfg.MaxConcurrentAgents, s.cfg.MaxRuns)
	return nil
}

// Stop halts the sweep. In-flight run loops observe ctx cancellation at
// their own suspension points and unwind; Stop does not forcibly kill them.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	logging.Info("scheduler: stopped")
}

func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.repos.Tasks.ListByStatusAndType(ctx, store.TaskStatusInProgress, store.TaskTypeAuto)
	if err != nil {
		logging.Error("scheduler: sweep: list due tasks: %v", err)
		return
	}
	for _, task := range due {
		go s.runTaskLoop(ctx, task.ID)
	}
}

// TriggerTask starts (or is a no-op against) a task's run loop immediately,
// for execution.start-style callers that don't want to wait for the next
// sweep tick.
func (s *Scheduler) TriggerTask(ctx context.Context, taskID string) {
	go s.runTaskLoop(ctx, taskID)
}

// CancelTask cancels a task's in-flight run loop, if any. The run loop's
// Wait on the agent session returns, and the loop then closes the
// session: session/cancel first, termination after a grace period.
func (s *Scheduler) CancelTask(taskID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancelFns[taskID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (s *Scheduler) taskMutex(taskID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.taskLocks[taskID]
	if !ok {
		m = &sync.Mutex{}
		s.taskLocks[taskID] = m
	}
	return m
}

func (s *Scheduler) registerCancel(taskID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancelFns[taskID] = cancel
	s.mu.Unlock()
}

func (s *Scheduler) unregisterCancel(taskID string) {
	s.mu.Lock()
	delete(s.cancelFns, taskID)
	s.mu.Unlock()
}
