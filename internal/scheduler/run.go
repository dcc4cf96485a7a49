package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/logging"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/textutil"
	"github.com/kagan-sh/kagan-core/internal/worktree"
)

// runTaskLoop is one scheduler turn at a task: acquire the per-task lock
// and a concurrency-pool slot, then run successive agent turns until the
// task leaves IN_PROGRESS or the run budget is exhausted.
func (s *Scheduler) runTaskLoop(ctx context.Context, taskID string) {
	mu := s.taskMutex(taskID)
	if !mu.TryLock() {
		return // another goroutine is already driving this task
	}
	defer mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return // context canceled while waiting for a concurrency slot
	}
	defer s.sem.Release(1)

	runCtx, cancel := context.WithCancel(ctx)
	s.registerCancel(taskID, cancel)
	defer s.unregisterCancel(taskID)
	defer cancel()

	task, err := s.repos.Tasks.Get(runCtx, taskID)
	if err != nil {
		logging.Error("scheduler: get task %s: %v", taskID, err)
		return
	}
	if task.Status != store.TaskStatusInProgress || task.TaskType != store.TaskTypeAuto {
		return
	}

	ws, repoRefs, err := s.ensureWorkspace(runCtx, task)
	if err != nil {
		logging.Error("scheduler: ensure workspace for task %s: %v", taskID, err)
		return
	}

	for {
		task, err = s.repos.Tasks.Get(runCtx, taskID)
		if err != nil || task.Status != store.TaskStatusInProgress {
			return
		}

		outcome, execution, err := s.runOnce(runCtx, task, ws)
		if err != nil {
			logging.Error("scheduler: run turn for task %s: %v", taskID, err)
			return
		}

		switch outcome.signal {
		case agentsession.SignalComplete:
			s.requestReview(runCtx, task, ws, repoRefs)
			return
		case agentsession.SignalBlocked:
			// Execution FAILED with the reason; task stays IN_PROGRESS,
			// visible to the operator. No further turn is scheduled.
			return
		case agentsession.SignalContinue:
			if execution.RunIndex >= s.cfg.MaxRuns {
				if _, err := s.tasks.SetStatus(runCtx, taskID, store.TaskStatusReview); err != nil {
					logging.Error("scheduler: transition task %s to REVIEW at run budget: %v", taskID, err)
				}
				return
			}
			continue
		}
	}
}

type runOutcome struct {
	signal agentsession.Signal
	reason string
}

// runOnce drives exactly one agent turn: create the Execution, spawn the
// agent session, stream its output into the execution log, and interpret
// its terminal signal.
func (s *Scheduler) runOnce(ctx context.Context, task *store.Task, ws *store.Workspace) (runOutcome, *store.Execution, error) {
	scratchpad, err := s.repos.Scratchpads.Get(ctx, task.ID)
	if err != nil {
		return runOutcome{}, nil, fmt.Errorf("get scratchpad: %w", err)
	}

	execution := &store.Execution{TaskID: task.ID, WorkspaceID: ws.ID, Status: store.ExecutionStatusPending}
	if err := s.repos.Executions.Create(ctx, execution); err != nil {
		return runOutcome{}, nil, fmt.Errorf("create execution: %w", err)
	}

	prompt := buildRunPrompt(task, execution.RunIndex, scratchpad.Content, s.cfg.GitIdentity)
	if err := s.repos.Executions.AppendLogChunk(ctx, &store.ExecutionLogChunk{
		ExecutionID: execution.ID, Kind: store.AgentTurnPrompt, Content: prompt,
	}); err != nil {
		logging.Error("scheduler: append prompt log chunk: %v", err)
	}

	opts, err := s.launcher.Launch(task, ws, prompt, false)
	if err != nil {
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusFailed, nil, map[string]any{"error": err.Error()})
		return runOutcome{}, execution, fmt.Errorf("launch agent: %w", err)
	}

	var session *agentsession.Session
	s.wirePermissionResponder(ctx, &opts, agentsession.ScopeAutomationRunner, &session)

	session, err = agentsession.Spawn(ctx, opts)
	if err != nil {
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusFailed, nil, map[string]any{"error": err.Error()})
		return runOutcome{}, execution, fmt.Errorf("spawn agent session: %w", err)
	}

	if err := s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusRunning, nil, execution.Metadata); err != nil {
		logging.Error("scheduler: transition execution %s to RUNNING: %v", execution.ID, err)
	}

	result, err := session.Wait(ctx)
	if err != nil {
		_ = session.Close(ctx, sessionGrace)
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusCanceled, nil, execution.Metadata)
		return runOutcome{}, execution, fmt.Errorf("wait for agent session: %w", err)
	}

	cleanText := textutil.StripANSI(result.FinalText)
	if err := s.repos.Executions.AppendLogChunk(ctx, &store.ExecutionLogChunk{
		ExecutionID: execution.ID, Kind: store.AgentTurnResponse, Content: cleanText,
	}); err != nil {
		logging.Error("scheduler: append response log chunk: %v", err)
	}

	exitCode := result.ExitCode
	switch {
	case result.Canceled:
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusCanceled, &exitCode, execution.Metadata)
		return runOutcome{signal: agentsession.SignalBlocked, reason: "canceled"}, execution, nil

	case !result.Success:
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusFailed, &exitCode,
			map[string]any{"fail_reason": result.FailReason})
		return runOutcome{signal: agentsession.SignalBlocked, reason: result.FailReason}, execution, nil
	}

	signal, reason := agentsession.ParseSignal(cleanText)
	_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusSucceeded, &exitCode, execution.Metadata)

	if signal == agentsession.SignalBlocked {
		if err := s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusFailed, &exitCode,
			map[string]any{"blocked_reason": reason}); err != nil {
			logging.Error("scheduler: record blocked reason: %v", err)
		}
	}

	return runOutcome{signal: signal, reason: reason}, execution, nil
}

// ensureWorkspace reuses the task's ACTIVE workspace against its project's
// primary repo if one exists, otherwise provisions a fresh worktree per
// project repo and records the Workspace row.
func (s *Scheduler) ensureWorkspace(ctx context.Context, task *store.Task) (*store.Workspace, []worktree.RepoRef, error) {
	projectRepos, err := s.repos.Projects.ListRepos(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list project repos: %w", err)
	}
	if len(projectRepos) == 0 {
		return nil, nil, fmt.Errorf("project %s has no repos", task.ProjectID)
	}
	primary := projectRepos[0]

	existing, err := s.repos.Workspaces.GetActiveForTaskRepo(ctx, task.ID, primary.ID)
	switch {
	case err == nil:
		return existing, repoRefsFor(projectRepos), nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to provisioning
	default:
		return nil, nil, fmt.Errorf("lookup active workspace: %w", err)
	}

	refs := repoRefsFor(projectRepos)
	workspaceRepos := make([]store.WorkspaceRepo, 0, len(refs))
	for _, ref := range refs {
		result, err := s.worktrees.Create(ctx, task.ProjectID, task.ID, task.Title, ref, "", task.BaseBranch)
		if err != nil {
			return nil, nil, fmt.Errorf("create worktree for repo %s: %w", ref.RepoName, err)
		}
		workspaceRepos = append(workspaceRepos, store.WorkspaceRepo{
			RepoID: result.RepoID, WorktreePath: result.WorktreePath,
			BranchName: result.BranchName, TargetBranch: result.TargetBranch,
		})
	}

	ws := &store.Workspace{TaskID: task.ID, Status: store.WorkspaceStatusActive, Repos: workspaceRepos}
	if err := s.repos.Workspaces.Create(ctx, ws); err != nil {
		return nil, nil, fmt.Errorf("create workspace row: %w", err)
	}
	return ws, refs, nil
}

func repoRefsFor(repos []*store.Repo) []worktree.RepoRef {
	out := make([]worktree.RepoRef, 0, len(repos))
	for _, r := range repos {
		out = append(out, worktree.RepoRef{
			RepoID: r.ID, RepoPath: r.Path, RepoName: r.DisplayName, DefaultBranch: r.DefaultBranch,
		})
	}
	return out
}
