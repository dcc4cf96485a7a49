package scheduler

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/logging"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/textutil"
	"github.com/kagan-sh/kagan-core/internal/worktree"
)

// requestReview spins a second, read-only agent session reviewing the
// task's diff, and applies the resulting approve/reject decision. Errors
// are logged, not propagated — a failed review leaves the task in REVIEW
// for the operator to drive manually, matching the scheduler's
// background-task error-isolation posture (§7 Propagation).
func (s *Scheduler) requestReview(ctx context.Context, task *store.Task, ws *store.Workspace, repos []worktree.RepoRef) {
	if _, err := s.tasks.SetStatus(ctx, task.ID, store.TaskStatusReview); err != nil {
		logging.Error("scheduler: transition task %s to REVIEW: %v", task.ID, err)
		return
	}
	if !s.cfg.AutoReviewEnabled {
		return
	}

	diff, err := s.collectDiff(ctx, ws, repos)
	if err != nil {
		logging.Error("scheduler: collect diff for task %s: %v", task.ID, err)
		return
	}

	followUp, err := s.repos.Scratchpads.Get(ctx, task.ID)
	if err != nil {
		logging.Error("scheduler: get scratchpad for review of task %s: %v", task.ID, err)
		return
	}

	decision, execution, err := s.runReviewTurn(ctx, task, ws, diff, followUp.Content)
	if err != nil {
		logging.Error("scheduler: run review turn for task %s: %v", task.ID, err)
		return
	}

	s.applyReviewDecision(ctx, task, execution, decision)
}

// collectDiff gathers each repo's unified diff against its target branch
// and joins them, truncating to the configured cap.
func (s *Scheduler) collectDiff(ctx context.Context, ws *store.Workspace, refs []worktree.RepoRef) (string, error) {
	var combined string
	for _, wr := range ws.Repos {
		repoPath := ""
		for _, ref := range refs {
			if ref.RepoID == wr.RepoID {
				repoPath = ref.RepoPath
			}
		}
		if repoPath == "" {
			continue
		}
		diff, err := s.worktrees.Diff(ctx, wr.WorktreePath, wr.TargetBranch)
		if err != nil {
			return "", fmt.Errorf("diff repo %s: %w", repoPath, err)
		}
		combined += diff
	}
	return textutil.TruncateWithPrefix("...(diff truncated)...\n", combined, MaxReviewDiffBytes), nil
}

func (s *Scheduler) runReviewTurn(ctx context.Context, task *store.Task, ws *store.Workspace, diff, rawFollowUp string) (agentsession.ReviewDecision, *store.Execution, error) {
	followUp := textutil.TruncateWithPrefix("...(follow-up truncated)...\n", rawFollowUp, MaxFollowUpBytes)
	prompt := buildReviewPrompt(task, diff, followUp)

	execution := &store.Execution{TaskID: task.ID, WorkspaceID: ws.ID, Status: store.ExecutionStatusPending}
	if err := s.repos.Executions.Create(ctx, execution); err != nil {
		return "", nil, fmt.Errorf("create review execution: %w", err)
	}
	if err := s.repos.Executions.AppendLogChunk(ctx, &store.ExecutionLogChunk{
		ExecutionID: execution.ID, Kind: store.AgentTurnPrompt, Content: prompt,
	}); err != nil {
		logging.Error("scheduler: append review prompt log chunk: %v", err)
	}

	opts, err := s.launcher.Launch(task, ws, prompt, true)
	if err != nil {
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusFailed, nil, map[string]any{"error": err.Error()})
		return "", execution, fmt.Errorf("launch review agent: %w", err)
	}

	var session *agentsession.Session
	s.wirePermissionResponder(ctx, &opts, agentsession.ScopeAutomationReviewer, &session)

	session, err = agentsession.Spawn(ctx, opts)
	if err != nil {
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusFailed, nil, map[string]any{"error": err.Error()})
		return "", execution, fmt.Errorf("spawn review session: %w", err)
	}
	_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusRunning, nil, execution.Metadata)

	result, err := session.Wait(ctx)
	if err != nil {
		_ = session.Close(ctx, sessionGrace)
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusCanceled, nil, execution.Metadata)
		return "", execution, fmt.Errorf("wait for review session: %w", err)
	}

	cleanText := textutil.StripANSI(result.FinalText)
	if err := s.repos.Executions.AppendLogChunk(ctx, &store.ExecutionLogChunk{
		ExecutionID: execution.ID, Kind: store.AgentTurnResponse, Content: cleanText,
	}); err != nil {
		logging.Error("scheduler: append review response log chunk: %v", err)
	}

	exitCode := result.ExitCode
	if !result.Success {
		_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusFailed, &exitCode,
			map[string]any{"fail_reason": result.FailReason})
		return "", execution, fmt.Errorf("review agent reported failure: %s", result.FailReason)
	}
	_ = s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusSucceeded, &exitCode, execution.Metadata)

	decision, ok := agentsession.ParseReviewDecision(cleanText)
	if !ok {
		return "", execution, fmt.Errorf("review agent emitted no recognizable decision")
	}
	return decision, execution, nil
}

// ApplyReview is the explicit review_apply entrypoint (invoked either by
// this package's own review turn or by a client-driven manual review).
// On approve it transitions the task to DONE (idempotent) and records a
// review note; on reject it returns the task to IN_PROGRESS with the
// summary folded into the scratchpad as feedback.
func (s *Scheduler) ApplyReview(ctx context.Context, task *store.Task, execution *store.Execution, approved bool, summary string) error {
	decision := agentsession.ReviewRejected
	if approved {
		decision = agentsession.ReviewApproved
	}
	return s.applyReviewDecisionWithSummary(ctx, task, execution, decision, summary)
}

func (s *Scheduler) applyReviewDecision(ctx context.Context, task *store.Task, execution *store.Execution, decision agentsession.ReviewDecision) {
	if err := s.applyReviewDecisionWithSummary(ctx, task, execution, decision, ""); err != nil {
		logging.Error("scheduler: apply review decision for task %s: %v", task.ID, err)
	}
}

func (s *Scheduler) applyReviewDecisionWithSummary(ctx context.Context, task *store.Task, execution *store.Execution, decision agentsession.ReviewDecision, summary string) error {
	approved := decision == agentsession.ReviewApproved

	var note string
	var nextStatus store.TaskStatus
	if approved {
		note = "\n--- REVIEW (APPROVED) ---\n"
		nextStatus = store.TaskStatusDone
	} else {
		note = "\n--- REVIEW (REJECTED) ---\n" + summary + "\n"
		nextStatus = store.TaskStatusInProgress
	}

	if _, err := s.tasks.AppendScratchpad(ctx, task.ID, note); err != nil {
		return fmt.Errorf("append review note to scratchpad: %w", err)
	}

	if execution != nil {
		if err := s.repos.Executions.AppendLogChunk(ctx, &store.ExecutionLogChunk{
			ExecutionID: execution.ID, Kind: store.AgentTurnSummary, Content: note,
		}); err != nil {
			logging.Error("scheduler: append review summary log chunk: %v", err)
		}
		meta := execution.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		meta["review_result"] = map[string]any{"approved": approved, "summary": summary}
		if err := s.repos.Executions.UpdateStatus(ctx, execution.ID, store.ExecutionStatusSucceeded, execution.ExitCode, meta); err != nil {
			logging.Error("scheduler: record review_result metadata: %v", err)
		}
	}

	if _, err := s.tasks.SetStatus(ctx, task.ID, nextStatus); err != nil {
		return fmt.Errorf("transition task after review: %w", err)
	}
	return nil
}
