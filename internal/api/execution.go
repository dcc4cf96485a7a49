package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/store"
)

func init() {
	registerOp("execution", "start", executionStart, agentsession.CapabilityPairWorker, true)
	registerOp("execution", "cancel", executionCancel, agentsession.CapabilityPairWorker, true)
	registerOp("execution", "poll", executionPoll, agentsession.CapabilityViewer, false)
	registerOp("execution", "logs", executionLogs, agentsession.CapabilityViewer, false)
	registerOp("execution", "review_apply", executionReviewApply, agentsession.CapabilityPairWorker, true)
}

func executionDTO(e *store.Execution) map[string]any {
	m := map[string]any{
		"id":           e.ID,
		"task_id":      e.TaskID,
		"workspace_id": e.WorkspaceID,
		"status":       string(e.Status),
		"run_index":    e.RunIndex,
		"metadata":     e.Metadata,
		"created_at":   e.CreatedAt,
		"updated_at":   e.UpdatedAt,
	}
	if e.ExitCode != nil {
		m["exit_code"] = *e.ExitCode
	}
	return m
}

// executionStart transitions a task into IN_PROGRESS. AUTO tasks are
// picked up by the scheduler's own sweep (or immediately via
// TriggerTask); PAIR tasks have no scheduler-driven run loop — the
// client drives the agent session directly over the wire protocol
// described in spec.md §6, so no agent is launched here.
func executionStart(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	taskID := stringParam(params, "task_id")
	if taskID == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	task, err := b.tasks.SetStatus(ctx, taskID, store.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("start execution: %w", err)
	}
	if task.Status != store.TaskStatusInProgress {
		return fail(ipc.ErrConflict, "task cannot transition to IN_PROGRESS from "+string(task.Status)), nil
	}
	if task.TaskType == store.TaskTypeAuto {
		b.scheduler.TriggerTask(ctx, taskID)
	}
	return ok("task", taskDTO(task)), nil
}

func executionCancel(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	taskID := stringParam(params, "task_id")
	if taskID == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	canceled := b.scheduler.CancelTask(taskID)
	return ok("canceled", canceled), nil
}

func executionPoll(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	taskID := stringParam(params, "task_id")
	if taskID == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	exec, err := b.repos.Executions.LatestForTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("latest execution: %w", err)
	}
	if exec == nil {
		return fail(ipc.ErrResourceNotFound, "no execution recorded for task"), nil
	}
	return ok("execution", executionDTO(exec)), nil
}

func executionLogs(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	executionID := stringParam(params, "execution_id")
	if executionID == "" {
		return fail(ipc.ErrInvalidParams, "execution_id is required"), nil
	}
	chunks, err := b.repos.Executions.Logs(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("list log chunks: %w", err)
	}
	out := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, map[string]any{
			"id":         c.ID,
			"kind":       string(c.Kind),
			"content":    c.Content,
			"created_at": c.CreatedAt,
		})
	}
	return ok("chunks", out), nil
}

// executionReviewApply resolves the task and its execution (the named
// one, or the latest if execution_id is omitted) and delegates to the
// Scheduler's review-decision logic, shared with its own auto-review
// turn (internal/scheduler/review.go).
func executionReviewApply(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	taskID := stringParam(params, "task_id")
	if taskID == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	task, err := b.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "task not found"), nil
	}

	var execution *store.Execution
	if executionID := stringParam(params, "execution_id"); executionID != "" {
		execution, err = b.repos.Executions.Get(ctx, executionID)
		if err != nil {
			return fail(ipc.ErrResourceNotFound, "execution not found"), nil
		}
	} else {
		execution, err = b.repos.Executions.LatestForTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("latest execution: %w", err)
		}
	}

	approved := boolParam(params, "approved")
	summary := stringParam(params, "summary")
	if err := b.scheduler.ApplyReview(ctx, task, execution, approved, summary); err != nil {
		return nil, fmt.Errorf("apply review: %w", err)
	}
	return ok(), nil
}
