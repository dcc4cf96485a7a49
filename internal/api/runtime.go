package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
)

func init() {
	registerOp("runtime", "decide_startup", runtimeDecideStartup, agentsession.CapabilityViewer, false)
	registerOp("runtime", "set_last_active_context", runtimeSetLastActiveContext, agentsession.CapabilityViewer, true)
	registerOp("runtime", "get_runtime_task", runtimeGetRuntimeTask, agentsession.CapabilityViewer, false)
	registerOp("runtime", "reconcile_running", runtimeReconcileRunning, agentsession.CapabilityViewer, false)
}

// runtimeDecideStartup mirrors the original's StartupSessionDecision: if a
// project was persisted as last-active, resume straight into it; else, if
// the caller's cwd_path resolves to a registered repo, resume that repo's
// project; otherwise suggest showing the cwd picker.
func runtimeDecideStartup(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	rc, err := b.repos.Runtime.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get runtime context: %w", err)
	}
	if rc.ActiveProjectID != nil {
		resp := ok("project_id", *rc.ActiveProjectID)
		if rc.ActiveRepoID != nil {
			resp["preferred_repo_id"] = *rc.ActiveRepoID
		}
		return resp, nil
	}

	if cwd := stringParam(params, "cwd_path"); cwd != "" {
		if repo, err := b.repos.Projects.FindRepoByPath(ctx, cwd); err == nil {
			return ok("project_id", repo.ProjectID, "preferred_repo_id", repo.ID), nil
		}
	}

	return ok("suggest_cwd", true, "cwd_path", stringParam(params, "cwd_path")), nil
}

func runtimeSetLastActiveContext(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	var projectID, repoID *string
	if v := stringParam(params, "project_id"); v != "" {
		projectID = &v
	}
	if v := stringParam(params, "repo_id"); v != "" {
		repoID = &v
	}
	label := stringParam(params, "label")
	if err := b.repos.Runtime.SetLastActiveContext(ctx, projectID, repoID, label); err != nil {
		return nil, fmt.Errorf("set last active context: %w", err)
	}
	return ok(), nil
}

func runtimeTaskView(ctx context.Context, b *Boundary, taskID string) (map[string]any, error) {
	running, err := b.repos.Executions.RunningForTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("running execution for task: %w", err)
	}
	view := map[string]any{"is_running": running != nil}
	if running != nil {
		view["execution_id"] = running.ID
	}
	return map[string]any{"task_id": taskID, "runtime": view}, nil
}

func runtimeGetRuntimeTask(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	taskID := stringParam(params, "task_id")
	if taskID == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	view, err := runtimeTaskView(ctx, b, taskID)
	if err != nil {
		return nil, err
	}
	return ok("task_id", view["task_id"], "runtime", view["runtime"]), nil
}

func runtimeReconcileRunning(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	rawIDs, _ := params["task_ids"].([]any)
	out := make([]map[string]any, 0, len(rawIDs))
	for _, raw := range rawIDs {
		taskID, _ := raw.(string)
		if taskID == "" {
			continue
		}
		view, err := runtimeTaskView(ctx, b, taskID)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return ok("tasks", out), nil
}
