package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/taskservice"
)

func init() {
	registerOp("task", "create", taskCreate, agentsession.CapabilityPairWorker, true)
	registerOp("task", "list", taskList, agentsession.CapabilityViewer, false)
	registerOp("task", "get", taskGet, agentsession.CapabilityViewer, false)
	registerOp("task", "update", taskUpdate, agentsession.CapabilityPairWorker, true)
	registerOp("task", "delete", taskDelete, agentsession.CapabilityMaintainer, true)
	registerOp("task", "search", taskSearch, agentsession.CapabilityViewer, false)
	registerOp("task", "set_status", taskSetStatus, agentsession.CapabilityPairWorker, true)
	registerOp("task", "patch", taskPatch, agentsession.CapabilityPairWorker, true)
	registerOp("task", "scratchpad.get", taskScratchpadGet, agentsession.CapabilityViewer, false)
	registerOp("task", "scratchpad.update", taskScratchpadUpdate, agentsession.CapabilityPairWorker, true)
}

func taskDTO(t *store.Task) map[string]any {
	m := map[string]any{
		"id":                  t.ID,
		"project_id":          t.ProjectID,
		"title":               t.Title,
		"description":         t.Description,
		"status":              string(t.Status),
		"priority":            int(t.Priority),
		"task_type":           string(t.TaskType),
		"agent_backend":       t.AgentBackend,
		"base_branch":         t.BaseBranch,
		"acceptance_criteria": t.AcceptanceCriteria,
		"terminal_backend":    t.TerminalBackend,
		"created_at":          t.CreatedAt,
		"updated_at":          t.UpdatedAt,
	}
	if t.ParentID != nil {
		m["parent_id"] = *t.ParentID
	}
	return m
}

func taskCreate(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	projectID := stringParam(params, "project_id")
	title := stringParam(params, "title")
	if projectID == "" || title == "" {
		return fail(ipc.ErrInvalidParams, "project_id and title are required"), nil
	}
	task := &store.Task{
		ProjectID:       projectID,
		Title:           title,
		Description:     stringParam(params, "description"),
		Priority:        store.TaskPriority(intParam(params, "priority", int(store.TaskPriorityMedium))),
		TaskType:        store.TaskType(firstNonEmptyStr(stringParam(params, "task_type"), string(store.TaskTypeAuto))),
		AgentBackend:    stringParam(params, "agent_backend"),
		BaseBranch:      stringParam(params, "base_branch"),
		TerminalBackend: stringParam(params, "terminal_backend"),
	}
	if parentID := stringParam(params, "parent_id"); parentID != "" {
		task.ParentID = &parentID
	}
	created, err := b.tasks.Create(ctx, task, params["acceptance_criteria"])
	if err != nil {
		return fail(ipc.ErrInvalidParams, err.Error()), nil
	}
	return ok("task", taskDTO(created)), nil
}

func taskList(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	projectID := stringParam(params, "project_id")
	if projectID == "" {
		return fail(ipc.ErrInvalidParams, "project_id is required"), nil
	}
	tasks, err := b.repos.Tasks.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskDTO(t))
	}
	return ok("tasks", out), nil
}

func taskGet(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	id := stringParam(params, "task_id")
	if id == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	t, err := b.repos.Tasks.Get(ctx, id)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "task not found"), nil
	}
	return ok("task", taskDTO(t)), nil
}

func taskUpdate(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	id := stringParam(params, "task_id")
	if id == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	t, err := b.repos.Tasks.Get(ctx, id)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "task not found"), nil
	}
	if v, present := params["title"]; present {
		t.Title, _ = v.(string)
	}
	if v, present := params["description"]; present {
		t.Description, _ = v.(string)
	}
	if _, present := params["priority"]; present {
		t.Priority = store.TaskPriority(intParam(params, "priority", int(t.Priority)))
	}
	if v, present := params["agent_backend"]; present {
		t.AgentBackend, _ = v.(string)
	}
	if v, present := params["base_branch"]; present {
		t.BaseBranch, _ = v.(string)
	}
	if v, present := params["terminal_backend"]; present {
		t.TerminalBackend, _ = v.(string)
	}
	if v, present := params["acceptance_criteria"]; present {
		criteria, err := taskservice.NormalizeAcceptanceCriteria(v)
		if err != nil {
			return fail(ipc.ErrInvalidParams, err.Error()), nil
		}
		t.AcceptanceCriteria = criteria
	}
	if err := b.repos.Tasks.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return ok("task", taskDTO(t)), nil
}

// taskPatch is update's partial-field sibling; both share the same
// merge-then-persist implementation since the Store has no separate
// partial-update statement.
func taskPatch(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	return taskUpdate(ctx, b, params)
}

func taskDelete(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	id := stringParam(params, "task_id")
	if id == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	if err := b.repos.Tasks.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}
	return ok(), nil
}

func taskSearch(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	projectID := stringParam(params, "project_id")
	query := stringParam(params, "query")
	if projectID == "" {
		return fail(ipc.ErrInvalidParams, "project_id is required"), nil
	}
	tasks, err := b.repos.Tasks.Search(ctx, projectID, query)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskDTO(t))
	}
	return ok("tasks", out), nil
}

func taskSetStatus(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	id := stringParam(params, "task_id")
	status := stringParam(params, "status")
	if id == "" || status == "" {
		return fail(ipc.ErrInvalidParams, "task_id and status are required"), nil
	}
	t, err := b.tasks.SetStatus(ctx, id, store.TaskStatus(status))
	if err != nil {
		return nil, fmt.Errorf("set task status: %w", err)
	}
	if t.Status != store.TaskStatus(status) {
		return fail(ipc.ErrConflict, "transition not permitted from "+string(t.Status)+" to "+status, "task", taskDTO(t)), nil
	}
	if t.Status == store.TaskStatusInProgress && t.TaskType == store.TaskTypeAuto {
		b.scheduler.TriggerTask(ctx, t.ID)
	}
	return ok("task", taskDTO(t)), nil
}

func taskScratchpadGet(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	id := stringParam(params, "task_id")
	if id == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	sp, err := b.repos.Scratchpads.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get scratchpad: %w", err)
	}
	return ok("content", sp.Content, "updated_at", sp.UpdatedAt), nil
}

func taskScratchpadUpdate(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	id := stringParam(params, "task_id")
	content := stringParam(params, "content")
	if id == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	sp, err := b.tasks.UpdateScratchpad(ctx, id, content)
	if err != nil {
		return nil, fmt.Errorf("update scratchpad: %w", err)
	}
	return ok("content", sp.Content, "updated_at", sp.UpdatedAt), nil
}

func firstNonEmptyStr(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
