package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/worktree"
)

func init() {
	registerOp("workspace", "create", workspaceCreate, agentsession.CapabilityPairWorker, true)
	registerOp("workspace", "list", workspaceList, agentsession.CapabilityViewer, false)
	registerOp("workspace", "archive", workspaceArchive, agentsession.CapabilityPairWorker, true)
	registerOp("workspace", "get_repos", workspaceGetRepos, agentsession.CapabilityViewer, false)
}

func workspaceRepoDTO(wr store.WorkspaceRepo) map[string]any {
	return map[string]any{
		"repo_id":       wr.RepoID,
		"worktree_path": wr.WorktreePath,
		"branch_name":   wr.BranchName,
		"target_branch": wr.TargetBranch,
	}
}

func workspaceDTO(w *store.Workspace) map[string]any {
	repos := make([]map[string]any, 0, len(w.Repos))
	for _, wr := range w.Repos {
		repos = append(repos, workspaceRepoDTO(wr))
	}
	return map[string]any{
		"id":         w.ID,
		"task_id":    w.TaskID,
		"status":     string(w.Status),
		"repos":      repos,
		"created_at": w.CreatedAt,
	}
}

// workspaceCreate materializes a workspace for a task across every repo
// in its project, the manual counterpart to the scheduler's own
// ensureWorkspace used for the AUTO run loop (internal/scheduler/run.go).
func workspaceCreate(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	taskID := stringParam(params, "task_id")
	if taskID == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	task, err := b.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "task not found"), nil
	}

	projectRepos, err := b.repos.Projects.ListRepos(ctx, task.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list project repos: %w", err)
	}
	if len(projectRepos) == 0 {
		return fail(ipc.ErrConflict, "project has no repos to materialize"), nil
	}

	if existing, err := b.repos.Workspaces.GetActiveForTaskRepo(ctx, taskID, projectRepos[0].ID); err == nil {
		return ok("workspace", workspaceDTO(existing)), nil
	}

	explicitTarget := stringParam(params, "target_branch")
	workspaceRepos := make([]store.WorkspaceRepo, 0, len(projectRepos))
	for _, r := range projectRepos {
		ref := worktree.RepoRef{RepoID: r.ID, RepoPath: r.Path, RepoName: r.DisplayName, DefaultBranch: r.DefaultBranch}
		result, err := b.worktrees.Create(ctx, task.ProjectID, task.ID, task.Title, ref, explicitTarget, task.BaseBranch)
		if err != nil {
			return nil, fmt.Errorf("create worktree for repo %s: %w", r.DisplayName, err)
		}
		workspaceRepos = append(workspaceRepos, store.WorkspaceRepo{
			RepoID: result.RepoID, WorktreePath: result.WorktreePath,
			BranchName: result.BranchName, TargetBranch: result.TargetBranch,
		})
	}

	ws := &store.Workspace{TaskID: taskID, Status: store.WorkspaceStatusActive, Repos: workspaceRepos}
	if err := b.repos.Workspaces.Create(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace row: %w", err)
	}
	if task.TaskType == store.TaskTypePair {
		bundle := worktree.SessionBundle{WorkspaceID: ws.ID, TaskID: task.ID, TaskTitle: task.Title}
		for i, wr := range workspaceRepos {
			bundle.Repos = append(bundle.Repos, projectRepos[i].DisplayName)
			bundle.Branches = append(bundle.Branches, wr.BranchName)
		}
		for _, wr := range workspaceRepos {
			if err := worktree.WriteSessionBundle(wr.WorktreePath, bundle, task.AcceptanceCriteria); err != nil {
				return nil, fmt.Errorf("write session bundle: %w", err)
			}
		}
	}
	return ok("workspace", workspaceDTO(ws)), nil
}

func workspaceList(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	taskID := stringParam(params, "task_id")
	if taskID == "" {
		return fail(ipc.ErrInvalidParams, "task_id is required"), nil
	}
	list, err := b.repos.Workspaces.List(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	out := make([]map[string]any, 0, len(list))
	for _, w := range list {
		out = append(out, workspaceDTO(w))
	}
	return ok("workspaces", out), nil
}

// workspaceArchive flips the Workspace row to ARCHIVED and best-effort
// releases each repo's worktree on disk. project_id is required so the
// original repo path (not recorded on workspace_repos) can be resolved.
func workspaceArchive(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	workspaceID := stringParam(params, "workspace_id")
	projectID := stringParam(params, "project_id")
	if workspaceID == "" || projectID == "" {
		return fail(ipc.ErrInvalidParams, "workspace_id and project_id are required"), nil
	}
	ws, err := b.repos.Workspaces.Get(ctx, workspaceID)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "workspace not found"), nil
	}

	if err := b.repos.Workspaces.Archive(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("archive workspace: %w", err)
	}

	projectRepos, err := b.repos.Projects.ListRepos(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project repos: %w", err)
	}
	pathByRepo := make(map[string]string, len(projectRepos))
	for _, r := range projectRepos {
		pathByRepo[r.ID] = r.Path
	}
	for _, wr := range ws.Repos {
		repoPath, known := pathByRepo[wr.RepoID]
		if !known {
			continue
		}
		if err := b.worktrees.Release(ctx, repoPath, wr.WorktreePath); err != nil {
			return nil, fmt.Errorf("release worktree %s: %w", wr.WorktreePath, err)
		}
	}
	return ok(), nil
}

func workspaceGetRepos(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	workspaceID := stringParam(params, "workspace_id")
	if workspaceID == "" {
		return fail(ipc.ErrInvalidParams, "workspace_id is required"), nil
	}
	ws, err := b.repos.Workspaces.Get(ctx, workspaceID)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "workspace not found"), nil
	}
	out := make([]map[string]any, 0, len(ws.Repos))
	for _, wr := range ws.Repos {
		out = append(out, workspaceRepoDTO(wr))
	}
	return ok("repos", out), nil
}
