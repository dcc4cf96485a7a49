package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/store"
)

func init() {
	registerOp("project", "create", projectCreate, agentsession.CapabilityMaintainer, true)
	registerOp("project", "open", projectOpen, agentsession.CapabilityViewer, false)
	registerOp("project", "add_repo", projectAddRepo, agentsession.CapabilityMaintainer, true)
	registerOp("project", "list", projectList, agentsession.CapabilityViewer, false)
	registerOp("project", "find_by_repo_path", projectFindByRepoPath, agentsession.CapabilityViewer, false)
	registerOp("project", "repo_details", projectRepoDetails, agentsession.CapabilityViewer, false)
	registerOp("project", "update_repo_scripts", projectUpdateRepoScripts, agentsession.CapabilityMaintainer, true)
}

func projectDTO(p *store.Project) map[string]any {
	return map[string]any{"id": p.ID, "name": p.Name, "created_at": p.CreatedAt}
}

func repoDTO(r *store.Repo) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"project_id":     r.ProjectID,
		"path":           r.Path,
		"display_name":   r.DisplayName,
		"default_branch": r.DefaultBranch,
		"display_order":  r.DisplayOrder,
		"scripts":        r.Scripts,
	}
}

func projectCreate(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	name := stringParam(params, "name")
	if name == "" {
		return fail(ipc.ErrInvalidParams, "name is required"), nil
	}
	p := &store.Project{Name: name}
	if err := b.repos.Projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return ok("project", projectDTO(p)), nil
}

// projectOpen resolves a project by id, plus its repos — the "open a
// project in the UI" read path.
func projectOpen(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	id := stringParam(params, "project_id")
	if id == "" {
		return fail(ipc.ErrInvalidParams, "project_id is required"), nil
	}
	p, err := b.repos.Projects.Get(ctx, id)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "project not found"), nil
	}
	repos, err := b.repos.Projects.ListRepos(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	dtos := make([]map[string]any, 0, len(repos))
	for _, r := range repos {
		dtos = append(dtos, repoDTO(r))
	}
	return ok("project", projectDTO(p), "repos", dtos), nil
}

func projectAddRepo(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	projectID := stringParam(params, "project_id")
	path := stringParam(params, "path")
	displayName := stringParam(params, "display_name")
	if projectID == "" || path == "" || displayName == "" {
		return fail(ipc.ErrInvalidParams, "project_id, path, and display_name are required"), nil
	}
	repo := &store.Repo{
		ProjectID:     projectID,
		Path:          path,
		DisplayName:   displayName,
		DefaultBranch: stringParam(params, "default_branch"),
		DisplayOrder:  intParam(params, "display_order", 0),
	}
	if err := b.repos.Projects.AddRepo(ctx, repo); err != nil {
		return nil, fmt.Errorf("add repo: %w", err)
	}
	return ok("repo", repoDTO(repo)), nil
}

func projectList(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	projects, err := b.repos.Projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectDTO(p))
	}
	return ok("projects", out), nil
}

func projectFindByRepoPath(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	path := stringParam(params, "path")
	if path == "" {
		return fail(ipc.ErrInvalidParams, "path is required"), nil
	}
	repo, err := b.repos.Projects.FindRepoByPath(ctx, path)
	if err != nil {
		return fail(ipc.ErrResourceNotFound, "no repo registered at that path"), nil
	}
	return ok("repo", repoDTO(repo)), nil
}

func projectRepoDetails(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	projectID := stringParam(params, "project_id")
	repoID := stringParam(params, "repo_id")
	if projectID == "" || repoID == "" {
		return fail(ipc.ErrInvalidParams, "project_id and repo_id are required"), nil
	}
	repos, err := b.repos.Projects.ListRepos(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	for _, r := range repos {
		if r.ID == repoID {
			return ok("repo", repoDTO(r)), nil
		}
	}
	return fail(ipc.ErrResourceNotFound, "repo not found in project"), nil
}

func projectUpdateRepoScripts(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	repoID := stringParam(params, "repo_id")
	if repoID == "" {
		return fail(ipc.ErrInvalidParams, "repo_id is required"), nil
	}
	rawScripts, _ := params["scripts"].(map[string]any)
	scripts := make(map[string]string, len(rawScripts))
	for k, v := range rawScripts {
		s, _ := v.(string)
		scripts[k] = s
	}
	if err := b.repos.Projects.UpdateRepoScripts(ctx, repoID, scripts); err != nil {
		return nil, fmt.Errorf("update repo scripts: %w", err)
	}
	return ok(), nil
}
