package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/store"
)

// githubConnection is the JSON blob persisted into Repo.Scripts["github"]
// by the "connect" operation — plugin-managed metadata per spec.md §3's
// Repo.scripts description ("used for plugin-managed metadata such as
// GitHub connection JSON").
type githubConnection struct {
	Login     string `json:"login"`
	Connected bool   `json:"connected"`
}

// newGithubClient builds an authenticated go-github client from a
// caller-supplied personal access token. Grounded on
// other_examples/fyrsmithlabs-contextd's internal/workflows/github_client.go.
func newGithubClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return github.NewClient(tc)
}

// RegisterGithub installs the "kagan_github" capability namespace: a
// "connect" operation that validates a token against the GitHub API and
// persists connection metadata onto the named repo, and a "status"
// operation that reads it back.
func RegisterGithub(r *Registry) {
	r.RegisterOperation("kagan_github", "kagan_github", "connect",
		githubConnect,
		agentsession.CapabilityMaintainer, true,
		"Validate a GitHub personal access token and record the connection on a repo.",
	)
	r.RegisterOperation("kagan_github", "kagan_github", "status",
		githubStatus,
		agentsession.CapabilityViewer, false,
		"Report the GitHub connection status recorded on a repo.",
	)
}

func githubConnect(ctx context.Context, repos *store.Repositories, params map[string]any) (map[string]any, error) {
	repoID, _ := params["repo_id"].(string)
	projectID, _ := params["project_id"].(string)
	token, _ := params["token"].(string)
	if repoID == "" || projectID == "" || token == "" {
		return map[string]any{"success": false, "code": "INVALID_PARAMS", "message": "project_id, repo_id, and token are required"}, nil
	}

	client := newGithubClient(ctx, token)
	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return map[string]any{"success": false, "code": "EXTERNAL_TOOL_ERROR", "message": fmt.Sprintf("github token validation failed: %v", err)}, nil
	}

	repoList, err := repos.Projects.ListRepos(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project repos: %w", err)
	}
	var scripts map[string]string
	found := false
	for _, r := range repoList {
		if r.ID == repoID {
			scripts = r.Scripts
			found = true
			break
		}
	}
	if !found {
		return map[string]any{"success": false, "code": "RESOURCE_NOT_FOUND", "message": "repo not found in project"}, nil
	}
	if scripts == nil {
		scripts = map[string]string{}
	}

	conn := githubConnection{Login: user.GetLogin(), Connected: true}
	data, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("marshal github connection: %w", err)
	}
	scripts["github"] = string(data)
	if err := repos.Projects.UpdateRepoScripts(ctx, repoID, scripts); err != nil {
		return nil, fmt.Errorf("persist github connection: %w", err)
	}
	return map[string]any{"success": true, "login": conn.Login}, nil
}

// githubStatus reports the connection recorded by "connect". The repo's
// Scripts map is looked up through its owning project's repo list since
// the Store exposes no single-repo getter by id (only project-scoped
// listing and path lookup).
func githubStatus(ctx context.Context, repos *store.Repositories, params map[string]any) (map[string]any, error) {
	repoID, _ := params["repo_id"].(string)
	projectID, _ := params["project_id"].(string)
	if repoID == "" || projectID == "" {
		return map[string]any{"success": false, "code": "INVALID_PARAMS", "message": "project_id and repo_id are required"}, nil
	}

	repoList, err := repos.Projects.ListRepos(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project repos: %w", err)
	}
	var raw string
	found := false
	for _, r := range repoList {
		if r.ID == repoID {
			raw = r.Scripts["github"]
			found = true
			break
		}
	}
	if !found {
		return map[string]any{"success": false, "code": "RESOURCE_NOT_FOUND", "message": "repo not found in project"}, nil
	}
	if raw == "" {
		return map[string]any{"success": true, "connected": false}, nil
	}

	var conn githubConnection
	if err := json.Unmarshal([]byte(raw), &conn); err != nil {
		return map[string]any{"success": false, "code": "INVALID_PARAMS", "message": "malformed github connection blob"}, nil
	}
	return map[string]any{"success": true, "connected": conn.Connected, "login": conn.Login}, nil
}
