package main

import (
	"fmt"
	"time"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/config"
	"github.com/kagan-sh/kagan-core/internal/store"
)

// backendSpec names the ACP-speaking CLI a task's agent_backend resolves
// to, and the model it always runs with (there is no per-task model
// override). Grounded on
// the original's AgentBackendConfig discriminated union (backend_config.py):
// one binary, one default model, per backend type.
type backendSpec struct {
	binary       string
	defaultModel string
}

var backendSpecs = map[string]backendSpec{
	"claude":   {binary: "claude", defaultModel: "sonnet"},
	"opencode": {binary: "opencode", defaultModel: "sonnet"},
	"copilot":  {binary: "copilot", defaultModel: "claude-sonnet-4"},
	"gemini":   {binary: "gemini", defaultModel: "gemini-2.5-pro"},
	"kimi":     {binary: "kimi", defaultModel: "kimi-k2"},
	"codex":    {binary: "codex", defaultModel: "o3"},
}

const defaultAgentBackend = "claude"

// cliAgentLauncher is the default scheduler.AgentLauncher: it resolves a
// task's agent_backend to an ACP-mode CLI invocation, running in the
// workspace's primary repo worktree with the turn prompt passed as a
// trailing positional argument.
type cliAgentLauncher struct {
	cfg *config.Config
}

func newCLIAgentLauncher(cfg *config.Config) *cliAgentLauncher {
	return &cliAgentLauncher{cfg: cfg}
}

func (l *cliAgentLauncher) Launch(task *store.Task, workspace *store.Workspace, prompt string, readOnly bool) (agentsession.SpawnOptions, error) {
	backend := task.AgentBackend
	if backend == "" {
		backend = defaultAgentBackend
	}
	spec, ok := backendSpecs[backend]
	if !ok {
		return agentsession.SpawnOptions{}, fmt.Errorf("launch agent: unknown agent_backend %q", backend)
	}
	if len(workspace.Repos) == 0 {
		return agentsession.SpawnOptions{}, fmt.Errorf("launch agent: workspace %s has no materialized repos", workspace.ID)
	}

	args := []string{"--acp", "--model", spec.defaultModel}
	if readOnly {
		args = append(args, "--read-only")
	}
	args = append(args, prompt)

	return agentsession.SpawnOptions{
		Binary:  spec.binary,
		Args:    args,
		WorkDir: workspace.Repos[0].WorktreePath,
		ID:      task.ID,
		Permission: agentsession.PermissionPolicy{
			PlannerAutoApprove: l.cfg.PlannerAutoApprove,
			PromptTimeout:      30 * time.Second,
		},
	}, nil
}
