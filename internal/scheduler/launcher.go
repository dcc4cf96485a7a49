package scheduler

import (
	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/store"
)

// AgentLauncher resolves the concrete backend binary and argv for a task's
// configured agent_backend (claude, opencode, gemini, codex, ...). Those
// backend CLIs are external collaborators whose wire protocol the core
// consumes but whose implementations are out of scope; the scheduler only
// depends on this interface, never on a concrete backend.
type AgentLauncher interface {
	// Launch builds the SpawnOptions for one agent turn. readOnly is set
	// for review-mode sessions, which must not mutate the workspace.
	Launch(task *store.Task, workspace *store.Workspace, prompt string, readOnly bool) (agentsession.SpawnOptions, error)
}
