package worktree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionBundle is written to .kagan/session.json in each worktree for a
// PAIR task, giving an external terminal UI (out of core scope) enough
// context to attach a human operator to the right workspace.
type SessionBundle struct {
	WorkspaceID string   `json:"workspace_id"`
	TaskID      string   `json:"task_id"`
	TaskTitle   string   `json:"task_title"`
	Repos       []string `json:"repos"`
	Branches    []string `json:"branches"`
	CreatedAt   time.Time `json:"created_at"`
}

// WriteSessionBundle writes .kagan/session.json and .kagan/start_prompt.md
// into worktreePath for PAIR handoff.
func WriteSessionBundle(worktreePath string, bundle SessionBundle, acceptanceCriteria []string) error {
	dir := filepath.Join(worktreePath, ".kagan")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create .kagan dir: %w", err)
	}

	bundle.CreatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session bundle: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), data, 0o644); err != nil {
		return fmt.Errorf("write session.json: %w", err)
	}

	prompt := startPrompt(bundle, acceptanceCriteria)
	if err := os.WriteFile(filepath.Join(dir, "start_prompt.md"), []byte(prompt), 0o644); err != nil {
		return fmt.Errorf("write start_prompt.md: %w", err)
	}
	return nil
}

func startPrompt(bundle SessionBundle, acceptanceCriteria []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", bundle.TaskTitle)
	b.WriteString("You are pairing with a human operator in this worktree.\n\n")
	if len(acceptanceCriteria) > 0 {
		b.WriteString("## Acceptance criteria\n\n")
		for _, c := range acceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Branches\n\n")
	for i, repo := range bundle.Repos {
		branch := ""
		if i < len(bundle.Branches) {
			branch = bundle.Branches[i]
		}
		fmt.Fprintf(&b, "- `%s` → `%s`\n", repo, branch)
	}
	return b.String()
}
