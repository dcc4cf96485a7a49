package worktree

import (
	"fmt"
	"strings"
)

// ConflictInstructions produces a deterministic Markdown block describing
// a failed rebase, for the agent to act on. No package in the core calls
// it: the Execution Scheduler performs no rebase of task branches.
func ConflictInstructions(sourceBranch, targetBranch string, conflictedFiles []string, repoName string) string {
	var b strings.Builder

	b.WriteString("## Rebase conflict\n\n")
	if repoName != "" {
		fmt.Fprintf(&b, "Repository: `%s`\n\n", repoName)
	}
	fmt.Fprintf(&b, "Rebasing `%s` onto `%s` produced conflicts in:\n\n", sourceBranch, targetBranch)
	for _, f := range conflictedFiles {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}
	b.WriteString("\nResolve each file, then run:\n\n")
	b.WriteString("```\ngit add <resolved files>\ngit rebase --continue\n```\n")

	return b.String()
}
