package scheduler

import (
	"fmt"
	"strings"

	"github.com/kagan-sh/kagan-core/internal/store"
)

// toolServerEndpointName is a stable placeholder identifier for the
// agent-facing tool server (out of core scope; this is the name the prompt
// tells the agent to dial).
const toolServerEndpointName = "kagan-tools"

// buildRunPrompt assembles the prompt for an AUTO run turn: task fields,
// run index, the scratchpad tail as "previous progress," and the
// tool-server endpoint name the agent should connect to.
func buildRunPrompt(task *store.Task, runIndex int, scratchpadTail, gitIdentity string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", task.Description)
	}
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance criteria\n\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "This is run #%d for this task.\n\n", runIndex)
	if scratchpadTail != "" {
		b.WriteString("## Previous progress\n\n")
		b.WriteString(scratchpadTail)
		b.WriteString("\n\n")
	}
	if gitIdentity != "" {
		fmt.Fprintf(&b, "Commit as: %s\n\n", gitIdentity)
	}
	fmt.Fprintf(&b, "Tool server endpoint: %s\n\n", toolServerEndpointName)
	b.WriteString("Signal completion with <complete/>, request another turn with <continue/>, ")
	b.WriteString("or report a blocker with <blocked reason=\"...\"/>.\n")
	return b.String()
}

// buildReviewPrompt assembles the read-only review-session prompt: task
// title, the capped diff, and any queued follow-up from the operator.
func buildReviewPrompt(task *store.Task, diff, followUp string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Review: %s\n\n", task.Title)
	b.WriteString("You are reviewing the changes below in read-only mode. ")
	b.WriteString("Respond with \"Decision: Approve\" or \"Decision: Reject\" (or <approve/>/<reject/>).\n\n")
	if followUp != "" {
		b.WriteString("## Follow-up from operator\n\n")
		b.WriteString(followUp)
		b.WriteString("\n\n")
	}
	b.WriteString("## Diff\n\n```diff\n")
	b.WriteString(diff)
	b.WriteString("\n```\n")
	return b.String()
}
