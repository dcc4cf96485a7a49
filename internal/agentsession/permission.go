package agentsession

import (
	"context"
	"time"
)

// Scope is the agent's MCP-like tool capability profile at launch.
type Scope string

const (
	ScopePlanner           Scope = "PLANNER"
	ScopeAutomationRunner  Scope = "AUTOMATION_RUNNER"
	ScopeAutomationReviewer Scope = "AUTOMATION_REVIEWER"
	ScopePromptRefiner     Scope = "PROMPT_REFINER"
)

// PermissionAnswer is the resolved outcome of a permission prompt.
type PermissionAnswer struct {
	Allow  bool
	Reason string
}

// PermissionPolicy centralizes the auto-approve ladder so no call site
// re-derives it. uiAttached reports whether a UI target is attached for
// this session (there may be nobody to ask). ask is consulted only when
// neither of the first two rules resolves the answer; it must return
// within the supplied context and waits for a human decision.
type PermissionPolicy struct {
	PlannerAutoApprove bool
	PromptTimeout      time.Duration
}

// Resolve decides whether a tool-call permission request should be
// auto-approved, auto-denied, or forwarded to a human via ask.
func (p PermissionPolicy) Resolve(ctx context.Context, scope Scope, uiAttached bool, ask func(context.Context) (bool, error)) PermissionAnswer {
	switch scope {
	case ScopePlanner:
		if p.PlannerAutoApprove {
			return PermissionAnswer{Allow: true, Reason: "planner_auto_approve enabled"}
		}
	case ScopeAutomationRunner, ScopeAutomationReviewer, ScopePromptRefiner:
		return PermissionAnswer{Allow: true, Reason: "scope always auto-approves"}
	}

	if !uiAttached {
		return PermissionAnswer{Allow: true, Reason: "no UI target attached"}
	}

	timeout := p.PromptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	askCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allowed, err := ask(askCtx)
	if err != nil {
		return PermissionAnswer{Allow: false, Reason: "timeout or cancellation waiting for UI answer"}
	}
	if !allowed {
		return PermissionAnswer{Allow: false, Reason: "denied by UI"}
	}
	return PermissionAnswer{Allow: true, Reason: "approved by UI"}
}
