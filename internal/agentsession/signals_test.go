package agentsession

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSignalDefaultsToContinue(t *testing.T) {
	s, reason := ParseSignal("just some plain output")
	require.Equal(t, SignalContinue, s)
	require.Empty(t, reason)
}

func TestParseSignalLatestTagWins(t *testing.T) {
	text := "<continue/> doing more work <complete/>"
	s, _ := ParseSignal(text)
	require.Equal(t, SignalComplete, s)
}

func TestParseSignalBlockedCarriesReason(t *testing.T) {
	text := `working... <blocked reason="missing credentials"/>`
	s, reason := ParseSignal(text)
	require.Equal(t, SignalBlocked, s)
	require.Equal(t, "missing credentials", reason)
}

func TestParseReviewDecisionLatestWins(t *testing.T) {
	text := "Reasoning: looks fine\nDecision: Approve\nActually wait.\nDecision: Reject\n"
	d, ok := ParseReviewDecision(text)
	require.True(t, ok)
	require.Equal(t, ReviewRejected, d)
}

func TestParseReviewDecisionTagForm(t *testing.T) {
	d, ok := ParseReviewDecision("looks good <approve/>")
	require.True(t, ok)
	require.Equal(t, ReviewApproved, d)
}

func TestParseReviewDecisionAbsent(t *testing.T) {
	_, ok := ParseReviewDecision("no decision here")
	require.False(t, ok)
}

func TestPermissionPolicyAutomationScopesAlwaysApprove(t *testing.T) {
	p := PermissionPolicy{PlannerAutoApprove: false}
	answer := p.Resolve(context.Background(), ScopeAutomationRunner, true, func(context.Context) (bool, error) {
		t.Fatal("should not ask when scope always auto-approves")
		return false, nil
	})
	require.True(t, answer.Allow)
}

func TestPermissionPolicyNoUITargetAutoApproves(t *testing.T) {
	p := PermissionPolicy{PlannerAutoApprove: false}
	answer := p.Resolve(context.Background(), ScopePlanner, false, func(context.Context) (bool, error) {
		t.Fatal("should not ask when no UI is attached")
		return false, nil
	})
	require.True(t, answer.Allow)
}

func TestPermissionPolicyAsksWhenUIAttachedAndNotAutoApproved(t *testing.T) {
	p := PermissionPolicy{PlannerAutoApprove: false}
	answer := p.Resolve(context.Background(), ScopePlanner, true, func(context.Context) (bool, error) {
		return true, nil
	})
	require.True(t, answer.Allow)
}

func TestResolveCapabilityMatrix(t *testing.T) {
	require.Equal(t, CapabilityPlanner, ResolveCapability(LaunchContext{PlannerEntry: true}))
	require.Equal(t, CapabilityViewer, ResolveCapability(LaunchContext{TaskScoped: true}))
	require.Equal(t, CapabilityPairWorker, ResolveCapability(LaunchContext{TaskScoped: true, Writable: true}))
	require.Equal(t, CapabilityViewer, ResolveCapability(LaunchContext{}))
}
