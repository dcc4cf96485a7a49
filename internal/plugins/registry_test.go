package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/store"
)

func TestNoopRoundTrip(t *testing.T) {
	r := NewRegistry()
	RegisterNoop(r)

	op := r.ResolveOperation("kagan_noop", "ping")
	require.NotNil(t, op)

	dr := r.Dispatch(context.Background(), op, agentsession.CapabilityViewer, map[string]any{"echo": "hi"})
	require.True(t, dr.Success)

	payload, err := InvokeHandler(context.Background(), op, nil, map[string]any{"echo": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", payload["pong"])
}

func TestDispatchDeniesBelowMinimumProfile(t *testing.T) {
	r := NewRegistry()
	r.RegisterOperation("test", "test_cap", "mutate",
		func(_ context.Context, _ *store.Repositories, _ map[string]any) (map[string]any, error) {
			return map[string]any{"success": true}, nil
		},
		agentsession.CapabilityMaintainer, true, "")

	op := r.ResolveOperation("test_cap", "mutate")
	require.NotNil(t, op)

	dr := r.Dispatch(context.Background(), op, agentsession.CapabilityViewer, nil)
	require.False(t, dr.Success)
	require.Equal(t, "PLUGIN_AUTHORIZATION_DENIED", dr.Code)
}

func TestDispatchRunsPolicyHooksInOrderAndShortCircuits(t *testing.T) {
	r := NewRegistry()
	r.RegisterOperation("test", "test_cap", "gated",
		func(_ context.Context, _ *store.Repositories, _ map[string]any) (map[string]any, error) {
			return map[string]any{"success": true}, nil
		},
		agentsession.CapabilityViewer, false, "")

	var calledFirst, calledSecond bool
	r.RegisterPolicyHook("test", "test_cap", "gated", func(_ context.Context, _ map[string]any) (bool, string) {
		calledFirst = true
		return false, "denied by first hook"
	})
	r.RegisterPolicyHook("test", "test_cap", "gated", func(_ context.Context, _ map[string]any) (bool, string) {
		calledSecond = true
		return true, ""
	})

	op := r.ResolveOperation("test_cap", "gated")
	dr := r.Dispatch(context.Background(), op, agentsession.CapabilityViewer, nil)

	require.False(t, dr.Success)
	require.Equal(t, "PLUGIN_POLICY_DENIED", dr.Code)
	require.Equal(t, "denied by first hook", dr.Message)
	require.True(t, calledFirst)
	require.False(t, calledSecond, "second hook must not run once an earlier hook denies")
}

func TestResolveOperationUnknownReturnsNil(t *testing.T) {
	r := NewRegistry()
	require.Nil(t, r.ResolveOperation("nope", "nope"))
}

func TestRegisterOperationLastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.RegisterOperation("a", "cap", "m",
		func(_ context.Context, _ *store.Repositories, _ map[string]any) (map[string]any, error) {
			return map[string]any{"from": "a"}, nil
		}, agentsession.CapabilityViewer, false, "")
	r.RegisterOperation("b", "cap", "m",
		func(_ context.Context, _ *store.Repositories, _ map[string]any) (map[string]any, error) {
			return map[string]any{"from": "b"}, nil
		}, agentsession.CapabilityViewer, false, "")

	op := r.ResolveOperation("cap", "m")
	require.Equal(t, "b", op.PluginID)
}
