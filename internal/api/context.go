// Package api implements the API Boundary described in spec.md §4.G: a
// single typed operation surface backing the IPC Server's Dispatcher,
// static built-in operations plus plugin-namespace dispatch, and the
// audit trail every reply writes.
package api

import (
	"context"

	"github.com/kagan-sh/kagan-core/internal/ipc"
)

// requestContextKey is unexported so no other package can construct or
// overwrite a RequestContext value directly.
type requestContextKey struct{}

// RequestContext carries the bound session and the in-flight request
// into operation handlers, replacing the original's ContextVar-based
// core/request_context.py with a context.Context value — the idiomatic
// Go analogue the teacher's codebase already uses for per-request
// metadata on goroutine-scoped calls.
type RequestContext struct {
	Binding   ipc.SessionBinding
	RequestID string
}

// withRequestContext returns a child context carrying rc, for the
// duration of one Dispatch call.
func withRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext bound to ctx, and whether one
// was present. Handlers that need the caller's identity or session id
// (e.g. to stamp an Execution's triggering session) use this instead of
// threading the binding through every call signature.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}

// RequireFromContext is FromContext's panicking variant, for call sites
// that are only ever reachable from within Dispatch and would indicate a
// programming error (not a client-triggerable one) if the value were
// absent — mirroring require_request_context's contract in the original.
func RequireFromContext(ctx context.Context) RequestContext {
	rc, ok := FromContext(ctx)
	if !ok {
		panic("api: no RequestContext bound; handler invoked outside Dispatch")
	}
	return rc
}
