// Package plugins is the in-process operation registry described in
// spec.md §4.H: statically linked plugins register (capability, method)
// handlers and policy hooks at core startup. There is no dynamic code
// loading or filesystem scanning — registration is a Go function call
// from main, nothing more.
package plugins

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/store"
)

// Handler is a registered plugin operation. It receives the Store's
// repositories directly rather than a backreference to the API Boundary
// or AppContext, so the registry never holds a cycle back into the
// service layer that owns it.
type Handler func(ctx context.Context, repos *store.Repositories, params map[string]any) (map[string]any, error)

// PolicyHook is consulted, in registration order, before a handler runs.
// Returning ok=false short-circuits dispatch with PLUGIN_POLICY_DENIED.
type PolicyHook func(ctx context.Context, params map[string]any) (ok bool, reason string)

// Operation is one registered (capability, method) handler plus its
// authorization floor and catalog metadata.
type Operation struct {
	PluginID         string
	Capability       string
	Method           string
	Handler          Handler
	MinimumProfile   agentsession.CapabilityProfile
	Mutating         bool
	Description      string
}

type key struct{ capability, method string }

// Registry is the process-wide (capability, method) -> Operation map.
// Registration happens once at startup from statically linked plugins;
// after that the registry is read-only from the dispatcher's
// perspective (concurrent reads are safe without a lock since no writer
// runs concurrently with Resolve/Dispatch in the core's lifecycle).
type Registry struct {
	ops    map[key]*Operation
	hooks  map[key][]PolicyHook
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[key]*Operation), hooks: make(map[key][]PolicyHook)}
}

// RegisterOperation registers handler under (capability, method). A
// second registration for the same key replaces the first — later
// statically linked plugins win, matching simple last-write-wins
// semantics rather than erroring at startup over registration order.
func (r *Registry) RegisterOperation(pluginID, capability, method string, handler Handler, minimumProfile agentsession.CapabilityProfile, mutating bool, description string) {
	r.ops[key{capability, method}] = &Operation{
		PluginID:       pluginID,
		Capability:     capability,
		Method:         method,
		Handler:        handler,
		MinimumProfile: minimumProfile,
		Mutating:       mutating,
		Description:    description,
	}
}

// RegisterPolicyHook appends a policy hook for (capability, method),
// run in registration order before the handler.
func (r *Registry) RegisterPolicyHook(pluginID, capability, method string, hook PolicyHook) {
	k := key{capability, method}
	r.hooks[k] = append(r.hooks[k], hook)
}

// ResolveOperation returns the registered Operation for (capability,
// method), or nil if none is registered.
func (r *Registry) ResolveOperation(capability, method string) *Operation {
	return r.ops[key{capability, method}]
}

// DispatchResult is the outcome of Dispatch: Success on authorization,
// otherwise Code/Message. Dispatch itself leaves Payload empty; the
// handler's payload comes from InvokeHandler.
type DispatchResult struct {
	Success bool
	Payload map[string]any
	Code    string
	Message string
}

// profileRank orders capability profiles from least to most privileged
// so MinimumProfile can be checked with a simple comparison.
var profileRank = map[agentsession.CapabilityProfile]int{
	agentsession.CapabilityViewer:     0,
	agentsession.CapabilityPairWorker: 1,
	agentsession.CapabilityPlanner:    1,
	agentsession.CapabilityMaintainer: 2,
}

// Dispatch authorizes against MinimumProfile and runs policy hooks in
// registration order (the first denial short-circuits). It does not run
// the handler: the caller follows a successful Dispatch with
// InvokeHandler, which runs it and checks the payload. A nil
// Operation (unresolved capability/method) is the caller's
// responsibility to check via ResolveOperation first.
func (r *Registry) Dispatch(ctx context.Context, op *Operation, callerProfile agentsession.CapabilityProfile, params map[string]any) DispatchResult {
	if profileRank[callerProfile] < profileRank[op.MinimumProfile] {
		return DispatchResult{Code: "PLUGIN_AUTHORIZATION_DENIED", Message: fmt.Sprintf("%s.%s requires profile %s", op.Capability, op.Method, op.MinimumProfile)}
	}

	for _, hook := range r.hooks[key{op.Capability, op.Method}] {
		if ok, reason := hook(ctx, params); !ok {
			return DispatchResult{Code: "PLUGIN_POLICY_DENIED", Message: reason}
		}
	}

	return DispatchResult{Success: true}
}

// InvokeHandler runs op's handler against repos and validates the
// returned payload is dict-shaped, per api_plugins.py's contract (a
// non-dict return is a protocol violation).
func InvokeHandler(ctx context.Context, op *Operation, repos *store.Repositories, params map[string]any) (map[string]any, error) {
	result, err := op.Handler(ctx, repos, params)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%s.%s returned a nil payload", op.Capability, op.Method)
	}
	return result, nil
}
