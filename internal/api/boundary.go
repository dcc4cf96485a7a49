package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/logging"
	"github.com/kagan-sh/kagan-core/internal/plugins"
	"github.com/kagan-sh/kagan-core/internal/scheduler"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/taskservice"
	"github.com/kagan-sh/kagan-core/internal/worktree"
)

// operationHandler is one static built-in operation's implementation.
type operationHandler func(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error)

// operationDef is a static operation's authorization floor and catalog
// metadata, mirroring plugins.Operation's shape for the built-in half of
// the dispatch surface described in spec.md §4.G.
type operationDef struct {
	Handler        operationHandler
	MinimumProfile agentsession.CapabilityProfile
	Mutating       bool
}

// staticOps is the built-in (capability, method) -> operationDef table.
// Each domain file (task.go, workspace.go, ...) populates its slice of
// this map from its own init(), so the table never needs an explicit
// construction step at boundary New time.
var staticOps = map[string]map[string]operationDef{}

func registerOp(capability, method string, handler operationHandler, minimumProfile agentsession.CapabilityProfile, mutating bool) {
	bucket, ok := staticOps[capability]
	if !ok {
		bucket = map[string]operationDef{}
		staticOps[capability] = bucket
	}
	bucket[method] = operationDef{Handler: handler, MinimumProfile: minimumProfile, Mutating: mutating}
}

// profileRank orders capability profiles from least to most privileged,
// matching internal/plugins' identical ladder (kept as a separate literal
// here; plugins does not export its copy).
var profileRank = map[agentsession.CapabilityProfile]int{
	agentsession.CapabilityViewer:     0,
	agentsession.CapabilityPairWorker: 1,
	agentsession.CapabilityPlanner:    1,
	agentsession.CapabilityMaintainer: 2,
}

// pluginCapability/pluginInvokeMethod is the one reserved (capability,
// method) pair that routes into the Plugin Registry instead of the
// static table, implementing spec.md §4.G's invoke_plugin(capability,
// method, params).
const (
	pluginCapability   = "plugin"
	pluginInvokeMethod = "invoke"
)

// Boundary is the API Boundary: the single typed operation surface that
// backs ipc.Dispatcher. It holds direct references to every service it
// fronts, the same DAG shape the Scheduler uses — no back-references.
type Boundary struct {
	repos      *store.Repositories
	tasks      *taskservice.Service
	scheduler  *scheduler.Scheduler
	worktrees  *worktree.Manager
	registry   *plugins.Registry
}

// New constructs a Boundary wired to the core's concrete services.
func New(repos *store.Repositories, tasks *taskservice.Service, sched *scheduler.Scheduler, worktrees *worktree.Manager, registry *plugins.Registry) *Boundary {
	return &Boundary{repos: repos, tasks: tasks, scheduler: sched, worktrees: worktrees, registry: registry}
}

// Dispatch implements ipc.Dispatcher. It authorizes the request against
// the bound session's capability profile, runs the resolved operation
// (static or plugin), and audits every reply with its effective success.
func (b *Boundary) Dispatch(ctx context.Context, binding ipc.SessionBinding, req ipc.Request) ipc.Response {
	ctx = withRequestContext(ctx, RequestContext{Binding: binding, RequestID: req.RequestID})

	params, _ := req.Params.(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	if req.Capability == pluginCapability && req.Method == pluginInvokeMethod {
		return b.dispatchPlugin(ctx, binding, req, params)
	}

	bucket, ok := staticOps[req.Capability]
	if !ok {
		return b.respondError(ctx, binding, req, ipc.ErrUnknownMethod, "unknown capability", "")
	}
	def, ok := bucket[req.Method]
	if !ok {
		return b.respondError(ctx, binding, req, ipc.ErrUnknownMethod, "unknown method", "")
	}

	if profileRank[binding.CapabilityProfile] < profileRank[def.MinimumProfile] {
		return b.respondError(ctx, binding, req, ipc.ErrAuthorizationDenied,
			req.Capability+"."+req.Method+" requires a higher capability profile", "")
	}

	payload, err := def.Handler(ctx, b, params)
	if err != nil {
		logging.Error("api: %s.%s handler error: %v", req.Capability, req.Method, err)
		return b.respondError(ctx, binding, req, ipc.ErrInternal, err.Error(), "")
	}

	b.audit(ctx, binding, req, effectiveSuccess(true, payload))
	return ipc.Response{RequestID: req.RequestID, OK: true, Result: payload}
}

func (b *Boundary) dispatchPlugin(ctx context.Context, binding ipc.SessionBinding, req ipc.Request, outer map[string]any) ipc.Response {
	capability := stringParam(outer, "capability")
	method := stringParam(outer, "method")
	inner, _ := outer["params"].(map[string]any)
	if inner == nil {
		inner = map[string]any{}
	}

	op := b.registry.ResolveOperation(capability, method)
	if op == nil {
		return b.respondError(ctx, binding, req, ipc.ErrUnknownMethod, "no plugin operation registered for "+capability+"."+method, "")
	}

	dr := b.registry.Dispatch(ctx, op, binding.CapabilityProfile, inner)
	if !dr.Success {
		b.audit(ctx, binding, req, false)
		return ipc.Response{RequestID: req.RequestID, OK: true, Result: map[string]any{
			"success": false, "code": dr.Code, "message": dr.Message,
		}}
	}

	payload, err := plugins.InvokeHandler(ctx, op, b.repos, inner)
	if err != nil {
		logging.Error("api: plugin %s.%s handler error: %v", capability, method, err)
		b.audit(ctx, binding, req, false)
		return ipc.Response{RequestID: req.RequestID, OK: true, Result: map[string]any{
			"success": false, "code": ipc.ErrPluginPayloadInvalid, "message": err.Error(),
		}}
	}

	b.audit(ctx, binding, req, effectiveSuccess(true, payload))
	return ipc.Response{RequestID: req.RequestID, OK: true, Result: payload}
}

func (b *Boundary) respondError(ctx context.Context, binding ipc.SessionBinding, req ipc.Request, code, message, hint string) ipc.Response {
	b.audit(ctx, binding, req, false)
	return ipc.Response{
		RequestID: req.RequestID,
		OK:        false,
		Error:     &ipc.ErrorPayload{Code: code, Message: message, Hint: hint},
	}
}

// audit appends one AuditEntry. Failures to write the audit log are
// logged, not propagated — a client's reply is never held hostage by the
// audit trail's own durability.
func (b *Boundary) audit(ctx context.Context, binding ipc.SessionBinding, req ipc.Request, success bool) {
	entry := &store.AuditEntry{
		RequestID:    req.RequestID,
		SessionID:    binding.SessionID,
		Capability:   req.Capability,
		Method:       req.Method,
		ParamsDigest: digestParams(req.Params),
		Success:      success,
	}
	if err := b.repos.Audit.Append(ctx, entry); err != nil {
		logging.Error("api: append audit entry: %v", err)
	}
}

// digestParams hashes the request's params so the audit log records a
// stable fingerprint without persisting potentially sensitive payload
// content (tokens, prompts). Grounded on the teacher's own sha256 use for
// content fingerprints (internal/services/file_config_service.go).
func digestParams(params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
