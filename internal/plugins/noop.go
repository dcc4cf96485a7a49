package plugins

import (
	"context"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/store"
)

// RegisterNoop installs the scaffolding-validation plugin: a single
// read-only "ping" operation under the "kagan_noop" capability namespace
// that every core build registers, so a fresh install's plugin wiring
// can be smoke-tested without any external credentials.
func RegisterNoop(r *Registry) {
	r.RegisterOperation("kagan_noop", "kagan_noop", "ping",
		func(_ context.Context, _ *store.Repositories, params map[string]any) (map[string]any, error) {
			echo, _ := params["echo"].(string)
			return map[string]any{"success": true, "pong": echo}, nil
		},
		agentsession.CapabilityViewer, false, "Scaffolding smoke test; echoes params.echo back.",
	)
}
