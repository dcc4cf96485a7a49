package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
)

func init() {
	registerOp("audit", "list", auditList, agentsession.CapabilityMaintainer, false)
}

func auditList(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	entries, err := b.repos.Audit.List(ctx, intParam(params, "limit", 100))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":            e.ID,
			"request_id":    e.RequestID,
			"session_id":    e.SessionID,
			"capability":    e.Capability,
			"method":        e.Method,
			"params_digest": e.ParamsDigest,
			"success":       e.Success,
			"created_at":    e.CreatedAt,
		})
	}
	return ok("entries", out), nil
}
