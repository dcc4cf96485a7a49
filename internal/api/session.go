package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/store"
)

func init() {
	registerOp("session", "manage", sessionManage, agentsession.CapabilityPairWorker, true)
}

func sessionDTO(s *store.SessionRecord) map[string]any {
	m := map[string]any{
		"id":           s.ID,
		"workspace_id": s.WorkspaceID,
		"session_type": string(s.SessionType),
		"status":       string(s.Status),
		"external_id":  s.ExternalID,
		"started_at":   s.StartedAt,
	}
	if s.EndedAt != nil {
		m["ended_at"] = *s.EndedAt
	}
	return m
}

// sessionManage is the attach/detach/list entrypoint over SessionRecord
// rows — the live agent-session multiplexing spec.md §4.G alludes to
// ("mode/model selection") sits one layer below this boundary, inside
// the per-session agent wire protocol (§6), not in the persisted row.
func sessionManage(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	switch action := stringParam(params, "action"); action {
	case "attach":
		workspaceID := stringParam(params, "workspace_id")
		if workspaceID == "" {
			return fail(ipc.ErrInvalidParams, "workspace_id is required"), nil
		}
		rec := &store.SessionRecord{
			WorkspaceID: workspaceID,
			SessionType: store.SessionType(firstNonEmptyStr(stringParam(params, "session_type"), string(store.SessionTypeTmux))),
			ExternalID:  stringParam(params, "external_id"),
		}
		if err := b.repos.Sessions.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("create session record: %w", err)
		}
		return ok("session", sessionDTO(rec)), nil

	case "detach":
		id := stringParam(params, "session_id")
		if id == "" {
			return fail(ipc.ErrInvalidParams, "session_id is required"), nil
		}
		status := store.SessionStatusClosed
		if boolParam(params, "failed") {
			status = store.SessionStatusFailed
		}
		if err := b.repos.Sessions.Close(ctx, id, status); err != nil {
			return nil, fmt.Errorf("close session record: %w", err)
		}
		return ok(), nil

	case "list", "":
		active, err := b.repos.Sessions.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active sessions: %w", err)
		}
		out := make([]map[string]any, 0, len(active))
		for _, s := range active {
			out = append(out, sessionDTO(s))
		}
		return ok("sessions", out), nil

	default:
		return fail(ipc.ErrInvalidParams, "unknown session.manage action: "+action), nil
	}
}
