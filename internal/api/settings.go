package api

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
)

func init() {
	registerOp("settings", "get", settingsGet, agentsession.CapabilityViewer, false)
	registerOp("settings", "set", settingsSet, agentsession.CapabilityMaintainer, true)
}

func settingsGet(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	key := stringParam(params, "key")
	if key == "" {
		all, err := b.repos.Settings.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("list settings: %w", err)
		}
		return ok("settings", all), nil
	}
	value, present, err := b.repos.Settings.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	if !present {
		return fail(ipc.ErrResourceNotFound, "setting not found"), nil
	}
	return ok("key", key, "value", value), nil
}

func settingsSet(ctx context.Context, b *Boundary, params map[string]any) (map[string]any, error) {
	key := stringParam(params, "key")
	if key == "" {
		return fail(ipc.ErrInvalidParams, "key is required"), nil
	}
	value := stringParam(params, "value")
	if err := b.repos.Settings.Set(ctx, key, value); err != nil {
		return nil, fmt.Errorf("set setting: %w", err)
	}
	return ok("key", key, "value", value), nil
}
