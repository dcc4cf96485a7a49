package scheduler

import (
	"context"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/logging"
)

// wirePermissionResponder installs an OnUpdate hook on opts that answers
// permission_request updates through the centralized policy. Scheduler
// sessions always run under an automation scope, which auto-approves per
// the policy ladder — no UI target is ever attached to a scheduler-driven
// session, so the "ask" callback here is unreachable in practice and
// exists only to satisfy Resolve's signature.
func (s *Scheduler) wirePermissionResponder(ctx context.Context, opts *agentsession.SpawnOptions, scope agentsession.Scope, sessionRef **agentsession.Session) {
	userHook := opts.OnUpdate
	opts.OnUpdate = func(update agentsession.SessionUpdate) {
		if userHook != nil {
			userHook(update)
		}
		if update.PermissionRequest == nil || *sessionRef == nil {
			return
		}
		answer := s.permission.Resolve(ctx, scope, false, func(context.Context) (bool, error) { return false, nil })
		option := agentsession.PermissionRejectOnce
		if answer.Allow {
			option = agentsession.PermissionAllowOnce
		}
		if err := (*sessionRef).AnswerPermission(update.PermissionRequest.ToolCall.ID, option); err != nil {
			logging.Error("scheduler: answer permission request: %v", err)
		}
	}
}
