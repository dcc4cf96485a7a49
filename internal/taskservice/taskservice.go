// Package taskservice enforces the Kanban status state machine and the
// other small hygiene rules (acceptance-criteria normalization, scratchpad
// truncation) that sit between the API boundary and the Store.
package taskservice

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-core/internal/store"
)

// ScratchpadCap bounds scratchpad content length. Overflow truncates to the
// newest tail, never the oldest — the scheduler feeds the scratchpad back
// into prompts as "previous progress," so the most recent notes matter most.
const ScratchpadCap = 16 * 1024

// Service is a thin layer over Store that enforces status transitions and
// scratchpad/acceptance-criteria hygiene. It holds no state of its own.
type Service struct {
	repos *store.Repositories
}

// New constructs a Service bound to a Repositories.
func New(repos *store.Repositories) *Service {
	return &Service{repos: repos}
}

// permittedTransitions enumerates every edge the state machine allows.
// Any (from, to) pair absent from this set is a no-op, never an error —
// stale clients replaying an old status cannot corrupt state.
var permittedTransitions = map[store.TaskStatus]map[store.TaskStatus]bool{
	store.TaskStatusBacklog: {
		store.TaskStatusInProgress: true,
	},
	store.TaskStatusInProgress: {
		store.TaskStatusBacklog: true,
		store.TaskStatusReview:  true,
	},
	store.TaskStatusReview: {
		store.TaskStatusDone:       true,
		store.TaskStatusInProgress: true,
	},
	store.TaskStatusDone: {},
}

// IsTransitionPermitted reports whether from->to is a permitted edge.
func IsTransitionPermitted(from, to store.TaskStatus) bool {
	if from == to {
		return true
	}
	edges, ok := permittedTransitions[from]
	return ok && edges[to]
}

// SetStatus applies a status transition if and only if it is permitted;
// otherwise the call is a silent no-op and returns the task unchanged.
func (s *Service) SetStatus(ctx context.Context, taskID string, to store.TaskStatus) (*store.Task, error) {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if !IsTransitionPermitted(task.Status, to) {
		return task, nil
	}
	if task.Status == to {
		return task, nil
	}
	task.Status = to
	if err := s.repos.Tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	return task, nil
}

// SyncStatusFromAgentComplete advances IN_PROGRESS -> REVIEW only when the
// caller explicitly signals success. The reverse direction is never
// triggered automatically from this entrypoint.
func (s *Service) SyncStatusFromAgentComplete(ctx context.Context, taskID string, success bool) (*store.Task, error) {
	if !success {
		return s.repos.Tasks.Get(ctx, taskID)
	}
	return s.SetStatus(ctx, taskID, store.TaskStatusReview)
}

// NormalizeAcceptanceCriteria accepts either a single string (wrapped as a
// one-element list) or an already-ordered list of strings (passed through
// unchanged).
func NormalizeAcceptanceCriteria(input any) ([]string, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("acceptance criteria entry is not a string: %v", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported acceptance criteria type %T", input)
	}
}

// Create normalizes acceptance criteria before delegating to the Store.
func (s *Service) Create(ctx context.Context, task *store.Task, rawCriteria any) (*store.Task, error) {
	criteria, err := NormalizeAcceptanceCriteria(rawCriteria)
	if err != nil {
		return nil, err
	}
	task.AcceptanceCriteria = criteria
	if err := s.repos.Tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// UpdateScratchpad truncates content to the scratchpad cap (newest tail)
// before persisting, so invariant 6 holds after every write.
func (s *Service) UpdateScratchpad(ctx context.Context, taskID, content string) (*store.Scratchpad, error) {
	truncated := TruncateTail(content, ScratchpadCap)
	if err := s.repos.Scratchpads.Set(ctx, taskID, truncated); err != nil {
		return nil, fmt.Errorf("set scratchpad: %w", err)
	}
	return s.repos.Scratchpads.Get(ctx, taskID)
}

// AppendScratchpad reads the current scratchpad, appends content, and
// truncates the result to the cap before persisting.
func (s *Service) AppendScratchpad(ctx context.Context, taskID, addition string) (*store.Scratchpad, error) {
	current, err := s.repos.Scratchpads.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get scratchpad: %w", err)
	}
	return s.UpdateScratchpad(ctx, taskID, current.Content+addition)
}

// TruncateTail implements the queue-truncation contract: the original is
// returned unchanged when already within the cap; otherwise the result is
// exactly capLen runes long and ends with the most recent input.
func TruncateTail(content string, capLen int) string {
	runes := []rune(content)
	if len(runes) <= capLen {
		return content
	}
	return string(runes[len(runes)-capLen:])
}
