// Package agentsession drives a single child agent process over the
// line-delimited JSON "ACP" wire: outbound prompt notifications/requests,
// inbound session/update notifications carrying streamed content.
package agentsession

import "encoding/json"

// OutboundNotification is a fire-and-forget frame sent to the agent.
type OutboundNotification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// OutboundRequest is a frame expecting a correlated reply.
type OutboundRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// InboundFrame is the outer envelope of every line the agent emits.
type InboundFrame struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// SessionUpdate is the params of a "session/update" inbound frame. Content
// is a tagged variant (sum type): Kind selects which of the typed fields
// below is populated. Unknown kinds are preserved in Raw and forwarded to
// the UI without interpretation, per the tagged-variant design note.
type SessionUpdate struct {
	Kind string          `json:"kind"`
	Raw  json.RawMessage `json:"-"`

	Text             *TextContent        `json:"text,omitempty"`
	Thinking         *TextContent        `json:"thinking,omitempty"`
	ToolCall         *ToolCall            `json:"tool_call,omitempty"`
	ToolCallUpdate   *ToolCallUpdate      `json:"tool_call_update,omitempty"`
	Plan             *Plan                `json:"plan,omitempty"`
	AvailableCommands []string            `json:"available_commands,omitempty"`
	SetModes         []string             `json:"set_modes,omitempty"`
	SetModels        []string             `json:"set_models,omitempty"`
	ModeUpdate       string               `json:"mode_update,omitempty"`
	ModelUpdate      string               `json:"model_update,omitempty"`
	PermissionRequest *PermissionRequest  `json:"permission_request,omitempty"`
}

// UnmarshalJSON captures the raw payload alongside the typed fields so
// unrecognized kinds survive round-tripping untouched.
func (s *SessionUpdate) UnmarshalJSON(data []byte) error {
	type alias SessionUpdate
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = SessionUpdate(a)
	s.Raw = append([]byte(nil), data...)
	return nil
}

// TextContent is a streamed text or thinking chunk.
type TextContent struct {
	Text string `json:"text"`
}

// ToolCallKind enumerates the kinds of tool invocation an agent may report.
type ToolCallKind string

const (
	ToolCallRead       ToolCallKind = "read"
	ToolCallEdit       ToolCallKind = "edit"
	ToolCallDelete     ToolCallKind = "delete"
	ToolCallMove       ToolCallKind = "move"
	ToolCallSearch     ToolCallKind = "search"
	ToolCallExecute    ToolCallKind = "execute"
	ToolCallThink      ToolCallKind = "think"
	ToolCallFetch      ToolCallKind = "fetch"
	ToolCallSwitchMode ToolCallKind = "switch_mode"
	ToolCallOther      ToolCallKind = "other"
)

// ToolCall is the agent's announcement of a new tool invocation.
type ToolCall struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Kind    ToolCallKind    `json:"kind"`
	RawInput json.RawMessage `json:"raw_input,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// ToolCallStatus tracks a tool call's lifecycle.
type ToolCallStatus string

const (
	ToolCallPending    ToolCallStatus = "pending"
	ToolCallInProgress ToolCallStatus = "in_progress"
	ToolCallCompleted  ToolCallStatus = "completed"
	ToolCallFailed     ToolCallStatus = "failed"
)

// ToolCallUpdate reports a status change on a previously announced tool call.
type ToolCallUpdate struct {
	ID      string          `json:"id"`
	Status  ToolCallStatus  `json:"status"`
	Content json.RawMessage `json:"content,omitempty"`
}

// PlanEntryStatus tracks one step of an agent's plan.
type PlanEntryStatus string

const (
	PlanEntryPending    PlanEntryStatus = "pending"
	PlanEntryInProgress PlanEntryStatus = "in_progress"
	PlanEntryCompleted  PlanEntryStatus = "completed"
)

// PlanEntry is one ordered step of an agent's plan.
type PlanEntry struct {
	Content string          `json:"content"`
	Status  PlanEntryStatus `json:"status"`
}

// Plan is an ordered sequence of plan entries.
type Plan struct {
	Entries []PlanEntry `json:"entries"`
}

// PermissionOption is one answer choice offered for a permission request.
type PermissionOption string

const (
	PermissionAllowOnce    PermissionOption = "allow_once"
	PermissionAllowAlways  PermissionOption = "allow_always"
	PermissionRejectOnce   PermissionOption = "reject_once"
	PermissionRejectAlways PermissionOption = "reject_always"
)

// PermissionRequest asks the user (or the centralized policy in
// permission.go) to approve or deny a pending tool call.
type PermissionRequest struct {
	ToolCall ToolCall           `json:"tool_call"`
	Options  []PermissionOption `json:"options"`
}

// Lifecycle notification methods the agent may emit.
const (
	MethodSessionUpdate = "session/update"
	MethodAgentReady    = "agent_ready"
	MethodAgentComplete = "agent_complete"
	MethodAgentFail     = "agent_fail"
)

// AgentFailPayload is the params of an "agent_fail" notification.
type AgentFailPayload struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
