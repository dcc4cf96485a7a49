package store

import "time"

// TaskStatus is a Kanban column.
type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "BACKLOG"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusReview     TaskStatus = "REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
)

// TaskPriority orders tasks within a column.
type TaskPriority int

const (
	TaskPriorityLow TaskPriority = iota
	TaskPriorityMedium
	TaskPriorityHigh
)

// TaskType selects who drives a task to completion.
type TaskType string

const (
	TaskTypeAuto TaskType = "AUTO"
	TaskTypePair TaskType = "PAIR"
)

// WorkspaceStatus tracks on-disk materialization lifecycle.
type WorkspaceStatus string

const (
	WorkspaceStatusActive   WorkspaceStatus = "ACTIVE"
	WorkspaceStatusArchived WorkspaceStatus = "ARCHIVED"
)

// SessionType names the transport a live agent session speaks.
type SessionType string

const (
	SessionTypeTmux SessionType = "TMUX"
	SessionTypeACP  SessionType = "ACP"
	SessionTypeScript SessionType = "SCRIPT"
)

// SessionStatus tracks a live agent session's lifecycle.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusClosed SessionStatus = "CLOSED"
	SessionStatusFailed SessionStatus = "FAILED"
)

// ExecutionStatus tracks one agent run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCanceled  ExecutionStatus = "CANCELED"
)

// AgentTurnKind tags one chunk of an execution's append-only log.
type AgentTurnKind string

const (
	AgentTurnPrompt   AgentTurnKind = "PROMPT"
	AgentTurnResponse AgentTurnKind = "RESPONSE"
	AgentTurnSummary  AgentTurnKind = "SUMMARY"
	AgentTurnLog      AgentTurnKind = "LOG"
	AgentTurnEvent    AgentTurnKind = "EVENT"
)

// AgentStatus reports whether a session record's backing process is alive.
type AgentStatus string

const (
	AgentStatusAvailable   AgentStatus = "AVAILABLE"
	AgentStatusUnavailable AgentStatus = "UNAVAILABLE"
)

// Project is a logical grouping of Repos and Tasks.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Repo is a git repository participating in a Project.
type Repo struct {
	ID            string
	ProjectID     string
	Path          string
	DisplayName   string
	DefaultBranch string
	DisplayOrder  int
	Scripts       map[string]string
}

// Task is a unit of work tracked on the board.
type Task struct {
	ID                 string
	ProjectID          string
	ParentID           *string
	Title              string
	Description        string
	Status             TaskStatus
	Priority           TaskPriority
	TaskType           TaskType
	AgentBackend       string
	BaseBranch         string
	AcceptanceCriteria []string
	TerminalBackend    string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WorkspaceRepo is one repo's materialization within a Workspace.
type WorkspaceRepo struct {
	RepoID        string
	WorktreePath  string
	BranchName    string
	TargetBranch  string
}

// Workspace is the on-disk materialization of a Task.
type Workspace struct {
	ID        string
	TaskID    string
	Status    WorkspaceStatus
	Repos     []WorkspaceRepo
	CreatedAt time.Time
}

// Execution is one agent run for a Task.
type Execution struct {
	ID          string
	TaskID      string
	WorkspaceID string
	Status      ExecutionStatus
	ExitCode    *int
	RunIndex    int
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ExecutionLogChunk is one append-only entry in an Execution's log.
type ExecutionLogChunk struct {
	ID          string
	ExecutionID string
	Kind        AgentTurnKind
	Content     string
	CreatedAt   time.Time
}

// SessionRecord is a live agent session against a Workspace.
type SessionRecord struct {
	ID          string
	WorkspaceID string
	SessionType SessionType
	Status      SessionStatus
	ExternalID  string
	StartedAt   time.Time
	EndedAt     *time.Time
}

// Scratchpad is a per-task mutable note, truncated newest-tail when over cap.
type Scratchpad struct {
	TaskID    string
	Content   string
	UpdatedAt time.Time
}

// AuditEntry is one append-only record of an API call.
type AuditEntry struct {
	ID           string
	RequestID    string
	SessionID    string
	Capability   string
	Method       string
	ParamsDigest string
	Success      bool
	CreatedAt    time.Time
}

// RuntimeContext is process-wide last-active state.
type RuntimeContext struct {
	ActiveProjectID   *string
	ActiveRepoID      *string
	LastActiveContext string
}
