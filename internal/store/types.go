package store

import "time"

// SessionStatus is the lifecycle status of a Session.
type SessionStatus string

const (
	StatusIdeas             SessionStatus = "ideas"
	StatusTodo              SessionStatus = "todo"
	StatusDoing             SessionStatus = "doing"
	StatusReview            SessionStatus = "review"
	StatusAccepted          SessionStatus = "accepted"
	StatusRejected          SessionStatus = "rejected"
	StatusNeedClarification SessionStatus = "need_clarification"
)

// Session is the durable record of one agent. ProjectPath is immutable
// after creation; every file operation the session performs must resolve
// within it.
type Session struct {
	ID            string
	Name          string
	Description   string
	Status        SessionStatus
	ProjectPath   string
	ProjectName   string
	WorkspaceRoot string
	Metadata      []byte // raw JSON, schemaless
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// MessageRole identifies who authored a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message is one turn of conversation attached to a Session. Messages for
// a session are totally ordered by (StepIndex, Timestamp).
type Message struct {
	ID         string
	SessionID  string
	Role       MessageRole
	Content    string
	ToolCall   []byte // raw JSON, schemaless
	ToolResult []byte // raw JSON, schemaless
	ToolCallID string
	StepIndex  int
	Timestamp  time.Time
}

// ProgressStatus is the outcome of one step recorded in the audit log.
type ProgressStatus string

const (
	ProgressPending   ProgressStatus = "pending"
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressEntry is one append-only audit log row; entries are never
// mutated after insert.
type ProgressEntry struct {
	ID        string
	SessionID string
	Step      string
	Status    ProgressStatus
	Details   string
	Timestamp time.Time
}

// LockKind distinguishes shared-read from exclusive-write claims.
type LockKind string

const (
	LockRead  LockKind = "read"
	LockWrite LockKind = "write"
)

// Lock is a time-bounded claim on a canonical path. A lock whose ExpiresAt
// has passed is semantically absent.
type Lock struct {
	ID         string
	SessionID  string
	FilePath   string
	Kind       LockKind
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// SnapshotOp identifies what kind of mutation a Snapshot journals.
type SnapshotOp string

const (
	SnapshotCreate SnapshotOp = "create"
	SnapshotUpdate SnapshotOp = "update"
	SnapshotDelete SnapshotOp = "delete"
)

// SnapshotStatus tracks whether the journalled intent has been applied,
// reverted, or is still awaiting the human decision.
type SnapshotStatus string

const (
	SnapshotPending  SnapshotStatus = "pending"
	SnapshotAccepted SnapshotStatus = "accepted"
	SnapshotReverted SnapshotStatus = "reverted"
)

// Snapshot is one journalled file mutation: enough bytes to undo or
// reapply it.
type Snapshot struct {
	ID            string
	SessionID     string
	FilePath      string
	Operation     SnapshotOp
	BeforeContent []byte
	HasBefore     bool
	AfterContent  []byte
	HasAfter      bool
	Status        SnapshotStatus
	StepIndex     int
	Timestamp     time.Time
}

// ProjectSummary is the group-by-projectPath aggregate returned by
// ListProjectSummaries.
type ProjectSummary struct {
	ProjectPath   string
	ProjectName   string
	AgentCount    int
	LastActivity  time.Time
	RunningAgents int
}
