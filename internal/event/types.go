package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: the bare topic name (e.g. "statusChanged").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Topic name constants.
const (
	TopicStatusChanged      = "statusChanged"
	TopicStepStarted        = "stepStarted"
	TopicStepCompleted      = "stepCompleted"
	TopicStepFailed         = "stepFailed"
	TopicLockConflict       = "lockConflict"
	TopicNeedsClarification = "needsClarification"
	TopicExecutionComplete  = "executionComplete"
	TopicExecutionAborted   = "executionAborted"
	TopicAgentCreated       = "agentCreated"
	TopicAgentDeleted       = "agentDeleted"
	TopicMessageAdded       = "messageAdded"
)

// -----------------------------------------------------------------------------
// Lifecycle events
// -----------------------------------------------------------------------------

// StatusChangedEvent is emitted whenever a session transitions status.
type StatusChangedEvent struct {
	baseEvent
	SessionID string
	From      string
	To        string
}

// NewStatusChangedEvent creates a StatusChangedEvent.
func NewStatusChangedEvent(sessionID, from, to string) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBaseEvent(TopicStatusChanged),
		SessionID: sessionID,
		From:      from,
		To:        to,
	}
}

// AgentCreatedEvent is emitted when a new session is created.
type AgentCreatedEvent struct {
	baseEvent
	SessionID   string
	ProjectPath string
}

// NewAgentCreatedEvent creates an AgentCreatedEvent.
func NewAgentCreatedEvent(sessionID, projectPath string) AgentCreatedEvent {
	return AgentCreatedEvent{
		baseEvent:   newBaseEvent(TopicAgentCreated),
		SessionID:   sessionID,
		ProjectPath: projectPath,
	}
}

// AgentDeletedEvent is emitted when a session is deleted.
type AgentDeletedEvent struct {
	baseEvent
	SessionID string
}

// NewAgentDeletedEvent creates an AgentDeletedEvent.
func NewAgentDeletedEvent(sessionID string) AgentDeletedEvent {
	return AgentDeletedEvent{
		baseEvent: newBaseEvent(TopicAgentDeleted),
		SessionID: sessionID,
	}
}

// MessageAddedEvent is emitted whenever a message is appended to a session.
type MessageAddedEvent struct {
	baseEvent
	SessionID string
	MessageID string
	Role      string
}

// NewMessageAddedEvent creates a MessageAddedEvent.
func NewMessageAddedEvent(sessionID, messageID, role string) MessageAddedEvent {
	return MessageAddedEvent{
		baseEvent: newBaseEvent(TopicMessageAdded),
		SessionID: sessionID,
		MessageID: messageID,
		Role:      role,
	}
}

// -----------------------------------------------------------------------------
// Execution events
// -----------------------------------------------------------------------------

// StepStartedEvent is emitted when the execution engine begins a new step.
type StepStartedEvent struct {
	baseEvent
	SessionID string
	StepIndex int
}

// NewStepStartedEvent creates a StepStartedEvent.
func NewStepStartedEvent(sessionID string, stepIndex int) StepStartedEvent {
	return StepStartedEvent{
		baseEvent: newBaseEvent(TopicStepStarted),
		SessionID: sessionID,
		StepIndex: stepIndex,
	}
}

// StepCompletedEvent is emitted when a step finishes successfully.
type StepCompletedEvent struct {
	baseEvent
	SessionID string
	StepIndex int
	ToolsUsed int
}

// NewStepCompletedEvent creates a StepCompletedEvent.
func NewStepCompletedEvent(sessionID string, stepIndex, toolsUsed int) StepCompletedEvent {
	return StepCompletedEvent{
		baseEvent: newBaseEvent(TopicStepCompleted),
		SessionID: sessionID,
		StepIndex: stepIndex,
		ToolsUsed: toolsUsed,
	}
}

// StepFailedEvent is emitted when a step fails.
type StepFailedEvent struct {
	baseEvent
	SessionID string
	StepIndex int
	Reason    string
}

// NewStepFailedEvent creates a StepFailedEvent.
func NewStepFailedEvent(sessionID string, stepIndex int, reason string) StepFailedEvent {
	return StepFailedEvent{
		baseEvent: newBaseEvent(TopicStepFailed),
		SessionID: sessionID,
		StepIndex: stepIndex,
		Reason:    reason,
	}
}

// ExecutionCompleteEvent is emitted when the model invokes finishWork and
// the session moves to review.
type ExecutionCompleteEvent struct {
	baseEvent
	SessionID string
	Status    string
}

// NewExecutionCompleteEvent creates an ExecutionCompleteEvent.
func NewExecutionCompleteEvent(sessionID, status string) ExecutionCompleteEvent {
	return ExecutionCompleteEvent{
		baseEvent: newBaseEvent(TopicExecutionComplete),
		SessionID: sessionID,
		Status:    status,
	}
}

// ExecutionAbortedEvent is emitted when a running session is cancelled.
type ExecutionAbortedEvent struct {
	baseEvent
	SessionID string
	Reason    string
}

// NewExecutionAbortedEvent creates an ExecutionAbortedEvent.
func NewExecutionAbortedEvent(sessionID, reason string) ExecutionAbortedEvent {
	return ExecutionAbortedEvent{
		baseEvent: newBaseEvent(TopicExecutionAborted),
		SessionID: sessionID,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Coordination events
// -----------------------------------------------------------------------------

// LockConflictEvent is emitted when a session fails to acquire a path lock
// because another session already holds a conflicting lock on it.
type LockConflictEvent struct {
	baseEvent
	SessionID            string
	Path                 string
	ConflictingSessionID string
}

// NewLockConflictEvent creates a LockConflictEvent.
func NewLockConflictEvent(sessionID, path, conflictingSessionID string) LockConflictEvent {
	return LockConflictEvent{
		baseEvent:            newBaseEvent(TopicLockConflict),
		SessionID:            sessionID,
		Path:                 path,
		ConflictingSessionID: conflictingSessionID,
	}
}

// NeedsClarificationEvent is emitted when a session transitions to
// need_clarification, whether by explicit model request or by failure.
type NeedsClarificationEvent struct {
	baseEvent
	SessionID string
	Reason    string
}

// NewNeedsClarificationEvent creates a NeedsClarificationEvent.
func NewNeedsClarificationEvent(sessionID, reason string) NeedsClarificationEvent {
	return NeedsClarificationEvent{
		baseEvent: newBaseEvent(TopicNeedsClarification),
		SessionID: sessionID,
		Reason:    reason,
	}
}
