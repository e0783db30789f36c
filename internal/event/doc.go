// Package event provides a pub-sub event bus for decoupled inter-component
// communication inside the agent orchestration core.
//
// This package enables loose coupling between the Execution Engine, the Lock
// Arbiter, the Session Manager, and any external transport by allowing them
// to communicate through events rather than direct method calls. Components
// can publish events without knowing who will receive them, and subscribe to
// events without knowing who will produce them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Lifecycle:
//   - [StatusChangedEvent]: Emitted whenever a session's status transitions
//   - [AgentCreatedEvent] / [AgentDeletedEvent]: Session CRUD
//
// Execution:
//   - [StepStartedEvent] / [StepCompletedEvent] / [StepFailedEvent]: Per-step model/tool activity
//   - [ExecutionCompleteEvent] / [ExecutionAbortedEvent]: Engine run outcomes
//
// Coordination:
//   - [LockConflictEvent]: Emitted when a session loses a path lock race
//   - [NeedsClarificationEvent]: Emitted when a session pauses for human input
//   - [MessageAddedEvent]: Emitted whenever a message is appended to a session
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics - a panicking handler will not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	// Subscribe to specific event types
//	bus.Subscribe("statusChanged", func(e event.Event) {
//	    sc := e.(event.StatusChangedEvent)
//	    log.Printf("session %s: %s -> %s", sc.SessionID, sc.From, sc.To)
//	})
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
//	// Publish events
//	bus.Publish(event.NewStatusChangedEvent("sess-1", "doing", "review"))
//
//	// Dispose the subscription when done
//	dispose := bus.Subscribe("lockConflict", handler)
//	defer dispose()
//
// # Event Type Naming Convention
//
// Event types are camelCase topic names: statusChanged, stepStarted,
// stepCompleted, stepFailed, lockConflict, needsClarification,
// executionComplete, executionAborted, agentCreated, agentDeleted,
// messageAdded.
package event
