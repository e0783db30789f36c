package agentmgr

import (
	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/store"
)

// Trigger identifies what caused a requested status transition.
type Trigger string

const (
	TriggerUserMessage          Trigger = "user_message"
	TriggerStart                Trigger = "start"
	TriggerFinishWork           Trigger = "finish_work"
	TriggerRequireClarification Trigger = "require_clarification"
	TriggerStreamEnd            Trigger = "stream_end"
	TriggerLockConflict         Trigger = "lock_conflict"
	TriggerToolError            Trigger = "tool_error"
	TriggerAbort                Trigger = "abort"
	TriggerAccept               Trigger = "accept"
	TriggerReject               Trigger = "reject"
)

// transitions enumerates every (from, trigger) -> to edge the lifecycle
// state machine permits. A (from, trigger) pair not present here is
// illegal regardless of the requested `to`.
var transitions = map[store.SessionStatus]map[Trigger]store.SessionStatus{
	store.StatusIdeas: {
		TriggerUserMessage: store.StatusTodo,
	},
	store.StatusTodo: {
		TriggerUserMessage: store.StatusTodo,
		TriggerStart:       store.StatusDoing,
	},
	store.StatusDoing: {
		TriggerFinishWork:           store.StatusReview,
		TriggerRequireClarification: store.StatusNeedClarification,
		TriggerStreamEnd:            store.StatusNeedClarification,
		TriggerLockConflict:         store.StatusNeedClarification,
		TriggerToolError:            store.StatusNeedClarification,
		TriggerAbort:                store.StatusNeedClarification,
	},
	store.StatusNeedClarification: {
		TriggerUserMessage: store.StatusTodo,
		TriggerStart:       store.StatusDoing,
	},
	store.StatusReview: {
		TriggerAccept: store.StatusAccepted,
		TriggerReject: store.StatusRejected,
	},
}

// Validate reports whether transitioning a session from `from` to `to` via
// `trigger` is permitted by the lifecycle state machine. Any transition not
// in the table is refused with errorsx.IllegalTransitionError, before any
// mutation occurs.
func Validate(from, to store.SessionStatus, trigger Trigger) error {
	byTrigger, ok := transitions[from]
	if !ok {
		return errorsx.NewIllegalTransitionError(string(from), string(to), string(trigger))
	}
	want, ok := byTrigger[trigger]
	if !ok || want != to {
		return errorsx.NewIllegalTransitionError(string(from), string(to), string(trigger))
	}
	return nil
}
