// Package tools implements the Tool Surface: the bounded set of
// filesystem tools the model may invoke, each mediated by the Lock Arbiter
// and Snapshot Journal and confined to the session's project boundary.
package tools

import (
	"context"
	"encoding/json"

	"github.com/kilnhq/agentcore/internal/journal"
	"github.com/kilnhq/agentcore/internal/lockarbiter"
	"github.com/kilnhq/agentcore/internal/store"
)

// Result is the in-band outcome of a tool call. Tools never return Go
// errors across the model boundary: failures are reported via OK=false and
// Error, so the model can react.
type Result struct {
	OK                   bool            `json:"ok"`
	Error                string          `json:"error,omitempty"`
	ConflictingSessionID string          `json:"conflictingSession,omitempty"`
	ConflictPath         string          `json:"conflictPath,omitempty"`
	Data                 json.RawMessage `json:"data,omitempty"`
}

// DispatchContext carries the ambient session context a tool needs,
// threaded explicitly from the execution engine rather than held as
// module-level mutable state, so nothing depends on thread-local state
// across suspension points.
type DispatchContext struct {
	SessionID   string
	ProjectPath string
	StepIndex   int

	Store      *store.Store
	Locks      *lockarbiter.Arbiter
	Journal    *journal.Journal
	Transition Transitioner
}

// Transitioner is the subset of the Session Manager the terminal
// tools finishWork and requireClarification call back into.
type Transitioner interface {
	FinishWork(ctx context.Context, sessionID string, summary, changes, notes string) error
	RequireClarification(ctx context.Context, sessionID string, question, contextInfo, suggestions string) error
}

// Handler is a tool's implementation.
type Handler func(ctx context.Context, dc DispatchContext, args json.RawMessage) (Result, error)

func ok(data any) Result {
	b, err := json.Marshal(data)
	if err != nil {
		return Result{OK: false, Error: "marshal result: " + err.Error()}
	}
	return Result{OK: true, Data: b}
}

func fail(msg string) Result {
	return Result{OK: false, Error: msg}
}
