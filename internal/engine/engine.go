// Package engine implements the execution engine: a bounded-concurrency
// runner that drives an agent's conversation with the model, dispatches its
// tool calls through the tool surface, and resolves the model stream's
// finish reason into lifecycle transitions.
//
// Concurrency is capped with golang.org/x/sync/semaphore.Weighted, sized to
// N (default 3); callers beyond the cap queue on the semaphore in FIFO
// order.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/event"
	"github.com/kilnhq/agentcore/internal/journal"
	"github.com/kilnhq/agentcore/internal/lockarbiter"
	"github.com/kilnhq/agentcore/internal/logging"
	"github.com/kilnhq/agentcore/internal/modelclient"
	"github.com/kilnhq/agentcore/internal/store"
	"github.com/kilnhq/agentcore/internal/tools"
)

// DefaultMaxConcurrentSessions is the worker pool size used when Options
// does not specify one.
const DefaultMaxConcurrentSessions = 3

// DefaultMaxSteps is the hard per-run step cap.
const DefaultMaxSteps = 50

// StatusUpdater is the subset of the Session Manager the engine calls
// back into: the tool-driven terminal transitions (tools.Transitioner) plus
// the engine-internal failure edge to need_clarification.
type StatusUpdater interface {
	tools.Transitioner
	MarkNeedsClarification(ctx context.Context, sessionID string, reason string) error
}

// Options configures an Engine.
type Options struct {
	MaxConcurrentSessions int
	MaxSteps              int
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentSessions <= 0 {
		o.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	return o
}

// executionContext tracks one agent's in-flight run.
type executionContext struct {
	sessionID string
	cancel    context.CancelFunc
}

// Engine is the bounded-concurrency runner.
type Engine struct {
	store   *store.Store
	locks   *lockarbiter.Arbiter
	journal *journal.Journal
	bus     *event.Bus
	tools   *tools.Registry
	model   modelclient.Client
	status  StatusUpdater
	log     *logging.Logger
	opts    Options

	sem *semaphore.Weighted

	mu      sync.Mutex
	running map[string]*executionContext
}

// New constructs an Engine. model is the external LLM streaming client;
// status is typically the agentmgr.Manager wired in as a
// tools.Transitioner + engine.StatusUpdater.
func New(s *store.Store, locks *lockarbiter.Arbiter, j *journal.Journal, bus *event.Bus,
	registry *tools.Registry, model modelclient.Client, status StatusUpdater, log *logging.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:   s,
		locks:   locks,
		journal: j,
		bus:     bus,
		tools:   registry,
		model:   model,
		status:  status,
		log:     log,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrentSessions)),
		running: make(map[string]*executionContext),
	}
}

// IsRunning reports whether sessionID currently holds a worker slot.
func (e *Engine) IsRunning(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[sessionID]
	return ok
}

// RunningIDs lists the session ids currently executing.
func (e *Engine) RunningIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.running))
	for id := range e.running {
		out = append(out, id)
	}
	return out
}

// Abort trips the cancellation handle for a running session, if any.
func (e *Engine) Abort(sessionID string, reason string) {
	e.mu.Lock()
	ec, ok := e.running[sessionID]
	e.mu.Unlock()
	if !ok {
		return
	}
	ec.cancel()
	e.bus.Publish(event.NewExecutionAbortedEvent(sessionID, reason))
}

// Run acquires a worker slot (queueing FIFO if the pool is saturated) and
// drives sessionID's execution to a terminal stream outcome. maxSteps <= 0
// uses the Engine's configured default.
func (e *Engine) Run(ctx context.Context, sessionID string, maxSteps int) error {
	if maxSteps <= 0 {
		maxSteps = e.opts.MaxSteps
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return errorsx.Wrap(err, "acquire worker slot")
	}
	defer e.sem.Release(1)

	runCtx, cancel := context.WithCancel(ctx)
	ec := &executionContext{sessionID: sessionID, cancel: cancel}

	e.mu.Lock()
	e.running[sessionID] = ec
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.running, sessionID)
		e.mu.Unlock()
		// Release all session locks on teardown regardless of outcome,
		// then the next queued session can proceed (the semaphore release
		// above already frees its slot).
		_ = e.locks.ReleaseAllForSession(context.Background(), sessionID)
	}()

	return e.runLoop(runCtx, sessionID, maxSteps)
}

func (e *Engine) runLoop(ctx context.Context, sessionID string, maxSteps int) error {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	history, err := e.loadHistory(ctx, sessionID)
	if err != nil {
		return err
	}

	stream, err := e.model.Stream(ctx, history, e.tools.Schemas())
	if err != nil {
		return e.fail(ctx, sessionID, errorsx.NewModelStreamError("open stream", err).WithSessionID(sessionID))
	}
	defer stream.Close()

	stepIndex := e.nextStepIndex(ctx, sessionID)

	for {
		select {
		case <-ctx.Done():
			return e.fail(ctx, sessionID, errorsx.NewCancelledError("execution aborted"))
		default:
		}

		if stepIndex >= maxSteps {
			return e.fail(ctx, sessionID, errorsx.NewStepLimitExceededError(sessionID, maxSteps))
		}

		e.bus.Publish(event.NewStepStartedEvent(sessionID, stepIndex))

		chunk, toolsUsed, err := e.consumeStep(ctx, stream, sess, sessionID, stepIndex)
		if err != nil {
			e.bus.Publish(event.NewStepFailedEvent(sessionID, stepIndex, err.Error()))
			return e.fail(ctx, sessionID, err)
		}

		if err := e.appendProgress(ctx, sessionID, "step", store.ProgressCompleted, ""); err != nil {
			return e.fail(ctx, sessionID, errorsx.NewStorageError("append progress", err).WithOperation("runLoop"))
		}
		e.bus.Publish(event.NewStepCompletedEvent(sessionID, stepIndex, toolsUsed))
		stepIndex++

		if chunk.Done {
			return e.finish(ctx, sessionID, chunk.Reason)
		}
	}
}

// consumeStep drains one step's chunks from the stream: assistant text is
// accumulated and persisted as one message, each tool call is persisted as
// a tool-role message and dispatched, and its result attached in place.
func (e *Engine) consumeStep(ctx context.Context, stream modelclient.Stream, sess *store.Session, sessionID string, stepIndex int) (modelclient.StepChunk, int, error) {
	var text string
	toolsUsed := 0
	var final modelclient.StepChunk

	for {
		chunk, more := stream.Next(ctx)
		if chunk.Err != nil {
			return chunk, toolsUsed, errorsx.NewModelStreamError("stream chunk error", chunk.Err).WithSessionID(sessionID)
		}
		text += chunk.TextDelta

		for _, call := range chunk.ToolCalls {
			toolsUsed++
			if err := e.dispatchToolCall(ctx, sess, sessionID, stepIndex, call); err != nil {
				return chunk, toolsUsed, err
			}
		}

		if chunk.Done {
			final = chunk
			break
		}
		if !more {
			final = modelclient.StepChunk{Done: true, Reason: modelclient.FinishError}
			break
		}
	}

	if text != "" {
		if _, err := e.store.AddMessage(ctx, &store.Message{
			SessionID: sessionID,
			Role:      store.RoleAssistant,
			Content:   text,
			StepIndex: stepIndex,
		}); err != nil {
			return final, toolsUsed, errorsx.NewStorageError("persist assistant message", err).WithOperation("consumeStep")
		}
	}

	return final, toolsUsed, nil
}

func (e *Engine) dispatchToolCall(ctx context.Context, sess *store.Session, sessionID string, stepIndex int, call modelclient.ToolCall) error {
	msg, err := e.store.AddMessage(ctx, &store.Message{
		SessionID:  sessionID,
		Role:       store.RoleTool,
		Content:    call.Name,
		ToolCall:   call.Args,
		ToolCallID: call.ID,
		StepIndex:  stepIndex,
	})
	if err != nil {
		return errorsx.NewStorageError("persist tool call message", err).WithOperation("dispatchToolCall")
	}

	dc := tools.DispatchContext{
		SessionID:   sessionID,
		ProjectPath: sess.ProjectPath,
		StepIndex:   stepIndex,
		Store:       e.store,
		Locks:       e.locks,
		Journal:     e.journal,
		Transition:  e.status,
	}
	result := e.tools.Dispatch(ctx, dc, call.Name, call.Args)

	resultBytes, _ := json.Marshal(result)
	if err := e.store.UpdateMessageResult(ctx, msg.ID, resultBytes); err != nil {
		return errorsx.NewStorageError("attach tool result", err).WithOperation("dispatchToolCall")
	}

	if !result.OK && result.ConflictingSessionID != "" {
		// The arbiter already published lockConflict on the loser's behalf;
		// here the conflict just ends the run so the session can transition
		// to need_clarification.
		return errorsx.NewLockConflictError(result.ConflictPath, result.ConflictingSessionID)
	}
	return nil
}

// loadHistory loads full message history and filters out tool-result
// records: the model re-derives tool-call state from its own stream, so
// only text-bearing turns are replayed.
func (e *Engine) loadHistory(ctx context.Context, sessionID string) ([]modelclient.Message, error) {
	msgs, err := e.store.GetMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	out := make([]modelclient.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == store.RoleTool {
			continue
		}
		out = append(out, modelclient.Message{Role: string(m.Role), Content: m.Content})
	}
	return out, nil
}

func (e *Engine) nextStepIndex(ctx context.Context, sessionID string) int {
	msgs, err := e.store.GetMessages(ctx, sessionID, 1)
	if err != nil || len(msgs) == 0 {
		return 0
	}
	return msgs[len(msgs)-1].StepIndex + 1
}

func (e *Engine) appendProgress(ctx context.Context, sessionID, step string, status store.ProgressStatus, details string) error {
	_, err := e.store.AddProgress(ctx, &store.ProgressEntry{
		SessionID: sessionID,
		Step:      step,
		Status:    status,
		Details:   details,
		Timestamp: time.Now(),
	})
	return err
}

// finish resolves the stream's finish reason. A `stop` reason does not
// itself transition status: the model is expected to have invoked
// finishWork, and if it did not, the session deliberately remains `doing`
// with that fact surfaced via the progress log. Any other reason
// transitions to need_clarification.
func (e *Engine) finish(ctx context.Context, sessionID string, reason modelclient.FinishReason) error {
	if reason == modelclient.FinishStop {
		_ = e.appendProgress(ctx, sessionID, "stream_stop", store.ProgressCompleted,
			"model ended its turn without calling finishWork; session remains doing")
		return nil
	}
	return e.fail(ctx, sessionID, errorsx.NewModelStreamError(fmt.Sprintf("stream ended: %s", reason), nil).WithSessionID(sessionID))
}

// fail transitions sessionID to need_clarification with the failure reason
// recorded, logging the underlying cause.
func (e *Engine) fail(ctx context.Context, sessionID string, cause error) error {
	if e.log != nil {
		e.log.Error("execution failed", "sessionID", sessionID, "error", cause)
	}
	if err := e.status.MarkNeedsClarification(context.Background(), sessionID, cause.Error()); err != nil {
		return err
	}
	return cause
}
