// Package agentmgr implements the Session Manager: the public facade
// over the Persistence Store, wrapping the lifecycle validator and
// publishing events for every mutating call. It is the only component
// outside the Execution Engine permitted to call Store.UpdateSessionStatus.
package agentmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/event"
	"github.com/kilnhq/agentcore/internal/journal"
	"github.com/kilnhq/agentcore/internal/store"
)

// Runner is the subset of the Execution Engine the Session Manager
// drives StartAgent/StopAgent/IsAgentRunning/GetRunningAgents through. A
// small locally-declared interface (rather than importing internal/engine
// directly) keeps agentmgr and engine decoupled in both directions: engine
// depends on tools.Transitioner (which Manager implements), and agentmgr
// depends on this Runner (which Engine implements) — neither package
// imports the other.
type Runner interface {
	Run(ctx context.Context, sessionID string, maxSteps int) error
	Abort(sessionID string, reason string)
	IsRunning(sessionID string) bool
	RunningIDs() []string
}

// Manager is the Session Manager facade.
type Manager struct {
	store   *store.Store
	bus     *event.Bus
	journal *journal.Journal
	runner  Runner
}

// New creates a Manager over the given store, event bus, and snapshot
// journal. SetRunner must be called once the Execution Engine is
// constructed, since the engine itself is typically constructed with a
// reference back to the Manager (as a tools.Transitioner).
func New(s *store.Store, bus *event.Bus, j *journal.Journal) *Manager {
	return &Manager{store: s, bus: bus, journal: j}
}

// SetRunner wires the Execution Engine the Manager drives execution
// through. Must be called before StartAgent/StopAgent/IsAgentRunning are
// used.
func (m *Manager) SetRunner(r Runner) {
	m.runner = r
}

// CreateAgent creates a new session in the `ideas` status.
func (m *Manager) CreateAgent(ctx context.Context, params CreateAgentParams) (*store.Session, error) {
	if params.ProjectPath == "" {
		return nil, errorsx.Wrap(errorsx.ErrInvalidInput, "projectPath is required")
	}

	sess, err := m.store.CreateSession(ctx, &store.Session{
		Name:          params.Name,
		Description:   params.Description,
		Status:        store.StatusIdeas,
		ProjectPath:   params.ProjectPath,
		ProjectName:   params.ProjectName,
		WorkspaceRoot: params.WorkspaceRoot,
	})
	if err != nil {
		return nil, err
	}

	if params.InitialPrompt != "" {
		if _, err := m.store.AddMessage(ctx, &store.Message{
			SessionID: sess.ID,
			Role:      store.RoleUser,
			Content:   params.InitialPrompt,
			StepIndex: 0,
		}); err != nil {
			return nil, err
		}
		if err := m.transition(ctx, sess, store.StatusTodo, TriggerUserMessage); err != nil {
			return nil, err
		}
		sess.Status = store.StatusTodo
	}

	m.bus.Publish(event.NewAgentCreatedEvent(sess.ID, sess.ProjectPath))
	return sess, nil
}

// ListAgents lists sessions, newest-first, with derived progress
// projected.
func (m *Manager) ListAgents(ctx context.Context, projectPath string, status store.SessionStatus) ([]*SessionSummary, error) {
	sessions, err := m.store.ListSessions(ctx, projectPath, status)
	if err != nil {
		return nil, err
	}

	out := make([]*SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		progress, err := m.progressFor(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &SessionSummary{Session: sess, Progress: progress})
	}
	return out, nil
}

func (m *Manager) progressFor(ctx context.Context, sessionID string) (Progress, error) {
	entries, err := m.store.GetProgress(ctx, sessionID)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{TotalSteps: len(entries)}
	for _, e := range entries {
		if e.Status == store.ProgressCompleted {
			p.CompletedSteps++
		}
		p.CurrentStep = e.Step
	}
	return p, nil
}

// GetAgent returns a session by id, or nil if not found.
func (m *Manager) GetAgent(ctx context.Context, id string) (*store.Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	var notFound *errorsx.NotFoundError
	if errorsx.As(err, &notFound) {
		return nil, nil
	}
	return sess, err
}

// DeleteAgent stops execution if running, then cascades the delete through
// the store.
func (m *Manager) DeleteAgent(ctx context.Context, id string) error {
	if m.runner != nil && m.runner.IsRunning(id) {
		m.runner.Abort(id, "session deleted")
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.bus.Publish(event.NewAgentDeletedEvent(id))
	return nil
}

// StartAgent validates the todo/need_clarification -> doing transition,
// persists startedAt, and asks the Execution Engine to run the session.
// The runner's Run blocks until the run ends; StartAgent returns true when
// it ended without error, and false with the error otherwise.
func (m *Manager) StartAgent(ctx context.Context, id string, params StartAgentParams) (bool, error) {
	if m.runner == nil {
		return false, fmt.Errorf("agentmgr: no runner configured")
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	if m.runner.IsRunning(id) {
		return false, errorsx.NewAlreadyRunningError(id)
	}

	if err := Validate(sess.Status, store.StatusDoing, TriggerStart); err != nil {
		return false, err
	}
	now := time.Now()
	if err := m.store.UpdateSessionStatus(ctx, id, store.StatusDoing, store.SessionStatusUpdate{StartedAt: &now}); err != nil {
		return false, err
	}
	m.bus.Publish(event.NewStatusChangedEvent(id, string(sess.Status), string(store.StatusDoing)))

	if err := m.runner.Run(ctx, id, params.MaxSteps); err != nil {
		return false, err
	}
	return true, nil
}

// StopAgent aborts a running session's execution.
func (m *Manager) StopAgent(id string, reason string) {
	if m.runner != nil {
		m.runner.Abort(id, reason)
	}
}

// UpdateAgentStatus validates and applies a status transition requested by
// a human caller (accept/reject from review; any other caller-initiated
// transition not covered by StartAgent/StopAgent/AddMessage).
func (m *Manager) UpdateAgentStatus(ctx context.Context, id string, to store.SessionStatus) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}

	trigger, err := triggerForHumanTransition(sess.Status, to)
	if err != nil {
		return err
	}
	return m.transition(ctx, sess, to, trigger)
}

func triggerForHumanTransition(from, to store.SessionStatus) (Trigger, error) {
	switch {
	case from == store.StatusReview && to == store.StatusAccepted:
		return TriggerAccept, nil
	case from == store.StatusReview && to == store.StatusRejected:
		return TriggerReject, nil
	case (from == store.StatusTodo || from == store.StatusNeedClarification) && to == store.StatusDoing:
		return TriggerStart, nil
	default:
		return "", errorsx.NewIllegalTransitionError(string(from), string(to), "updateAgentStatus")
	}
}

// transition validates and persists a status change, publishing
// statusChanged. Entering accepted or rejected first resolves the snapshot
// journal (AcceptAll / RevertAll): if the journal cannot be applied, the
// session stays in review and the error is surfaced to the caller.
func (m *Manager) transition(ctx context.Context, sess *store.Session, to store.SessionStatus, trigger Trigger) error {
	if err := Validate(sess.Status, to, trigger); err != nil {
		return err
	}
	if sess.Status == to {
		return nil
	}

	update := store.SessionStatusUpdate{}
	switch to {
	case store.StatusAccepted:
		if err := m.journal.AcceptAll(ctx, sess.ID); err != nil {
			return err
		}
		now := time.Now()
		update.CompletedAt = &now
	case store.StatusRejected:
		if err := m.journal.RevertAll(ctx, sess.ID); err != nil {
			return err
		}
		now := time.Now()
		update.CompletedAt = &now
	}

	if err := m.store.UpdateSessionStatus(ctx, sess.ID, to, update); err != nil {
		return err
	}
	m.bus.Publish(event.NewStatusChangedEvent(sess.ID, string(sess.Status), string(to)))
	return nil
}

// AddMessage appends a user- or system-role message. Adding a user-role
// message while the session is `need_clarification` (or `ideas`) implicitly
// transitions it to `todo`.
func (m *Manager) AddMessage(ctx context.Context, id string, role store.MessageRole, content string) (*store.Message, error) {
	if role != store.RoleUser && role != store.RoleSystem {
		return nil, errorsx.Wrapf(errorsx.ErrInvalidInput, "role must be user or system, got %q", role)
	}

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	stepIndex := 0
	if existing, err := m.store.GetMessages(ctx, id, 1); err == nil && len(existing) == 1 {
		stepIndex = existing[0].StepIndex
	}

	msg, err := m.store.AddMessage(ctx, &store.Message{
		SessionID: id,
		Role:      role,
		Content:   content,
		StepIndex: stepIndex,
	})
	if err != nil {
		return nil, err
	}
	m.bus.Publish(event.NewMessageAddedEvent(id, msg.ID, string(role)))

	if role == store.RoleUser && (sess.Status == store.StatusNeedClarification || sess.Status == store.StatusIdeas) {
		if err := m.transition(ctx, sess, store.StatusTodo, TriggerUserMessage); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// GetMessages returns a session's messages, newest-`limit` but
// chronologically ordered (0 = all).
func (m *Manager) GetMessages(ctx context.Context, id string, limit int) ([]*store.Message, error) {
	return m.store.GetMessages(ctx, id, limit)
}

// GetProgress returns a session's ProgressEntry audit log.
func (m *Manager) GetProgress(ctx context.Context, id string) ([]*store.ProgressEntry, error) {
	return m.store.GetProgress(ctx, id)
}

// IsAgentRunning reports whether the Execution Engine currently holds a
// worker slot for id.
func (m *Manager) IsAgentRunning(id string) bool {
	return m.runner != nil && m.runner.IsRunning(id)
}

// GetRunningAgents lists the session ids currently executing.
func (m *Manager) GetRunningAgents() []string {
	if m.runner == nil {
		return nil
	}
	return m.runner.RunningIDs()
}

// GetProjectAgentSummary aggregates session counts and recent activity for
// one project.
func (m *Manager) GetProjectAgentSummary(ctx context.Context, projectPath string) (*ProjectAgentSummary, error) {
	sessions, err := m.store.ListSessions(ctx, projectPath, "")
	if err != nil {
		return nil, err
	}

	summary := &ProjectAgentSummary{ByStatus: make(map[store.SessionStatus]int)}
	for _, sess := range sessions {
		summary.Total++
		summary.ByStatus[sess.Status]++
		if m.IsAgentRunning(sess.ID) {
			summary.Running++
		}
	}
	if len(sessions) > 5 {
		summary.RecentActivity = sessions[:5]
	} else {
		summary.RecentActivity = sessions
	}
	return summary, nil
}

// GetAllProjects lists every distinct project with its session counts.
func (m *Manager) GetAllProjects(ctx context.Context) ([]ProjectListing, error) {
	summaries, err := m.store.ListProjectSummaries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProjectListing, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, ProjectListing{
			ProjectPath:   s.ProjectPath,
			ProjectName:   s.ProjectName,
			AgentCount:    s.AgentCount,
			LastActivity:  s.LastActivity,
			RunningAgents: s.RunningAgents,
		})
	}
	return out, nil
}

// SwitchProject returns the candidate set of running agents in the
// previously-active project, for the caller's UI to decide what to do
// with. Whether switching should pause those agents is a UX decision left
// to the caller; switching never pauses them itself.
func (m *Manager) SwitchProject(ctx context.Context, path string) ([]*store.Session, error) {
	running, err := m.store.ListSessions(ctx, path, store.StatusDoing)
	if err != nil {
		return nil, err
	}
	return running, nil
}

// CleanupInactiveProjects deletes sessions belonging to projects whose most
// recent activity predates the given window.
func (m *Manager) CleanupInactiveProjects(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = 30
	}
	return m.store.DeleteInactiveProjects(ctx, days)
}

// ConflictChecker is the read-only preflight surface of the Lock Arbiter.
// Manager does not hold an arbiter reference itself; the composition root
// supplies one per call.
type ConflictChecker interface {
	GetConflicts(ctx context.Context, sessionID string, paths []string) ([]string, error)
}

// CheckFileConflicts preflights a set of paths against the Lock Arbiter's
// current state for the given session. It never acquires locks.
func (m *Manager) CheckFileConflicts(ctx context.Context, checker ConflictChecker, id string, paths []string) (*ConflictReport, error) {
	conflicts, err := checker.GetConflicts(ctx, id, paths)
	if err != nil {
		return nil, err
	}
	report := &ConflictReport{Conflicts: conflicts, CanProceed: len(conflicts) == 0}
	if len(conflicts) > 0 {
		report.Suggestions = []string{"wait for the conflicting session to finish or release its lock", "ask the conflicting agent to pause before retrying"}
	}
	return report, nil
}

// -----------------------------------------------------------------------------
// tools.Transitioner implementation — called back from the Tool Surface
// when the model invokes finishWork or requireClarification.
// -----------------------------------------------------------------------------

// FinishWork implements tools.Transitioner: transitions doing -> review and
// records completion metadata.
func (m *Manager) FinishWork(ctx context.Context, sessionID string, summary, changes, notes string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := Validate(sess.Status, store.StatusReview, TriggerFinishWork); err != nil {
		return err
	}

	meta, err := store.MarshalMetadata(map[string]string{"summary": summary, "changes": changes, "notes": notes})
	if err != nil {
		return err
	}
	now := time.Now()
	if err := m.store.UpdateSessionStatus(ctx, sessionID, store.StatusReview, store.SessionStatusUpdate{CompletedAt: &now, Metadata: meta}); err != nil {
		return err
	}
	m.bus.Publish(event.NewStatusChangedEvent(sessionID, string(sess.Status), string(store.StatusReview)))
	m.bus.Publish(event.NewExecutionCompleteEvent(sessionID, string(store.StatusReview)))
	return nil
}

// RequireClarification implements tools.Transitioner: transitions doing ->
// need_clarification and records the question asked.
func (m *Manager) RequireClarification(ctx context.Context, sessionID string, question, contextInfo, suggestions string) error {
	meta := map[string]string{"question": question, "context": contextInfo, "suggestions": suggestions}
	return m.markNeedsClarification(ctx, sessionID, TriggerRequireClarification, question, meta)
}

// MarkNeedsClarification implements engine.StatusUpdater: the
// engine-internal failure edges (stream end, lock conflict, tool error,
// abort) that also land on need_clarification, distinct from the model
// explicitly invoking requireClarification.
func (m *Manager) MarkNeedsClarification(ctx context.Context, sessionID string, reason string) error {
	return m.markNeedsClarification(ctx, sessionID, TriggerStreamEnd, reason, map[string]string{"reason": reason})
}

func (m *Manager) markNeedsClarification(ctx context.Context, sessionID string, trigger Trigger, reason string, meta map[string]string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == store.StatusNeedClarification {
		return nil // already transitioned; treat as a no-op for teardown paths
	}
	if err := Validate(sess.Status, store.StatusNeedClarification, trigger); err != nil {
		return err
	}

	metaBytes, err := store.MarshalMetadata(meta)
	if err != nil {
		return err
	}
	if err := m.store.UpdateSessionStatus(ctx, sessionID, store.StatusNeedClarification, store.SessionStatusUpdate{Metadata: metaBytes}); err != nil {
		return err
	}
	m.bus.Publish(event.NewStatusChangedEvent(sessionID, string(sess.Status), string(store.StatusNeedClarification)))
	m.bus.Publish(event.NewNeedsClarificationEvent(sessionID, reason))
	return nil
}
