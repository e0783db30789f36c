// Package store implements the Persistence Store: durable storage of
// sessions, messages, progress entries, locks, and snapshots over an
// embedded SQLite database with write-ahead logging enabled.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/store/migrations"
)

const timeLayout = time.RFC3339Nano

// Store is the single embedded relational store for agentcore. A *Store is
// safe for concurrent use; its database/sql pool is capped at one
// connection, and the lock table's three-step purge/check/insert sequence
// runs inside one transaction serialized by SQLite's own writer lock.
type Store struct {
	db *sql.DB
}

// Open opens (creating parent directories as needed) the SQLite database at
// path and applies any pending migrations before returning.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errorsx.NewStorageError("create database directory", err).WithOperation("Open")
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errorsx.NewStorageError("open database", err).WithOperation("Open")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, errorsx.NewStorageError("enable WAL", err).WithOperation("Open")
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, errorsx.NewStorageError("enable foreign keys", err).WithOperation("Open")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errorsx.NewStorageError("load migration source", err).WithOperation("migrate")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return errorsx.NewStorageError("create migration driver", err).WithOperation("migrate")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errorsx.NewStorageError("create migrator", err).WithOperation("migrate")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errorsx.NewStorageError("apply migrations", err).WithOperation("migrate")
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components (like the Lock Arbiter)
// that need an explicit transaction spanning multiple store calls.
func (s *Store) DB() *sql.DB {
	return s.db
}

func newID() string {
	return uuid.NewString()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// -----------------------------------------------------------------------------
// Sessions
// -----------------------------------------------------------------------------

// CreateSession inserts a new Session, assigning it a fresh ID and
// created/updated timestamps if unset.
func (s *Store) CreateSession(ctx context.Context, sess *Session) (*Session, error) {
	out := *sess
	if out.ID == "" {
		out.ID = newID()
	}
	now := time.Now()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	if out.Status == "" {
		out.Status = StatusIdeas
	}
	if out.Metadata == nil {
		out.Metadata = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, description, status, project_path, project_name,
			workspace_root, metadata, created_at, updated_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Name, out.Description, string(out.Status), out.ProjectPath, out.ProjectName,
		out.WorkspaceRoot, out.Metadata, formatTime(out.CreatedAt), formatTime(out.UpdatedAt),
		nullableTime(out.StartedAt), nullableTime(out.CompletedAt))
	if err != nil {
		return nil, errorsx.NewStorageError("insert session", err).WithOperation("CreateSession")
	}
	return &out, nil
}

func scanSession(row interface {
	Scan(dest ...any) error
}) (*Session, error) {
	var sess Session
	var status, createdAt, updatedAt string
	var startedAt, completedAt sql.NullString
	if err := row.Scan(&sess.ID, &sess.Name, &sess.Description, &status, &sess.ProjectPath,
		&sess.ProjectName, &sess.WorkspaceRoot, &sess.Metadata, &createdAt, &updatedAt,
		&startedAt, &completedAt); err != nil {
		return nil, err
	}
	sess.Status = SessionStatus(status)
	var err error
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if sess.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if sess.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

const sessionColumns = `id, name, description, status, project_path, project_name,
	workspace_root, metadata, created_at, updated_at, started_at, completed_at`

// GetSession returns the Session with the given id, or errorsx.NotFoundError.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errorsx.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, errorsx.NewStorageError("get session", err).WithOperation("GetSession")
	}
	return sess, nil
}

// ListSessions returns sessions newest-first, optionally filtered by
// projectPath and/or status.
func (s *Store) ListSessions(ctx context.Context, projectPath string, status SessionStatus) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if projectPath != "" {
		query += ` AND project_path = ?`
		args = append(args, projectPath)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errorsx.NewStorageError("list sessions", err).WithOperation("ListSessions")
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errorsx.NewStorageError("scan session", err).WithOperation("ListSessions")
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SessionStatusUpdate carries the partial fields UpdateSessionStatus may
// set alongside the new status.
type SessionStatusUpdate struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	Metadata    []byte
}

// UpdateSessionStatus updates a session's status and optional partial
// fields (startedAt, completedAt, metadata), bumping updatedAt.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, partial SessionStatusUpdate) error {
	now := formatTime(time.Now())
	query := `UPDATE sessions SET status = ?, updated_at = ?`
	args := []any{string(status), now}
	if partial.StartedAt != nil {
		query += `, started_at = ?`
		args = append(args, formatTime(*partial.StartedAt))
	}
	if partial.CompletedAt != nil {
		query += `, completed_at = ?`
		args = append(args, formatTime(*partial.CompletedAt))
	}
	if partial.Metadata != nil {
		query += `, metadata = ?`
		args = append(args, partial.Metadata)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errorsx.NewStorageError("update session status", err).WithOperation("UpdateSessionStatus")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errorsx.NewNotFoundError("session", id)
	}
	return nil
}

// DeleteSession removes a session; ON DELETE CASCADE removes its messages,
// progress entries, locks, and snapshots.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errorsx.NewStorageError("delete session", err).WithOperation("DeleteSession")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errorsx.NewNotFoundError("session", id)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// AddMessage inserts a new Message, assigning it a fresh ID and timestamp
// if unset.
func (s *Store) AddMessage(ctx context.Context, msg *Message) (*Message, error) {
	out := *msg
	if out.ID == "" {
		out.ID = newID()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, tool_call, tool_result,
			tool_call_id, step_index, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.SessionID, string(out.Role), out.Content, out.ToolCall, out.ToolResult,
		out.ToolCallID, out.StepIndex, formatTime(out.Timestamp))
	if err != nil {
		return nil, errorsx.NewStorageError("insert message", err).WithOperation("AddMessage")
	}
	return &out, nil
}

func scanMessage(row interface {
	Scan(dest ...any) error
}) (*Message, error) {
	var m Message
	var role, ts string
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.ToolCall, &m.ToolResult,
		&m.ToolCallID, &m.StepIndex, &ts); err != nil {
		return nil, err
	}
	m.Role = MessageRole(role)
	var err error
	if m.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &m, nil
}

const messageColumns = `id, session_id, role, content, tool_call, tool_result, tool_call_id, step_index, timestamp`

// GetMessages returns a session's messages ordered by (stepIndex,
// timestamp), optionally limited to the most recent limit rows (0 = all).
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = ? ORDER BY step_index ASC, timestamp ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT * FROM (SELECT ` + messageColumns + ` FROM messages WHERE session_id = ?
			ORDER BY step_index DESC, timestamp DESC LIMIT ?) ORDER BY step_index ASC, timestamp ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errorsx.NewStorageError("list messages", err).WithOperation("GetMessages")
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errorsx.NewStorageError("scan message", err).WithOperation("GetMessages")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMessageResult attaches a tool-result payload to an existing
// tool-call message.
func (s *Store) UpdateMessageResult(ctx context.Context, messageID string, toolResult []byte) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET tool_result = ? WHERE id = ?`, toolResult, messageID)
	if err != nil {
		return errorsx.NewStorageError("update message result", err).WithOperation("UpdateMessageResult")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errorsx.NewNotFoundError("message", messageID)
	}
	return nil
}

// FindMessageByToolCallID locates the tool-role message carrying the given
// tool-call id, so its result can be attached in place.
func (s *Store) FindMessageByToolCallID(ctx context.Context, sessionID, toolCallID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE session_id = ? AND tool_call_id = ? ORDER BY timestamp DESC LIMIT 1`, sessionID, toolCallID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, errorsx.NewNotFoundError("message", toolCallID)
	}
	if err != nil {
		return nil, errorsx.NewStorageError("find message by tool call id", err).WithOperation("FindMessageByToolCallID")
	}
	return m, nil
}

// -----------------------------------------------------------------------------
// Progress entries
// -----------------------------------------------------------------------------

// AddProgress appends a ProgressEntry to a session's audit log.
func (s *Store) AddProgress(ctx context.Context, entry *ProgressEntry) (*ProgressEntry, error) {
	out := *entry
	if out.ID == "" {
		out.ID = newID()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_entries (id, session_id, step, status, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		out.ID, out.SessionID, out.Step, string(out.Status), out.Details, formatTime(out.Timestamp))
	if err != nil {
		return nil, errorsx.NewStorageError("insert progress entry", err).WithOperation("AddProgress")
	}
	return &out, nil
}

// GetProgress returns a session's progress entries in chronological order.
func (s *Store) GetProgress(ctx context.Context, sessionID string) ([]*ProgressEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, step, status, details, timestamp FROM progress_entries
		WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, errorsx.NewStorageError("list progress entries", err).WithOperation("GetProgress")
	}
	defer rows.Close()

	var out []*ProgressEntry
	for rows.Next() {
		var e ProgressEntry
		var status, ts string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Step, &status, &e.Details, &ts); err != nil {
			return nil, errorsx.NewStorageError("scan progress entry", err).WithOperation("GetProgress")
		}
		e.Status = ProgressStatus(status)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, errorsx.NewStorageError("parse progress timestamp", err).WithOperation("GetProgress")
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Locks
// -----------------------------------------------------------------------------

// AcquireLock purges expired locks, checks for a live conflicting lock, and
// inserts a new lock row, all within one transaction so the three-step
// sequence is serialized against concurrent callers. It returns the new
// Lock on success, or the conflicting live Lock (held by a different
// session) on conflict.
func (s *Store) AcquireLock(ctx context.Context, sessionID, path string, kind LockKind, ttl time.Duration) (granted *Lock, conflict *Lock, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, errorsx.NewStorageError("begin lock transaction", err).WithOperation("AcquireLock")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now()
	if _, err = tx.ExecContext(ctx, `DELETE FROM locks WHERE expires_at <= ?`, formatTime(now)); err != nil {
		return nil, nil, errorsx.NewStorageError("purge expired locks", err).WithOperation("AcquireLock")
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, session_id, file_path, kind, acquired_at, expires_at FROM locks
		WHERE file_path = ? AND expires_at > ?`, path, formatTime(now))
	if err != nil {
		return nil, nil, errorsx.NewStorageError("check live locks", err).WithOperation("AcquireLock")
	}
	var live []*Lock
	for rows.Next() {
		l, scanErr := scanLock(rows)
		if scanErr != nil {
			rows.Close()
			return nil, nil, errorsx.NewStorageError("scan live lock", scanErr).WithOperation("AcquireLock")
		}
		live = append(live, l)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, nil, errorsx.NewStorageError("iterate live locks", err).WithOperation("AcquireLock")
	}

	for _, l := range live {
		if l.SessionID == sessionID {
			continue // same-session re-acquisition always succeeds (rule 3)
		}
		if kind == LockWrite || l.Kind == LockWrite {
			// Rule 1: a read lock conflicts only with another session's write
			// lock. Rule 2: a write lock conflicts with any other session's
			// lock of any kind.
			if kind == LockRead && l.Kind != LockWrite {
				continue
			}
			return nil, l, tx.Commit()
		}
	}

	newLock := &Lock{
		ID:         newID(),
		SessionID:  sessionID,
		FilePath:   path,
		Kind:       kind,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO locks (id, session_id, file_path, kind, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		newLock.ID, newLock.SessionID, newLock.FilePath, string(newLock.Kind),
		formatTime(newLock.AcquiredAt), formatTime(newLock.ExpiresAt)); err != nil {
		return nil, nil, errorsx.NewStorageError("insert lock", err).WithOperation("AcquireLock")
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, errorsx.NewStorageError("commit lock transaction", err).WithOperation("AcquireLock")
	}
	return newLock, nil, nil
}

func scanLock(row interface {
	Scan(dest ...any) error
}) (*Lock, error) {
	var l Lock
	var kind, acquiredAt, expiresAt string
	if err := row.Scan(&l.ID, &l.SessionID, &l.FilePath, &kind, &acquiredAt, &expiresAt); err != nil {
		return nil, err
	}
	l.Kind = LockKind(kind)
	var err error
	if l.AcquiredAt, err = parseTime(acquiredAt); err != nil {
		return nil, err
	}
	if l.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// ReleaseLock deletes a lock by id, scoped to the requesting session; a
// missing or already-expired lock is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, lockID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE id = ? AND session_id = ?`, lockID, sessionID)
	if err != nil {
		return errorsx.NewStorageError("release lock", err).WithOperation("ReleaseLock")
	}
	return nil
}

// ReleaseAllLocks deletes every lock held by a session; used as the
// execution-teardown backstop.
func (s *Store) ReleaseAllLocks(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE session_id = ?`, sessionID)
	if err != nil {
		return errorsx.NewStorageError("release all locks", err).WithOperation("ReleaseAllLocks")
	}
	return nil
}

// ListLiveLocks returns all non-expired locks, optionally filtered to one
// path.
func (s *Store) ListLiveLocks(ctx context.Context, path string) ([]*Lock, error) {
	query := `SELECT id, session_id, file_path, kind, acquired_at, expires_at FROM locks WHERE expires_at > ?`
	args := []any{formatTime(time.Now())}
	if path != "" {
		query += ` AND file_path = ?`
		args = append(args, path)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errorsx.NewStorageError("list live locks", err).WithOperation("ListLiveLocks")
	}
	defer rows.Close()

	var out []*Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, errorsx.NewStorageError("scan lock", err).WithOperation("ListLiveLocks")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// AddSnapshot inserts a new pending Snapshot, assigning it a fresh ID and
// timestamp if unset.
func (s *Store) AddSnapshot(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	out := *snap
	if out.ID == "" {
		out.ID = newID()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	if out.Status == "" {
		out.Status = SnapshotPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, session_id, file_path, operation, before_content, has_before,
			after_content, has_after, status, step_index, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.SessionID, out.FilePath, string(out.Operation), out.BeforeContent, out.HasBefore,
		out.AfterContent, out.HasAfter, string(out.Status), out.StepIndex, formatTime(out.Timestamp))
	if err != nil {
		return nil, errorsx.NewStorageError("insert snapshot", err).WithOperation("AddSnapshot")
	}
	return &out, nil
}

func scanSnapshot(row interface {
	Scan(dest ...any) error
}) (*Snapshot, error) {
	var sn Snapshot
	var op, status, ts string
	var hasBefore, hasAfter int
	if err := row.Scan(&sn.ID, &sn.SessionID, &sn.FilePath, &op, &sn.BeforeContent, &hasBefore,
		&sn.AfterContent, &hasAfter, &status, &sn.StepIndex, &ts); err != nil {
		return nil, err
	}
	sn.Operation = SnapshotOp(op)
	sn.Status = SnapshotStatus(status)
	sn.HasBefore = hasBefore != 0
	sn.HasAfter = hasAfter != 0
	var err error
	if sn.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &sn, nil
}

const snapshotColumns = `id, session_id, file_path, operation, before_content, has_before,
	after_content, has_after, status, step_index, timestamp`

// ListSnapshots returns a session's snapshots, optionally filtered by
// status, ordered by stepIndex ascending.
func (s *Store) ListSnapshots(ctx context.Context, sessionID string, status SnapshotStatus) ([]*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE session_id = ?`
	args := []any{sessionID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY step_index ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errorsx.NewStorageError("list snapshots", err).WithOperation("ListSnapshots")
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, errorsx.NewStorageError("scan snapshot", err).WithOperation("ListSnapshots")
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// SetSnapshotAfter records the bytes written by the mutation the snapshot
// journals, called after the operation completes.
func (s *Store) SetSnapshotAfter(ctx context.Context, snapshotID string, after []byte, hasAfter bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE snapshots SET after_content = ?, has_after = ? WHERE id = ?`,
		after, hasAfter, snapshotID)
	if err != nil {
		return errorsx.NewStorageError("set snapshot after", err).WithOperation("SetSnapshotAfter")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errorsx.NewNotFoundError("snapshot", snapshotID)
	}
	return nil
}

// BulkSetSnapshotStatus transitions every pending snapshot of a session to
// the given status in one statement; used by AcceptAll/RevertAll.
func (s *Store) BulkSetSnapshotStatus(ctx context.Context, sessionID string, from, to SnapshotStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE snapshots SET status = ? WHERE session_id = ? AND status = ?`,
		string(to), sessionID, string(from))
	if err != nil {
		return errorsx.NewStorageError("bulk set snapshot status", err).WithOperation("BulkSetSnapshotStatus")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Project summaries
// -----------------------------------------------------------------------------

// ListProjectSummaries groups sessions by projectPath.
func (s *Store) ListProjectSummaries(ctx context.Context) ([]*ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_path, project_name, COUNT(*), MAX(updated_at),
			SUM(CASE WHEN status = 'doing' THEN 1 ELSE 0 END)
		FROM sessions GROUP BY project_path ORDER BY MAX(updated_at) DESC`)
	if err != nil {
		return nil, errorsx.NewStorageError("list project summaries", err).WithOperation("ListProjectSummaries")
	}
	defer rows.Close()

	var out []*ProjectSummary
	for rows.Next() {
		var p ProjectSummary
		var lastActivity string
		if err := rows.Scan(&p.ProjectPath, &p.ProjectName, &p.AgentCount, &lastActivity, &p.RunningAgents); err != nil {
			return nil, errorsx.NewStorageError("scan project summary", err).WithOperation("ListProjectSummaries")
		}
		if p.LastActivity, err = parseTime(lastActivity); err != nil {
			return nil, errorsx.NewStorageError("parse project last activity", err).WithOperation("ListProjectSummaries")
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteInactiveProjects deletes sessions (and their cascaded children)
// belonging to projects whose most recent session activity is older than
// days. Returns the number of sessions deleted.
func (s *Store) DeleteInactiveProjects(ctx context.Context, days int) (int, error) {
	cutoff := formatTime(time.Now().AddDate(0, 0, -days))
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE project_path IN (
			SELECT project_path FROM sessions GROUP BY project_path HAVING MAX(updated_at) < ?
		)`, cutoff)
	if err != nil {
		return 0, errorsx.NewStorageError("delete inactive projects", err).WithOperation("DeleteInactiveProjects")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarshalMetadata is a convenience for encoding a metadata map to the raw
// JSON bytes Session.Metadata expects.
func MarshalMetadata(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errorsx.Wrap(err, "marshal metadata")
	}
	return b, nil
}
