// Package journal implements the Snapshot Journal: every mutating file
// operation performed by an agent is captured here so that the human
// decision at session end (accept/reject) is a pure function over the
// journal.
//
// AcceptAll re-applies the recorded intent (rather than no-op'ing) so the
// on-disk state at acceptance exactly matches what was journalled even if
// the file was touched out-of-band mid-session. Writes go through a
// write-to-temp-then-rename so a crash mid-accept never leaves a
// half-written file on disk.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kilnhq/agentcore/internal/store"
)

// Journal captures and replays file mutations per session.
type Journal struct {
	store *store.Store
}

// New creates a Journal over the given store.
func New(s *store.Store) *Journal {
	return &Journal{store: s}
}

// Capture records the intent to mutate path, reading the current on-disk
// bytes into BeforeContent for update/delete (a missing file is tolerated
// only for create). Must be called BEFORE the operation executes.
func (j *Journal) Capture(ctx context.Context, sessionID, path string, op store.SnapshotOp, stepIndex int) (string, error) {
	snap := &store.Snapshot{
		SessionID: sessionID,
		FilePath:  path,
		Operation: op,
		StepIndex: stepIndex,
		Status:    store.SnapshotPending,
	}

	if op == store.SnapshotUpdate || op == store.SnapshotDelete {
		before, err := os.ReadFile(path)
		if err != nil {
			// Missing file tolerated only for create; update/delete need
			// the current bytes.
			return "", fmt.Errorf("read before-content for %s: %w", path, err)
		}
		snap.BeforeContent = before
		snap.HasBefore = true
	}

	created, err := j.store.AddSnapshot(ctx, snap)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// RecordAfter records the bytes written by the operation, called AFTER it
// executes. For delete, use RecordAfterDelete.
func (j *Journal) RecordAfter(ctx context.Context, snapshotID string, after []byte) error {
	return j.store.SetSnapshotAfter(ctx, snapshotID, after, true)
}

// RecordAfterDelete marks a delete snapshot as having no after-content.
func (j *Journal) RecordAfterDelete(ctx context.Context, snapshotID string) error {
	return j.store.SetSnapshotAfter(ctx, snapshotID, nil, false)
}

// AcceptAll re-applies every pending snapshot's recorded intent to disk
// (creating directories as needed, writing afterContent for create/update,
// unlinking for delete — a missing target tolerated on delete) and marks
// each accepted. Idempotent: a second call finds no pending snapshots and
// does nothing.
func (j *Journal) AcceptAll(ctx context.Context, sessionID string) error {
	pending, err := j.store.ListSnapshots(ctx, sessionID, store.SnapshotPending)
	if err != nil {
		return err
	}

	sort.Slice(pending, func(i, k int) bool { return pending[i].StepIndex < pending[k].StepIndex })

	for _, snap := range pending {
		switch snap.Operation {
		case store.SnapshotCreate, store.SnapshotUpdate:
			if err := writeFileAtomic(snap.FilePath, snap.AfterContent); err != nil {
				return fmt.Errorf("accept %s %s: %w", snap.Operation, snap.FilePath, err)
			}
		case store.SnapshotDelete:
			if err := os.Remove(snap.FilePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("accept delete %s: %w", snap.FilePath, err)
			}
		}
	}

	return j.store.BulkSetSnapshotStatus(ctx, sessionID, store.SnapshotPending, store.SnapshotAccepted)
}

// RevertAll processes pending snapshots in descending stepIndex order:
// create is unlinked (missing tolerated), update/delete restore
// beforeContent. A snapshot with no recorded before-content is skipped with
// a logged warning rather than failing the whole revert. Idempotent.
func (j *Journal) RevertAll(ctx context.Context, sessionID string) error {
	pending, err := j.store.ListSnapshots(ctx, sessionID, store.SnapshotPending)
	if err != nil {
		return err
	}

	sort.Slice(pending, func(i, k int) bool { return pending[i].StepIndex > pending[k].StepIndex })

	for _, snap := range pending {
		switch snap.Operation {
		case store.SnapshotCreate:
			if err := os.Remove(snap.FilePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("revert create %s: %w", snap.FilePath, err)
			}
		case store.SnapshotUpdate, store.SnapshotDelete:
			if !snap.HasBefore {
				fmt.Fprintf(os.Stderr, "journal: revert skipped, no before-content for %s (snapshot %s)\n", snap.FilePath, snap.ID)
				continue
			}
			if err := writeFileAtomic(snap.FilePath, snap.BeforeContent); err != nil {
				return fmt.Errorf("revert %s %s: %w", snap.Operation, snap.FilePath, err)
			}
		}
	}

	return j.store.BulkSetSnapshotStatus(ctx, sessionID, store.SnapshotPending, store.SnapshotReverted)
}

// ListForSession returns a session's snapshots, optionally filtered by
// status.
func (j *Journal) ListForSession(ctx context.Context, sessionID string, status store.SnapshotStatus) ([]*store.Snapshot, error) {
	return j.store.ListSnapshots(ctx, sessionID, status)
}

// writeFileAtomic creates parent directories as needed, writes data to a
// temp file in the same directory, and renames it into place so a crash
// mid-write never leaves a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".journal-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
