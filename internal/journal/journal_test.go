package journal_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilnhq/agentcore/internal/journal"
	"github.com/kilnhq/agentcore/internal/store"
	"github.com/kilnhq/agentcore/internal/testutil"
)

type fixture struct {
	store   *store.Store
	journal *journal.Journal
	project string
	sessID  string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "agentcore.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	project := testutil.TempProject(t)
	sess, err := s.CreateSession(context.Background(), &store.Session{Name: "j", ProjectPath: project})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	return &fixture{store: s, journal: journal.New(s), project: project, sessID: sess.ID}
}

func TestCaptureReadsBeforeContent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	path := filepath.Join(f.project, "README.md")

	snapID, err := f.journal.Capture(ctx, f.sessID, path, store.SnapshotUpdate, 0)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snapID == "" {
		t.Fatal("expected a snapshot id")
	}

	snaps, err := f.journal.ListForSession(ctx, f.sessID, "")
	if err != nil {
		t.Fatalf("ListForSession: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	snap := snaps[0]
	if !snap.HasBefore || string(snap.BeforeContent) != "# Test Project\n" {
		t.Errorf("beforeContent = %q hasBefore=%v", snap.BeforeContent, snap.HasBefore)
	}
	if snap.Status != store.SnapshotPending {
		t.Errorf("status = %q, want pending", snap.Status)
	}
}

func TestCaptureCreateHasNoBeforeContent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	path := filepath.Join(f.project, "new.txt")

	if _, err := f.journal.Capture(ctx, f.sessID, path, store.SnapshotCreate, 0); err != nil {
		t.Fatalf("Capture for create on a missing file must succeed: %v", err)
	}

	snaps, _ := f.journal.ListForSession(ctx, f.sessID, "")
	if snaps[0].HasBefore {
		t.Error("create snapshot should have no before-content")
	}
}

func TestRecordAfter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	path := filepath.Join(f.project, "new.txt")

	snapID, err := f.journal.Capture(ctx, f.sessID, path, store.SnapshotCreate, 0)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := f.journal.RecordAfter(ctx, snapID, []byte("hi")); err != nil {
		t.Fatalf("RecordAfter: %v", err)
	}

	snaps, _ := f.journal.ListForSession(ctx, f.sessID, "")
	if !snaps[0].HasAfter || string(snaps[0].AfterContent) != "hi" {
		t.Errorf("afterContent = %q hasAfter=%v", snaps[0].AfterContent, snaps[0].HasAfter)
	}
}

// journalledWrite captures, performs the write, and records after-content,
// the same sequence the writeFile tool runs.
func journalledWrite(t *testing.T, f *fixture, rel, content string, step int) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(f.project, rel)

	op := store.SnapshotUpdate
	if _, err := os.Stat(path); os.IsNotExist(err) {
		op = store.SnapshotCreate
	}
	snapID, err := f.journal.Capture(ctx, f.sessID, path, op, step)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	testutil.WriteFile(t, f.project, rel, content)
	if err := f.journal.RecordAfter(ctx, snapID, []byte(content)); err != nil {
		t.Fatalf("RecordAfter: %v", err)
	}
}

func journalledDelete(t *testing.T, f *fixture, rel string, step int) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(f.project, rel)

	snapID, err := f.journal.Capture(ctx, f.sessID, path, store.SnapshotDelete, step)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove %s: %v", rel, err)
	}
	if err := f.journal.RecordAfterDelete(ctx, snapID); err != nil {
		t.Fatalf("RecordAfterDelete: %v", err)
	}
}

func TestAcceptAllReappliesIntent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	journalledWrite(t, f, "a.txt", "hi", 1)

	// The file is touched out-of-band after the journalled write; accept
	// must restore the journalled bytes.
	testutil.WriteFile(t, f.project, "a.txt", "tampered")

	if err := f.journal.AcceptAll(ctx, f.sessID); err != nil {
		t.Fatalf("AcceptAll: %v", err)
	}
	testutil.AssertFileContent(t, f.project, "a.txt", "hi")

	snaps, _ := f.journal.ListForSession(ctx, f.sessID, "")
	for _, snap := range snaps {
		if snap.Status != store.SnapshotAccepted {
			t.Errorf("snapshot %s status = %q, want accepted", snap.ID, snap.Status)
		}
	}

	// Idempotent: a second call is a no-op.
	if err := f.journal.AcceptAll(ctx, f.sessID); err != nil {
		t.Fatalf("second AcceptAll: %v", err)
	}
	testutil.AssertFileContent(t, f.project, "a.txt", "hi")
}

func TestAcceptAllAppliesDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	journalledDelete(t, f, "README.md", 1)

	// Something recreates the file mid-session; accept re-applies the
	// journalled delete.
	testutil.WriteFile(t, f.project, "README.md", "back from the dead")

	if err := f.journal.AcceptAll(ctx, f.sessID); err != nil {
		t.Fatalf("AcceptAll: %v", err)
	}
	testutil.AssertFileAbsent(t, f.project, "README.md")
}

func TestRevertAllDescendingOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// create -> update -> delete of the same file across three steps.
	journalledWrite(t, f, "a", "X", 1)
	journalledWrite(t, f, "a", "Y", 2)
	journalledDelete(t, f, "a", 3)

	if err := f.journal.RevertAll(ctx, f.sessID); err != nil {
		t.Fatalf("RevertAll: %v", err)
	}

	// Step 3's revert restores "Y", step 2's restores "X", step 1's
	// unlinks; the net effect is the file absent.
	testutil.AssertFileAbsent(t, f.project, "a")

	if pending, _ := f.journal.ListForSession(ctx, f.sessID, store.SnapshotPending); len(pending) != 0 {
		t.Errorf("%d snapshots still pending after revert", len(pending))
	}
	reverted, _ := f.journal.ListForSession(ctx, f.sessID, store.SnapshotReverted)
	if len(reverted) != 3 {
		t.Errorf("expected 3 reverted snapshots, got %d", len(reverted))
	}

	// Idempotent.
	if err := f.journal.RevertAll(ctx, f.sessID); err != nil {
		t.Fatalf("second RevertAll: %v", err)
	}
	testutil.AssertFileAbsent(t, f.project, "a")
}

func TestRevertRestoresUpdatedContent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	journalledWrite(t, f, "README.md", "changed", 1)

	if err := f.journal.RevertAll(ctx, f.sessID); err != nil {
		t.Fatalf("RevertAll: %v", err)
	}
	testutil.AssertFileContent(t, f.project, "README.md", "# Test Project\n")
}

func TestRevertRestoresDeletedFile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	journalledDelete(t, f, "README.md", 1)
	testutil.AssertFileAbsent(t, f.project, "README.md")

	if err := f.journal.RevertAll(ctx, f.sessID); err != nil {
		t.Fatalf("RevertAll: %v", err)
	}
	testutil.AssertFileContent(t, f.project, "README.md", "# Test Project\n")
}

func TestRevertSkipsMissingBeforeContent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// An update snapshot stored without before-content; revert logs a
	// warning and skips it rather than failing the batch.
	path := filepath.Join(f.project, "ghost.txt")
	if _, err := f.store.AddSnapshot(ctx, &store.Snapshot{
		SessionID: f.sessID,
		FilePath:  path,
		Operation: store.SnapshotUpdate,
		StepIndex: 1,
	}); err != nil {
		t.Fatalf("AddSnapshot: %v", err)
	}
	journalledWrite(t, f, "real.txt", "data", 2)

	if err := f.journal.RevertAll(ctx, f.sessID); err != nil {
		t.Fatalf("RevertAll: %v", err)
	}
	testutil.AssertFileAbsent(t, f.project, "real.txt")
	if pending, _ := f.journal.ListForSession(ctx, f.sessID, store.SnapshotPending); len(pending) != 0 {
		t.Errorf("%d snapshots still pending", len(pending))
	}
}

func TestRevertThenReplayReproducesState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mutations := func() {
		journalledWrite(t, f, "x.txt", "one", 1)
		journalledWrite(t, f, "x.txt", "two", 2)
		journalledWrite(t, f, filepath.Join("sub", "y.txt"), "nested", 3)
	}

	mutations()
	firstState := testutil.ReadFile(t, f.project, "x.txt")

	if err := f.journal.RevertAll(ctx, f.sessID); err != nil {
		t.Fatalf("RevertAll: %v", err)
	}
	testutil.AssertFileAbsent(t, f.project, "x.txt")
	testutil.AssertFileAbsent(t, f.project, filepath.Join("sub", "y.txt"))

	// Re-executing the same mutation sequence reproduces the byte state.
	mutations()
	if got := testutil.ReadFile(t, f.project, "x.txt"); got != firstState {
		t.Errorf("replayed state %q differs from original %q", got, firstState)
	}
	testutil.AssertFileContent(t, f.project, filepath.Join("sub", "y.txt"), "nested")
}

func TestAcceptCreatesParentDirectories(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	path := filepath.Join(f.project, "deep", "nested", "file.txt")
	snapID, err := f.journal.Capture(ctx, f.sessID, path, store.SnapshotCreate, 1)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := f.journal.RecordAfter(ctx, snapID, []byte("content")); err != nil {
		t.Fatalf("RecordAfter: %v", err)
	}

	// The directory tree never existed on disk; accept materializes it.
	if err := f.journal.AcceptAll(ctx, f.sessID); err != nil {
		t.Fatalf("AcceptAll: %v", err)
	}
	testutil.AssertFileContent(t, f.project, filepath.Join("deep", "nested", "file.txt"), "content")
}
