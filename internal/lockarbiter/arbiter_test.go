package lockarbiter_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/event"
	"github.com/kilnhq/agentcore/internal/lockarbiter"
	"github.com/kilnhq/agentcore/internal/store"
)

type fixture struct {
	store   *store.Store
	bus     *event.Bus
	arbiter *lockarbiter.Arbiter
	sessA   string
	sessB   string
}

func setup(t *testing.T, opts lockarbiter.Options) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "agentcore.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	a, err := s.CreateSession(ctx, &store.Session{Name: "a", ProjectPath: "/p"})
	if err != nil {
		t.Fatalf("create session a: %v", err)
	}
	b, err := s.CreateSession(ctx, &store.Session{Name: "b", ProjectPath: "/p"})
	if err != nil {
		t.Fatalf("create session b: %v", err)
	}

	bus := event.NewBus()
	return &fixture{
		store:   s,
		bus:     bus,
		arbiter: lockarbiter.New(s, bus, opts),
		sessA:   a.ID,
		sessB:   b.ID,
	}
}

func TestWriteLockExcludesOtherSessions(t *testing.T) {
	f := setup(t, lockarbiter.Options{})
	ctx := context.Background()

	lockID, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/x.ts")
	if err != nil {
		t.Fatalf("A's write lock: %v", err)
	}
	if lockID == "" {
		t.Fatal("expected a lock id")
	}

	_, err = f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/x.ts")
	var conflict *errorsx.LockConflictError
	if !errorsx.As(err, &conflict) {
		t.Fatalf("expected LockConflictError, got %v", err)
	}
	if conflict.ConflictingSessionID != f.sessA || conflict.Path != "/p/x.ts" {
		t.Errorf("conflict = %+v", conflict)
	}

	_, err = f.arbiter.AcquireReadLock(ctx, f.sessB, "/p/x.ts")
	if !errorsx.As(err, &conflict) {
		t.Fatalf("read should conflict with another session's write lock, got %v", err)
	}
}

func TestReadLocksAreShared(t *testing.T) {
	f := setup(t, lockarbiter.Options{})
	ctx := context.Background()

	if _, err := f.arbiter.AcquireReadLock(ctx, f.sessA, "/p/x.ts"); err != nil {
		t.Fatalf("A's read lock: %v", err)
	}
	if _, err := f.arbiter.AcquireReadLock(ctx, f.sessB, "/p/x.ts"); err != nil {
		t.Fatalf("B's read lock should share: %v", err)
	}

	_, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/x.ts")
	var conflict *errorsx.LockConflictError
	if !errorsx.As(err, &conflict) {
		t.Fatalf("B's write should be blocked by A's read lock, got %v", err)
	}
}

func TestSameSessionReacquisition(t *testing.T) {
	f := setup(t, lockarbiter.Options{})
	ctx := context.Background()

	first, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/x.ts")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	second, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/x.ts")
	if err != nil {
		t.Fatalf("same-session re-acquire must always succeed: %v", err)
	}
	if second == first {
		t.Error("re-acquisition should issue a new lock id")
	}
}

func TestLockConflictEventPublished(t *testing.T) {
	f := setup(t, lockarbiter.Options{})
	ctx := context.Background()

	var got event.LockConflictEvent
	fired := false
	dispose := f.bus.Subscribe(event.TopicLockConflict, func(e event.Event) {
		got = e.(event.LockConflictEvent)
		fired = true
	})
	defer dispose()

	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/x.ts"); err != nil {
		t.Fatalf("A's lock: %v", err)
	}
	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/x.ts"); err == nil {
		t.Fatal("expected a conflict")
	}

	if !fired {
		t.Fatal("lockConflict event was not published")
	}
	if got.SessionID != f.sessB || got.ConflictingSessionID != f.sessA || got.Path != "/p/x.ts" {
		t.Errorf("event payload = %+v", got)
	}
}

func TestExpiredLockDoesNotConflict(t *testing.T) {
	f := setup(t, lockarbiter.Options{
		DefaultTTL:        20 * time.Millisecond,
		CommonPathTTL:     20 * time.Millisecond,
		CommonPathMatcher: func(string) bool { return false },
	})
	ctx := context.Background()

	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/x.ts"); err != nil {
		t.Fatalf("A's lock: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/x.ts"); err != nil {
		t.Errorf("B should acquire over the expired lock: %v", err)
	}
}

func TestCommonPathsGetShortTTL(t *testing.T) {
	f := setup(t, lockarbiter.Options{
		DefaultTTL:    time.Minute,
		CommonPathTTL: 25 * time.Millisecond,
	})
	ctx := context.Background()

	// go.mod matches the default common-path set; x.ts does not.
	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/go.mod"); err != nil {
		t.Fatalf("A's manifest lock: %v", err)
	}
	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/x.ts"); err != nil {
		t.Fatalf("A's source lock: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/go.mod"); err != nil {
		t.Errorf("the manifest lock should have expired on the short TTL: %v", err)
	}
	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/x.ts"); err == nil {
		t.Error("the source lock should still be live on the default TTL")
	}
}

func TestDefaultCommonPathMatcher(t *testing.T) {
	cases := map[string]bool{
		"/repo/go.mod":          true,
		"/repo/package.json":    true,
		"/repo/Cargo.lock":      true,
		"/repo/README.md":       true,
		"/repo/src/main.go":     false,
		"/repo/docs/notes.md":   false,
		"/repo/sub/yarn.lock":   true,
		"/repo/sub/tsconfig.js": false,
	}
	for path, want := range cases {
		if got := lockarbiter.DefaultCommonPathMatcher(path); got != want {
			t.Errorf("DefaultCommonPathMatcher(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestReleaseMakesPathAvailable(t *testing.T) {
	f := setup(t, lockarbiter.Options{})
	ctx := context.Background()

	lockID, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/x.ts")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := f.arbiter.Release(ctx, lockID, f.sessA); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/x.ts"); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
	// Release of an already-gone lock is a no-op.
	if err := f.arbiter.Release(ctx, lockID, f.sessA); err != nil {
		t.Errorf("double release: %v", err)
	}
}

func TestReleaseAllForSession(t *testing.T) {
	f := setup(t, lockarbiter.Options{})
	ctx := context.Background()

	paths := []string{"/p/a.txt", "/p/b.txt", "/p/c.txt"}
	for _, p := range paths {
		if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, p); err != nil {
			t.Fatalf("acquire %s: %v", p, err)
		}
	}

	if err := f.arbiter.ReleaseAllForSession(ctx, f.sessA); err != nil {
		t.Fatalf("ReleaseAllForSession: %v", err)
	}
	for _, p := range paths {
		if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, p); err != nil {
			t.Errorf("B blocked on %s after A released everything: %v", p, err)
		}
	}
}

func TestGetConflictsPreflight(t *testing.T) {
	f := setup(t, lockarbiter.Options{})
	ctx := context.Background()

	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessA, "/p/held.ts"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := f.arbiter.AcquireWriteLock(ctx, f.sessB, "/p/mine.ts"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	conflicts, err := f.arbiter.GetConflicts(ctx, f.sessB, []string{"/p/held.ts", "/p/mine.ts", "/p/free.ts"})
	if err != nil {
		t.Fatalf("GetConflicts: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0] != "/p/held.ts" {
		t.Errorf("conflicts = %v, want [/p/held.ts]", conflicts)
	}

	// The preflight must not have acquired anything for sessB.
	live, err := f.store.ListLiveLocks(ctx, "/p/free.ts")
	if err != nil {
		t.Fatalf("ListLiveLocks: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("preflight acquired a lock: %+v", live)
	}
}
