// Package lockarbiter mediates read/write access to paths across all
// sessions, backed by the persistence store's lock table, publishing
// conflict notifications to the event bus.
//
// Locks live in the store rather than an in-memory map so they remain
// authoritative even if the arbiter process restarts mid-session. Every
// lock carries an absolute expiry; every acquisition attempt first purges
// all expired rows, whatever their path.
package lockarbiter

import (
	"context"
	"path/filepath"
	"time"

	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/event"
	"github.com/kilnhq/agentcore/internal/store"
)

// DefaultTTL is the lock lifetime for ordinary paths.
const DefaultTTL = 30 * time.Second

// CommonPathTTL is the shorter lifetime applied to frequently-touched
// manifest/lock files, to minimize head-of-line blocking.
const CommonPathTTL = 5 * time.Second

// CommonPathMatcher reports whether a path's basename should use the
// shorter CommonPathTTL.
type CommonPathMatcher func(path string) bool

// DefaultCommonPathMatcher classifies package manifests, lockfiles, and
// README files as common paths. It looks at the basename only, so a README
// in any directory matches, not just the one at the project root.
func DefaultCommonPathMatcher(path string) bool {
	switch filepath.Base(path) {
	case "go.mod", "go.sum", "package.json", "package-lock.json", "yarn.lock",
		"pnpm-lock.yaml", "Cargo.toml", "Cargo.lock", "tsconfig.json",
		"README.md", "README", "README.txt":
		return true
	}
	return false
}

// Options configures an Arbiter's TTL policy.
type Options struct {
	DefaultTTL        time.Duration
	CommonPathTTL     time.Duration
	CommonPathMatcher CommonPathMatcher
}

func (o Options) withDefaults() Options {
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.CommonPathTTL <= 0 {
		o.CommonPathTTL = CommonPathTTL
	}
	if o.CommonPathMatcher == nil {
		o.CommonPathMatcher = DefaultCommonPathMatcher
	}
	return o
}

// Arbiter grants, denies, and expires read/write locks on paths across
// sessions.
type Arbiter struct {
	store *store.Store
	bus   *event.Bus
	opts  Options
}

// New creates an Arbiter over the given store, publishing conflicts to bus.
func New(s *store.Store, bus *event.Bus, opts Options) *Arbiter {
	return &Arbiter{store: s, bus: bus, opts: opts.withDefaults()}
}

func (a *Arbiter) ttlFor(path string) time.Duration {
	if a.opts.CommonPathMatcher(path) {
		return a.opts.CommonPathTTL
	}
	return a.opts.DefaultTTL
}

// AcquireReadLock grants a read lock unless another session holds a live
// write lock on path.
func (a *Arbiter) AcquireReadLock(ctx context.Context, sessionID, path string) (lockID string, err error) {
	return a.acquire(ctx, sessionID, path, store.LockRead)
}

// AcquireWriteLock grants a write lock unless another session holds any
// live lock on path.
func (a *Arbiter) AcquireWriteLock(ctx context.Context, sessionID, path string) (lockID string, err error) {
	return a.acquire(ctx, sessionID, path, store.LockWrite)
}

func (a *Arbiter) acquire(ctx context.Context, sessionID, path string, kind store.LockKind) (string, error) {
	granted, conflict, err := a.store.AcquireLock(ctx, sessionID, path, kind, a.ttlFor(path))
	if err != nil {
		return "", err
	}
	if conflict != nil {
		a.bus.Publish(event.NewLockConflictEvent(sessionID, path, conflict.SessionID))
		return "", errorsx.NewLockConflictError(path, conflict.SessionID)
	}
	return granted.ID, nil
}

// Release releases a lock by id; a no-op if the lock is already expired or
// absent.
func (a *Arbiter) Release(ctx context.Context, lockID, sessionID string) error {
	return a.store.ReleaseLock(ctx, lockID, sessionID)
}

// ReleaseAllForSession releases every lock held by a session; the backstop
// invoked at execution teardown regardless of outcome.
func (a *Arbiter) ReleaseAllForSession(ctx context.Context, sessionID string) error {
	return a.store.ReleaseAllLocks(ctx, sessionID)
}

// GetConflicts is a read-only preflight: it reports which of paths are
// currently held (live) by a session other than sessionID, without
// acquiring anything.
func (a *Arbiter) GetConflicts(ctx context.Context, sessionID string, paths []string) ([]string, error) {
	var conflicts []string
	for _, p := range paths {
		live, err := a.store.ListLiveLocks(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, l := range live {
			if l.SessionID != sessionID {
				conflicts = append(conflicts, p)
				break
			}
		}
	}
	return conflicts, nil
}
