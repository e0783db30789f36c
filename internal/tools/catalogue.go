package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/store"
)

// -----------------------------------------------------------------------------
// readFile
// -----------------------------------------------------------------------------

type readFileArgs struct {
	Path string `json:"path"`
}

type readFileResult struct {
	Content string `json:"content"`
}

func readFile(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}

	resolved, err := ResolveInProject(dc.ProjectPath, args.Path)
	if err != nil {
		return fail(outOfBoundsMessage(err)), nil
	}

	lockID, err := dc.Locks.AcquireReadLock(ctx, dc.SessionID, resolved)
	if err != nil {
		return conflictResult(err)
	}
	defer dc.Locks.Release(ctx, lockID, dc.SessionID)

	content, err := os.ReadFile(resolved)
	if err != nil {
		return fail(err.Error()), nil
	}
	return ok(readFileResult{Content: string(content)}), nil
}

// -----------------------------------------------------------------------------
// writeFile
// -----------------------------------------------------------------------------

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func writeFile(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args writeFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}

	resolved, err := ResolveInProject(dc.ProjectPath, args.Path)
	if err != nil {
		return fail(outOfBoundsMessage(err)), nil
	}

	lockID, err := dc.Locks.AcquireWriteLock(ctx, dc.SessionID, resolved)
	if err != nil {
		return conflictResult(err)
	}
	defer dc.Locks.Release(ctx, lockID, dc.SessionID)

	op := store.SnapshotUpdate
	if _, statErr := os.Stat(resolved); os.IsNotExist(statErr) {
		op = store.SnapshotCreate
	}

	snapshotID, err := dc.Journal.Capture(ctx, dc.SessionID, resolved, op, dc.StepIndex)
	if err != nil {
		return fail(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fail(err.Error()), nil
	}
	if err := os.WriteFile(resolved, []byte(args.Content), 0o644); err != nil {
		return fail(err.Error()), nil
	}

	written, err := os.ReadFile(resolved)
	if err != nil || !bytes.Equal(written, []byte(args.Content)) {
		return fail("write verification failed: read-back did not match"), nil
	}

	if err := dc.Journal.RecordAfter(ctx, snapshotID, []byte(args.Content)); err != nil {
		return fail(err.Error()), nil
	}

	return ok(map[string]any{"path": resolved, "bytesWritten": len(args.Content)}), nil
}

// -----------------------------------------------------------------------------
// deleteFile
// -----------------------------------------------------------------------------

type deleteFileArgs struct {
	Path string `json:"path"`
}

func deleteFile(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args deleteFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}

	resolved, err := ResolveInProject(dc.ProjectPath, args.Path)
	if err != nil {
		return fail(outOfBoundsMessage(err)), nil
	}

	lockID, err := dc.Locks.AcquireWriteLock(ctx, dc.SessionID, resolved)
	if err != nil {
		return conflictResult(err)
	}
	defer dc.Locks.Release(ctx, lockID, dc.SessionID)

	snapshotID, err := dc.Journal.Capture(ctx, dc.SessionID, resolved, store.SnapshotDelete, dc.StepIndex)
	if err != nil {
		return fail(err.Error()), nil
	}

	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fail(err.Error()), nil
	}
	if err := dc.Journal.RecordAfterDelete(ctx, snapshotID); err != nil {
		return fail(err.Error()), nil
	}

	return ok(map[string]any{"path": resolved}), nil
}

// -----------------------------------------------------------------------------
// listDirectory
// -----------------------------------------------------------------------------

type listDirectoryArgs struct {
	Path string `json:"path"`
}

type dirEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func listDirectory(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args listDirectoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}

	resolved, err := ResolveInProject(dc.ProjectPath, args.Path)
	if err != nil {
		return fail(outOfBoundsMessage(err)), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return fail(err.Error()), nil
	}

	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "directory"
		}
		out = append(out, dirEntry{Name: e.Name(), Kind: kind})
	}
	return ok(map[string]any{"entries": out}), nil
}

// -----------------------------------------------------------------------------
// createDirectory
// -----------------------------------------------------------------------------

type createDirectoryArgs struct {
	Path string `json:"path"`
}

func createDirectory(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args createDirectoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}

	resolved, err := ResolveInProject(dc.ProjectPath, args.Path)
	if err != nil {
		return fail(outOfBoundsMessage(err)), nil
	}

	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return fail(err.Error()), nil
	}
	return ok(map[string]any{"path": resolved}), nil
}

// -----------------------------------------------------------------------------
// searchFiles
// -----------------------------------------------------------------------------

var defaultIgnoreBasenames = []string{".git", "node_modules", "vendor", "dist", "build", ".next"}

type searchFilesArgs struct {
	Query string `json:"query"`
	Dir   string `json:"dir"`
}

func searchFiles(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args searchFilesArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}
	if args.Query == "" {
		return fail("query is required"), nil
	}

	searchRoot := dc.ProjectPath
	if args.Dir != "" {
		resolved, err := ResolveInProject(dc.ProjectPath, args.Dir)
		if err != nil {
			return fail(outOfBoundsMessage(err)), nil
		}
		searchRoot = resolved
	}

	ignore := loadIgnorePatterns(dc.ProjectPath)
	query := strings.ToLower(args.Query)
	var matches []string

	err := filepath.WalkDir(searchRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		base := d.Name()
		if d.IsDir() {
			if matchesIgnore(base, ignore) && path != searchRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesIgnore(base, ignore) {
			return nil
		}
		if strings.Contains(strings.ToLower(base), query) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return fail(err.Error()), nil
	}

	sort.Strings(matches)
	return ok(map[string]any{"matches": matches}), nil
}

func matchesIgnore(basename string, patterns []string) bool {
	for _, basen := range defaultIgnoreBasenames {
		if basename == basen {
			return true
		}
	}
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, basename); matched {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads basename glob patterns from a top-level ignore
// file, if present. Deliberately not a full gitignore implementation:
// only basename-level glob matching, ignoring path-qualified patterns.
func loadIgnorePatterns(projectPath string) []string {
	for _, name := range []string{".gitignore", ".agentcoreignore"} {
		data, err := os.ReadFile(filepath.Join(projectPath, name))
		if err != nil {
			continue
		}
		var patterns []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.Contains(line, "/") {
				continue
			}
			patterns = append(patterns, line)
		}
		return patterns
	}
	return nil
}

// -----------------------------------------------------------------------------
// getProjectInfo
// -----------------------------------------------------------------------------

var manifestWhitelist = []string{
	"go.mod", "package.json", "Cargo.toml", "pyproject.toml", "requirements.txt",
	"Gemfile", "pom.xml", "build.gradle", "composer.json",
}

type getProjectInfoArgs struct {
	IncludeStats bool `json:"includeStats"`
}

func getProjectInfo(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args getProjectInfoArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fail("invalid arguments: " + err.Error()), nil
		}
	}

	info := map[string]any{
		"root": filepath.Base(dc.ProjectPath),
	}

	var manifests []string
	for _, name := range manifestWhitelist {
		if _, err := os.Stat(filepath.Join(dc.ProjectPath, name)); err == nil {
			manifests = append(manifests, name)
		}
	}
	info["manifests"] = manifests

	if args.IncludeStats {
		files, dirs := 0, 0
		_ = filepath.WalkDir(dc.ProjectPath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") && path != dc.ProjectPath {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != dc.ProjectPath {
					dirs++
				}
			} else {
				files++
			}
			return nil
		})
		info["fileCount"] = files
		info["directoryCount"] = dirs
	}

	return ok(info), nil
}

// -----------------------------------------------------------------------------
// finishWork / requireClarification (terminal)
// -----------------------------------------------------------------------------

type finishWorkArgs struct {
	Summary string `json:"summary"`
	Changes string `json:"changes"`
	Notes   string `json:"notes"`
}

func finishWork(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args finishWorkArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}
	if args.Summary == "" {
		return fail("summary is required"), nil
	}

	if dc.Transition == nil {
		return fail("no transition handler configured"), nil
	}
	if err := dc.Transition.FinishWork(ctx, dc.SessionID, args.Summary, args.Changes, args.Notes); err != nil {
		return fail(err.Error()), nil
	}
	return ok(map[string]any{"status": "review"}), nil
}

type requireClarificationArgs struct {
	Question    string `json:"question"`
	Context     string `json:"context"`
	Suggestions string `json:"suggestions"`
}

func requireClarification(ctx context.Context, dc DispatchContext, raw json.RawMessage) (Result, error) {
	var args requireClarificationArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fail("invalid arguments: " + err.Error()), nil
	}
	if args.Question == "" {
		return fail("question is required"), nil
	}

	if dc.Transition == nil {
		return fail("no transition handler configured"), nil
	}
	if err := dc.Transition.RequireClarification(ctx, dc.SessionID, args.Question, args.Context, args.Suggestions); err != nil {
		return fail(err.Error()), nil
	}
	return ok(map[string]any{"status": "need_clarification"}), nil
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func outOfBoundsMessage(err error) string {
	var boundsErr *errorsx.OutOfBoundsError
	if errorsx.As(err, &boundsErr) {
		return "outside project bounds"
	}
	return err.Error()
}

func conflictResult(err error) (Result, error) {
	var lockErr *errorsx.LockConflictError
	if errorsx.As(err, &lockErr) {
		return Result{
			OK:                   false,
			Error:                "locked",
			ConflictingSessionID: lockErr.ConflictingSessionID,
			ConflictPath:         lockErr.Path,
		}, nil
	}
	return Result{}, fmt.Errorf("acquire lock: %w", err)
}
