package tools

import (
	"path/filepath"
	"strings"

	"github.com/kilnhq/agentcore/internal/errorsx"
)

// ResolveInProject canonicalizes rel against projectPath and rejects
// anything whose cleaned path is not projectPath itself or does not have
// projectPath+separator as a prefix. Symlinks are resolved best-effort: a
// not-yet-existing leaf component (the common case for a file about to be
// created) is tolerated by walking up to the nearest existing ancestor.
func ResolveInProject(projectPath, rel string) (string, error) {
	var candidate string
	if filepath.IsAbs(rel) {
		candidate = filepath.Clean(rel)
	} else {
		candidate = filepath.Clean(filepath.Join(projectPath, rel))
	}

	resolved, err := resolveSymlinksBestEffort(candidate)
	if err != nil {
		return "", err
	}

	root, err := filepath.EvalSymlinks(projectPath)
	if err != nil {
		root = filepath.Clean(projectPath)
	}

	if resolved == root {
		return resolved, nil
	}
	if !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", errorsx.NewOutOfBoundsError(rel, projectPath)
	}
	return resolved, nil
}

// resolveSymlinksBestEffort evaluates symlinks along path, walking up to
// the nearest existing ancestor when the leaf (or more) does not yet
// exist, and rejoining the non-existent suffix unresolved.
func resolveSymlinksBestEffort(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == path {
		return filepath.Clean(path), nil
	}

	resolvedDir, err := resolveSymlinksBestEffort(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
