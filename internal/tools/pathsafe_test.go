package tools_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kilnhq/agentcore/internal/errorsx"
	"github.com/kilnhq/agentcore/internal/testutil"
	"github.com/kilnhq/agentcore/internal/tools"
)

func TestResolveInProject(t *testing.T) {
	project := testutil.TempProject(t)

	t.Run("relative path inside project", func(t *testing.T) {
		got, err := tools.ResolveInProject(project, "src/main.go")
		if err != nil {
			t.Fatalf("ResolveInProject: %v", err)
		}
		if got != filepath.Join(project, "src", "main.go") {
			t.Errorf("resolved = %q", got)
		}
	})

	t.Run("absolute path inside project", func(t *testing.T) {
		abs := filepath.Join(project, "README.md")
		got, err := tools.ResolveInProject(project, abs)
		if err != nil {
			t.Fatalf("ResolveInProject: %v", err)
		}
		if got != abs {
			t.Errorf("resolved = %q, want %q", got, abs)
		}
	})

	t.Run("project root itself", func(t *testing.T) {
		got, err := tools.ResolveInProject(project, ".")
		if err != nil {
			t.Fatalf("ResolveInProject: %v", err)
		}
		if got != project {
			t.Errorf("resolved = %q, want the root", got)
		}
	})

	t.Run("not-yet-existing leaf is tolerated", func(t *testing.T) {
		got, err := tools.ResolveInProject(project, "brand/new/file.txt")
		if err != nil {
			t.Fatalf("ResolveInProject: %v", err)
		}
		if got != filepath.Join(project, "brand", "new", "file.txt") {
			t.Errorf("resolved = %q", got)
		}
	})

	t.Run("absolute path outside project", func(t *testing.T) {
		_, err := tools.ResolveInProject(project, "/etc/passwd")
		var bounds *errorsx.OutOfBoundsError
		if !errorsx.As(err, &bounds) {
			t.Errorf("expected OutOfBoundsError, got %v", err)
		}
	})

	t.Run("dot-dot escape", func(t *testing.T) {
		_, err := tools.ResolveInProject(project, "../outside.txt")
		var bounds *errorsx.OutOfBoundsError
		if !errorsx.As(err, &bounds) {
			t.Errorf("expected OutOfBoundsError, got %v", err)
		}
	})

	t.Run("dot-dot that stays inside", func(t *testing.T) {
		got, err := tools.ResolveInProject(project, "src/../README.md")
		if err != nil {
			t.Fatalf("ResolveInProject: %v", err)
		}
		if got != filepath.Join(project, "README.md") {
			t.Errorf("resolved = %q", got)
		}
	})

	t.Run("sibling directory sharing the root prefix", func(t *testing.T) {
		// /tmp/xyz-evil must not pass a naive prefix check against /tmp/xyz.
		sibling := project + "-evil"
		if err := os.MkdirAll(sibling, 0o755); err != nil {
			t.Fatalf("mkdir sibling: %v", err)
		}
		defer os.RemoveAll(sibling)

		_, err := tools.ResolveInProject(project, sibling)
		var bounds *errorsx.OutOfBoundsError
		if !errorsx.As(err, &bounds) {
			t.Errorf("expected OutOfBoundsError for sibling prefix, got %v", err)
		}
	})

	t.Run("symlink escaping the project", func(t *testing.T) {
		outside := t.TempDir()
		link := filepath.Join(project, "sneaky")
		if err := os.Symlink(outside, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		defer os.Remove(link)

		_, err := tools.ResolveInProject(project, "sneaky/file.txt")
		var bounds *errorsx.OutOfBoundsError
		if !errorsx.As(err, &bounds) {
			t.Errorf("expected OutOfBoundsError through a symlink, got %v", err)
		}
	})
}
