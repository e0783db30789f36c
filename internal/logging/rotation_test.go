package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriterNoRotationUnderLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	if _, err := rw.Write([]byte("a few bytes\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("backup file should not exist before the size limit is reached")
	}
	if rw.CurrentSize() == 0 {
		t.Error("CurrentSize should reflect the bytes written")
	}
}

// writeUntilRotation uses a tiny 1MB threshold so the test stays fast while
// still crossing the boundary.
func writeUntilRotation(t *testing.T, rw *RotatingWriter) {
	t.Helper()

	chunk := bytes.Repeat([]byte("x"), 256*1024)
	for i := 0; i < 5; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
}

func TestRotatingWriterRotatesAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	writeUntilRotation(t, rw)

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated backup at %s.1: %v", path, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected a fresh current log file: %v", err)
	}
}

func TestRotatingWriterDropsOldestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	writeUntilRotation(t, rw)
	writeUntilRotation(t, rw)

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("newest backup missing: %v", err)
	}
	if _, err := os.Stat(path + ".2"); !os.IsNotExist(err) {
		t.Error("backup beyond MaxBackups should have been removed")
	}
}

func TestRotatingWriterCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	writeUntilRotation(t, rw)

	// Compression runs asynchronously after rotation.
	gzPath := path + ".1.gz"
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(gzPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("compressed backup never appeared at %s", gzPath)
		}
		time.Sleep(10 * time.Millisecond)
	}

	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("open compressed backup: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !strings.Contains(string(data), "x") {
		t.Error("decompressed backup lost its contents")
	}
}

func TestRotatingWriterZeroSizeDisablesRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 0})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	writeUntilRotation(t, rw)

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("rotation should be disabled when MaxSizeMB is 0")
	}
}

func TestRotatingWriterWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := rw.Write([]byte("too late")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}

func TestRotatingWriterCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "debug.log")

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file missing in created directory: %v", err)
	}
	if rw.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", rw.FilePath(), path)
	}
}
