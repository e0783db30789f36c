package logging

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig bounds how large a session's debug.log may grow.
type RotationConfig struct {
	// MaxSizeMB rotates the log once it would exceed this size. 0 disables
	// rotation entirely.
	MaxSizeMB int
	// MaxBackups is how many rotated files to keep; older ones are removed.
	MaxBackups int
	// Compress gzips rotated files in the background.
	Compress bool
}

// DefaultRotationConfig returns a 10 MB, three-backup rotation policy
// without compression.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// RotatingWriter is an io.Writer over a single log file that renames the
// file aside and reopens it once the configured size would be exceeded.
// Backups are numbered path.1 (newest) through path.N (oldest). Safe for
// concurrent use.
type RotatingWriter struct {
	mu   sync.Mutex
	path string
	cfg  RotationConfig

	file *os.File
	size int64
}

// NewRotatingWriter opens (creating parent directories as needed) the log
// file at path under the given rotation policy.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{path: path, cfg: cfg}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// open opens the log file append-only and records its current size. Caller
// holds mu.
func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first if the write would push the file past
// the size limit. A failed rotation is reported to stderr and the write
// proceeds against the current file so no log data is dropped.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}

	limit := int64(rw.cfg.MaxSizeMB) * 1024 * 1024
	if limit > 0 && rw.size+int64(len(p)) > limit {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "logging: rotation failed for %s: %v\n", rw.path, err)
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// rotate closes the current file, shifts the backup chain, renames the
// file to .1, and reopens a fresh one. Caller holds mu.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("sync before rotation: %w", err)
	}
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close before rotation: %w", err)
	}
	rw.file = nil

	rw.shiftBackups()

	if err := os.Rename(rw.path, rw.backup(1)); err != nil {
		// Without the rename there is nothing to compress; reopen and keep
		// writing to the oversized file.
		if openErr := rw.open(); openErr != nil {
			return fmt.Errorf("rename failed and reopen failed: %w", openErr)
		}
		return fmt.Errorf("rename log file: %w", err)
	}

	if rw.cfg.Compress {
		go compressBackup(rw.backup(1))
	}

	return rw.open()
}

// shiftBackups renumbers path.i to path.i+1, dropping whatever falls off
// the end of the retention window. Both plain and gzipped backups move.
func (rw *RotatingWriter) shiftBackups() {
	if rw.cfg.MaxBackups <= 0 {
		os.Remove(rw.backup(1))
		os.Remove(rw.backup(1) + ".gz")
		return
	}

	oldest := rw.backup(rw.cfg.MaxBackups)
	os.Remove(oldest)
	os.Remove(oldest + ".gz")

	for i := rw.cfg.MaxBackups - 1; i >= 1; i-- {
		from, to := rw.backup(i), rw.backup(i+1)
		if _, err := os.Stat(from + ".gz"); err == nil {
			os.Rename(from+".gz", to+".gz")
		} else if _, err := os.Stat(from); err == nil {
			os.Rename(from, to)
		}
	}
}

func (rw *RotatingWriter) backup(n int) string {
	return fmt.Sprintf("%s.%d", rw.path, n)
}

// compressBackup gzips a rotated file and removes the original, keeping
// the uncompressed copy on any failure. Runs detached from the writer, so
// errors go to stderr.
func compressBackup(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: read backup %s: %v\n", path, err)
		return
	}

	gzPath := path + ".gz"
	out, err := os.Create(gzPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: create %s: %v\n", gzPath, err)
		return
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	if _, err := zw.Write(data); err != nil {
		os.Remove(gzPath)
		fmt.Fprintf(os.Stderr, "logging: compress %s: %v\n", gzPath, err)
		return
	}
	if err := zw.Close(); err != nil {
		os.Remove(gzPath)
		fmt.Fprintf(os.Stderr, "logging: finalize %s: %v\n", gzPath, err)
		return
	}

	os.Remove(path)
}

// Sync flushes the current file.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close syncs and closes the writer. Subsequent Close calls are no-ops;
// subsequent Write calls fail.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	rw.file = nil
	return nil
}

// CurrentSize returns the size in bytes of the current (unrotated) file.
func (rw *RotatingWriter) CurrentSize() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.size
}

// FilePath returns the path of the current log file.
func (rw *RotatingWriter) FilePath() string {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.path
}
