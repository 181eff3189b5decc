package sinks

import (
	"fmt"
	"os"
	"sync"

	"github.com/forkbench/recipegrab/internal/diag"
)

// logBackups is how many rotated copies of the debug log are kept.
const logBackups = 4

// LogFile persists every record in the debug-log form, rotating previous
// runs' logs on open so each run starts with a fresh file.
type LogFile struct {
	mu sync.Mutex
	f  *os.File
}

// NewLogFile rotates any existing log at path and opens a fresh one.
func NewLogFile(path string) (*LogFile, error) {
	rotate(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return &LogFile{f: f}, nil
}

// rotate shifts path -> path.1 -> ... -> path.N, dropping the oldest.
func rotate(path string) {
	for i := logBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	_ = os.Rename(path, path+".1")
}

// Write appends the persisted-log rendering of one record.
func (l *LogFile) Write(rec *diag.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintln(l.f, diag.RenderLogfile(rec)); err != nil {
		return fmt.Errorf("write log record: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}
