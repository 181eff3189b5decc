// Package sinks provides the stock diag.Sink implementations: the terminal
// stream, the persisted log file, and a zap adapter.
package sinks

import (
	"fmt"
	"io"
	"sync"

	"github.com/forkbench/recipegrab/internal/diag"
)

// Terminal writes the terminal rendering of each record to w, one line
// (possibly multi-physical-line) per record.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal wraps w, typically os.Stderr.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Write renders and emits one record.
func (t *Terminal) Write(rec *diag.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintln(t.w, diag.RenderTerminal(rec)); err != nil {
		return fmt.Errorf("write terminal record: %w", err)
	}
	return nil
}

// Close is a no-op; the terminal stream is not owned by the sink.
func (t *Terminal) Close() error { return nil }
