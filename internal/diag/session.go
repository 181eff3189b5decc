// Package diag implements the diagnostics pipeline: per-unit context state
// machines, the record dispatch filter, and the terminal/logfile renderings
// of diagnostic records.
package diag

import (
	"errors"
	"sync"
	"sync/atomic"
)

// defaultUnitName backs Session-level logging from code that is not running
// inside a registered unit of work.
const defaultUnitName = "default"

// Config configures a Session.
type Config struct {
	// Threshold is the terminal emission threshold. Records below it never
	// reach the terminal sink; always-on sinks receive every record.
	Threshold Level
	// Terminal is the context-filtered stream sink. May be nil.
	Terminal Sink
	// Extra sinks receive every non-sentinel record regardless of the
	// threshold, e.g. the persisted log file.
	Extra []Sink
}

// Session owns the unit registry and the output sinks for one run. It is
// created at run start, passed explicitly to collaborators, and closed once
// after report generation.
type Session struct {
	threshold atomic.Int32
	// openUnits counts units with an open context. Units mutate their own
	// context state without a lock, so this counter is the only open-state
	// view that is safe from other goroutines.
	openUnits atomic.Int32
	terminal  Sink
	extras    []Sink

	mu    sync.Mutex
	units map[string]*Unit
}

// NewSession builds a Session with the given sinks and threshold.
func NewSession(cfg Config) *Session {
	s := &Session{
		terminal: cfg.Terminal,
		extras:   append([]Sink(nil), cfg.Extra...),
		units:    make(map[string]*Unit),
	}
	s.threshold.Store(int32(cfg.Threshold))
	return s
}

// Unit returns the diagnostic handle registered under name, creating it on
// first use. The handle persists for the life of the session so the same
// identity can open and close many contexts sequentially.
func (s *Session) Unit(name string) *Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.units[name]; ok {
		return u
	}
	u := &Unit{name: name, sess: s}
	s.units[name] = u
	return u
}

// Default returns the fallback unit used outside any registered unit of
// work.
func (s *Session) Default() *Unit {
	return s.Unit(defaultUnitName)
}

// Threshold returns the current terminal emission threshold.
func (s *Session) Threshold() Level {
	return Level(s.threshold.Load())
}

// SetThreshold changes the emission threshold. It fails while any unit has
// an open context, since records already filtered against the old level
// would render inconsistently.
func (s *Session) SetThreshold(level Level) error {
	if s.openUnits.Load() > 0 {
		return errors.New("cannot change verbosity inside an open context")
	}
	s.threshold.Store(int32(level))
	return nil
}

// dispatch routes one record: the unit's filter decides the terminal fate,
// while always-on sinks observe every non-sentinel record immediately.
func (s *Session) dispatch(u *Unit, rec *Record) {
	dec := u.process(rec)
	if rec.Message == sentinelMessage {
		return
	}
	s.writeExtras(rec)
	if dec == decisionEmit {
		s.writeTerminal(rec)
	}
}

func (s *Session) writeTerminal(rec *Record) {
	if s.terminal == nil {
		return
	}
	_ = s.terminal.Write(rec)
}

func (s *Session) writeExtras(rec *Record) {
	for _, sink := range s.extras {
		if sink == nil {
			continue
		}
		_ = sink.Write(rec)
	}
}

// Close flushes every unit's open context and closes all sinks. The session
// must not be used afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	for _, u := range s.units {
		u.flushAndReset()
	}
	s.mu.Unlock()

	var errs []error
	if s.terminal != nil {
		if err := s.terminal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sink := range s.extras {
		if sink == nil {
			continue
		}
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
