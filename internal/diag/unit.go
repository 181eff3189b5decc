package diag

import "time"

// Unit is the diagnostic handle for one logical unit of work. A caller
// obtains its Unit once from the Session and threads it through the work;
// the Unit owns that work's context state machine.
//
// A Unit must only be used from one goroutine at a time. The Session and
// its sinks handle cross-unit concurrency.
type Unit struct {
	name string
	sess *Session
	ctx  contextState
}

// Name returns the unit-of-work identity this handle was registered under.
func (u *Unit) Name() string { return u.name }

type recordTags struct {
	open      bool
	close     bool
	deferEmit bool
}

func (u *Unit) log(level Level, failure *CapturedFailure, tags recordTags, format string, args ...any) {
	rec := &Record{
		Time:         time.Now(),
		Level:        level,
		Message:      format,
		Args:         args,
		Caller:       callerAt(3),
		Failure:      failure,
		openContext:  tags.open,
		closeContext: tags.close,
		deferEmit:    tags.deferEmit,
	}
	u.sess.dispatch(u, rec)
}

// Debugf logs a debug-level record.
func (u *Unit) Debugf(format string, args ...any) {
	u.log(DebugLevel, nil, recordTags{}, format, args...)
}

// Infof logs an info-level record.
func (u *Unit) Infof(format string, args ...any) {
	u.log(InfoLevel, nil, recordTags{}, format, args...)
}

// Warnf logs a warning-level record.
func (u *Unit) Warnf(format string, args ...any) {
	u.log(WarnLevel, nil, recordTags{}, format, args...)
}

// Errorf logs an error-level record.
func (u *Unit) Errorf(format string, args ...any) {
	u.log(ErrorLevel, nil, recordTags{}, format, args...)
}

// Criticalf logs a critical-level record.
func (u *Unit) Criticalf(format string, args ...any) {
	u.log(CriticalLevel, nil, recordTags{}, format, args...)
}

// Failuref logs a record carrying a captured failure. The terminal form
// appends a one-line "<Kind> - <error>" summary, or the full stack when
// the session threshold is at or below debug.
func (u *Unit) Failuref(level Level, failure *CapturedFailure, format string, args ...any) {
	u.log(level, failure, recordTags{}, format, args...)
}

// OpenContext opens a diagnostic context described by the given message.
// The message is not emitted on its own; it surfaces as the "While ..."
// prefix of the first qualifying record inside the context. Opening while
// a context is already open closes (and flushes) the previous one.
func (u *Unit) OpenContext(format string, args ...any) {
	u.log(InfoLevel, nil, recordTags{open: true}, format, args...)
}

// OpenDeferredContext opens a context whose qualifying records are queued
// and only written to the terminal when the context closes, keeping the
// trail of one unit of work contiguous under concurrency.
func (u *Unit) OpenDeferredContext(format string, args ...any) {
	u.log(InfoLevel, nil, recordTags{open: true, deferEmit: true}, format, args...)
}

// CloseContext flushes any deferred records and resets the context.
// Closing an already-closed context is a no-op.
func (u *Unit) CloseContext() {
	u.log(DebugLevel, nil, recordTags{close: true}, sentinelMessage)
}

// CloseContextError closes the context like CloseContext but also logs an
// error noting which context was abandoned and why. Used on the failure
// path of a unit of work.
func (u *Unit) CloseContextError(cause error) {
	desc := u.ctx.msg
	if len(u.ctx.args) > 0 {
		desc = (&Record{Message: u.ctx.msg, Args: u.ctx.args}).Text()
	}
	u.log(ErrorLevel, nil, recordTags{close: true}, "Abandoning %q: %v", desc, cause)
}

// AbortContext discards the context and any deferred records without
// flushing them, for work that was canceled mid-context.
func (u *Unit) AbortContext() {
	u.discard()
}

// InContext reports whether a diagnostic context is currently open.
func (u *Unit) InContext() bool { return u.ctx.open }
