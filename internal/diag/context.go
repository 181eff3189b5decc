package diag

// Messages carrying this sentinel exist only to close a context; the
// dispatch filter drops them before any sink sees them.
const sentinelMessage = "END OF CONTEXT - DO NOT EMIT"

// decision is the dispatch filter's verdict for one record.
type decision int

const (
	decisionDrop decision = iota
	decisionEmit
	decisionDefer
)

// contextState tracks the open diagnostic context of one unit of work.
//
// States: Idle (open=false), Open-Untriggered (open, !triggered) and
// Open-Triggered. Invariant: triggered is false and the deferred queue is
// empty whenever no context is open.
type contextState struct {
	msg       string
	args      []any
	open      bool
	triggered bool
	deferEmit bool
	deferred  []*Record
}

func (c *contextState) reset() {
	c.msg = ""
	c.args = nil
	c.open = false
	c.triggered = false
	c.deferEmit = false
	c.deferred = nil
}

// process implements the record dispatch filter for a single unit. It
// advances the context state machine, annotates rec with rendering
// metadata, and decides whether the terminal stream emits, defers, or
// drops the record. Records always reach the session's always-on sinks
// separately; only the sentinel is invisible everywhere.
func (u *Unit) process(rec *Record) decision {
	c := &u.ctx

	switch {
	case rec.openContext:
		// Opening over an in-flight context must not lose its deferred
		// records: flush the old context first.
		if c.open {
			u.flushAndReset()
		}
		u.sess.openUnits.Add(1)
		c.open = true
		c.msg = rec.Message
		c.args = rec.Args
		c.deferEmit = rec.deferEmit
		c.triggered = false
		c.deferred = nil
		return decisionDrop
	case rec.closeContext:
		u.flushAndReset()
		// The close record itself continues through the normal path with
		// the context now reset, so an abandonment error is emitted plain.
	}

	if rec.Message == sentinelMessage {
		return decisionDrop
	}
	threshold := u.sess.Threshold()
	if rec.Level < threshold {
		return decisionDrop
	}

	if c.open {
		if !c.triggered {
			rec.contextMsg = c.msg
			rec.contextArgs = c.args
			c.triggered = true
		}
		rec.inContext = true
	}
	if rec.Failure != nil {
		rec.fullTrace = threshold <= DebugLevel
	}
	if c.open && c.deferEmit {
		c.deferred = append(c.deferred, rec)
		return decisionDefer
	}
	return decisionEmit
}

// flushAndReset flushes any deferred records straight to the terminal sink
// in emission order, then returns the state machine to Idle. Deferred
// records are not re-filtered on flush; they already passed the threshold
// when queued.
func (u *Unit) flushAndReset() {
	c := &u.ctx
	if c.open {
		for _, rec := range c.deferred {
			u.sess.writeTerminal(rec)
		}
		u.sess.openUnits.Add(-1)
	}
	c.reset()
}

// discard drops the context and any deferred records without emitting them.
func (u *Unit) discard() {
	if u.ctx.open {
		u.sess.openUnits.Add(-1)
	}
	u.ctx.reset()
}
