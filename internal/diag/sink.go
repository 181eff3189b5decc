package diag

// Sink receives rendered-or-renderable records from the dispatch pipeline.
// Implementations must be safe for concurrent Write calls; the session
// makes no ordering guarantees across units, only within one.
type Sink interface {
	Write(rec *Record) error
	Close() error
}
