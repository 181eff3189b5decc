package diag

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forkbench/recipegrab/internal/stacktrace"
)

// PathRoot is the project directory name used to anonymize file paths in
// rendered stack traces.
const PathRoot = "recipegrab"

// Record is one unit of diagnostic output. It is created once by a Unit
// logging call; the dispatch filter attaches rendering metadata before the
// record reaches any sink.
type Record struct {
	Time    time.Time
	Level   Level
	Message string
	Args    []any
	Caller  Caller
	Failure *CapturedFailure

	// Lifecycle tags set at creation.
	openContext  bool
	closeContext bool
	deferEmit    bool

	// Rendering metadata attached by the dispatch filter.
	contextMsg  string
	contextArgs []any
	inContext   bool
	fullTrace   bool
}

// Text returns the record's message with its arguments substituted.
func (r *Record) Text() string {
	if len(r.Args) == 0 {
		return r.Message
	}
	return fmt.Sprintf(r.Message, r.Args...)
}

// Caller identifies the logging call site as module:function:line, where
// module is the source file name without extension.
type Caller struct {
	Module   string
	Function string
	Line     int
}

func callerAt(skip int) Caller {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return Caller{Module: "unknown", Function: "unknown"}
	}
	fn := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
		if idx := strings.LastIndex(fn, "/"); idx >= 0 {
			fn = fn[idx+1:]
		}
		if idx := strings.Index(fn, "."); idx >= 0 {
			fn = fn[idx+1:]
		}
	}
	return Caller{
		Module:   strings.TrimSuffix(filepath.Base(file), ".go"),
		Function: fn,
		Line:     line,
	}
}

// CapturedFailure is a recorded extraction error together with its
// originating URL, stable kind name, and the call stack captured at the
// point the failure was observed.
type CapturedFailure struct {
	ID    uuid.UUID
	URL   string
	Kind  string
	Err   error
	Stack []stacktrace.Frame
}

// NewFailure captures the current call stack and wraps err as a failure of
// the given kind, originating from url.
func NewFailure(url, kind string, err error) *CapturedFailure {
	return &CapturedFailure{
		ID:    uuid.New(),
		URL:   url,
		Kind:  kind,
		Err:   err,
		Stack: stacktrace.Capture(1),
	}
}
