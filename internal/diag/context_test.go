package diag

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memorySink records every dispatched record and its terminal rendering.
type memorySink struct {
	mu    sync.Mutex
	recs  []*Record
	lines []string
}

func (m *memorySink) Write(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	m.lines = append(m.lines, RenderTerminal(rec))
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func (m *memorySink) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]string, 0, len(m.recs))
	for _, rec := range m.recs {
		msgs = append(msgs, rec.Text())
	}
	return msgs
}

func newTestSession(threshold Level) (*Session, *memorySink, *memorySink) {
	terminal := &memorySink{}
	extra := &memorySink{}
	sess := NewSession(Config{
		Threshold: threshold,
		Terminal:  terminal,
		Extra:     []Sink{extra},
	})
	return sess, terminal, extra
}

// TestContextPrefixesFirstQualifyingRecord verifies the first record inside
// a context carries the "While ..." prefix and continuations are tabbed.
func TestContextPrefixesFirstQualifyingRecord(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenContext("Processing %s", "http://x.test")
	u.Errorf("fetch failed")
	u.Errorf("still broken")
	u.CloseContext()

	require.Equal(t, []string{
		"While processing http://x.test:\n\tfetch failed",
		"\tstill broken",
	}, terminal.Lines())
}

// TestOpeningContextEmitsNothing verifies the context description only
// surfaces once a qualifying record arrives.
func TestOpeningContextEmitsNothing(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenContext("Processing %s", "http://x.test")
	u.CloseContext()

	require.Empty(t, terminal.Lines())
}

// TestBelowThresholdRecordsDoNotTrigger verifies filtered records neither
// reach the terminal nor consume the context prefix, while always-on sinks
// still observe them.
func TestBelowThresholdRecordsDoNotTrigger(t *testing.T) {
	t.Parallel()

	sess, terminal, extra := newTestSession(ErrorLevel)
	u := sess.Default()

	u.OpenContext("Processing %s", "http://x.test")
	u.Infof("resolving")
	u.Errorf("boom")
	u.CloseContext()

	require.Equal(t, []string{"While processing http://x.test:\n\tboom"}, terminal.Lines())
	require.Contains(t, extra.Messages(), "resolving")
}

// TestDeferredContextFlushesOnClose verifies deferred records hit the
// terminal only at close, in emission order, and that close resets state.
func TestDeferredContextFlushesOnClose(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenDeferredContext("Processing %s", "http://x.test")
	u.Errorf("first")
	u.Warnf("second")
	require.Empty(t, terminal.Lines())

	u.CloseContext()
	require.Equal(t, []string{
		"While processing http://x.test:\n\tfirst",
		"\tsecond",
	}, terminal.Lines())
	require.False(t, u.InContext())
}

// TestDeferredRecordsReachExtrasImmediately verifies always-on sinks never
// wait for a deferred context to close.
func TestDeferredRecordsReachExtrasImmediately(t *testing.T) {
	t.Parallel()

	sess, _, extra := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenDeferredContext("Processing %s", "http://x.test")
	u.Errorf("first")
	require.Contains(t, extra.Messages(), "first")
	u.CloseContext()
}

// TestCloseContextIdempotent verifies closing an already-closed context
// emits nothing.
func TestCloseContextIdempotent(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenContext("step one")
	u.Errorf("boom")
	u.CloseContext()
	u.CloseContext()

	require.Len(t, terminal.Lines(), 1)
	require.False(t, u.InContext())
}

// TestAbortContextDiscardsDeferred verifies aborted contexts drop their
// queued records entirely.
func TestAbortContextDiscardsDeferred(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenDeferredContext("Processing %s", "http://x.test")
	u.Errorf("never seen")
	u.AbortContext()

	require.Empty(t, terminal.Lines())
	require.False(t, u.InContext())

	u.OpenContext("next item")
	u.Errorf("fresh")
	u.CloseContext()
	require.Equal(t, []string{"While next item:\n\tfresh"}, terminal.Lines())
}

// TestOpenOverOpenFlushesPrevious verifies opening a context while another
// is in flight flushes the previous context's deferred records first.
func TestOpenOverOpenFlushesPrevious(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenDeferredContext("Processing %s", "http://a.test")
	u.Errorf("from a")
	u.OpenDeferredContext("Processing %s", "http://b.test")
	require.Equal(t, []string{"While processing http://a.test:\n\tfrom a"}, terminal.Lines())

	u.Errorf("from b")
	u.CloseContext()
	require.Equal(t, []string{
		"While processing http://a.test:\n\tfrom a",
		"While processing http://b.test:\n\tfrom b",
	}, terminal.Lines())
}

// TestCloseContextErrorAnnouncesAbandonment verifies the error-close path
// flushes the context and then reports the abandonment outside of it.
func TestCloseContextErrorAnnouncesAbandonment(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	u.OpenDeferredContext("Processing %s", "http://x.test")
	u.Warnf("half done")
	u.CloseContextError(errors.New("no route to host"))

	require.Equal(t, []string{
		"While processing http://x.test:\n\thalf done",
		`Abandoning "Processing http://x.test": no route to host`,
	}, terminal.Lines())
	require.False(t, u.InContext())
}

// TestSentinelNeverReachesSinks verifies the close sentinel is invisible in
// both the terminal and always-on streams.
func TestSentinelNeverReachesSinks(t *testing.T) {
	t.Parallel()

	sess, terminal, extra := newTestSession(DebugLevel)
	u := sess.Default()

	u.OpenContext("step")
	u.CloseContext()

	require.NotContains(t, terminal.Messages(), sentinelMessage)
	require.NotContains(t, extra.Messages(), sentinelMessage)
}

// TestSetThresholdRejectedInsideOpenContext verifies verbosity cannot
// change while any unit has an open context.
func TestSetThresholdRejectedInsideOpenContext(t *testing.T) {
	t.Parallel()

	sess, _, _ := newTestSession(InfoLevel)
	u := sess.Unit("worker-1")

	u.OpenContext("step")
	require.Error(t, sess.SetThreshold(DebugLevel))
	u.CloseContext()
	require.NoError(t, sess.SetThreshold(DebugLevel))
	require.Equal(t, DebugLevel, sess.Threshold())
}

// TestSetThresholdSafeAgainstConcurrentUnits verifies threshold changes
// from another goroutine never touch per-unit context state, only the
// session's counters.
func TestSetThresholdSafeAgainstConcurrentUnits(t *testing.T) {
	t.Parallel()

	sess, _, _ := newTestSession(InfoLevel)
	u := sess.Unit("worker-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			u.OpenDeferredContext("Processing item %d", i)
			u.Warnf("record %d", i)
			u.CloseContext()
		}
	}()
	for i := 0; i < 100; i++ {
		// Either outcome is valid; the call must simply not race with
		// the logging goroutine.
		_ = sess.SetThreshold(WarnLevel)
	}
	wg.Wait()

	require.NoError(t, sess.SetThreshold(DebugLevel))
	require.Equal(t, DebugLevel, sess.Threshold())
}

// TestUnitsAreIndependent verifies each unit runs its own context state
// machine under one session.
func TestUnitsAreIndependent(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	a := sess.Unit("worker-a")
	b := sess.Unit("worker-b")
	require.Same(t, a, sess.Unit("worker-a"))

	a.OpenContext("Processing %s", "http://a.test")
	b.Errorf("plain record")
	a.Errorf("inside a")
	a.CloseContext()

	require.Equal(t, []string{
		"plain record",
		"While processing http://a.test:\n\tinside a",
	}, terminal.Lines())
}

// TestFailureSummaryAppended verifies records carrying a failure append the
// one-line kind/error summary above the debug threshold.
func TestFailureSummaryAppended(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Default()

	failure := NewFailure("http://x.test", "ElementNotFound", errors.New("no title"))
	u.Failuref(ErrorLevel, failure, "No Title found: ")

	lines := terminal.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, "No Title found: ElementNotFound - no title", lines[0])
}

// TestFailureFullTraceAtDebug verifies the full anonymized stack replaces
// the summary when the session runs at debug.
func TestFailureFullTraceAtDebug(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(DebugLevel)
	u := sess.Default()

	failure := NewFailure("http://x.test", "ElementNotFound", errors.New("no title"))
	u.Failuref(ErrorLevel, failure, "No Title found: ")

	lines := terminal.Lines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "\n\tElementNotFound - no title")
	require.Contains(t, lines[0], "in ")
}

// TestSessionCloseFlushesOpenContexts verifies closing the session drains
// every unit's deferred records.
func TestSessionCloseFlushesOpenContexts(t *testing.T) {
	t.Parallel()

	sess, terminal, _ := newTestSession(InfoLevel)
	u := sess.Unit("worker-1")

	u.OpenDeferredContext("Processing %s", "http://x.test")
	u.Errorf("stranded")
	require.NoError(t, sess.Close())

	require.Equal(t, []string{"While processing http://x.test:\n\tstranded"}, terminal.Lines())
}
