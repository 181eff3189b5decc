package diag

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/forkbench/recipegrab/internal/stacktrace"
)

// timestampLayout is the persisted-log timestamp format.
const timestampLayout = "2006-01-02 15:04:05"

// RenderTerminal produces the terminal form of an annotated record:
// "<context-prefix><message>". The prefix is empty outside any context,
// "While <context>:" plus a tabbed newline on the first qualifying line
// inside one, and a single tab on continuation lines. Failure summaries or
// full traces are appended for records carrying a captured failure.
func RenderTerminal(rec *Record) string {
	var b strings.Builder
	switch {
	case rec.inContext && rec.contextMsg != "":
		b.WriteString(formatContext(rec.contextMsg, rec.contextArgs))
	case rec.inContext:
		b.WriteString("\t")
	}
	b.WriteString(rec.Text())
	if rec.Failure != nil {
		if rec.fullTrace {
			indent := "\t"
			if rec.inContext {
				indent = "\t\t"
			}
			b.WriteString(renderTrace(rec.Failure, indent))
		} else {
			b.WriteString(rec.Failure.Kind + " - " + rec.Failure.Err.Error())
		}
	}
	return b.String()
}

// RenderLogfile produces the persisted-log form:
// "<timestamp> - <LEVEL> <module>:<function>:<line> <message>", with the
// full stack trace appended for error-level records and above.
func RenderLogfile(rec *Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s %s:%s:%d %s",
		rec.Time.Format(timestampLayout),
		rec.Level,
		rec.Caller.Module,
		rec.Caller.Function,
		rec.Caller.Line,
		rec.Text(),
	)
	if rec.Failure != nil {
		if rec.Level >= ErrorLevel {
			indent := "\t"
			if rec.inContext {
				indent = "\t\t"
			}
			b.WriteString(renderTrace(rec.Failure, indent))
		} else {
			b.WriteString(rec.Failure.Kind + " - " + rec.Failure.Err.Error())
		}
	}
	return b.String()
}

// formatContext composes the "While <description>:" prefix from the open
// context's message and arguments, lowercasing the leading rune.
func formatContext(msg string, args []any) string {
	composed := msg
	if len(args) > 0 {
		composed = fmt.Sprintf(msg, args...)
	}
	if r, size := utf8.DecodeRuneInString(composed); size > 0 {
		composed = string(unicode.ToLower(r)) + composed[size:]
	}
	return "While " + composed + ":\n\t"
}

// renderTrace renders the failure's stack, one anonymized frame per line,
// each physical line prefixed by indent.
func renderTrace(f *CapturedFailure, indent string) string {
	var b strings.Builder
	b.WriteString("\n" + indent + f.Kind + " - " + f.Err.Error())
	for _, frame := range stacktrace.Anonymize(f.Stack, PathRoot) {
		b.WriteString("\n" + indent + frame.String())
	}
	return b.String()
}
