// Package stacktrace captures and formats call stacks for failure reports.
package stacktrace

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// ElisionMarker replaces frames shared by every stack in a bucket.
const ElisionMarker = "..."

// Frame is one captured call-stack entry. Source is optional; frames are
// equal for diffing purposes only if all four fields match.
type Frame struct {
	File     string
	Line     int
	Function string
	Source   string
}

// Equal reports whether two frames match field for field.
func (f Frame) Equal(other Frame) bool {
	return f.File == other.File &&
		f.Line == other.Line &&
		f.Function == other.Function &&
		f.Source == other.Source
}

// String renders a frame as a single physical line.
func (f Frame) String() string {
	if f.Source != "" {
		return fmt.Sprintf("%s:%d in %s: %s", f.File, f.Line, f.Function, f.Source)
	}
	return fmt.Sprintf("%s:%d in %s", f.File, f.Line, f.Function)
}

// Capture records the call stack of the caller, skipping skip additional
// frames on top of Capture itself. The outermost frame comes last.
func Capture(skip int) []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var out []Frame
	for {
		fr, more := frames.Next()
		out = append(out, Frame{
			File:     fr.File,
			Line:     fr.Line,
			Function: shortFuncName(fr.Function),
		})
		if !more {
			break
		}
	}
	// Callers yields innermost first; reports read top-down from the entry
	// point, so reverse into call order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func shortFuncName(full string) string {
	if idx := strings.LastIndex(full, "/"); idx >= 0 {
		return full[idx+1:]
	}
	return full
}

// Anonymize strips the machine-specific prefix from every frame's file path.
// A path containing root as a directory component keeps root and everything
// below it, with the leading portion replaced by the elision marker. Paths
// that do not contain root are returned unchanged.
func Anonymize(frames []Frame, root string) []Frame {
	if root == "" {
		return frames
	}
	out := make([]Frame, len(frames))
	for i, f := range frames {
		f.File = anonymizePath(f.File, root)
		out[i] = f
	}
	return out
}

func anonymizePath(path, root string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == root {
			return strings.Join(append([]string{ElisionMarker}, parts[i:]...), "/")
		}
	}
	return path
}

// SharedPrefix returns the longest sequence of frames identical at every
// index across all stacks. With fewer than two stacks there is nothing to
// dedupe and the result is empty. A zero-frame stack bounds the prefix at
// zero.
func SharedPrefix(stacks [][]Frame) []Frame {
	if len(stacks) < 2 {
		return nil
	}
	minLen := len(stacks[0])
	for _, s := range stacks[1:] {
		if len(s) < minLen {
			minLen = len(s)
		}
	}
	var shared []Frame
	for i := 0; i < minLen; i++ {
		ref := stacks[0][i]
		for _, s := range stacks[1:] {
			if !s[i].Equal(ref) {
				return shared
			}
		}
		shared = append(shared, ref)
	}
	return shared
}

// FormatStacks renders every stack as lines, anonymized against root. The
// shared prefix is printed in full only for the first stack; subsequent
// stacks start with the elision marker followed by their divergent tail.
// A single stack is printed whole with no elision.
func FormatStacks(stacks [][]Frame, shared []Frame, root string) [][]string {
	out := make([][]string, 0, len(stacks))
	for i, stack := range stacks {
		anon := Anonymize(stack, root)
		var lines []string
		if i == 0 || len(shared) == 0 || len(stacks) < 2 {
			lines = make([]string, 0, len(anon))
			for _, f := range anon {
				lines = append(lines, f.String())
			}
		} else {
			lines = append(lines, ElisionMarker)
			for _, f := range anon[min(len(shared), len(anon)):] {
				lines = append(lines, f.String())
			}
		}
		out = append(out, lines)
	}
	return out
}
