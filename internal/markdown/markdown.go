// Package markdown provides the small set of builders used for report
// bodies and markdown recipe output. It composes strings only; rendering is
// left to whatever tracker or viewer consumes the text.
package markdown

import (
	"fmt"
	"strings"
)

func Bold(s string) string   { return "**" + s + "**" }
func Italic(s string) string { return "*" + s + "*" }
func Code(s string) string   { return "`" + s + "`" }

// Header renders an ATX heading at the given level.
func Header(s string, level int) string {
	return strings.Repeat("#", level) + " " + s
}

// Link renders an inline link, falling back to the bare URL when no text is
// given.
func Link(url, text string) string {
	if text == "" {
		return url
	}
	return fmt.Sprintf("[%s](%s)", text, url)
}

// Unordered renders items as a bulleted list indented by level.
func Unordered(level int, items ...string) string {
	indent := strings.Repeat("  ", level)
	var b strings.Builder
	for _, item := range items {
		b.WriteString(indent + "- " + item + "\n")
	}
	return b.String()
}

// Ordered renders items as a numbered list.
func Ordered(items ...string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

// CodeBlock fences lines as a code block tagged with lang.
func CodeBlock(lang string, lines ...string) string {
	var b strings.Builder
	b.WriteString("```" + lang + "\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	b.WriteString("```\n")
	return b.String()
}

var escaper = strings.NewReplacer(
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"#", `\#`,
	"[", `\[`,
	"]", `\]`,
)

// Escape neutralizes markdown control characters in extracted text.
func Escape(s string) string {
	return escaper.Replace(s)
}
