package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forkbench/recipegrab/internal/diag"
	"github.com/forkbench/recipegrab/internal/markdown"
	"github.com/forkbench/recipegrab/internal/stacktrace"
)

// ToolName is the signature appended to report titles so maintainers can
// trace auto-generated issues back to this tool.
const ToolName = "recipegrab"

const preFilingChecks = `--- MESSAGE GENERATED BY recipegrab ---

**Pre-filing checks**

- [ ] I have searched for open issues that report the same problem
- [ ] I have checked that the bug affects the latest version of the extractor

**Information**

`

// Report is one filable issue: a title and a markdown body.
type Report struct {
	Title string
	Body  string
}

// Reports assembles one report per bucket, ordered by (site, step, kind).
// Each bucket's stack traces share their common prefix: it is printed in
// full only for the first occurrence and elided with "..." in the rest.
func (c *Categorizer) Reports(version string) []Report {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.buckets))
	for key := range c.buckets {
		keys = append(keys, key)
	}
	buckets := make(map[Key][]*diag.CapturedFailure, len(c.buckets))
	for key, failures := range c.buckets {
		buckets[key] = failures
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Step != b.Step {
			return a.Step < b.Step
		}
		return a.Kind < b.Kind
	})

	reports := make([]Report, 0, len(keys))
	for _, key := range keys {
		reports = append(reports, buildReport(key, buckets[key], version))
	}
	return reports
}

func buildReport(key Key, failures []*diag.CapturedFailure, version string) Report {
	site := strings.TrimPrefix(key.Site, "www.")
	title := fmt.Sprintf("%s: %s - %s (found by %s)", site, key.Step, key.Kind, ToolName)

	urls := make([]string, 0, len(failures))
	for _, f := range failures {
		urls = append(urls, f.URL)
	}

	var b strings.Builder
	b.WriteString(preFilingChecks)
	b.WriteString(markdown.Unordered(0,
		"host: "+markdown.Code(site),
		"extractor version: "+markdown.Code(version),
		"failure kind: "+markdown.Code(key.Kind),
		"triggered by calling: "+markdown.Code(triggeredBy(key.Step)),
		"triggered on:",
	))
	b.WriteString(markdown.Unordered(1, urls...))
	b.WriteString("\n" + markdown.Bold("Stack Traces") + "\n\n")
	if len(failures) > 1 {
		b.WriteString(markdown.Italic("'...' indicates frames present in all traces (but only shown in the first)") + "\n\n")
	}

	stacks := make([][]stacktrace.Frame, 0, len(failures))
	for _, f := range failures {
		stacks = append(stacks, stacktrace.Anonymize(f.Stack, diag.PathRoot))
	}
	shared := stacktrace.SharedPrefix(stacks)
	formatted := stacktrace.FormatStacks(stacks, shared, diag.PathRoot)

	for i, f := range failures {
		b.WriteString("URL: " + f.URL + "\n\n")
		lines := append(append([]string(nil), formatted[i]...), f.Kind+" - "+f.Err.Error())
		b.WriteString(markdown.CodeBlock("text", lines...))
		b.WriteString("\n")
	}

	return Report{Title: title, Body: b.String()}
}

func triggeredBy(step string) string {
	if step == GeneralStep {
		return "Extract()"
	}
	return "extractField(" + step + ")"
}
