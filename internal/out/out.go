// Package out renders extracted recipes into a single plain-text or
// Markdown file.
package out

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forkbench/recipegrab/internal/diag"
	"github.com/forkbench/recipegrab/internal/markdown"
	"github.com/forkbench/recipegrab/internal/recipe"
)

// betweenRecipes separates recipes in the plain-text rendering.
const betweenRecipes = "\n\n\n\n\n"

// Writer accumulates rendered recipes and flushes them to one output file.
type Writer struct {
	path     string
	useMD    bool
	log      *diag.Unit
	sections []string
}

// NewWriter builds a Writer targeting path. When useMD is set, recipes are
// rendered as Markdown.
func NewWriter(path string, useMD bool, log *diag.Unit) *Writer {
	return &Writer{path: path, useMD: useMD, log: log}
}

// Add renders r and queues it for writing. Recipes missing an essential
// field are skipped: ok reports whether the recipe made it into the
// output.
func (w *Writer) Add(r *recipe.Recipe) (ok bool) {
	if r.Status <= recipe.StatusIncompleteEssential {
		w.log.Errorf("Nothing worthwhile could be extracted. Skipping...")
		return false
	}
	if w.useMD {
		w.sections = append(w.sections, renderMarkdown(r))
	} else {
		w.sections = append(w.sections, renderText(r))
	}
	return true
}

// Len reports the number of queued recipes.
func (w *Writer) Len() int { return len(w.sections) }

// Flush writes every queued recipe to the output file, creating parent
// directories as needed.
func (w *Writer) Flush() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	var sb strings.Builder
	for _, section := range w.sections {
		sb.WriteString(section)
	}
	if err := os.WriteFile(w.path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	w.log.Infof("Wrote %d recipes to %s", len(w.sections), w.path)
	return nil
}

func displayTitle(r *recipe.Recipe) string {
	if r.Title != recipe.NA {
		return r.Title
	}
	return r.URL
}

func renderText(r *recipe.Recipe) string {
	var sb strings.Builder
	sb.WriteString(displayTitle(r))
	sb.WriteString("\n\n")
	sb.WriteString(r.TotalTime + " min | " + r.Yields + "\n\n")
	sb.WriteString(r.Ingredients)
	sb.WriteString("\n\n")
	sb.WriteString(strings.ReplaceAll(r.Instructions, "\n", "\n\n"))
	sb.WriteString("\n\n")
	sb.WriteString("from: " + r.URL)
	sb.WriteString(betweenRecipes)
	return sb.String()
}

func renderMarkdown(r *recipe.Recipe) string {
	title := markdown.Escape(displayTitle(r))

	ingredients := make([]string, 0)
	for _, item := range strings.Split(r.Ingredients, "\n") {
		ingredients = append(ingredients, markdown.Escape(item))
	}
	instructions := make([]string, 0)
	for _, step := range strings.Split(r.Instructions, "\n") {
		instructions = append(instructions, markdown.Escape(step))
	}

	var sb strings.Builder
	sb.WriteString(markdown.Header(title, 2))
	sb.WriteString("\n\n")
	sb.WriteString(r.TotalTime + " min | " + r.Yields)
	sb.WriteString("\n\n")
	sb.WriteString(markdown.Unordered(0, ingredients...))
	sb.WriteString("\n")
	sb.WriteString(markdown.Ordered(instructions...))
	sb.WriteString("\n")
	sb.WriteString(markdown.Italic("from:") + " ")
	if r.Host != recipe.NA {
		sb.WriteString(markdown.Link(markdown.Escape(r.URL), markdown.Italic(markdown.Escape(r.Host))))
	} else {
		sb.WriteString(markdown.Escape(r.URL))
	}
	sb.WriteString("\n\n")
	return sb.String()
}
