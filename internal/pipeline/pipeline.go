// Package pipeline orchestrates a run: URL preparation, cache lookup,
// concurrent fetching and extraction, and result accounting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/forkbench/recipegrab/internal/cache"
	"github.com/forkbench/recipegrab/internal/diag"
	"github.com/forkbench/recipegrab/internal/recipe"
)

// Counts tallies what happened to the input over a run.
type Counts struct {
	Strings            int
	URLs               int
	RequireFetching    int
	Reached            int
	ParsedSuccessfully int
	ParsedPartially    int
}

// String renders the tally for the end-of-run summary.
func (c Counts) String() string {
	return fmt.Sprintf(
		"[Statistics] Lines: %d | URLs: %d | Fetched: %d/%d | Parsed fully: %d | Parsed partially: %d",
		c.Strings, c.URLs, c.Reached, c.RequireFetching, c.ParsedSuccessfully, c.ParsedPartially)
}

// PrepareURLs normalizes raw input lines into a deduplicated, ordered URL
// list. Each line is processed inside its own diagnostic context so that
// per-line messages carry their origin.
func PrepareURLs(lines []string, log *diag.Unit, counts *Counts) []string {
	seen := make(map[string]struct{}, len(lines))
	prepared := make([]string, 0, len(lines))
	for _, line := range lines {
		// Blank lines count as input but are otherwise ignored.
		if counts != nil {
			counts.Strings++
		}
		line = strings.ReplaceAll(line, "\n", "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		log.OpenContext("Processing %s", line)
		if !strings.HasPrefix(line, "http") {
			line = "http://" + line
		}
		if !isURL(line) {
			log.Errorf("Not an URL")
			log.CloseContext()
			continue
		}
		line = cutoff(line, "/ref=", "?")
		if _, dup := seen[line]; dup {
			log.Warnf("Already queued")
		} else {
			seen[line] = struct{}{}
			prepared = append(prepared, line)
		}
		log.CloseContext()
	}
	if counts != nil {
		counts.URLs += len(prepared)
	}
	return prepared
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != "" &&
		strings.Contains(u.Hostname(), ".")
}

// cutoff truncates s at the first occurrence of any marker. Tracking
// parameters and storefront ref suffixes only fragment the cache.
func cutoff(s string, markers ...string) string {
	for _, marker := range markers {
		if i := strings.Index(s, marker); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

// Fetcher downloads one page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, log *diag.Unit) ([]byte, error)
}

// Extractor turns a fetched page into a Recipe.
type Extractor interface {
	Extract(ctx context.Context, pageURL string, html []byte, log *diag.Unit) (*recipe.Recipe, error)
}

// Pipeline wires the fetch, extraction, and cache stages together.
type Pipeline struct {
	sess        *diag.Session
	fetcher     Fetcher
	extractor   Extractor
	store       *cache.Store
	mode        cache.Mode
	connections int
}

// New builds a Pipeline. store may be nil, disabling caching entirely.
func New(sess *diag.Session, fetcher Fetcher, extractor Extractor, store *cache.Store, mode cache.Mode, connections int) *Pipeline {
	if connections <= 0 {
		connections = 1
	}
	return &Pipeline{
		sess:        sess,
		fetcher:     fetcher,
		extractor:   extractor,
		store:       store,
		mode:        mode,
		connections: connections,
	}
}

// Run resolves every URL to a Recipe, serving from cache where the mode
// allows and fetching the rest concurrently. The returned slice preserves
// input order; failed items appear with a below-threshold status rather
// than as errors.
func (p *Pipeline) Run(ctx context.Context, urls []string, counts *Counts) ([]*recipe.Recipe, error) {
	results := make([]*recipe.Recipe, len(urls))
	toFetch := make([]int, 0, len(urls))

	log := p.sess.Default()
	for i, u := range urls {
		cached := p.lookup(ctx, u, log)
		if cached != nil {
			log.Infof("Using cached recipe for %s", u)
			results[i] = cached
			continue
		}
		if p.mode == cache.ModeOnly {
			log.Errorf("No cached recipe for %s and fetching is disabled", u)
			results[i] = recipe.Unreachable(u)
			continue
		}
		toFetch = append(toFetch, i)
	}
	if counts != nil {
		counts.RequireFetching += len(toFetch)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.connections)
	reached := make([]bool, len(urls))
	for _, i := range toFetch {
		i := i
		u := urls[i]
		g.Go(func() error {
			results[i] = p.processOne(gctx, i, u, &reached[i])
			return gctx.Err()
		})
	}
	err := g.Wait()

	if counts != nil {
		for _, i := range toFetch {
			if reached[i] {
				counts.Reached++
			}
		}
		for _, r := range results {
			switch {
			case r == nil || r.Status <= recipe.StatusIncompleteEssential:
			case r.Status < recipe.StatusCompleteOnDisplay:
				counts.ParsedPartially++
			default:
				counts.ParsedSuccessfully++
			}
		}
	}
	if err != nil {
		return results, fmt.Errorf("run pipeline: %w", err)
	}
	return results, nil
}

// lookup consults the cache. ModeNew ignores hits; incomplete hits are
// refetched outside of ModeOnly so a transient failure is not cached
// forever.
func (p *Pipeline) lookup(ctx context.Context, u string, log *diag.Unit) *recipe.Recipe {
	if p.store == nil || p.mode == cache.ModeNew {
		return nil
	}
	r, ok, err := p.store.Get(ctx, u)
	if err != nil {
		log.Warnf("Cache lookup for %s failed: %v", u, err)
		return nil
	}
	if !ok {
		return nil
	}
	if p.mode != cache.ModeOnly && r.Status <= recipe.StatusIncompleteEssential {
		return nil
	}
	return r
}

// processOne fetches and extracts a single URL inside a deferred context,
// so concurrent workers never interleave their terminal output.
func (p *Pipeline) processOne(ctx context.Context, i int, u string, reached *bool) *recipe.Recipe {
	log := p.sess.Unit(fmt.Sprintf("worker-%d", i))
	log.OpenDeferredContext("Processing %s", u)

	body, err := p.fetcher.Fetch(ctx, u, log)
	if err != nil {
		log.CloseContextError(err)
		return recipe.Unreachable(u)
	}
	*reached = true

	r, err := p.extractor.Extract(ctx, u, body, log)
	if err != nil {
		if errors.Is(err, ctx.Err()) && ctx.Err() != nil {
			log.AbortContext()
			return nil
		}
		log.CloseContextError(err)
		return recipe.Unknown(u)
	}
	p.persist(ctx, r, log)
	log.CloseContext()
	return r
}

func (p *Pipeline) persist(ctx context.Context, r *recipe.Recipe, log *diag.Unit) {
	if p.store == nil {
		return
	}
	if err := p.store.Put(ctx, r); err != nil {
		log.Warnf("Could not cache recipe for %s: %v", r.URL, err)
	}
}
