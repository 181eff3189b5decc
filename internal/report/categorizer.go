// Package report buckets captured extraction failures and turns each bucket
// into one deduplicated, filable bug report.
package report

import (
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/forkbench/recipegrab/internal/diag"
)

// GeneralStep is the bucket step for failures not tied to a named
// extraction step.
const GeneralStep = "general parsing error"

// Key identifies one failure bucket.
type Key struct {
	Site string
	Step string
	Kind string
}

// Categorizer accumulates captured failures into insertion-ordered buckets
// keyed by (origin site, extraction step, failure kind). It is safe for
// concurrent use; reports must only be generated after recording has
// quiesced.
type Categorizer struct {
	log *diag.Unit

	mu      sync.Mutex
	buckets map[Key][]*diag.CapturedFailure
}

// NewCategorizer builds a Categorizer that logs site-parse fallbacks via
// log.
func NewCategorizer(log *diag.Unit) *Categorizer {
	return &Categorizer{
		log:     log,
		buckets: make(map[Key][]*diag.CapturedFailure),
	}
}

// Record files the failure into the bucket for its origin site, the given
// extraction step, and the failure's kind, and returns the failure's ID for
// later correlation. An empty step buckets under GeneralStep.
func (c *Categorizer) Record(failure *diag.CapturedFailure, step string) uuid.UUID {
	if step == "" {
		step = GeneralStep
	}
	site := c.siteOf(failure.URL)

	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key{Site: site, Step: step, Kind: failure.Kind}
	c.buckets[key] = append(c.buckets[key], failure)
	return failure.ID
}

// Len returns the number of distinct buckets recorded so far.
func (c *Categorizer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// siteOf extracts the host from rawURL. When the URL does not parse, the
// raw string becomes the site key so the failure is never dropped.
func (c *Categorizer) siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if c.log != nil {
		c.log.Warnf("Could not extract host from %s", rawURL)
	}
	return rawURL
}
