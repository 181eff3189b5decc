// Package app initializes and holds the long-lived services of a run,
// acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/forkbench/recipegrab/internal/cache"
	"github.com/forkbench/recipegrab/internal/config"
	"github.com/forkbench/recipegrab/internal/diag"
	"github.com/forkbench/recipegrab/internal/diag/sinks"
	"github.com/forkbench/recipegrab/internal/fetch"
	"github.com/forkbench/recipegrab/internal/logging"
	"github.com/forkbench/recipegrab/internal/out"
	"github.com/forkbench/recipegrab/internal/pipeline"
	"github.com/forkbench/recipegrab/internal/recipe"
	"github.com/forkbench/recipegrab/internal/report"
)

// ErrNoURLs marks input containing no usable URL at all. It is the only
// data error: a run whose URLs all fail to yield a recipe still finishes
// cleanly with a summary.
var ErrNoURLs = errors.New("no valid URLs to process")

// App holds the shared, long-lived services for one invocation: the
// diagnostics session, the recipe cache, and the failure categorizer. It is
// initialized once at startup and torn down by Close.
type App struct {
	cfg config.Config

	sess        *diag.Session
	zlog        *zap.Logger
	store       *cache.Store
	categorizer *report.Categorizer
	pipe        *pipeline.Pipeline
}

// New creates and initializes an App from cfg, failing fast when any
// service cannot be brought up.
func New(cfg config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	zlog, err := logging.New(cfg.Debug, filepath.Join(cfg.DataDir, "debug.jsonl"))
	if err != nil {
		return nil, err
	}

	logFile, err := sinks.NewLogFile(cfg.LogPath())
	if err != nil {
		_ = zlog.Sync()
		return nil, err
	}

	sess := diag.NewSession(diag.Config{
		Threshold: cfg.Threshold(),
		Terminal:  sinks.NewTerminal(os.Stderr),
		Extra:     []diag.Sink{logFile, sinks.NewZap(zlog)},
	})

	store, err := cache.Open(cfg.CachePath())
	if err != nil {
		sess.Close()
		return nil, err
	}

	categorizer := report.NewCategorizer(sess.Unit("report"))
	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		Retries:   cfg.Fetch.MaxRetries,
		HostRPS:   cfg.Fetch.HostRPS,
	})
	extractor := recipe.NewExtractor(categorizer)
	pipe := pipeline.New(sess, fetcher, extractor,
		store, cache.Mode(cfg.Cache.Mode), cfg.Fetch.Connections)

	return &App{
		cfg:         cfg,
		sess:        sess,
		zlog:        zlog,
		store:       store,
		categorizer: categorizer,
		pipe:        pipe,
	}, nil
}

// Session exposes the diagnostics session.
func (a *App) Session() *diag.Session { return a.sess }

// Store exposes the recipe cache.
func (a *App) Store() *cache.Store { return a.store }

// Run processes input lines end to end and writes the rendered recipes to
// the configured output file. Partial failures are reported through
// diagnostics and failure reports, never as an error.
func (a *App) Run(ctx context.Context, lines []string) (pipeline.Counts, error) {
	var counts pipeline.Counts
	log := a.sess.Default()

	urls := pipeline.PrepareURLs(lines, log, &counts)
	if len(urls) == 0 {
		return counts, ErrNoURLs
	}

	recipes, err := a.pipe.Run(ctx, urls, &counts)
	if err != nil {
		return counts, err
	}

	writer := out.NewWriter(a.cfg.Output.Path, a.cfg.Output.Markdown, log)
	for _, r := range recipes {
		if r == nil {
			continue
		}
		log.OpenContext("Writing %s", r.URL)
		writer.Add(r)
		log.CloseContext()
	}
	// Zero surviving recipes is a reported outcome, not a failure: the
	// per-item skips were already logged, so only the file write is
	// omitted.
	if writer.Len() == 0 {
		return counts, nil
	}
	if err := writer.Flush(); err != nil {
		return counts, err
	}
	return counts, nil
}

// WriteReports renders one report file per failure bucket into the
// configured report directory.
func (a *App) WriteReports() error {
	reports := a.categorizer.Reports(recipe.Version)
	if len(reports) == 0 {
		return nil
	}
	dir := filepath.Join(a.cfg.ReportDir(), time.Now().Format("2006-01-02T15-04-05"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	for i, rep := range reports {
		path := filepath.Join(dir, fmt.Sprintf("report-%02d.md", i+1))
		content := rep.Title + "\n\n" + rep.Body
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	a.sess.Default().Infof("Wrote %d failure reports to %s", len(reports), dir)
	return nil
}

// FailureCount reports how many distinct failure buckets were recorded.
func (a *App) FailureCount() int { return a.categorizer.Len() }

// Close flushes open contexts and releases every held resource.
func (a *App) Close() error {
	var errs []error
	if err := a.sess.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	_ = a.zlog.Sync()
	return errors.Join(errs...)
}
