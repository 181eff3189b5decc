// Package fetch downloads recipe pages over HTTP using the Colly
// collector.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/forkbench/recipegrab/internal/diag"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Retries   int
	// HostRPS caps requests per second against a single host. Zero means
	// no limit.
	HostRPS float64
}

// Fetcher executes single HTTP GETs with retry. Pages that cannot be
// fetched yield an error to the caller; the run continues with the rest.
type Fetcher struct {
	cfg           Config
	retry         *retryPolicy
	limiter       *hostLimiter
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	// Retries revisit the same URL.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		retry:         newRetryPolicy(cfg.Retries),
		limiter:       newHostLimiter(cfg.HostRPS, 1),
		baseCollector: c,
	}
}

// Fetch downloads pageURL and returns the response body. Transient
// failures are retried with jittered backoff; context cancellation stops
// immediately.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string, log *diag.Unit) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := f.limiter.wait(ctx, pageURL); err != nil {
			return nil, err
		}
		body, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			log.Infof("Fetched %s (%d bytes)", pageURL, len(body))
			return body, nil
		}
		lastErr = err
		if !f.retry.shouldRetry(err, attempt) {
			break
		}
		wait := f.retry.backoff(attempt)
		log.Warnf("Fetch of %s failed, retrying in %s: %v", pageURL, wait.Round(time.Millisecond), err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", pageURL, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("response failed: %w", fetchErr)
		}
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
