// Package scraper implements the per-platform adapters that ingest posts for
// a source, enrich the most engaged ones with top comments, and upsert
// everything idempotently.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/promptops/insight-pipeline/internal/domain"
)

const (
	httpTimeout         = 30 * time.Second
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
)

// PostStore is the persistence surface the adapters need.
type PostStore interface {
	UpsertPost(ctx context.Context, post *domain.RawPost) error
	ListPostsBySource(ctx context.Context, sourceID string, limit int) ([]domain.RawPost, error)
	UpdatePostMetadata(ctx context.Context, id string, metadata domain.JSONMap) error
}

// EnrichFailure records a single post whose comment enrichment failed.
// Enrichment is best-effort; failures never abort the parent scrape.
type EnrichFailure struct {
	PostID string
	Err    error
}

// Result is the outcome of one scrape invocation.
type Result struct {
	PostsFound     int
	EnrichFailures []EnrichFailure
	RateLimitSkips int
}

// Scraper is the adapter contract. An error return is unrecoverable and
// marks the owning ScrapeJob FAILED.
type Scraper interface {
	Platform() domain.Platform
	Scrape(ctx context.Context, src *domain.Source) (*Result, error)
}

// Registry maps platforms to their adapters.
type Registry map[domain.Platform]Scraper

// Lookup returns the adapter for a platform.
func (r Registry) Lookup(p domain.Platform) (Scraper, error) {
	s, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("no scraper registered for platform %s", p)
	}
	return s, nil
}

// NewHTTPClient returns an HTTP client with shared transport defaults.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
		},
	}
}

// getJSON issues a GET request and decodes the response body into v.
// Non-2xx responses are errors carrying the status.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		io.Copy(io.Discard, res.Body)
		return res, fmt.Errorf("unexpected status %d from %s", res.StatusCode, url)
	}

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return res, fmt.Errorf("decode response from %s: %w", url, err)
	}
	return res, nil
}

// sleep waits d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate clips s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
