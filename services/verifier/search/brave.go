// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search implements the rate-limited, retrying, cached gateway to
// the Brave web search API.
//
// Call order inside Search:
//
//  1. exact-key cache lookup (query, count, whitelist)
//  2. token-bucket admission (poll, 50ms)
//  3. HTTP call with bounded timeout and exponential backoff on 429/5xx
//     and transport faults; other 4xx fail immediately
//  4. flatten web+news results, whitelist filter, URL dedupe, truncate
//  5. best-effort dual cache write (exact key + count-agnostic wildcard key)
//  6. on total failure, serve the wildcard-key entry if present
//
// The stale fallback in step 6 deliberately returns data without an error;
// staleness is visible through the returned flag, a warn log, and the
// cache_total{outcome="stale_fallback"} metric.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
	"github.com/agentra-ai/factcheck/services/verifier/observability"
)

const defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

const (
	defaultMaxRetries  = 4
	defaultBackoffBase = 250 * time.Millisecond
	maxBackoff         = 4 * time.Second
	jitterRangeMs      = 150
	defaultTimeout     = 15 * time.Second
	defaultCacheTTL    = 30 * time.Minute
)

// ErrMissingAPIKey is returned when no search credential is configured.
// Fatal; never retried.
var ErrMissingAPIKey = errors.New("search: missing BRAVE_API_KEY")

// ErrBudgetExhausted wraps upstream failures that survived the full retry
// budget. Callers receive it only when the stale-cache fallback is empty.
var ErrBudgetExhausted = errors.New("search: retry budget exhausted")

// UpstreamError describes a failed provider response. Retryable is true for
// 429 and 5xx statuses, false for other 4xx.
type UpstreamError struct {
	StatusCode int
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("search: upstream throttled or failing (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("search: upstream rejected request (status %d)", e.StatusCode)
}

// Options configures a Client. Zero values fall back to the documented
// defaults; only APIKey has no default.
type Options struct {
	APIKey      string
	Whitelist   []string
	RPS         float64
	Burst       int
	MaxRetries  int
	BackoffBase time.Duration
	CacheTTL    time.Duration
	CacheSize   int
	Timeout     time.Duration

	// Endpoint overrides the Brave API base URL. Tests point it at an
	// httptest server.
	Endpoint string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Client is the retrying search client. Safe for concurrent use: the
// limiter and cache synchronize internally and the resty client is
// goroutine-safe.
type Client struct {
	http      *resty.Client
	limiter   *Limiter
	cache     *responseCache
	apiKey    string
	whitelist []string
	logger    *slog.Logger
	metrics   *observability.Metrics

	// jitter returns the random backoff component; swapped out in tests.
	jitter func() time.Duration
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.RPS <= 0 {
		opts.RPS = 1.0
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		limiter:   NewLimiter(opts.RPS, opts.Burst),
		cache:     newResponseCache(opts.CacheTTL, opts.CacheSize),
		apiKey:    opts.APIKey,
		whitelist: normalizeWhitelist(opts.Whitelist),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		jitter: func() time.Duration {
			return time.Duration(rand.Intn(jitterRangeMs+1)) * time.Millisecond
		},
	}

	c.http = resty.New().
		SetBaseURL(opts.Endpoint).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryMaxWaitTime(maxBackoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				// Transport-level faults count against the retry budget.
				return true
			}
			code := r.StatusCode()
			return code == 429 || (code >= 500 && code < 600)
		}).
		SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
			attempt := 1
			if r != nil && r.Request != nil && r.Request.Attempt > 0 {
				attempt = r.Request.Attempt
			}
			c.countRetry()
			delay := opts.BackoffBase*(1<<uint(attempt-1)) + c.jitter()
			if delay > maxBackoff {
				delay = maxBackoff
			}
			return delay, nil
		})

	return c
}

// braveResponse mirrors the provider's result envelope. Both the web and
// news categories carry the same item shape.
type braveResponse struct {
	Web  braveResults `json:"web"`
	News braveResults `json:"news"`
}

type braveResults struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
	Source      string `json:"source"`
	Published   string `json:"published"`
	Date        string `json:"date"`
}

// Search returns up to count whitelist-filtered, deduplicated evidence
// items for query. The boolean is true when the result was served from the
// stale wildcard cache after the live call failed.
//
// Cached results are returned verbatim without a second network call for
// the lifetime of the TTL.
func (c *Client) Search(ctx context.Context, query string, count int) ([]datatypes.EvidenceItem, bool, error) {
	key := exactKey(query, count, c.whitelist)
	if items, ok := c.cache.get(key); ok {
		c.countCache("hit")
		return items, false, nil
	}
	c.countCache("miss")

	if c.apiKey == "" {
		return nil, false, ErrMissingAPIKey
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, false, err
	}

	clamped := count
	if clamped < 1 {
		clamped = 1
	}
	if clamped > 20 {
		clamped = 20
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Subscription-Token", c.apiKey).
		SetQueryParams(map[string]string{
			"q":          query,
			"count":      strconv.Itoa(clamped),
			"freshness":  "month",
			"safesearch": "moderate",
		}).
		SetResult(&braveResponse{}).
		Get("")

	if failure := c.classifyFailure(resp, err); failure != nil {
		// A canceled caller gets its context error, never stale data.
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.countSearch("error")
			return nil, false, ctxErr
		}
		if stale, ok := c.cache.get(wildcardKey(query, c.whitelist)); ok {
			c.countCache("stale_fallback")
			c.logger.Warn("search failed, serving stale cached results",
				"query", query, "error", failure)
			return stale, true, nil
		}
		c.countSearch("error")
		return nil, false, failure
	}

	data, _ := resp.Result().(*braveResponse)
	if data == nil {
		data = &braveResponse{}
	}
	items := c.collect(data, clamped)

	// Best effort: LRU writes cannot fail, but they must also never gate
	// the response path, so they happen after the result is final.
	c.cache.set(key, items)
	c.cache.set(wildcardKey(query, c.whitelist), items)

	c.countSearch("success")
	c.logger.Debug("search complete", "query", query, "items", len(items))
	return items, false, nil
}

// classifyFailure maps a finished resty exchange onto the error taxonomy.
// Returns nil for a usable 2xx response.
func (c *Client) classifyFailure(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBudgetExhausted, err)
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 429 || code >= 500:
		// resty already spent the retry budget on these.
		return fmt.Errorf("%w: %w", ErrBudgetExhausted, &UpstreamError{StatusCode: code, Retryable: true})
	default:
		return &UpstreamError{StatusCode: code, Retryable: false}
	}
}

// collect flattens both result categories, applies the whitelist, dedupes
// by URL (first seen wins) and truncates to count.
func (c *Client) collect(data *braveResponse, count int) []datatypes.EvidenceItem {
	merged := make([]braveResult, 0, len(data.Web.Results)+len(data.News.Results))
	merged = append(merged, data.Web.Results...)
	merged = append(merged, data.News.Results...)

	items := make([]datatypes.EvidenceItem, 0, len(merged))
	seen := make(map[string]struct{}, len(merged))
	for _, r := range merged {
		if r.URL == "" {
			continue
		}
		if !domainOK(r.URL, c.whitelist) {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}

		snippet := r.Description
		if snippet == "" {
			snippet = r.Snippet
		}
		published := r.Published
		if published == "" {
			published = r.Date
		}
		items = append(items, datatypes.EvidenceItem{
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   snippet,
			Source:    r.Source,
			Published: published,
		})
		if count > 0 && len(items) >= count {
			break
		}
	}
	return items
}

// domainOK reports whether rawURL's host ends with one of the whitelist
// suffixes. An empty whitelist admits everything.
func domainOK(rawURL string, whitelist []string) bool {
	if len(whitelist) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, suffix := range whitelist {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func normalizeWhitelist(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (c *Client) countSearch(status string) {
	if c.metrics != nil {
		c.metrics.SearchRequestsTotal.WithLabelValues(status).Inc()
	}
}

func (c *Client) countCache(outcome string) {
	if c.metrics != nil {
		c.metrics.SearchCacheTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Client) countRetry() {
	if c.metrics != nil {
		c.metrics.SearchRetriesTotal.Inc()
	}
}
