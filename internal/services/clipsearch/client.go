package clipsearch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/retry"
)

var (
	// ErrRateLimited indicates the catalog answered with a throttling status
	ErrRateLimited = errors.New("clip search rate limit exceeded")

	// ErrInvalidResponse indicates the catalog returned an unparseable body
	ErrInvalidResponse = errors.New("invalid response from clip search")
)

// Config holds configuration for the clip search client
type Config struct {
	APIKey  string
	BaseURL string

	// Rate limiting
	RequestsPerMinute int // Default: 60
	BurstSize         int // Default: 1

	// HTTP configuration
	Timeout        time.Duration // Default: 15s
	MaxRetries     int           // throttled retries, default 5
	FailureRetries int           // timeout/5xx retries, default 2
	RetryBackoff   time.Duration // Default: 1s
	MaxBackoff     time.Duration // Default: 30s

	UserAgent string
}

// Client talks to the external clip catalog. One Client is shared by all
// workers so they draw from the same request budget.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	config      Config
	backoff     retry.Backoff
	sleeper     retry.Sleeper
	logger      *slog.Logger
	now         func() time.Time

	metrics *clientMetrics
}

// clientMetrics tracks client usage statistics
type clientMetrics struct {
	requests      atomic.Int64
	rateLimitHits atomic.Int64
	retries       atomic.Int64
	errors        atomic.Int64
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter shares an existing request budget.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.rateLimiter = limiter
		}
	}
}

// WithSleeper overrides how retry sleeps are performed.
func WithSleeper(sleeper retry.Sleeper) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time stamped on returned hits.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a new clip search client
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.FailureRetries < 0 {
		cfg.FailureRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "clipcurator/1.0"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)),
			cfg.BurstSize,
		),
		config:  cfg,
		backoff: retry.Backoff{Base: cfg.RetryBackoff, Max: cfg.MaxBackoff},
		logger:  slog.Default(),
		now:     time.Now,
		metrics: &clientMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search fetches one page of clips for q.
func (c *Client) Search(ctx context.Context, q Query) (*Page, error) {
	if strings.TrimSpace(q.Term) == "" {
		return nil, apperrors.ValidationError("term", "search term cannot be empty")
	}
	if c.config.BaseURL == "" {
		return nil, apperrors.ConfigRequired("clip_search.base_url")
	}

	params := url.Values{}
	params.Set("q", q.Term)
	if q.Language != "" {
		params.Set("lang", q.Language)
	}
	if q.MinDuration > 0 {
		params.Set("min_duration", strconv.FormatFloat(q.MinDuration, 'f', -1, 64))
	}
	if q.MaxDuration > 0 {
		params.Set("max_duration", strconv.FormatFloat(q.MaxDuration, 'f', -1, 64))
	}
	sort := q.Sort
	if sort == "" {
		sort = SortViews
	}
	params.Set("sort", sort)
	page := q.Page
	if page <= 0 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}

	searchURL := fmt.Sprintf("%s/search?%s", c.config.BaseURL, params.Encode())

	result, err := c.doRequestWithRetry(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search clips for %q: %w", q.Term, err)
	}
	if result.Page == 0 {
		result.Page = page
	}
	fetchedAt := c.now()
	for i := range result.Hits {
		result.Hits[i].FetchedAt = fetchedAt
	}
	return result, nil
}

// doRequestWithRetry performs the request, backing off on throttling for up
// to MaxRetries retries and on other failures for up to FailureRetries.
// Delays for one request never decrease.
func (c *Client) doRequestWithRetry(ctx context.Context, rawURL string) (*Page, error) {
	var throttled, failures int
	schedule := c.backoff.Schedule()

	for {
		resp, err := c.doRequest(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var delay time.Duration
		var statusErr *statusError
		switch {
		case errors.Is(err, ErrRateLimited):
			throttled++
			if throttled > c.config.MaxRetries {
				return nil, apperrors.Throttled("clip search", err).
					WithDetail("retries", c.config.MaxRetries)
			}
			var floor time.Duration
			if errors.As(err, &statusErr) {
				floor = statusErr.RetryAfter
			}
			delay = schedule.Next(throttled, floor)

		case isTemporaryError(err):
			failures++
			if failures > c.config.FailureRetries {
				return nil, apperrors.TransientIO("clip search", err).
					WithDetail("retries", c.config.FailureRetries)
			}
			delay = schedule.Next(failures, 0)

		case errors.As(err, &statusErr):
			failures++
			if failures > c.config.FailureRetries {
				return nil, apperrors.ExternalServiceError("clip search", err).
					WithDetail("retries", c.config.FailureRetries)
			}
			delay = schedule.Next(failures, 0)

		default:
			return nil, apperrors.ExternalServiceError("clip search", err)
		}

		c.metrics.retries.Add(1)
		c.logger.Debug("retrying clip search", "delay", delay, "throttled", throttled, "failures", failures, "error", err)
		if err := retry.Sleep(ctx, delay, c.sleeper); err != nil {
			return nil, err
		}
	}
}

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("clip search: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *statusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// doRequest performs a single HTTP request
func (c *Client) doRequest(ctx context.Context, rawURL string) (*Page, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	c.metrics.requests.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.errors.Add(1)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		retryAfter, _ := retry.ParseRetryAfter(resp.Header.Get("Retry-After"))
		if resp.StatusCode == http.StatusTooManyRequests {
			c.metrics.rateLimitHits.Add(1)
		} else {
			c.metrics.errors.Add(1)
		}
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(body), RetryAfter: retryAfter}
	}

	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.metrics.errors.Add(1)
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	var result Page
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		c.metrics.errors.Add(1)
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &result, nil
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests":        c.metrics.requests.Load(),
		"rate_limit_hits": c.metrics.rateLimitHits.Load(),
		"retries":         c.metrics.retries.Load(),
		"errors":          c.metrics.errors.Load(),
	}
}

// isTemporaryError checks if an error is temporary and should be retried
func isTemporaryError(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		msg := urlErr.Error()
		return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset")
	}
	return false
}
