package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/videos"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/retry"
)

const batchUploadPath = "/api/v1/videos/batch-upload"

// ErrMalformedResponse indicates the backend answered 2xx with a body that
// does not match the batch upload contract.
var ErrMalformedResponse = errors.New("malformed backend response")

// Config holds backend client settings
type Config struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
}

// Client calls the backend's video endpoints
type Client struct {
	cfg        Config
	httpClient *http.Client
	backoff    retry.Backoff
	sleeper    retry.Sleeper
	logger     *slog.Logger
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

// NewClient creates a backend client
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    retry.Backoff{Base: 2 * time.Second, Max: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadBatch submits videos with their word mappings. The endpoint is
// idempotent, so timeouts and server errors are retried.
func (c *Client) UploadBatch(ctx context.Context, req *videos.BatchUploadRequest) (*videos.BatchUploadResponse, error) {
	if c.cfg.BaseURL == "" {
		return nil, apperrors.ConfigRequired("backend.base_url")
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend client: encode batch: %w", err)
	}

	var lastErr error
	schedule := c.backoff.Schedule()
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		resp, err := c.uploadOnce(ctx, encoded)
		if err == nil {
			if err := validateResponse(req, resp); err != nil {
				return nil, err
			}
			return resp, nil
		}
		lastErr = err
		if attempt > c.cfg.MaxRetries || !retryable(err) || ctx.Err() != nil {
			break
		}
		var floor time.Duration
		var statusErr *statusError
		if errors.As(err, &statusErr) {
			floor = statusErr.RetryAfter
		}
		delay := schedule.Next(attempt, floor)
		c.logger.Warn("retrying batch upload", "attempt", attempt, "delay", delay, "error", err)
		if err := retry.Sleep(ctx, delay, c.sleeper); err != nil {
			return nil, err
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if retryable(lastErr) {
		return nil, apperrors.TransientIO("batch upload", lastErr)
	}
	return nil, apperrors.ExternalServiceError("backend", lastErr)
}

func (c *Client) uploadOnce(ctx context.Context, body []byte) (*videos.BatchUploadResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+batchUploadPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend client: http request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend client: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := retry.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(payload), RetryAfter: retryAfter}
	}

	var decoded videos.BatchUploadResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &decoded, nil
}

func validateResponse(req *videos.BatchUploadRequest, resp *videos.BatchUploadResponse) error {
	if !resp.Success {
		return fmt.Errorf("%w: success=false", ErrMalformedResponse)
	}
	for _, r := range resp.Results {
		if r.VideoID == 0 || (r.Status != videos.StatusCreated && r.Status != videos.StatusExisted) {
			return fmt.Errorf("%w: result for %q has id=%d status=%q", ErrMalformedResponse, r.Slug, r.VideoID, r.Status)
		}
	}
	if len(resp.Results) > len(req.Videos) {
		return fmt.Errorf("%w: %d results for %d videos", ErrMalformedResponse, len(resp.Results), len(req.Videos))
	}
	return nil
}

// Health reports whether the backend answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("backend client: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend client: http request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &statusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
}

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend client: unexpected status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func retryable(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return retry.RetryableStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
