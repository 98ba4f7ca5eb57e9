package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/retry"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryAttempts  = 4
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "gpt-4o-mini"
)

// Config captures the runtime settings required to talk to the scoring model.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxBackoff        time.Duration
}

// Request is one scoring question about a clip.
type Request struct {
	Transcript string
	Title      string
	Duration   float64
	Vocabulary []string
	Language   string
}

// WordScore is the model's verdict for a single vocabulary word.
type WordScore struct {
	Word   string  `json:"word"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Client wraps the chat completion API.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	api         openai.Client
	rateLimiter *rate.Limiter
	backoff     retry.Backoff
	attempts    int
	sleeper     retry.Sleeper
	logger      *slog.Logger

	requests atomic.Int64
	failures atomic.Int64
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

// WithSleeper overrides how retry sleeps are performed (useful for tests).
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

// NewClient constructs a scoring client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	base, maxDelay := cfg.RetryBackoff, cfg.MaxBackoff
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	attempts := cfg.MaxRetries + 1
	if cfg.MaxRetries <= 0 {
		attempts = defaultRetryAttempts
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    retry.Backoff{Base: base, Max: maxDelay},
		attempts:   attempts,
		logger:     slog.Default(),
	}
	if cfg.RequestsPerMinute > 0 {
		client.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(client)
	}

	// SDK retries are off; completionContentWithRetry owns them.
	client.api = openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(client.httpClient),
		option.WithMaxRetries(0),
	)
	return client
}

// Score asks which of req.Vocabulary the transcript teaches. The returned
// scores are raw model output; callers apply their own acceptance policy.
func (c *Client) Score(ctx context.Context, req Request) ([]WordScore, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, apperrors.ValidationError("transcript", "transcript is empty")
	}
	if len(req.Vocabulary) == 0 {
		return nil, apperrors.ValidationError("vocabulary", "vocabulary list is empty")
	}
	if c.cfg.APIKey == "" {
		return nil, apperrors.ConfigRequired("scoring.api_key")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(req)),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	content, err := c.completionContentWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Words []WordScore `json:"words"`
	}
	if err := DecodeJSON(content, &parsed); err != nil {
		c.failures.Add(1)
		return nil, apperrors.ExternalServiceError("scoring", fmt.Errorf("parse payload: %w", err))
	}
	for i := range parsed.Words {
		parsed.Words[i].Word = strings.TrimSpace(parsed.Words[i].Word)
		parsed.Words[i].Reason = strings.TrimSpace(parsed.Words[i].Reason)
	}
	return parsed.Words, nil
}

// GetMetrics returns request counters
func (c *Client) GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests": c.requests.Load(),
		"failures": c.failures.Load(),
	}
}

var errEmptyContent = errors.New("scoring request: empty content")

func (c *Client) completionContentWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var lastErr error
	schedule := c.backoff.Schedule()
	for attempt := 1; attempt <= c.attempts; attempt++ {
		content, err := c.sendOnce(ctx, params)
		if err == nil {
			return content, nil
		}
		lastErr = err

		delay, ok := c.retryDelay(ctx, err, attempt, schedule)
		if !ok {
			break
		}
		c.logger.Debug("retrying scoring request", "attempt", attempt, "delay", delay, "error", err)
		if err := retry.Sleep(ctx, delay, c.sleeper); err != nil {
			return "", err
		}
	}

	c.failures.Add(1)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if statusCode(lastErr) == http.StatusTooManyRequests {
		return "", apperrors.Throttled("scoring", lastErr)
	}
	if isTransient(lastErr) {
		return "", apperrors.TransientIO("scoring", lastErr)
	}
	return "", apperrors.ExternalServiceError("scoring", lastErr)
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt int, schedule *retry.Schedule) (time.Duration, bool) {
	if attempt >= c.attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, errEmptyContent) {
		return schedule.Next(attempt, 0), true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if !retry.RetryableStatus(apiErr.StatusCode) {
			return 0, false
		}
		return schedule.Next(attempt, retryAfter(apiErr)), true
	}
	if isTransient(err) {
		return schedule.Next(attempt, 0), true
	}
	return 0, false
}

func retryAfter(apiErr *openai.Error) time.Duration {
	if apiErr.Response == nil {
		return 0
	}
	delay, _ := retry.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	return delay
}

func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func isTransient(err error) bool {
	if code := statusCode(err); code != 0 {
		return retry.RetryableStatus(code)
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) sendOnce(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait: %w", err)
		}
	}
	c.requests.Add(1)

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("scoring request: %w", err)
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errEmptyContent
}

// DecodeJSON decodes JSON from a model response, handling code fences and
// surrounding prose.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return directErr
	}
	return json.Unmarshal([]byte(sanitized), target)
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
