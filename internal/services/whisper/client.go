package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
	defaultTimeout = 2 * time.Minute
	maxFileSize    = 25 * 1024 * 1024
)

// ErrFileTooLarge is returned when the audio exceeds the service upload limit.
var ErrFileTooLarge = errors.New("audio file exceeds transcription upload limit")

// Config holds transcription service settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxFileSize int64
	MaxRetries  int
}

// Word is one transcribed word with its position in the audio
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the result of transcribing one audio file
type Transcript struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []Word  `json:"words"`
	Model    string  `json:"model"`
}

// Client transcribes audio files
type Client struct {
	cfg        Config
	httpClient *http.Client
	api        openai.Client
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

// NewClient creates a transcription client
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = maxFileSize
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
	c.api = openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	return c
}

// Transcribe uploads audioPath and returns the transcript with word timings.
// language may be empty to let the service detect it.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (*Transcript, error) {
	if c.cfg.APIKey == "" {
		return nil, apperrors.ConfigRequired("whisper.api_key")
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("whisper client: stat audio: %w", err)
	}
	if info.Size() > c.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	var lastErr error
	schedule := c.backoff.Schedule()
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		transcript, err := c.transcribeOnce(ctx, audioPath, language)
		if err == nil {
			return transcript, nil
		}
		lastErr = err
		if attempt > c.cfg.MaxRetries || !retryable(err) || ctx.Err() != nil {
			break
		}

		delay := schedule.Next(attempt, retryAfter(err))
		c.logger.Debug("retrying transcription", "attempt", attempt, "delay", delay, "error", err)
		if err := retry.Sleep(ctx, delay, c.sleeper); err != nil {
			return nil, err
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if statusCode(lastErr) == http.StatusTooManyRequests {
		return nil, apperrors.Throttled("whisper", lastErr)
	}
	if retryable(lastErr) {
		return nil, apperrors.TransientIO("whisper", lastErr)
	}
	return nil, apperrors.ExternalServiceError("whisper", lastErr)
}

func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func retryAfter(err error) time.Duration {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return 0
	}
	delay, _ := retry.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	return delay
}

func retryable(err error) bool {
	if code := statusCode(err); code != 0 {
		return retry.RetryableStatus(code)
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) transcribeOnce(ctx context.Context, audioPath, language string) (*Transcript, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("whisper client: open audio: %w", err)
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(c.cfg.Model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
		Temperature:            openai.Float(c.cfg.Temperature),
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	res, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("whisper client: %w", err)
	}

	decoded := verboseResponse{Text: res.Text, Language: res.Language, Duration: res.Duration}
	// Word confidence is not part of the SDK type; read it from the raw body.
	if raw := res.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("whisper client: decode response: %w", err)
		}
	} else {
		for _, w := range res.Words {
			decoded.Words = append(decoded.Words, verboseWord{Word: w.Word, Start: w.Start, End: w.End})
		}
	}
	return decoded.toTranscript(c.cfg.Model), nil
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []verboseWord `json:"words"`
}

type verboseWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
	Confidence  *float64 `json:"confidence"`
}

func (r verboseResponse) toTranscript(model string) *Transcript {
	t := &Transcript{
		Text:     strings.TrimSpace(r.Text),
		Language: r.Language,
		Duration: r.Duration,
		Model:    model,
		Words:    make([]Word, 0, len(r.Words)),
	}
	for _, w := range r.Words {
		confidence := 1.0
		switch {
		case w.Confidence != nil:
			confidence = *w.Confidence
		case w.Probability != nil:
			confidence = *w.Probability
		}
		t.Words = append(t.Words, Word{
			Word:       strings.TrimSpace(w.Word),
			Start:      w.Start,
			End:        w.End,
			Confidence: confidence,
		})
	}
	return t
}
