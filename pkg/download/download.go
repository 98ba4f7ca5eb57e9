package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// ErrExpiredReference is returned when a download URL is past its validity window
// or the origin no longer honors it.
var ErrExpiredReference = errors.New("download reference expired")

// ErrTooLarge is returned when the clip exceeds MaxSize.
var ErrTooLarge = errors.New("clip exceeds maximum size")

// DownloadOptions configures the download behavior
type DownloadOptions struct {
	TempDir       string        // Directory for temporary files
	MaxSize       int64         // Maximum file size in bytes (0 = no limit)
	Timeout       time.Duration // Hard cap for a single download
	Window        time.Duration // Validity window of a download reference (0 = unbounded)
	ProgressFunc  ProgressFunc  // Optional progress callback
	UserAgent     string        // User agent string
	ValidateVideo bool          // Validate content-type is video
}

// ProgressFunc is called during download to report progress
type ProgressFunc func(downloaded, total int64)

// DefaultOptions returns default download options
func DefaultOptions() DownloadOptions {
	return DownloadOptions{
		TempDir:       os.TempDir(),
		MaxSize:       100 * 1024 * 1024,
		Timeout:       2 * time.Minute,
		Window:        5 * time.Minute,
		UserAgent:     "clipcurator/1.0",
		ValidateVideo: true,
	}
}

// DownloadResult contains information about a successful download
type DownloadResult struct {
	FilePath      string // Path to downloaded file
	ContentType   string // Content-Type from response
	ContentLength int64  // Size in bytes
	Format        string // File extension without the dot (mp4, webm, ...)
}

// Downloader fetches clip media into temporary storage
type Downloader struct {
	client  *http.Client
	options DownloadOptions
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the time source used for reference expiry checks.
func WithClock(now func() time.Time) Option {
	return func(d *Downloader) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDownloader creates a new downloader with the given options
func NewDownloader(options DownloadOptions, opts ...Option) *Downloader {
	if options.TempDir == "" {
		options.TempDir = os.TempDir()
	}
	d := &Downloader{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		options: options,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches rawURL into a temporary file. issuedAt is when the catalog
// handed out the reference; the zero time means unknown. The download is
// bounded by whatever is left of the validity window.
func (d *Downloader) Download(ctx context.Context, rawURL, name string, issuedAt time.Time) (*DownloadResult, error) {
	deadline := d.options.Timeout
	if d.options.Window > 0 && !issuedAt.IsZero() {
		remaining := d.options.Window - d.now().Sub(issuedAt)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: issued %s ago", ErrExpiredReference, d.now().Sub(issuedAt).Round(time.Second))
		}
		if deadline <= 0 || remaining < deadline {
			deadline = remaining
		}
	}
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	d.logger.Debug("starting clip download", "name", name, "deadline", deadline)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.options.UserAgent)
	req.Header.Set("Accept", "video/*,*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		if isTemporaryError(err) {
			return nil, apperrors.TransientIO("download", err)
		}
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: server returned status %d", ErrExpiredReference, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperrors.TransientIO("download", fmt.Errorf("server returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if d.options.ValidateVideo && !isVideoContentType(contentType) {
		return nil, fmt.Errorf("invalid content type: %s", contentType)
	}

	if d.options.MaxSize > 0 && resp.ContentLength > d.options.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, resp.ContentLength, d.options.MaxSize)
	}

	format := detectFormat(contentType, rawURL)
	tempFile, err := os.CreateTemp(d.options.TempDir, fmt.Sprintf("clip_%s_*.%s", sanitizeName(name), format))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := d.downloadToFile(resp.Body, tempFile, resp.ContentLength)
	tempPath := tempFile.Name()
	tempFile.Close()

	if err != nil {
		os.Remove(tempPath)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		if ctx.Err() != nil || isTemporaryError(err) {
			return nil, apperrors.TransientIO("download", err)
		}
		return nil, fmt.Errorf("failed to download: %w", err)
	}

	d.logger.Debug("clip downloaded", "name", name, "bytes", written, "path", tempPath)

	return &DownloadResult{
		FilePath:      tempPath,
		ContentType:   contentType,
		ContentLength: written,
		Format:        format,
	}, nil
}

func (d *Downloader) downloadToFile(src io.Reader, dst *os.File, totalSize int64) (int64, error) {
	reader := src
	if d.options.ProgressFunc != nil && totalSize > 0 {
		reader = &progressReader{
			reader:   src,
			total:    totalSize,
			callback: d.options.ProgressFunc,
		}
	}

	if d.options.MaxSize <= 0 {
		return io.Copy(dst, reader)
	}

	// Read one byte past the limit so an oversized body without Content-Length is detected
	written, err := io.Copy(dst, &io.LimitedReader{R: reader, N: d.options.MaxSize + 1})
	if err != nil {
		return written, err
	}
	if written > d.options.MaxSize {
		return written, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.options.MaxSize)
	}
	return written, nil
}

// CleanupTempFile removes a temporary file
func CleanupTempFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isVideoContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.HasPrefix(mediaType, "video/") ||
		mediaType == "application/octet-stream" ||
		mediaType == "binary/octet-stream"
}

var knownFormats = map[string]string{
	"video/mp4":        "mp4",
	"video/webm":       "webm",
	"video/quicktime":  "mov",
	"video/x-m4v":      "m4v",
	"video/x-matroska": "mkv",
}

func detectFormat(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if f, ok := knownFormats[mediaType]; ok {
			return f
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		for _, f := range knownFormats {
			if ext == f {
				return f
			}
		}
	}
	return "mp4"
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitizeName(name string) string {
	cleaned := unsafeChars.ReplaceAllString(name, "_")
	if cleaned == "" {
		return "clip"
	}
	if len(cleaned) > 64 {
		cleaned = cleaned[:64]
	}
	return cleaned
}

func isTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "i/o timeout")
}

// progressReader wraps a reader to report progress
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	callback   ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if pr.callback != nil {
			pr.callback(pr.downloaded, pr.total)
		}
	}
	return n, err
}
