package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeValidation, "bad word")
	assert.Equal(t, "VALIDATION: bad word", err.Error())

	wrapped := Wrap(io.ErrUnexpectedEOF, ErrCodeTransientIO, "read body")
	assert.Contains(t, wrapped.Error(), "caused by: unexpected EOF")
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
}

func TestGetHTTPCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("video", 7), http.StatusNotFound},
		{"validation", ValidationError("videos", "empty"), http.StatusBadRequest},
		{"throttled", Throttled("clip search", nil), http.StatusTooManyRequests},
		{"expired", ExpiredReference("abc", nil), http.StatusGone},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPCode(tt.err))
		})
	}
}

func TestClassification(t *testing.T) {
	wrappedThrottle := fmt.Errorf("search page 2: %w", Throttled("clip search", nil))

	assert.True(t, Is(wrappedThrottle, ErrCodeThrottled))
	assert.True(t, IsRetryable(wrappedThrottle))
	assert.True(t, IsRetryable(TransientIO("download", io.ErrUnexpectedEOF)))
	assert.False(t, IsRetryable(ExpiredReference("clip-1", nil)))

	assert.True(t, IsFatal(ConfigRequired("scoring.api_key")))
	assert.True(t, IsFatal(fmt.Errorf("load words: %w", ConfigError("words", "line 3 malformed"))))
	assert.False(t, IsFatal(io.EOF))
	assert.Equal(t, ErrCodeInternal, GetCode(io.EOF))
}

func TestWithDetail(t *testing.T) {
	err := MissingFieldError("name").WithDetail("index", 2)
	assert.Equal(t, "name", err.Details["field"])
	assert.Equal(t, 2, err.Details["index"])
}
