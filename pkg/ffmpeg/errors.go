package ffmpeg

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrFFmpegNotFound   = errors.New("ffmpeg binary not found")
	ErrFFprobeNotFound  = errors.New("ffprobe binary not found")
	ErrInvalidMedia     = errors.New("invalid or unsupported media file")
	ErrNoAudioStream    = errors.New("media file has no audio stream")
	ErrClipTooLong      = errors.New("clip exceeds maximum duration")
	ErrTempFileCreation = errors.New("failed to create temporary file")
)

// ProcessingError represents an error while running ffmpeg or ffprobe
type ProcessingError struct {
	Operation string // e.g. "probe", "audio_extraction"
	File      string
	Err       error
	Stderr    string
}

func (e *ProcessingError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ffmpeg %s failed for %s: %v (stderr: %s)", e.Operation, e.File, e.Err, e.Stderr)
	}
	return fmt.Sprintf("ffmpeg %s failed for %s: %v", e.Operation, e.File, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError creates a new ProcessingError
func NewProcessingError(operation, file string, err error, stderr string) *ProcessingError {
	return &ProcessingError{
		Operation: operation,
		File:      file,
		Err:       err,
		Stderr:    stderr,
	}
}
