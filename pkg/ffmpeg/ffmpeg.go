package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}
	return nil
}

// ExtractAudio writes the audio track of input to an MP3 file in outDir and
// returns its path. The caller removes the file.
func (f *FFmpeg) ExtractAudio(ctx context.Context, input, outDir string, opts AudioOptions) (string, error) {
	info, err := f.Probe(ctx, input)
	if err != nil {
		return "", err
	}
	if !info.HasAudio() {
		return "", NewProcessingError("audio_extraction", input, ErrNoAudioStream, "")
	}
	if opts.MaxDuration > 0 && time.Duration(info.Duration*float64(time.Second)) > opts.MaxDuration {
		return "", fmt.Errorf("%w: duration %.1fs exceeds limit %.1fs",
			ErrClipTooLong, info.Duration, opts.MaxDuration.Seconds())
	}

	if outDir == "" {
		outDir = filepath.Dir(input)
	}
	out, err := os.CreateTemp(outDir, "audio_*.mp3")
	if err != nil {
		return "", NewProcessingError("audio_extraction", input, fmt.Errorf("%w: %v", ErrTempFileCreation, err), "")
	}
	outPath := out.Name()
	out.Close()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, audioArgs(input, outPath, opts)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return "", NewProcessingError("audio_extraction", input, err, lastLines(stderr.String(), 5))
	}
	return outPath, nil
}

// audioArgs builds the ffmpeg argument list for a mono speech-friendly MP3
func audioArgs(input, output string, opts AudioOptions) []string {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.Bitrate == "" {
		opts.Bitrate = "64k"
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-codec:a", "libmp3lame",
		"-b:a", opts.Bitrate,
		"-y",
		output,
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
