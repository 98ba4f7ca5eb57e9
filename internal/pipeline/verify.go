package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/scoring"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/whisper"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/download"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/ffmpeg"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/textmatch"
)

// Fetcher downloads clip media.
type Fetcher interface {
	Download(ctx context.Context, rawURL, name string, issuedAt time.Time) (*download.DownloadResult, error)
}

// AudioExtractor pulls the audio track out of a video file.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, input, outDir string, opts ffmpeg.AudioOptions) (string, error)
}

// Transcriber turns an audio file into a timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*whisper.Transcript, error)
}

// VerifyOptions configures the verification stage.
type VerifyOptions struct {
	// VideoDir is where verified clips are stored, one directory per word.
	VideoDir string
	// WorkDir holds extracted audio while a clip is being verified.
	WorkDir string
	Audio   ffmpeg.AudioOptions
	// Force ignores cached audio transcripts and final analysis records.
	Force bool
}

// Verifier is the verification stage: download, transcribe and re-score.
type Verifier struct {
	fetcher     Fetcher
	extractor   AudioExtractor
	transcriber Transcriber
	scorer      RelevanceScorer
	cache       Cache
	policy      ScorePolicy
	opts        VerifyOptions
	logger      *slog.Logger
	now         func() time.Time
}

// NewVerifier creates the verification stage.
func NewVerifier(fetcher Fetcher, extractor AudioExtractor, transcriber Transcriber, scorer RelevanceScorer,
	cache Cache, policy ScorePolicy, opts VerifyOptions, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Verifier{
		fetcher:     fetcher,
		extractor:   extractor,
		transcriber: transcriber,
		scorer:      scorer,
		cache:       cache,
		policy:      policy,
		opts:        opts,
		logger:      logger.With("stage", "verify"),
		now:         time.Now,
	}
}

// Verify confirms a filtered candidate against its spoken audio. It returns
// nil without error when the clip was rejected, had no usable audio, or its
// download reference expired; those outcomes are cached. Errors that may
// succeed on a later run are returned and nothing is cached.
func (v *Verifier) Verify(ctx context.Context, word VocabularyWord, vocabulary []string, cand ScoredCandidate) (*VerifiedMapping, error) {
	key := Key{Word: cacheWord(word), ClipID: cand.Clip.ClipID}
	logger := v.logger.With("word", word.Word, "clip_id", cand.Clip.ClipID)

	if !v.opts.Force {
		var cached finalAnalysis
		found, err := v.cache.Get(ctx, StageFinalAnalysis, key, &cached)
		if err != nil {
			return nil, err
		}
		if found {
			if cached.Status != VerifyVerified {
				logger.Debug("reusing cached verification", "status", cached.Status)
				return nil, nil
			}
			if cached.Mapping != nil && fileExists(cached.Mapping.VideoPath) {
				logger.Debug("reusing cached verification", "status", cached.Status)
				return cached.Mapping, nil
			}
			logger.Info("cached clip is missing on disk, verifying again")
		}
	}

	mapping, status, err := v.verify(ctx, word, vocabulary, cand, logger)
	if err != nil {
		if Classify(err).Kind != OutcomeSkip {
			return nil, err
		}
		status = VerifyExpired
	}

	record := finalAnalysis{
		ClipID:    cand.Clip.ClipID,
		Status:    status,
		Mapping:   mapping,
		UpdatedAt: v.now().UTC(),
	}
	if err != nil {
		record.Error = err.Error()
	}
	if perr := v.cache.Put(ctx, StageFinalAnalysis, key, record); perr != nil {
		return nil, perr
	}

	logger.Info("clip verification finished", "status", status)
	if status != VerifyVerified {
		return nil, nil
	}
	return mapping, nil
}

func (v *Verifier) verify(ctx context.Context, word VocabularyWord, vocabulary []string, cand ScoredCandidate,
	logger *slog.Logger) (*VerifiedMapping, string, error) {
	clip := cand.Clip

	result, err := v.fetcher.Download(ctx, clip.DownloadURL, clip.ClipID, clip.IssuedAt)
	if err != nil {
		if errors.Is(err, download.ErrExpiredReference) {
			logger.Warn("download reference expired, skipping clip", "error", err)
			return nil, "", Skip(err.Error())
		}
		if apperrors.IsRetryable(err) || ctx.Err() != nil {
			return nil, "", err
		}
		logger.Warn("download failed", "error", err)
		return nil, VerifyFailed, nil
	}

	videoPath := filepath.Join(v.opts.VideoDir, sanitizeSegment(cacheWord(word)), sanitizeSegment(clip.ClipID)+"."+result.Format)
	if err := moveFile(result.FilePath, videoPath); err != nil {
		_ = download.CleanupTempFile(result.FilePath)
		return nil, "", fmt.Errorf("store clip: %w", err)
	}
	discard := func() {
		if err := os.Remove(videoPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove rejected clip", "path", videoPath, "error", err)
		}
	}

	transcript, status, err := v.transcribe(ctx, word, clip, videoPath, logger)
	if err != nil {
		if Classify(err).Kind != OutcomeSkip {
			discard()
		}
		return nil, "", err
	}
	if status != "" {
		discard()
		return nil, status, nil
	}

	mappings, err := v.mappingsFor(ctx, word, vocabulary, cand, transcript, logger)
	if err != nil {
		discard()
		return nil, "", err
	}
	if len(mappings) == 0 {
		logger.Info("clip rejected after audio verification")
		discard()
		return nil, VerifyRejected, nil
	}

	return &VerifiedMapping{
		Word:            word.Word,
		Language:        word.Language,
		Clip:            clip,
		VideoPath:       videoPath,
		Format:          result.Format,
		ContentType:     result.ContentType,
		SizeBytes:       result.ContentLength,
		Mappings:        mappings,
		AudioTranscript: transcript.Text,
		AudioVerified:   textmatch.Contains(transcript.Text, word.Word),
		VerifiedAt:      v.now().UTC(),
	}, VerifyVerified, nil
}

// transcribe returns the audio transcript of videoPath, reusing a cached one
// unless Force is set. A non-empty status means the clip has no usable audio.
func (v *Verifier) transcribe(ctx context.Context, word VocabularyWord, clip CandidateClip, videoPath string,
	logger *slog.Logger) (*whisper.Transcript, string, error) {
	key := Key{Word: cacheWord(word), ClipID: clip.ClipID}

	if !v.opts.Force {
		var cached audioRecord
		found, err := v.cache.Get(ctx, StageAudioTranscripts, key, &cached)
		if err != nil {
			return nil, "", err
		}
		if found && cached.Transcript != nil {
			return cached.Transcript, "", nil
		}
	}

	if err := os.MkdirAll(v.opts.WorkDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create work dir: %w", err)
	}
	audioPath, err := v.extractor.ExtractAudio(ctx, videoPath, v.opts.WorkDir, v.opts.Audio)
	if err != nil {
		switch {
		case errors.Is(err, ffmpeg.ErrNoAudioStream):
			logger.Info("clip has no audio stream")
			return nil, VerifyNoAudio, nil
		case errors.Is(err, ffmpeg.ErrFFmpegNotFound), errors.Is(err, ffmpeg.ErrFFprobeNotFound):
			return nil, "", apperrors.Wrap(err, apperrors.ErrCodeConfigRequired, "ffmpeg is not available")
		case ctx.Err() != nil:
			return nil, "", ctx.Err()
		}
		logger.Warn("audio extraction failed", "error", err)
		return nil, VerifyFailed, nil
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove extracted audio", "path", audioPath, "error", err)
		}
	}()

	transcript, err := v.transcriber.Transcribe(ctx, audioPath, word.Language)
	if err != nil {
		if apperrors.IsFatal(err) || apperrors.IsRetryable(err) || ctx.Err() != nil {
			return nil, "", err
		}
		logger.Warn("transcription failed", "error", err)
		return nil, VerifyFailed, nil
	}
	if strings.TrimSpace(transcript.Text) == "" {
		logger.Info("no speech detected in clip")
		return nil, VerifyNoAudio, nil
	}

	if err := v.cache.Put(ctx, StageAudioTranscripts, key, audioRecord{
		ClipID:     clip.ClipID,
		Transcript: transcript,
		CreatedAt:  v.now().UTC(),
	}); err != nil {
		return nil, "", err
	}
	return transcript, "", nil
}

// mappingsFor re-scores the clip on its audio transcript and merges the
// result with the metadata scores. Words the audio scoring did not judge keep
// their metadata score when the audio also contains them. Throttling and
// transient failures of the rescoring are returned so the clip is verified
// again later instead of settling on metadata scores.
func (v *Verifier) mappingsFor(ctx context.Context, word VocabularyWord, vocabulary []string, cand ScoredCandidate,
	transcript *whisper.Transcript, logger *slog.Logger) ([]MappingScore, error) {
	raw, err := v.scorer.Score(ctx, scoring.Request{
		Transcript: transcript.Text,
		Title:      cand.Clip.Title,
		Duration:   cand.Clip.Duration,
		Vocabulary: vocabulary,
		Language:   word.Language,
	})
	if err != nil {
		if apperrors.IsFatal(err) || apperrors.IsRetryable(err) || ctx.Err() != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		logger.Warn("audio rescoring failed, falling back to metadata scores", "error", err)
	}
	audioScores := v.policy.Apply(transcript.Text, vocabulary, raw)

	// A word the audio scoring judged keeps that verdict, even a failing one.
	judged := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		judged[models.NormalizeWord(s.Word)] = struct{}{}
	}

	merged := make([]scoring.WordScore, 0, len(audioScores)+len(cand.Scores))
	sources := make(map[string]string)
	for _, s := range audioScores {
		merged = append(merged, s)
		sources[s.Word] = SourceAudio
	}
	for _, s := range cand.Scores {
		if _, ok := judged[s.Word]; ok {
			continue
		}
		if !textmatch.Contains(transcript.Text, s.Word) {
			continue
		}
		merged = append(merged, s)
		sources[s.Word] = SourceMetadata
	}
	sortScores(merged)
	if v.policy.MaxWordsPerClip > 0 && len(merged) > v.policy.MaxWordsPerClip {
		merged = merged[:v.policy.MaxWordsPerClip]
	}

	if _, ok := findScore(merged, word.Word); !ok {
		return nil, nil
	}

	out := make([]MappingScore, 0, len(merged))
	for _, s := range merged {
		m := MappingScore{
			Word:             s.Word,
			Score:            s.Score,
			Reason:           s.Reason,
			TranscriptSource: sources[s.Word],
		}
		if start, end, conf, ok := locate(transcript.Words, s.Word); ok {
			m.Start, m.End, m.Confidence = &start, &end, &conf
		}
		out = append(out, m)
	}
	return out, nil
}

// locate finds the first run of transcript words spelling word and returns
// its time span and mean confidence.
func locate(words []whisper.Word, word string) (start, end, confidence float64, ok bool) {
	target := strings.Fields(textmatch.Fold(word))
	if len(target) == 0 || len(words) < len(target) {
		return 0, 0, 0, false
	}
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = strings.TrimFunc(textmatch.Fold(w.Word), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
	}

	for i := 0; i+len(target) <= len(tokens); i++ {
		match := true
		for j, t := range target {
			if tokens[i+j] != t {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		var sum float64
		for _, w := range words[i : i+len(target)] {
			sum += w.Confidence
		}
		last := words[i+len(target)-1]
		return words[i].Start, last.End, sum / float64(len(target)), true
	}
	return 0, 0, 0, false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}
