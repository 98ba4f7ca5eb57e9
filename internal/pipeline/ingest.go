package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/videos"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// StageIngest names ingestion in failure records; it has no cache namespace.
const StageIngest Stage = "ingest"

// Uploader submits video batches to the backend.
type Uploader interface {
	UploadBatch(ctx context.Context, req *videos.BatchUploadRequest) (*videos.BatchUploadResponse, error)
}

// Ingester is the ingestion stage.
type Ingester struct {
	uploader  Uploader
	state     StateStore
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
	readFile  func(string) ([]byte, error)
}

// NewIngester creates the ingestion stage.
func NewIngester(uploader Uploader, state StateStore, batchSize int, logger *slog.Logger) *Ingester {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		uploader:  uploader,
		state:     state,
		batchSize: batchSize,
		logger:    logger.With("stage", string(StageIngest)),
		now:       time.Now,
		readFile:  os.ReadFile,
	}
}

type pendingVideo struct {
	key     string
	mark    string
	mapping VerifiedMapping
	input   videos.VideoInput
}

// Ingest uploads verified clips in batches and records each confirmed video.
// Videos whose exact mapping set was already uploaded are not resubmitted.
// Per-video failures are recorded and reported in the results; only a
// configuration error or cancellation is returned.
func (i *Ingester) Ingest(ctx context.Context, mappings []VerifiedMapping, runID string) ([]IngestResult, error) {
	var (
		results []IngestResult
		pending []pendingVideo
	)

	for _, m := range mergeByVideo(mappings) {
		key := m.VideoKey()
		mark := uploadMark(key, m)
		if i.state.HasUploaded(mark) {
			i.logger.Debug("video already uploaded", "video", key)
			results = append(results, IngestResult{VideoKey: key, ClipID: m.Clip.ClipID, AlreadyUploaded: true})
			continue
		}

		input, err := i.buildInput(key, m)
		if err != nil {
			results = append(results, i.fail(m, key, runID, err))
			continue
		}
		pending = append(pending, pendingVideo{key: key, mark: mark, mapping: m, input: input})
	}

	for start := 0; start < len(pending); start += i.batchSize {
		end := start + i.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch, err := i.uploadBatch(ctx, pending[start:end], runID)
		results = append(results, batch...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (i *Ingester) uploadBatch(ctx context.Context, batch []pendingVideo, runID string) ([]IngestResult, error) {
	req := &videos.BatchUploadRequest{SourceID: runID, Videos: make([]videos.VideoInput, len(batch))}
	for n, p := range batch {
		req.Videos[n] = p.input
	}

	resp, err := i.uploader.UploadBatch(ctx, req)
	if err != nil {
		if apperrors.IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		i.logger.Error("batch upload failed", "videos", len(batch), "error", err)
		results := make([]IngestResult, 0, len(batch))
		for _, p := range batch {
			results = append(results, i.fail(p.mapping, p.key, runID, err))
		}
		return results, nil
	}

	bySlug := make(map[string]videos.VideoResult, len(resp.Results))
	for _, r := range resp.Results {
		bySlug[r.Slug] = r
	}

	results := make([]IngestResult, 0, len(batch))
	for _, p := range batch {
		r, ok := bySlug[p.input.Slug]
		if !ok {
			results = append(results, i.fail(p.mapping, p.key, runID, fmt.Errorf("backend returned no result for %s", p.key)))
			continue
		}
		if err := i.state.RecordUpload(p.mark); err != nil {
			return results, err
		}
		i.logger.Info("video uploaded",
			"video", p.key,
			"video_id", r.VideoID,
			"status", r.Status,
			"mappings_created", r.MappingsCreated,
			"mappings_skipped", r.MappingsSkipped)
		results = append(results, IngestResult{
			VideoKey:        p.key,
			ClipID:          p.mapping.Clip.ClipID,
			VideoID:         r.VideoID,
			Status:          r.Status,
			MappingsCreated: r.MappingsCreated,
			MappingsSkipped: r.MappingsSkipped,
		})
	}
	return results, nil
}

func (i *Ingester) fail(m VerifiedMapping, key, runID string, err error) IngestResult {
	entry := FailureEntry{
		Word:      VocabularyWord{Word: m.Word, Language: m.Language}.Key(),
		ClipID:    m.Clip.ClipID,
		VideoKey:  key,
		Stage:     string(StageIngest),
		Error:     err.Error(),
		Timestamp: i.now().UTC(),
		RunID:     runID,
	}
	if rerr := i.state.RecordFailure(entry); rerr != nil {
		i.logger.Error("failed to record upload failure", "video", key, "error", rerr)
	}
	return IngestResult{VideoKey: key, ClipID: m.Clip.ClipID, Err: err}
}

func (i *Ingester) buildInput(key string, m VerifiedMapping) (videos.VideoInput, error) {
	data, err := i.readFile(m.VideoPath)
	if err != nil {
		return videos.VideoInput{}, fmt.Errorf("read clip %s: %w", m.VideoPath, err)
	}
	if len(data) == 0 {
		return videos.VideoInput{}, fmt.Errorf("clip %s is empty", m.VideoPath)
	}

	metadata, err := json.Marshal(clipMetadata{
		ClipID:     m.Clip.ClipID,
		Title:      m.Clip.Title,
		Duration:   m.Clip.Duration,
		Resolution: m.Clip.Resolution,
		ViewCount:  m.Clip.ViewCount,
		Language:   m.Clip.Language,
		Movie:      m.Clip.Movie.Title,
		Year:       m.Clip.Movie.Year,
	})
	if err != nil {
		return videos.VideoInput{}, err
	}

	var timings []wordTiming
	inputs := make([]videos.WordMappingInput, 0, len(m.Mappings))
	verifiedAt := m.VerifiedAt
	for _, ms := range m.Mappings {
		inputs = append(inputs, videos.WordMappingInput{
			Word:             ms.Word,
			LearningLanguage: m.Language,
			RelevanceScore:   ms.Score,
			TranscriptSource: ms.TranscriptSource,
			Timestamp:        &verifiedAt,
		})
		if ms.Start != nil && ms.End != nil {
			timings = append(timings, wordTiming{Word: ms.Word, Start: *ms.Start, End: *ms.End, Confidence: ms.Confidence})
		}
	}

	var whisperMeta json.RawMessage
	if len(timings) > 0 {
		if whisperMeta, err = json.Marshal(map[string]any{"words": timings}); err != nil {
			return videos.VideoInput{}, err
		}
	}

	return videos.VideoInput{
		Slug:                    key,
		Name:                    videoName(m.Clip),
		Format:                  m.Format,
		ContentType:             m.ContentType,
		VideoDataBase64:         base64.StdEncoding.EncodeToString(data),
		SizeBytes:               int64(len(data)),
		Transcript:              m.Clip.Transcript,
		AudioTranscript:         m.AudioTranscript,
		AudioTranscriptVerified: m.AudioVerified,
		WhisperMetadata:         whisperMeta,
		Metadata:                metadata,
		WordMappings:            inputs,
	}, nil
}

type clipMetadata struct {
	ClipID     string  `json:"clip_id"`
	Title      string  `json:"title,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	ViewCount  int64   `json:"view_count,omitempty"`
	Language   string  `json:"language,omitempty"`
	Movie      string  `json:"movie,omitempty"`
	Year       int     `json:"year,omitempty"`
}

type wordTiming struct {
	Word       string   `json:"word"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// mergeByVideo folds mappings that point at the same video into one entry,
// keeping the best score per word. Order follows first appearance.
func mergeByVideo(in []VerifiedMapping) []VerifiedMapping {
	index := make(map[string]int)
	var out []VerifiedMapping
	for _, m := range in {
		key := m.VideoKey()
		n, ok := index[key]
		if !ok {
			index[key] = len(out)
			m.Mappings = append([]MappingScore(nil), m.Mappings...)
			out = append(out, m)
			continue
		}
		merged := &out[n]
		for _, ms := range m.Mappings {
			replaced := false
			for k := range merged.Mappings {
				if merged.Mappings[k].Word == ms.Word {
					if ms.Score > merged.Mappings[k].Score {
						merged.Mappings[k] = ms
					}
					replaced = true
					break
				}
			}
			if !replaced {
				merged.Mappings = append(merged.Mappings, ms)
			}
		}
		merged.AudioVerified = merged.AudioVerified || m.AudioVerified
	}
	return out
}

// uploadMark identifies a video together with the mapping set sent with it,
// so a video re-verified with different words is uploaded again.
func uploadMark(key string, m VerifiedMapping) string {
	parts := make([]string, 0, len(m.Mappings))
	for _, ms := range m.Mappings {
		parts = append(parts, fmt.Sprintf("%s|%s|%.4f|%s", ms.Word, m.Language, ms.Score, ms.TranscriptSource))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return key + "#" + hex.EncodeToString(sum[:6])
}
