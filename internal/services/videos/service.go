package videos

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

type Service struct {
	repo   VideoRepository
	logger *slog.Logger
}

func NewService(repo VideoRepository, logger *slog.Logger) VideoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// BatchUpload stores every video of the batch and its word mappings. The whole
// batch is validated before anything is written; each video is then written in
// its own transaction. Re-submitting identical data yields "existed" with
// zero mappings created.
func (s *Service) BatchUpload(ctx context.Context, req *BatchUploadRequest) (*BatchUploadResponse, error) {
	if req == nil || len(req.Videos) == 0 {
		return nil, apperrors.ValidationError("videos", "at least one video is required")
	}

	prepared := make([]preparedVideo, 0, len(req.Videos))
	for i := range req.Videos {
		p, err := prepareVideo(i, &req.Videos[i], req.SourceID)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	resp := &BatchUploadResponse{
		Success: true,
		Results: make([]VideoResult, 0, len(prepared)),
	}

	for _, p := range prepared {
		result, err := s.storeVideo(ctx, p)
		if err != nil {
			return nil, apperrors.DatabaseError("batch upload", err).WithDetail("slug", p.slug)
		}
		resp.Results = append(resp.Results, result)
		resp.TotalVideos++
		resp.TotalMappings += result.MappingsCreated + result.MappingsSkipped
	}

	s.logger.Info("batch upload stored",
		"source_id", req.SourceID,
		"videos", resp.TotalVideos,
		"mappings", resp.TotalMappings)
	return resp, nil
}

func (s *Service) storeVideo(ctx context.Context, p preparedVideo) (VideoResult, error) {
	result := VideoResult{Slug: p.slug}

	err := s.repo.WithTx(ctx, func(repo VideoRepository) error {
		stored, created, err := repo.FindOrCreateVideo(ctx, p.video)
		if err != nil {
			return err
		}
		result.VideoID = stored.ID
		result.Status = StatusExisted
		if created {
			result.Status = StatusCreated
		}

		for _, m := range p.mappings {
			edge := m
			edge.VideoID = stored.ID
			outcome, err := repo.ApplyMapping(ctx, &edge)
			if err != nil {
				return err
			}
			switch outcome {
			case MappingCreated:
				result.MappingsCreated++
			case MappingRaised:
				result.MappingsSkipped++
				s.logger.Debug("word mapping score raised",
					"word", edge.Word, "video_id", stored.ID, "score", edge.RelevanceScore, "source_id", edge.SourceID)
			default:
				result.MappingsSkipped++
			}
		}
		return nil
	})
	return result, err
}

// GetVideo returns the stored clip including its bytes
func (s *Service) GetVideo(ctx context.Context, id uint) (*models.Video, error) {
	video, err := s.repo.GetVideoByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			return nil, apperrors.NotFound("video", id)
		}
		return nil, apperrors.DatabaseError("get video", err)
	}
	return video, nil
}

// ListMappings returns the word edges attached to a video
func (s *Service) ListMappings(ctx context.Context, videoID uint) ([]models.WordVideoMapping, error) {
	if _, err := s.repo.GetVideoMetaByID(ctx, videoID); err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			return nil, apperrors.NotFound("video", videoID)
		}
		return nil, apperrors.DatabaseError("get video", err)
	}
	mappings, err := s.repo.ListMappings(ctx, videoID)
	if err != nil {
		return nil, apperrors.DatabaseError("list mappings", err)
	}
	return mappings, nil
}

type preparedVideo struct {
	slug     string
	video    *models.Video
	mappings []models.WordVideoMapping
}

func prepareVideo(index int, in *VideoInput, sourceID string) (preparedVideo, error) {
	fail := func(field, reason string) (preparedVideo, error) {
		return preparedVideo{}, apperrors.ValidationError(field, reason).WithDetail("index", index)
	}

	name := strings.TrimSpace(in.Name)
	format := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in.Format), "."))
	if name == "" {
		return fail("name", "is required")
	}
	if format == "" {
		return fail("format", "is required")
	}
	if in.VideoDataBase64 == "" {
		return fail("video_data_base64", "is required")
	}
	data, err := base64.StdEncoding.DecodeString(in.VideoDataBase64)
	if err != nil {
		return fail("video_data_base64", "is not valid base64")
	}
	if len(data) == 0 {
		return fail("video_data_base64", "decodes to empty content")
	}
	if in.SizeBytes > 0 && in.SizeBytes != int64(len(data)) {
		return fail("size_bytes", fmt.Sprintf("declared %d bytes but content has %d", in.SizeBytes, len(data)))
	}
	for _, raw := range []json.RawMessage{in.Metadata, in.WhisperMetadata} {
		if len(raw) > 0 && !json.Valid(raw) {
			return fail("metadata", "is not valid JSON")
		}
	}

	slug := in.Slug
	if slug == "" {
		slug = name
	}

	video := &models.Video{
		Slug:                    slug,
		Name:                    name,
		Format:                  format,
		ContentType:             in.ContentType,
		SizeBytes:               int64(len(data)),
		Data:                    data,
		Transcript:              in.Transcript,
		AudioTranscript:         in.AudioTranscript,
		AudioTranscriptVerified: in.AudioTranscriptVerified,
		WhisperMetadata:         string(in.WhisperMetadata),
		Metadata:                string(in.Metadata),
		SourceID:                sourceID,
	}

	mappings := make([]models.WordVideoMapping, 0, len(in.WordMappings))
	for j, m := range in.WordMappings {
		word := models.NormalizeWord(m.Word)
		lang := strings.ToLower(strings.TrimSpace(m.LearningLanguage))
		if word == "" {
			return fail(fmt.Sprintf("word_mappings[%d].word", j), "is required")
		}
		if lang == "" {
			return fail(fmt.Sprintf("word_mappings[%d].learning_language", j), "is required")
		}
		if m.RelevanceScore < 0 || m.RelevanceScore > 1 {
			return fail(fmt.Sprintf("word_mappings[%d].relevance_score", j), "must be within [0,1]")
		}
		source := m.TranscriptSource
		switch source {
		case "":
			source = models.TranscriptSourceMetadata
		case models.TranscriptSourceMetadata, models.TranscriptSourceAudio:
		default:
			return fail(fmt.Sprintf("word_mappings[%d].transcript_source", j), "must be metadata or audio")
		}

		var verifiedAt *time.Time
		if m.Timestamp != nil {
			ts := m.Timestamp.UTC()
			verifiedAt = &ts
		}
		mappings = append(mappings, models.WordVideoMapping{
			Word:             word,
			LearningLanguage: lang,
			RelevanceScore:   m.RelevanceScore,
			TranscriptSource: source,
			VerifiedAt:       verifiedAt,
			SourceID:         sourceID,
		})
	}

	return preparedVideo{slug: slug, video: video, mappings: mappings}, nil
}
