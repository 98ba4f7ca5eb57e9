package videos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
)

// ErrVideoNotFound is returned when a video id does not exist
var ErrVideoNotFound = errors.New("video not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) VideoRepository {
	return &Repository{db: db}
}

// FindOrCreateVideo looks the video up by its natural key and inserts it when missing.
// A concurrent insert of the same key loses the race on the unique index and
// falls back to the stored row.
func (r *Repository) FindOrCreateVideo(ctx context.Context, video *models.Video) (*models.Video, bool, error) {
	existing, err := r.findByNaturalKey(ctx, video.Name, video.Format)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("checking existing video: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		if isUniqueViolation(err) {
			existing, findErr := r.findByNaturalKey(ctx, video.Name, video.Format)
			if findErr != nil {
				return nil, false, fmt.Errorf("reloading video after conflict: %w", findErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("creating video: %w", err)
	}
	return video, true, nil
}

func (r *Repository) findByNaturalKey(ctx context.Context, name, format string) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).
		Omit("data").
		Where("name = ? AND format = ?", name, format).
		First(&video).Error
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// GetVideoByID retrieves a video including its binary content
func (r *Repository) GetVideoByID(ctx context.Context, id uint) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).First(&video, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("getting video: %w", err)
	}
	return &video, nil
}

// GetVideoMetaByID retrieves a video without loading its binary content
func (r *Repository) GetVideoMetaByID(ctx context.Context, id uint) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Omit("data").First(&video, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("getting video metadata: %w", err)
	}
	return &video, nil
}

// ApplyMapping creates a word edge or raises the score of an existing one
func (r *Repository) ApplyMapping(ctx context.Context, mapping *models.WordVideoMapping) (MappingOutcome, error) {
	var existing models.WordVideoMapping
	err := r.db.WithContext(ctx).
		Where("word = ? AND learning_language = ? AND video_id = ?",
			mapping.Word, mapping.LearningLanguage, mapping.VideoID).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.WithContext(ctx).Create(mapping).Error; err != nil {
			if isUniqueViolation(err) {
				return MappingSkipped, nil
			}
			return 0, fmt.Errorf("creating word mapping: %w", err)
		}
		return MappingCreated, nil
	case err != nil:
		return 0, fmt.Errorf("checking existing word mapping: %w", err)
	}

	if mapping.RelevanceScore <= existing.RelevanceScore {
		return MappingSkipped, nil
	}

	updates := map[string]any{
		"relevance_score":   mapping.RelevanceScore,
		"transcript_source": mapping.TranscriptSource,
		"verified_at":       mapping.VerifiedAt,
		"source_id":         mapping.SourceID,
	}
	if err := r.db.WithContext(ctx).
		Model(&models.WordVideoMapping{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return 0, fmt.Errorf("raising word mapping score: %w", err)
	}
	return MappingRaised, nil
}

// ListMappings returns the word edges of a video ordered by score
func (r *Repository) ListMappings(ctx context.Context, videoID uint) ([]models.WordVideoMapping, error) {
	var mappings []models.WordVideoMapping
	if err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("relevance_score DESC, word ASC").
		Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("listing word mappings: %w", err)
	}
	return mappings, nil
}

// WithTx runs fn inside a database transaction
func (r *Repository) WithTx(ctx context.Context, fn func(repo VideoRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
