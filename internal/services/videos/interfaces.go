package videos

import (
	"context"

	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
)

// VideoRepository defines the data access interface for videos and word mappings
type VideoRepository interface {
	// FindOrCreateVideo returns the stored video with the same name and format,
	// creating it from video when none exists. created reports which happened.
	FindOrCreateVideo(ctx context.Context, video *models.Video) (stored *models.Video, created bool, err error)
	GetVideoByID(ctx context.Context, id uint) (*models.Video, error)
	GetVideoMetaByID(ctx context.Context, id uint) (*models.Video, error)

	// ApplyMapping inserts the edge or, when it exists, raises its score if the
	// new one is strictly higher.
	ApplyMapping(ctx context.Context, mapping *models.WordVideoMapping) (MappingOutcome, error)
	ListMappings(ctx context.Context, videoID uint) ([]models.WordVideoMapping, error)

	// WithTx runs fn against a repository bound to a single transaction
	WithTx(ctx context.Context, fn func(repo VideoRepository) error) error
}

// VideoService defines the backend business logic for clip ingestion and retrieval
type VideoService interface {
	BatchUpload(ctx context.Context, req *BatchUploadRequest) (*BatchUploadResponse, error)
	GetVideo(ctx context.Context, id uint) (*models.Video, error)
	ListMappings(ctx context.Context, videoID uint) ([]models.WordVideoMapping, error)
}
