package types

import (
	"log/slog"

	"github.com/tianzhicdev/dogetionary-sub008/internal/database"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/videos"
)

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	DB           *database.DB
	VideoService videos.VideoService
	Logger       *slog.Logger
	Version      string
}
