package types

import "github.com/tianzhicdev/dogetionary-sub008/internal/models"

// Status constants for API responses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// BaseResponse contains fields common to all API responses
type BaseResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse for detailed error information
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`   // Error code
	Details any    `json:"details,omitempty"` // Additional error details
}

// HealthResponse for health check endpoint
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Version   string         `json:"version,omitempty"`
	Database  map[string]any `json:"database"`
}

// VersionResponse for the version endpoint
type VersionResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// VideoMappingsResponse lists the word edges of one video
type VideoMappingsResponse struct {
	BaseResponse
	VideoID  uint                      `json:"video_id"`
	Mappings []models.WordVideoMapping `json:"mappings"`
	Count    int                       `json:"count"`
}
