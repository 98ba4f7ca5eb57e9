package videos

import (
	"encoding/json"
	"time"
)

// Result statuses for a submitted video
const (
	StatusCreated = "created"
	StatusExisted = "existed"
)

// WordMappingInput is one word edge submitted with a video
type WordMappingInput struct {
	Word             string     `json:"word"`
	LearningLanguage string     `json:"learning_language"`
	RelevanceScore   float64    `json:"relevance_score"`
	TranscriptSource string     `json:"transcript_source"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
}

// VideoInput is one clip in a batch upload
type VideoInput struct {
	Slug                    string             `json:"slug"`
	Name                    string             `json:"name"`
	Format                  string             `json:"format"`
	ContentType             string             `json:"content_type,omitempty"`
	VideoDataBase64         string             `json:"video_data_base64"`
	SizeBytes               int64              `json:"size_bytes"`
	Transcript              string             `json:"transcript"`
	AudioTranscript         string             `json:"audio_transcript,omitempty"`
	AudioTranscriptVerified bool               `json:"audio_transcript_verified,omitempty"`
	WhisperMetadata         json.RawMessage    `json:"whisper_metadata,omitempty"`
	Metadata                json.RawMessage    `json:"metadata,omitempty"`
	WordMappings            []WordMappingInput `json:"word_mappings"`
}

// BatchUploadRequest is the body of POST /api/v1/videos/batch-upload
type BatchUploadRequest struct {
	SourceID string       `json:"source_id,omitempty"`
	Videos   []VideoInput `json:"videos"`
}

// VideoResult reports what happened to one submitted video
type VideoResult struct {
	Slug            string `json:"slug"`
	VideoID         uint   `json:"video_id"`
	Status          string `json:"status"`
	MappingsCreated int    `json:"mappings_created"`
	MappingsSkipped int    `json:"mappings_skipped"`
}

// BatchUploadResponse is the body returned by the batch upload endpoint.
// TotalMappings counts every mapping processed, created or skipped.
type BatchUploadResponse struct {
	Success       bool          `json:"success"`
	Results       []VideoResult `json:"results"`
	TotalVideos   int           `json:"total_videos"`
	TotalMappings int           `json:"total_mappings"`
}

// MappingOutcome is the effect of applying one mapping to the store
type MappingOutcome int

const (
	MappingCreated MappingOutcome = iota
	MappingSkipped                // edge existed, score kept
	MappingRaised                 // edge existed, score raised to the new value
)
