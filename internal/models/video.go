package models

import (
	"strings"
	"time"
)

// Transcript sources recorded on a word mapping
const (
	TranscriptSourceMetadata = "metadata"
	TranscriptSourceAudio    = "audio"
)

// Video is an ingested clip. Rows are immutable once created; the natural key
// is (name, format).
type Video struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug        string `json:"slug" gorm:"size:255;index"`
	Name        string `json:"name" gorm:"not null;size:255;uniqueIndex:idx_videos_name_format"`
	Format      string `json:"format" gorm:"not null;size:16;uniqueIndex:idx_videos_name_format"`
	ContentType string `json:"content_type" gorm:"size:100"`
	SizeBytes   int64  `json:"size_bytes"`
	Data        []byte `json:"-" gorm:"not null"`

	Transcript              string `json:"transcript" gorm:"type:text"`
	AudioTranscript         string `json:"audio_transcript,omitempty" gorm:"type:text"`
	AudioTranscriptVerified bool   `json:"audio_transcript_verified" gorm:"default:false"`
	WhisperMetadata         string `json:"whisper_metadata,omitempty" gorm:"type:text"` // raw JSON
	Metadata                string `json:"metadata,omitempty" gorm:"type:text"`         // raw JSON

	SourceID string `json:"source_id,omitempty" gorm:"size:64;index"`

	Mappings []WordVideoMapping `json:"mappings,omitempty" gorm:"foreignKey:VideoID"`
}

// ContentTypeOrDefault returns the stored content type, deriving one from the
// format when the uploader did not send it.
func (v *Video) ContentTypeOrDefault() string {
	if v.ContentType != "" {
		return v.ContentType
	}
	switch strings.ToLower(v.Format) {
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

// WordVideoMapping is the (word, learning_language, video) edge
type WordVideoMapping struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Word             string     `json:"word" gorm:"not null;size:128;uniqueIndex:idx_mapping_edge"`
	LearningLanguage string     `json:"learning_language" gorm:"not null;size:16;uniqueIndex:idx_mapping_edge"`
	VideoID          uint       `json:"video_id" gorm:"not null;uniqueIndex:idx_mapping_edge;index"`
	RelevanceScore   float64    `json:"relevance_score"`
	TranscriptSource string     `json:"transcript_source" gorm:"size:16"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`

	// SourceID is the run that set the current score
	SourceID string `json:"source_id,omitempty" gorm:"size:64"`
}

// AllModels lists every model that the backend migrates
func AllModels() []any {
	return []any{&Video{}, &WordVideoMapping{}}
}

// NormalizeWord lower-cases and trims a vocabulary word for storage
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
