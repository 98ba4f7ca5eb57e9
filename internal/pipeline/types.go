package pipeline

import (
	"time"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/clipsearch"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/scoring"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/whisper"
)

// Transcript sources recorded on a mapping
const (
	SourceMetadata = "metadata"
	SourceAudio    = "audio"
)

// CandidateClip is one catalog hit for a word. Immutable once cached.
type CandidateClip struct {
	ClipID      string           `json:"clip_id"`
	Slug        string           `json:"slug"`
	Title       string           `json:"title"`
	Transcript  string           `json:"transcript"`
	Subtitles   string           `json:"subtitles,omitempty"`
	DownloadURL string           `json:"download_url"`
	IssuedAt    time.Time        `json:"issued_at"`
	Duration    float64          `json:"duration"`
	Resolution  string           `json:"resolution,omitempty"`
	ViewCount   int64            `json:"view_count"`
	Language    string           `json:"language"`
	Movie       clipsearch.Movie `json:"movie"`
}

// metadataIndex is the word-level record of the metadata stage.
type metadataIndex struct {
	Word      string    `json:"word"`
	Language  string    `json:"language"`
	ClipIDs   []string  `json:"clip_ids"`
	Pages     int       `json:"pages"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ScoredCandidate is a candidate that passed the filter for the searched word.
// Scores holds every vocabulary word accepted for the clip, best first.
type ScoredCandidate struct {
	Clip   CandidateClip       `json:"clip"`
	Score  float64             `json:"score"`
	Reason string              `json:"reason"`
	Scores []scoring.WordScore `json:"scores"`
}

// FilterResult is the outcome of filtering one word's candidates.
type FilterResult struct {
	Accepted []ScoredCandidate
	// Deferred counts candidates whose scoring hit a retryable error. They
	// are not cached and are scored again on the next run.
	Deferred int
	// LastErr is the most recent error behind Deferred.
	LastErr error
}

// filterRecord is the candidates-stage cache record for (word, clip_id).
type filterRecord struct {
	ClipID   string              `json:"clip_id"`
	Accepted bool                `json:"accepted"`
	Scores   []scoring.WordScore `json:"scores"`
	ScoredAt time.Time           `json:"scored_at"`
}

// MappingScore is one word edge of a verified clip.
type MappingScore struct {
	Word             string   `json:"word"`
	Score            float64  `json:"score"`
	Reason           string   `json:"reason,omitempty"`
	TranscriptSource string   `json:"transcript_source"`
	Start            *float64 `json:"start,omitempty"`
	End              *float64 `json:"end,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
}

// VerifiedMapping is a clip confirmed against its spoken audio, with the
// words it teaches.
type VerifiedMapping struct {
	Word        string         `json:"word"`
	Language    string         `json:"language"`
	Clip        CandidateClip  `json:"clip"`
	VideoPath   string         `json:"video_path"`
	Format      string         `json:"format"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	Mappings    []MappingScore `json:"mappings"`

	AudioTranscript string    `json:"audio_transcript,omitempty"`
	AudioVerified   bool      `json:"audio_verified"`
	VerifiedAt      time.Time `json:"verified_at"`
}

// VideoKey is the backend natural key (name + format) of the clip.
func (m *VerifiedMapping) VideoKey() string {
	return videoName(m.Clip) + "." + m.Format
}

func videoName(c CandidateClip) string {
	if c.Slug != "" {
		return sanitizeSegment(c.Slug)
	}
	return sanitizeSegment(c.ClipID)
}

// Verification statuses stored in the final analysis record
const (
	VerifyVerified = "verified"
	VerifyRejected = "rejected"
	VerifyExpired  = "expired"
	VerifyNoAudio  = "no_audio"
	VerifyFailed   = "failed"
)

// finalAnalysis is the final_analysis cache record for (word, clip_id).
// It is written for every terminal verification outcome.
type finalAnalysis struct {
	ClipID    string           `json:"clip_id"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Mapping   *VerifiedMapping `json:"mapping,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// audioRecord is the audio_transcripts cache record for (word, clip_id).
type audioRecord struct {
	ClipID     string              `json:"clip_id"`
	Transcript *whisper.Transcript `json:"transcript"`
	CreatedAt  time.Time           `json:"created_at"`
}

// IngestResult is the outcome for one video submitted to the backend.
type IngestResult struct {
	VideoKey        string `json:"video_key"`
	ClipID          string `json:"clip_id"`
	VideoID         uint   `json:"video_id,omitempty"`
	Status          string `json:"status,omitempty"`
	MappingsCreated int    `json:"mappings_created"`
	MappingsSkipped int    `json:"mappings_skipped"`
	AlreadyUploaded bool   `json:"already_uploaded,omitempty"`
	Err             error  `json:"-"`
}

// WordReport summarizes what happened to one word.
type WordReport struct {
	Word            string        `json:"word"`
	Language        string        `json:"language"`
	State           WordState     `json:"state"`
	FailedStage     Stage         `json:"failed_stage,omitempty"`
	Error           string        `json:"error,omitempty"`
	Candidates      int           `json:"candidates"`
	Accepted        int           `json:"accepted"`
	Verified        int           `json:"verified"`
	VideosUploaded  int           `json:"videos_uploaded"`
	MappingsCreated int           `json:"mappings_created"`
	MappingsSkipped int           `json:"mappings_skipped"`
	IngestFailures  int           `json:"ingest_failures"`
	Duration        time.Duration `json:"duration"`
}

// Summary aggregates a run.
type Summary struct {
	RunID           string        `json:"run_id"`
	Processed       int           `json:"processed"`
	Skipped         int           `json:"skipped"`
	Failed          int           `json:"failed"`
	VideosUploaded  int           `json:"videos_uploaded"`
	MappingsCreated int           `json:"mappings_created"`
	Reports         []WordReport  `json:"reports"`
	Duration        time.Duration `json:"duration"`
	Stopped         bool          `json:"stopped"`
}
