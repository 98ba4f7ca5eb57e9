package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Pipeline    PipelineConfig   `mapstructure:"pipeline"`
	ClipSearch  ClipSearchConfig `mapstructure:"clip_search"`
	Scoring     ScoringConfig    `mapstructure:"scoring"`
	Whisper     WhisperConfig    `mapstructure:"whisper"`
	Backend     BackendConfig    `mapstructure:"backend"`
	Processing  ProcessingConfig `mapstructure:"processing"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains settings for the video backend HTTP server
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	RateLimitRPS    int           `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`

	// ResponseCacheTTL keeps mapping listings in memory; 0 disables it
	ResponseCacheTTL   time.Duration `mapstructure:"response_cache_ttl"`
	ResponseCacheBytes int64         `mapstructure:"response_cache_bytes"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Verbose bool   `mapstructure:"verbose"`
}

// PipelineConfig contains the curation pipeline tunables
type PipelineConfig struct {
	MaxCandidates     int           `mapstructure:"max_candidates"`
	MinRelevanceScore float64       `mapstructure:"min_relevance_score"`
	MaxWordsPerClip   int           `mapstructure:"max_words_per_clip"`
	Workers           int           `mapstructure:"workers"`
	DownloadWindow    time.Duration `mapstructure:"download_window"`
	IngestBatchSize   int           `mapstructure:"ingest_batch_size"`
	DefaultLanguage   string        `mapstructure:"default_language"`
}

// ClipSearchConfig contains settings for the external clip catalog
type ClipSearchConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PageSize          int           `mapstructure:"page_size"`
	MinDuration       int           `mapstructure:"min_duration"`
	MaxDuration       int           `mapstructure:"max_duration"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	BurstSize         int           `mapstructure:"burst_size"`
	MaxRetries        int           `mapstructure:"max_retries"`
	FailureRetries    int           `mapstructure:"failure_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// ScoringConfig contains settings for the relevance scoring service
type ScoringConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
}

// WhisperConfig contains speech-to-text API settings
type WhisperConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFileSize int64         `mapstructure:"max_file_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// BackendConfig contains settings for the ingestion backend client
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIToken   string        `mapstructure:"api_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// ProcessingConfig contains media processing settings
type ProcessingConfig struct {
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	FFprobePath   string        `mapstructure:"ffprobe_path"`
	FFmpegTimeout time.Duration `mapstructure:"ffmpeg_timeout"`
	MaxVideoSize  int64         `mapstructure:"max_video_size"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Root    string `mapstructure:"root"`
	TempDir string `mapstructure:"temp_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
