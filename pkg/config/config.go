package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// EnvPrefix is the prefix for environment variable overrides (CLIPCURATOR_PIPELINE_WORKERS, ...)
const EnvPrefix = "CLIPCURATOR"

// Init initializes the configuration system
// This should be called once at application startup
func Init() error {
	once.Do(func() {
		initErr = load()
	})
	return initErr
}

// Reload discards any previous initialization and loads configuration again.
// Tests use it after viper.Reset().
func Reload() error {
	once = sync.Once{}
	return Init()
}

func load() error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPath := filepath.Clean("./config/settings.yaml")
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !os.IsNotExist(err) && !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	if err := validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetFloat64 returns a float config value
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate validates the configuration using Viper values
func validate() error {
	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	score := viper.GetFloat64("pipeline.min_relevance_score")
	if score < 0 || score > 1 {
		return fmt.Errorf("invalid pipeline.min_relevance_score: %v (must be within [0,1])", score)
	}

	// Auto-correct invalid worker and batch counts
	if viper.GetInt("pipeline.workers") <= 0 {
		viper.Set("pipeline.workers", 1)
	}
	if viper.GetInt("pipeline.max_candidates") <= 0 {
		viper.Set("pipeline.max_candidates", 100)
	}
	if viper.GetInt("pipeline.ingest_batch_size") <= 0 {
		viper.Set("pipeline.ingest_batch_size", 10)
	}

	return nil
}

// Validate validates a Config struct (for testing and for values overridden by flags)
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Pipeline.MinRelevanceScore < 0 || c.Pipeline.MinRelevanceScore > 1 {
		return fmt.Errorf("invalid min relevance score: %v", c.Pipeline.MinRelevanceScore)
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 1
	}
	if c.Pipeline.MaxCandidates <= 0 {
		c.Pipeline.MaxCandidates = 100
	}
	if c.Pipeline.MaxWordsPerClip <= 0 {
		c.Pipeline.MaxWordsPerClip = 5
	}
	if c.Pipeline.IngestBatchSize <= 0 {
		c.Pipeline.IngestBatchSize = 10
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("environment", "development")

	// Backend server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 60*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)
	viper.SetDefault("server.max_upload_bytes", 512*1024*1024)
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.rate_limit_burst", 40)
	viper.SetDefault("server.response_cache_ttl", 30*time.Second)
	viper.SetDefault("server.response_cache_bytes", 16*1024*1024)

	viper.SetDefault("database.path", "./data/videos.db")
	viper.SetDefault("database.verbose", false)

	// Pipeline defaults
	viper.SetDefault("pipeline.max_candidates", 100)
	viper.SetDefault("pipeline.min_relevance_score", 0.6)
	viper.SetDefault("pipeline.max_words_per_clip", 5)
	viper.SetDefault("pipeline.workers", 1)
	viper.SetDefault("pipeline.download_window", 5*time.Minute)
	viper.SetDefault("pipeline.ingest_batch_size", 10)
	viper.SetDefault("pipeline.default_language", "en")

	// Clip catalog defaults
	viper.SetDefault("clip_search.api_key", "")
	viper.SetDefault("clip_search.base_url", "https://api.clipcatalog.example/v1")
	viper.SetDefault("clip_search.timeout", 20*time.Second)
	viper.SetDefault("clip_search.page_size", 25)
	viper.SetDefault("clip_search.min_duration", 1)
	viper.SetDefault("clip_search.max_duration", 15)
	viper.SetDefault("clip_search.requests_per_minute", 60)
	viper.SetDefault("clip_search.burst_size", 3)
	viper.SetDefault("clip_search.max_retries", 5)
	viper.SetDefault("clip_search.failure_retries", 2)
	viper.SetDefault("clip_search.retry_backoff", 1*time.Second)
	viper.SetDefault("clip_search.max_backoff", 30*time.Second)
	viper.SetDefault("clip_search.user_agent", "clipcurator/1.0")

	// Scoring defaults
	viper.SetDefault("scoring.api_key", "")
	viper.SetDefault("scoring.base_url", "https://api.openai.com/v1")
	viper.SetDefault("scoring.model", "gpt-4o-mini")
	viper.SetDefault("scoring.timeout", 60*time.Second)
	viper.SetDefault("scoring.requests_per_minute", 120)
	viper.SetDefault("scoring.max_retries", 4)
	viper.SetDefault("scoring.retry_backoff", 1*time.Second)
	viper.SetDefault("scoring.max_backoff", 20*time.Second)

	// Whisper defaults
	viper.SetDefault("whisper.api_key", "")
	viper.SetDefault("whisper.base_url", "https://api.openai.com/v1")
	viper.SetDefault("whisper.model", "whisper-1")
	viper.SetDefault("whisper.temperature", 0)
	viper.SetDefault("whisper.timeout", 2*time.Minute)
	viper.SetDefault("whisper.max_file_size", 26214400)
	viper.SetDefault("whisper.max_retries", 3)

	viper.SetDefault("backend.base_url", "http://localhost:8080")
	viper.SetDefault("backend.api_token", "")
	viper.SetDefault("backend.timeout", 2*time.Minute)
	viper.SetDefault("backend.max_retries", 2)

	viper.SetDefault("processing.ffmpeg_path", "ffmpeg")
	viper.SetDefault("processing.ffprobe_path", "ffprobe")
	viper.SetDefault("processing.ffmpeg_timeout", 2*time.Minute)
	viper.SetDefault("processing.max_video_size", 100*1024*1024)

	viper.SetDefault("storage.root", "./pipeline_data")
	viper.SetDefault("storage.temp_dir", os.TempDir())

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "auto")
}
