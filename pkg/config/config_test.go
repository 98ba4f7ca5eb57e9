package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withWorkdir runs the test inside a temporary directory so ./config/settings.yaml
// never leaks between tests.
func withWorkdir(t *testing.T, settings string) {
	t.Helper()

	dir := t.TempDir()
	if settings != "" {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "settings.yaml"), []byte(settings), 0o644))
	}

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))

	viper.Reset()
	t.Cleanup(func() {
		_ = os.Chdir(prev)
		viper.Reset()
	})
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		env      map[string]string
		wantErr  bool
		check    func(t *testing.T)
	}{
		{
			name: "load from settings.yaml",
			settings: `
server:
  port: 8181
pipeline:
  min_relevance_score: 0.75
`,
			check: func(t *testing.T) {
				assert.Equal(t, 8181, GetInt("server.port"))
				assert.Equal(t, 0.75, GetFloat64("pipeline.min_relevance_score"))
			},
		},
		{
			name: "environment variable override",
			settings: `
pipeline:
  workers: 2
`,
			env: map[string]string{"CLIPCURATOR_PIPELINE_WORKERS": "4"},
			check: func(t *testing.T) {
				assert.Equal(t, 4, GetInt("pipeline.workers"))
			},
		},
		{
			name: "missing config file with defaults",
			check: func(t *testing.T) {
				assert.Equal(t, 100, GetInt("pipeline.max_candidates"))
				assert.Equal(t, 0.6, GetFloat64("pipeline.min_relevance_score"))
				assert.Equal(t, 5, GetInt("pipeline.max_words_per_clip"))
				assert.Equal(t, 1, GetInt("pipeline.workers"))
				assert.Equal(t, 5*time.Minute, GetDuration("pipeline.download_window"))
				assert.Equal(t, 60, GetInt("clip_search.requests_per_minute"))
				assert.Equal(t, 15, GetInt("clip_search.max_duration"))
			},
		},
		{
			name: "invalid relevance score",
			settings: `
pipeline:
  min_relevance_score: 1.5
`,
			wantErr: true,
		},
		{
			name: "non-positive workers corrected",
			settings: `
pipeline:
  workers: 0
`,
			check: func(t *testing.T) {
				assert.Equal(t, 1, GetInt("pipeline.workers"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withWorkdir(t, tt.settings)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := Reload()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t)
			}
		})
	}
}

func TestGetConfig(t *testing.T) {
	withWorkdir(t, `
storage:
  root: /var/lib/clips
clip_search:
  api_key: abc
`)
	require.NoError(t, Reload())

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/clips", cfg.Storage.Root)
	assert.Equal(t, "abc", cfg.ClipSearch.APIKey)
	assert.Equal(t, 30*time.Second, cfg.ClipSearch.MaxBackoff)
	assert.Equal(t, 10, cfg.Pipeline.IngestBatchSize)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Server: ServerConfig{Port: 8080}, Pipeline: PipelineConfig{MinRelevanceScore: 0.6}}, false},
		{"bad port", Config{Server: ServerConfig{Port: 70000}}, true},
		{"negative score", Config{Server: ServerConfig{Port: 8080}, Pipeline: PipelineConfig{MinRelevanceScore: -0.1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, tt.cfg.Pipeline.Workers)
			assert.Equal(t, 100, tt.cfg.Pipeline.MaxCandidates)
			assert.Equal(t, 5, tt.cfg.Pipeline.MaxWordsPerClip)
		})
	}
}
