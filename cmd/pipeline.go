package cmd

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tianzhicdev/dogetionary-sub008/internal/pipeline"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/backend"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/clipsearch"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/scoring"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/whisper"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/config"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/download"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/ffmpeg"
)

// storage is the on-disk layout of a storage root.
type storage struct {
	cache *pipeline.FilesystemCache
	state *pipeline.FileStateStore
	root  string
}

func openStorage(cfg *config.Config, logger *slog.Logger) (*storage, error) {
	cache, err := pipeline.NewFilesystemCache(cfg.Storage.Root)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStateStore, "open cache")
	}
	state, err := pipeline.OpenFileStateStore(cfg.Storage.Root, logger)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStateStore, "open state")
	}
	return &storage{cache: cache, state: state, root: cfg.Storage.Root}, nil
}

// requireCredentials reports every missing setting the pipeline needs
// before any network call is made.
func requireCredentials(cfg *config.Config) error {
	var errs []error
	for key, value := range map[string]string{
		"clip_search.api_key": cfg.ClipSearch.APIKey,
		"clip_search.base_url": cfg.ClipSearch.BaseURL,
		"scoring.api_key":      cfg.Scoring.APIKey,
		"whisper.api_key":      cfg.Whisper.APIKey,
		"backend.base_url":     cfg.Backend.BaseURL,
	} {
		if value == "" {
			errs = append(errs, apperrors.ConfigRequired(key))
		}
	}
	return errors.Join(errs...)
}

func newUploader(cfg *config.Config, logger *slog.Logger) *backend.Client {
	return backend.NewClient(backend.Config{
		BaseURL:    cfg.Backend.BaseURL,
		APIToken:   cfg.Backend.APIToken,
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
	}, backend.WithLogger(logger))
}

type stageOptions struct {
	force bool
}

// metricsSource is an API client that keeps request counters.
type metricsSource interface {
	GetMetrics() map[string]int64
}

// wiring is what buildStages assembles for a run.
type wiring struct {
	stages   pipeline.Stages
	uploader *backend.Client
	// counters is keyed by client name.
	counters map[string]metricsSource
}

// buildStages wires the external clients into the four pipeline stages.
func buildStages(cfg *config.Config, store *storage, opts stageOptions, logger *slog.Logger) (*wiring, error) {
	media := ffmpeg.New(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.FFmpegTimeout)
	if err := media.ValidateBinaries(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigRequired, "ffmpeg is not available")
	}

	catalog := clipsearch.NewClient(clipsearch.Config{
		APIKey:            cfg.ClipSearch.APIKey,
		BaseURL:           cfg.ClipSearch.BaseURL,
		RequestsPerMinute: cfg.ClipSearch.RequestsPerMinute,
		BurstSize:         cfg.ClipSearch.BurstSize,
		Timeout:           cfg.ClipSearch.Timeout,
		MaxRetries:        cfg.ClipSearch.MaxRetries,
		FailureRetries:    cfg.ClipSearch.FailureRetries,
		RetryBackoff:      cfg.ClipSearch.RetryBackoff,
		MaxBackoff:        cfg.ClipSearch.MaxBackoff,
		UserAgent:         cfg.ClipSearch.UserAgent,
	}, clipsearch.WithLogger(logger))

	scorer := scoring.NewClient(scoring.Config{
		APIKey:            cfg.Scoring.APIKey,
		BaseURL:           cfg.Scoring.BaseURL,
		Model:             cfg.Scoring.Model,
		Timeout:           cfg.Scoring.Timeout,
		RequestsPerMinute: cfg.Scoring.RequestsPerMinute,
		MaxRetries:        cfg.Scoring.MaxRetries,
		RetryBackoff:      cfg.Scoring.RetryBackoff,
		MaxBackoff:        cfg.Scoring.MaxBackoff,
	}, scoring.WithLogger(logger))

	transcriber := whisper.NewClient(whisper.Config{
		APIKey:      cfg.Whisper.APIKey,
		BaseURL:     cfg.Whisper.BaseURL,
		Model:       cfg.Whisper.Model,
		Temperature: cfg.Whisper.Temperature,
		Timeout:     cfg.Whisper.Timeout,
		MaxFileSize: cfg.Whisper.MaxFileSize,
		MaxRetries:  cfg.Whisper.MaxRetries,
	}, whisper.WithLogger(logger))

	downloadOpts := download.DefaultOptions()
	downloadOpts.TempDir = filepath.Join(store.root, "tmp")
	downloadOpts.MaxSize = cfg.Processing.MaxVideoSize
	downloadOpts.Window = cfg.Pipeline.DownloadWindow
	downloadOpts.UserAgent = cfg.ClipSearch.UserAgent
	if err := ensureDir(downloadOpts.TempDir); err != nil {
		return nil, err
	}
	fetcher := download.NewDownloader(downloadOpts, download.WithLogger(logger))

	policy := pipeline.ScorePolicy{
		MinScore:        cfg.Pipeline.MinRelevanceScore,
		MaxWordsPerClip: cfg.Pipeline.MaxWordsPerClip,
	}
	audio := ffmpeg.DefaultAudioOptions()
	uploader := newUploader(cfg, logger)

	stages := pipeline.Stages{
		Search: pipeline.NewSearcher(catalog, store.cache, pipeline.SearchOptions{
			MaxCandidates: cfg.Pipeline.MaxCandidates,
			MinDuration:   float64(cfg.ClipSearch.MinDuration),
			MaxDuration:   float64(cfg.ClipSearch.MaxDuration),
			PageSize:      cfg.ClipSearch.PageSize,
		}, logger),
		Filter: pipeline.NewFilter(scorer, store.cache, policy, logger),
		Verify: pipeline.NewVerifier(fetcher, media, transcriber, scorer, store.cache, policy, pipeline.VerifyOptions{
			VideoDir: filepath.Join(store.root, "videos"),
			WorkDir:  filepath.Join(store.root, "tmp"),
			Audio:    audio,
			Force:    opts.force,
		}, logger),
		Ingest: pipeline.NewIngester(uploader, store.state, cfg.Pipeline.IngestBatchSize, logger),
	}
	return &wiring{
		stages:   stages,
		uploader: uploader,
		counters: map[string]metricsSource{
			"clip_search": catalog,
			"scoring":     scorer,
		},
	}, nil
}

// logClientMetrics writes each client's counters to the log and to out.
func logClientMetrics(out io.Writer, counters map[string]metricsSource, logger *slog.Logger) {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("API usage")
	t.AppendHeader(table.Row{"Client", "Counter", "Value"})
	for _, name := range names {
		metrics := counters[name].GetMetrics()
		keys := make([]string, 0, len(metrics))
		attrs := make([]any, 0, 2*len(metrics)+2)
		attrs = append(attrs, "client", name)
		for key := range metrics {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			t.AppendRow(table.Row{name, key, metrics[key]})
			attrs = append(attrs, key, metrics[key])
		}
		logger.Info("api client usage", attrs...)
	}
	t.Render()
}
