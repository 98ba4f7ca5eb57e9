package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MetadataSearcher finds candidate clips for a word.
type MetadataSearcher interface {
	Search(ctx context.Context, word VocabularyWord) ([]CandidateClip, error)
}

// CandidateFilter scores candidates and keeps the relevant ones.
type CandidateFilter interface {
	Filter(ctx context.Context, word VocabularyWord, vocabulary []string, candidates []CandidateClip) (FilterResult, error)
}

// ClipVerifier confirms a candidate against its audio.
type ClipVerifier interface {
	Verify(ctx context.Context, word VocabularyWord, vocabulary []string, cand ScoredCandidate) (*VerifiedMapping, error)
}

// MappingIngester uploads verified clips.
type MappingIngester interface {
	Ingest(ctx context.Context, mappings []VerifiedMapping, runID string) ([]IngestResult, error)
}

// Stages bundles the four pipeline stages.
type Stages struct {
	Search MetadataSearcher
	Filter CandidateFilter
	Verify ClipVerifier
	Ingest MappingIngester
}

// DriverOptions configures a Driver.
type DriverOptions struct {
	// Workers is how many words are processed concurrently.
	Workers int
	// RunID tags uploads and failure records. Generated when empty.
	RunID string
	// StorageRoot, when set, is locked for the duration of a run.
	StorageRoot string
}

// Driver runs each vocabulary word through search, filter, verify and
// ingest, checkpointing finished words.
type Driver struct {
	stages Stages
	state  StateStore
	opts   DriverOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewDriver creates a pipeline driver.
func NewDriver(stages Stages, state StateStore, opts DriverOptions, logger *slog.Logger) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		stages: stages,
		state:  state,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Run processes words in order. Words already checkpointed are skipped.
// Cancelling ctx stops the run between words: a word already in flight runs
// to completion and is checkpointed. The returned error is ErrStopped after
// cancellation, or the configuration error that aborted the run.
func (d *Driver) Run(ctx context.Context, words []VocabularyWord) (*Summary, error) {
	if d.opts.StorageRoot != "" {
		lock, err := AcquireRunLock(d.opts.StorageRoot)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				d.logger.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	runID := d.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := d.now()
	logger := d.logger.With("run_id", runID)
	logger.Info("pipeline run started", "words", len(words), "workers", d.opts.Workers)

	vocab := make(map[string][]string)
	for _, w := range words {
		if _, ok := vocab[w.Language]; !ok {
			vocab[w.Language] = WordsIn(words, w.Language)
		}
	}

	reports := make([]*WordReport, len(words))
	var (
		mu       sync.Mutex
		fatalErr error
	)
	// abort stops dispatch without cancelling words already in flight
	abortCtx, abort := context.WithCancel(ctx)
	defer abort()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for n := 0; n < d.opts.Workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if abortCtx.Err() != nil {
					continue
				}
				w := words[idx]
				report, err := d.processWord(context.WithoutCancel(ctx), w, vocab[w.Language], runID, logger)
				mu.Lock()
				reports[idx] = &report
				if err != nil && fatalErr == nil {
					fatalErr = err
					abort()
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for idx := range words {
		if abortCtx.Err() != nil {
			break
		}
		select {
		case jobs <- idx:
		case <-abortCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	stopped := false
	if fatalErr == nil && ctx.Err() != nil {
		for _, r := range reports {
			if r == nil {
				stopped = true
				break
			}
		}
	}

	summary := &Summary{RunID: runID, Stopped: stopped}
	for _, r := range reports {
		if r == nil {
			continue
		}
		summary.Reports = append(summary.Reports, *r)
		switch r.State {
		case StateSkipped:
			summary.Skipped++
		case StateFailed:
			summary.Failed++
		default:
			summary.Processed++
		}
		summary.VideosUploaded += r.VideosUploaded
		summary.MappingsCreated += r.MappingsCreated
	}
	summary.Duration = d.now().Sub(started)

	logger.Info("pipeline run finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"videos_uploaded", summary.VideosUploaded,
		"mappings_created", summary.MappingsCreated,
		"stopped", summary.Stopped,
		"duration", summary.Duration.Round(time.Millisecond))

	switch {
	case fatalErr != nil:
		return summary, fatalErr
	case stopped:
		return summary, ErrStopped
	}
	return summary, nil
}

// processWord walks one word through the stages. Only a fatal error is
// returned; every other failure is folded into the report.
func (d *Driver) processWord(ctx context.Context, word VocabularyWord, vocabulary []string, runID string,
	logger *slog.Logger) (WordReport, error) {
	started := d.now()
	report, err := d.walk(ctx, word, vocabulary, runID, logger.With("word", word.Word, "language", word.Language))
	report.Duration = d.now().Sub(started)
	return report, err
}

func (d *Driver) walk(ctx context.Context, word VocabularyWord, vocabulary []string, runID string,
	logger *slog.Logger) (WordReport, error) {
	report := WordReport{Word: word.Word, Language: word.Language, State: StatePending}

	if d.state.HasProcessed(word.Key()) {
		logger.Debug("word already processed")
		report.State = StateSkipped
		return report, nil
	}

	fail := func(stage Stage, err error) (WordReport, error) {
		report.State = StateFailed
		report.FailedStage = stage
		report.Error = err.Error()
		outcome := Classify(err)
		logger.Error("word failed", "stage", string(stage), "outcome", outcome.Kind.String(), "error", err)
		if rerr := d.state.RecordFailure(FailureEntry{
			Word:      word.Key(),
			Stage:     string(stage),
			Error:     err.Error(),
			Timestamp: d.now().UTC(),
			RunID:     runID,
		}); rerr != nil {
			logger.Error("failed to record word failure", "error", rerr)
		}
		if outcome.Kind == OutcomeFatal {
			return report, err
		}
		return report, nil
	}

	candidates, err := d.stages.Search.Search(ctx, word)
	if err != nil {
		return fail(StageMetadata, err)
	}
	report.State = StateSearched
	report.Candidates = len(candidates)

	filtered, err := d.stages.Filter.Filter(ctx, word, vocabulary, candidates)
	if err != nil {
		return fail(StageCandidates, err)
	}
	report.State = StateFiltered
	report.Accepted = len(filtered.Accepted)

	var (
		verified     []VerifiedMapping
		verifyErrors int
		lastErr      error
	)
	for _, cand := range filtered.Accepted {
		mapping, err := d.stages.Verify.Verify(ctx, word, vocabulary, cand)
		if err != nil {
			if Classify(err).Kind == OutcomeFatal {
				return fail(StageFinalAnalysis, err)
			}
			logger.Warn("clip verification failed", "clip_id", cand.Clip.ClipID, "error", err)
			verifyErrors++
			lastErr = err
			continue
		}
		if mapping != nil {
			verified = append(verified, *mapping)
		}
	}
	report.State = StateVerified
	report.Verified = len(verified)

	if len(verified) > 0 {
		results, err := d.stages.Ingest.Ingest(ctx, verified, runID)
		for _, r := range results {
			if r.Err != nil {
				report.IngestFailures++
				continue
			}
			if !r.AlreadyUploaded {
				report.VideosUploaded++
			}
			report.MappingsCreated += r.MappingsCreated
			report.MappingsSkipped += r.MappingsSkipped
		}
		if err != nil {
			return fail(StageIngest, err)
		}
		report.State = StateIngested
		if report.IngestFailures > 0 {
			return fail(StageIngest, errors.New("some videos failed to upload"))
		}
	}

	// Candidates that could not be scored or verified are retried on the
	// next run, so the word stays unprocessed.
	if filtered.Deferred > 0 {
		return fail(StageCandidates, filtered.LastErr)
	}
	if verifyErrors > 0 {
		return fail(StageFinalAnalysis, lastErr)
	}

	if err := d.state.MarkProcessed(word.Key()); err != nil {
		return fail(StageIngest, err)
	}
	report.State = StateDone
	logger.Info("word processed",
		"candidates", report.Candidates,
		"accepted", report.Accepted,
		"verified", report.Verified,
		"videos_uploaded", report.VideosUploaded,
		"mappings_created", report.MappingsCreated)
	return report, nil
}
