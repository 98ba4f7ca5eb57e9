package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RetryReport summarizes a retry of the failed-upload log.
type RetryReport struct {
	Attempted int
	Uploaded  int
	Failed    int
	// Unrecoverable entries have no cached verification to rebuild from.
	Unrecoverable int
	// Pruned entries belonged to words that have since been processed.
	Pruned int
}

// ParseWordKey splits a checkpoint key of the form "lang:word".
func ParseWordKey(key string) (VocabularyWord, bool) {
	lang, word, ok := strings.Cut(key, ":")
	if !ok || lang == "" || word == "" {
		return VocabularyWord{}, false
	}
	return VocabularyWord{Word: word, Language: lang}, true
}

// RetryFailedUploads resubmits every video in the failed-upload log, using
// the verification cached for it. Resolved entries are removed from the log;
// word-level failures of words that have since finished are dropped too.
func RetryFailedUploads(ctx context.Context, cache Cache, state *FileStateStore, ingester MappingIngester,
	runID string, logger *slog.Logger) (RetryReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		report   RetryReport
		keep     []FailureEntry
		mappings []VerifiedMapping
		queued   = make(map[string]bool)
	)

	for _, entry := range state.Failures() {
		if entry.ClipID == "" || entry.Stage != string(StageIngest) {
			if state.HasProcessed(entry.Word) {
				report.Pruned++
				continue
			}
			keep = append(keep, entry)
			continue
		}

		word, ok := ParseWordKey(entry.Word)
		if !ok {
			report.Unrecoverable++
			keep = append(keep, entry)
			continue
		}
		var record finalAnalysis
		found, err := cache.Get(ctx, StageFinalAnalysis, Key{Word: cacheWord(word), ClipID: entry.ClipID}, &record)
		if err != nil {
			return report, err
		}
		if !found || record.Status != VerifyVerified || record.Mapping == nil || !fileExists(record.Mapping.VideoPath) {
			logger.Warn("no verified clip to retry", "word", entry.Word, "clip_id", entry.ClipID)
			report.Unrecoverable++
			keep = append(keep, entry)
			continue
		}

		if key := record.Mapping.VideoKey(); !queued[key] {
			queued[key] = true
			mappings = append(mappings, *record.Mapping)
		}
	}

	if len(mappings) > 0 {
		report.Attempted = len(mappings)
		results, err := ingester.Ingest(ctx, mappings, runID)
		if err != nil {
			return report, fmt.Errorf("retry uploads: %w", err)
		}
		for _, r := range results {
			if r.Err != nil {
				report.Failed++
			} else {
				report.Uploaded++
			}
		}
	}

	// Videos that failed again were logged afresh under runID by the ingester.
	for _, entry := range state.Failures() {
		if entry.RunID == runID && entry.Stage == string(StageIngest) {
			keep = append(keep, entry)
		}
	}
	if err := state.ReplaceFailures(keep); err != nil {
		return report, err
	}

	logger.Info("failed uploads retried",
		"attempted", report.Attempted,
		"uploaded", report.Uploaded,
		"failed", report.Failed,
		"unrecoverable", report.Unrecoverable,
		"pruned", report.Pruned)
	return report, nil
}
