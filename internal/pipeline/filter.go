package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/scoring"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/textmatch"
)

// RelevanceScorer is the scoring client used by the filter and verify stages.
type RelevanceScorer interface {
	Score(ctx context.Context, req scoring.Request) ([]scoring.WordScore, error)
}

// ScorePolicy is the acceptance rule applied to every set of model scores.
type ScorePolicy struct {
	MinScore        float64
	MaxWordsPerClip int
}

// Apply keeps the scores for vocabulary words that literally occur in
// transcript, clamps them to [0,1], drops those below MinScore, and returns
// at most MaxWordsPerClip of them, best first. A word scored twice keeps its
// higher score. An empty vocabulary accepts any word.
func (p ScorePolicy) Apply(transcript string, vocabulary []string, scores []scoring.WordScore) []scoring.WordScore {
	allowed := make(map[string]struct{}, len(vocabulary))
	for _, w := range vocabulary {
		allowed[models.NormalizeWord(w)] = struct{}{}
	}

	best := make(map[string]scoring.WordScore)
	for _, s := range scores {
		word := models.NormalizeWord(s.Word)
		if word == "" {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[word]; !ok {
				continue
			}
		}
		if !textmatch.Contains(transcript, word) {
			continue
		}
		s.Word = word
		s.Score = clamp01(s.Score)
		if s.Score < p.MinScore {
			continue
		}
		if prev, ok := best[word]; ok && prev.Score >= s.Score {
			continue
		}
		best[word] = s
	}

	out := make([]scoring.WordScore, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sortScores(out)
	if p.MaxWordsPerClip > 0 && len(out) > p.MaxWordsPerClip {
		out = out[:p.MaxWordsPerClip]
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func sortScores(scores []scoring.WordScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Word < scores[j].Word
	})
}

func findScore(scores []scoring.WordScore, word string) (scoring.WordScore, bool) {
	for _, s := range scores {
		if s.Word == word {
			return s, true
		}
	}
	return scoring.WordScore{}, false
}

// Filter is the candidate filter stage.
type Filter struct {
	scorer RelevanceScorer
	cache  Cache
	policy ScorePolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewFilter creates the candidate filter stage.
func NewFilter(scorer RelevanceScorer, cache Cache, policy ScorePolicy, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		scorer: scorer,
		cache:  cache,
		policy: policy,
		logger: logger.With("stage", string(StageCandidates)),
		now:    time.Now,
	}
}

// Filter scores each candidate against vocabulary and returns those where
// the searched word survives the score policy, best first. A scoring failure
// skips that candidate only. Retryable failures are counted in Deferred so the
// caller can keep the word pending; a configuration error aborts.
func (f *Filter) Filter(ctx context.Context, word VocabularyWord, vocabulary []string, candidates []CandidateClip) (FilterResult, error) {
	var result FilterResult
	for _, clip := range candidates {
		if err := ctx.Err(); err != nil {
			return FilterResult{}, err
		}
		key := Key{Word: cacheWord(word), ClipID: clip.ClipID}

		var record filterRecord
		found, err := f.cache.Get(ctx, StageCandidates, key, &record)
		if err != nil {
			return FilterResult{}, err
		}
		if !found {
			record, err = f.score(ctx, word, vocabulary, clip)
			if err != nil {
				if apperrors.IsFatal(err) || ctx.Err() != nil {
					return FilterResult{}, err
				}
				if apperrors.IsRetryable(err) {
					result.Deferred++
					result.LastErr = err
				}
				f.logger.Warn("scoring failed, skipping candidate", "word", word.Word, "clip_id", clip.ClipID, "error", err)
				continue
			}
			if err := f.cache.Put(ctx, StageCandidates, key, record); err != nil {
				return FilterResult{}, err
			}
		}
		if !record.Accepted {
			continue
		}
		own, _ := findScore(record.Scores, word.Word)
		result.Accepted = append(result.Accepted, ScoredCandidate{
			Clip:   clip,
			Score:  own.Score,
			Reason: own.Reason,
			Scores: record.Scores,
		})
	}

	sort.SliceStable(result.Accepted, func(i, j int) bool { return result.Accepted[i].Score > result.Accepted[j].Score })
	f.logger.Info("candidate filter complete", "word", word.Word, "candidates", len(candidates),
		"accepted", len(result.Accepted), "deferred", result.Deferred)
	return result, nil
}

func (f *Filter) score(ctx context.Context, word VocabularyWord, vocabulary []string, clip CandidateClip) (filterRecord, error) {
	title := clip.Title
	if clip.Movie.Title != "" && !strings.Contains(title, clip.Movie.Title) {
		title = strings.TrimSpace(title + " (" + clip.Movie.Title + ")")
	}
	raw, err := f.scorer.Score(ctx, scoring.Request{
		Transcript: clip.Transcript,
		Title:      title,
		Duration:   clip.Duration,
		Vocabulary: vocabulary,
		Language:   word.Language,
	})
	if err != nil {
		return filterRecord{}, err
	}
	scores := f.policy.Apply(clip.Transcript, vocabulary, raw)
	_, ok := findScore(scores, word.Word)
	f.logger.Debug("candidate scored", "word", word.Word, "clip_id", clip.ClipID, "raw", len(raw), "kept", len(scores), "accepted", ok)
	return filterRecord{
		ClipID:   clip.ClipID,
		Accepted: ok,
		Scores:   scores,
		ScoredAt: f.now().UTC(),
	}, nil
}
