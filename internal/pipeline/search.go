package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/clipsearch"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/textmatch"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/transcript"
)

// ClipSearcher is the catalog client used by the search stage.
type ClipSearcher interface {
	Search(ctx context.Context, q clipsearch.Query) (*clipsearch.Page, error)
}

// SearchOptions bounds the metadata search.
type SearchOptions struct {
	MaxCandidates int
	MinDuration   float64
	MaxDuration   float64
	PageSize      int
	MaxPages      int
}

// Searcher is the metadata search stage.
type Searcher struct {
	client ClipSearcher
	cache  Cache
	opts   SearchOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewSearcher creates the metadata search stage.
func NewSearcher(client ClipSearcher, cache Cache, opts SearchOptions, logger *slog.Logger) *Searcher {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 100
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 2*opts.MaxCandidates/opts.PageSize + 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		client: client,
		cache:  cache,
		opts:   opts,
		logger: logger.With("stage", string(StageMetadata)),
		now:    time.Now,
	}
}

// Search returns up to MaxCandidates clips whose transcript contains the word,
// most viewed first. A cached non-empty result is returned without touching
// the network. Every clip record is cached before the word index is.
func (s *Searcher) Search(ctx context.Context, word VocabularyWord) ([]CandidateClip, error) {
	indexKey := WordKey(cacheWord(word))

	if clips, ok, err := s.loadCached(ctx, word); err != nil {
		return nil, err
	} else if ok {
		s.logger.Debug("metadata cache hit", "word", word.Word, "candidates", len(clips))
		return clips, nil
	}

	seen := make(map[string]struct{})
	var clips []CandidateClip
	pages := 0
	for page := 1; page <= s.opts.MaxPages && len(clips) < s.opts.MaxCandidates; page++ {
		result, err := s.client.Search(ctx, clipsearch.Query{
			Term:        word.Word,
			Language:    word.Language,
			MinDuration: s.opts.MinDuration,
			MaxDuration: s.opts.MaxDuration,
			Sort:        clipsearch.SortViews,
			Page:        page,
			PageSize:    s.opts.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("search page %d: %w", page, err)
		}
		pages++

		for _, hit := range result.Hits {
			clip, reason := s.accept(word, hit, seen)
			if reason != "" {
				s.logger.Debug("dropping search hit", "word", word.Word, "clip_id", hit.ID, "reason", reason)
				continue
			}
			seen[clip.ClipID] = struct{}{}
			if err := s.cache.Put(ctx, StageMetadata, Key{Word: indexKey.Word, ClipID: clip.ClipID}, clip); err != nil {
				return nil, err
			}
			clips = append(clips, clip)
		}
		if !result.HasMore() {
			break
		}
	}

	sortByViews(clips)
	if len(clips) > s.opts.MaxCandidates {
		clips = clips[:s.opts.MaxCandidates]
	}

	index := metadataIndex{
		Word:      word.Word,
		Language:  word.Language,
		ClipIDs:   make([]string, 0, len(clips)),
		Pages:     pages,
		FetchedAt: s.now().UTC(),
	}
	for _, c := range clips {
		index.ClipIDs = append(index.ClipIDs, c.ClipID)
	}
	if err := s.cache.Put(ctx, StageMetadata, indexKey, index); err != nil {
		return nil, err
	}

	s.logger.Info("metadata search complete", "word", word.Word, "pages", pages, "candidates", len(clips))
	return clips, nil
}

func (s *Searcher) loadCached(ctx context.Context, word VocabularyWord) ([]CandidateClip, bool, error) {
	var index metadataIndex
	ok, err := s.cache.Get(ctx, StageMetadata, WordKey(cacheWord(word)), &index)
	if err != nil || !ok || len(index.ClipIDs) == 0 {
		return nil, false, err
	}
	clips := make([]CandidateClip, 0, len(index.ClipIDs))
	for _, id := range index.ClipIDs {
		var clip CandidateClip
		found, err := s.cache.Get(ctx, StageMetadata, Key{Word: cacheWord(word), ClipID: id}, &clip)
		if err != nil {
			return nil, false, err
		}
		if !found {
			// Index without its records; search again.
			return nil, false, nil
		}
		clips = append(clips, clip)
	}
	sortByViews(clips)
	return clips, true, nil
}

// accept converts hit into a candidate, or returns why it was dropped.
func (s *Searcher) accept(word VocabularyWord, hit clipsearch.Hit, seen map[string]struct{}) (CandidateClip, string) {
	id := strings.TrimSpace(hit.ID)
	switch {
	case id == "":
		return CandidateClip{}, "missing clip id"
	case hit.DownloadURL == "":
		return CandidateClip{}, "missing download url"
	}
	if _, dup := seen[id]; dup {
		return CandidateClip{}, "duplicate"
	}
	if hit.Language != "" && !strings.EqualFold(hit.Language, word.Language) {
		return CandidateClip{}, "language mismatch"
	}
	if s.opts.MinDuration > 0 && hit.Duration < s.opts.MinDuration {
		return CandidateClip{}, "too short"
	}
	if s.opts.MaxDuration > 0 && hit.Duration > s.opts.MaxDuration {
		return CandidateClip{}, "too long"
	}
	text := transcript.PlainText(hit.Transcript)
	if text == "" && hit.Subtitles != "" {
		text = transcript.PlainText(hit.Subtitles)
	}
	if !textmatch.Contains(text, word.Word) {
		return CandidateClip{}, "word not in transcript"
	}

	language := hit.Language
	if language == "" {
		language = word.Language
	}
	issued := hit.FetchedAt
	if issued.IsZero() {
		issued = s.now()
	}
	return CandidateClip{
		ClipID:      id,
		Slug:        hit.Slug,
		Title:       hit.Title,
		Transcript:  text,
		Subtitles:   hit.Subtitles,
		DownloadURL: hit.DownloadURL,
		IssuedAt:    issued.UTC(),
		Duration:    hit.Duration,
		Resolution:  hit.Resolution,
		ViewCount:   hit.ViewCount,
		Language:    strings.ToLower(language),
		Movie:       hit.Movie,
	}, ""
}

func sortByViews(clips []CandidateClip) {
	sort.SliceStable(clips, func(i, j int) bool {
		if clips[i].ViewCount != clips[j].ViewCount {
			return clips[i].ViewCount > clips[j].ViewCount
		}
		return clips[i].ClipID < clips[j].ClipID
	})
}

// cacheWord is the per-word cache segment; the same word learned in two
// languages gets two namespaces.
func cacheWord(w VocabularyWord) string {
	return w.Word + "." + w.Language
}
