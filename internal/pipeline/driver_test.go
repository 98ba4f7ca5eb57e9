package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/clipsearch"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/scoring"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/ffmpeg"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/logging"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, w VocabularyWord) ([]CandidateClip, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]CandidateClip), args.Error(1)
}

type MockFilter struct {
	mock.Mock
}

func (m *MockFilter) Filter(ctx context.Context, w VocabularyWord, vocab []string, c []CandidateClip) (FilterResult, error) {
	args := m.Called(ctx, w, vocab, c)
	return args.Get(0).(FilterResult), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, w VocabularyWord, vocab []string, c ScoredCandidate) (*VerifiedMapping, error) {
	args := m.Called(ctx, w, vocab, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VerifiedMapping), args.Error(1)
}

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, mappings []VerifiedMapping, runID string) ([]IngestResult, error) {
	args := m.Called(ctx, mappings, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]IngestResult), args.Error(1)
}

type mockStages struct {
	search *MockSearcher
	filter *MockFilter
	verify *MockVerifier
	ingest *MockIngester
}

func newMockStages() *mockStages {
	return &mockStages{
		search: &MockSearcher{},
		filter: &MockFilter{},
		verify: &MockVerifier{},
		ingest: &MockIngester{},
	}
}

func (m *mockStages) stages() Stages {
	return Stages{Search: m.search, Filter: m.filter, Verify: m.verify, Ingest: m.ingest}
}

// Fixtures for one word passing a single candidate through every stage.
func clipFor(w VocabularyWord) CandidateClip {
	return CandidateClip{ClipID: w.Word + "-clip"}
}

func candidateFor(w VocabularyWord) ScoredCandidate {
	return ScoredCandidate{Clip: clipFor(w), Score: 0.9}
}

func mappingFor(w VocabularyWord) VerifiedMapping {
	return VerifiedMapping{Word: w.Word, Language: w.Language, Clip: clipFor(w), Format: "mp4"}
}

// passThrough registers the happy path for w. Expectations registered
// earlier take precedence.
func (m *mockStages) passThrough(w VocabularyWord) {
	mapping := mappingFor(w)
	m.search.On("Search", mock.Anything, w).Return([]CandidateClip{clipFor(w)}, nil)
	m.filter.On("Filter", mock.Anything, w, mock.Anything, []CandidateClip{clipFor(w)}).
		Return(FilterResult{Accepted: []ScoredCandidate{candidateFor(w)}}, nil)
	m.verify.On("Verify", mock.Anything, w, mock.Anything, candidateFor(w)).Return(&mapping, nil)
	m.ingest.On("Ingest", mock.Anything, []VerifiedMapping{mapping}, mock.Anything).
		Return([]IngestResult{{VideoKey: mapping.VideoKey(), Status: "created", MappingsCreated: 1}}, nil)
}

func words(ws ...string) []VocabularyWord {
	out := make([]VocabularyWord, len(ws))
	for i, w := range ws {
		out[i] = VocabularyWord{Word: w, Language: "en"}
	}
	return out
}

func TestDriver_EndToEnd(t *testing.T) {
	root := t.TempDir()
	cache, err := NewFilesystemCache(filepath.Join(root, "cache"))
	require.NoError(t, err)
	state := openTestState(t, root)

	metaText := "call someone, this is an emergency"
	catalog := &fakeCatalog{pages: map[string][]clipsearch.Page{
		"emergency": {{Hits: []clipsearch.Hit{hit("c1", metaText, 5, 100)}}},
	}}
	scorer := &fakeScorer{byText: map[string][]scoring.WordScore{
		metaText:  {ws("emergency", 0.8)},
		audioText: {ws("emergency", 0.92)},
	}}
	vf := newVerifyFixture(t)
	uploader := &fakeUploader{}
	policy := ScorePolicy{MinScore: 0.6, MaxWordsPerClip: 5}

	stages := Stages{
		Search: NewSearcher(catalog, cache, SearchOptions{MaxCandidates: 10}, logging.Discard()),
		Filter: NewFilter(scorer, cache, policy, logging.Discard()),
		Verify: NewVerifier(vf.fetcher, vf.extractor, vf.transcriber, scorer, cache, policy, VerifyOptions{
			VideoDir: filepath.Join(root, "videos"),
			WorkDir:  filepath.Join(root, "work"),
			Audio:    ffmpeg.DefaultAudioOptions(),
		}, logging.Discard()),
		Ingest: NewIngester(uploader, state, 10, logging.Discard()),
	}
	driver := NewDriver(stages, state, DriverOptions{StorageRoot: root}, logging.Discard())

	summary, err := driver.Run(context.Background(), words("emergency"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.VideosUploaded)
	assert.Equal(t, 1, summary.MappingsCreated)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Reports, 1)
	assert.Equal(t, StateDone, summary.Reports[0].State)

	sent := uploader.uploaded()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].WordMappings, 1)
	assert.Equal(t, "emergency", sent[0].WordMappings[0].Word)
	assert.Equal(t, 0.92, sent[0].WordMappings[0].RelevanceScore)
	assert.Equal(t, SourceAudio, sent[0].WordMappings[0].TranscriptSource)
	assert.Equal(t, summary.RunID, uploader.requests[0].SourceID)
	assert.True(t, state.HasProcessed("en:emergency"))

	// Resuming does no work for a finished word
	again, err := driver.Run(context.Background(), words("emergency"))
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, 1, catalog.calls())
	assert.Len(t, uploader.requests, 1)
}

func TestDriver_ExpiredDownloadFinishesWord(t *testing.T) {
	m := newMockStages()
	w := VocabularyWord{Word: "emergency", Language: "en"}
	m.verify.On("Verify", mock.Anything, w, mock.Anything, candidateFor(w)).Return(nil, nil)
	m.passThrough(w)
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), words("emergency"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	m.ingest.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, state.HasProcessed("en:emergency"))
}

func TestDriver_LowRelevanceNeverVerifies(t *testing.T) {
	m := newMockStages()
	w := VocabularyWord{Word: "emergency", Language: "en"}
	m.filter.On("Filter", mock.Anything, w, mock.Anything, mock.Anything).Return(FilterResult{}, nil)
	m.passThrough(w)
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), words("emergency"))
	require.NoError(t, err)
	m.verify.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, summary.Reports[0].Candidates)
	assert.Equal(t, 0, summary.Reports[0].Accepted)
	assert.True(t, state.HasProcessed("en:emergency"))
}

func TestDriver_StageFailureLeavesWordPending(t *testing.T) {
	m := newMockStages()
	bad := VocabularyWord{Word: "bad", Language: "en"}
	m.search.On("Search", mock.Anything, bad).Return(nil, apperrors.Throttled("catalog", errors.New("429")))
	m.passThrough(VocabularyWord{Word: "good", Language: "en"})
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), words("bad", "good"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, StageMetadata, summary.Reports[0].FailedStage)
	assert.False(t, state.HasProcessed("en:bad"))
	assert.True(t, state.HasProcessed("en:good"))

	failures := state.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "en:bad", failures[0].Word)
	assert.Equal(t, string(StageMetadata), failures[0].Stage)
}

func TestDriver_DeferredScoringKeepsWordPending(t *testing.T) {
	m := newMockStages()
	w := VocabularyWord{Word: "emergency", Language: "en"}
	throttled := apperrors.Throttled("scoring", errors.New("429"))
	m.filter.On("Filter", mock.Anything, w, mock.Anything, mock.Anything).
		Return(FilterResult{Accepted: []ScoredCandidate{candidateFor(w)}, Deferred: 1, LastErr: throttled}, nil)
	m.passThrough(w)
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), words("emergency"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Processed)
	report := summary.Reports[0]
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StageCandidates, report.FailedStage)
	assert.Equal(t, 1, report.VideosUploaded)
	assert.False(t, state.HasProcessed("en:emergency"))

	failures := state.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, string(StageCandidates), failures[0].Stage)
	m.ingest.AssertNumberOfCalls(t, "Ingest", 1)
}

func TestDriver_RetryableVerifyErrorKeepsWordPending(t *testing.T) {
	m := newMockStages()
	w := VocabularyWord{Word: "emergency", Language: "en"}
	m.verify.On("Verify", mock.Anything, w, mock.Anything, mock.Anything).
		Return(nil, apperrors.TransientIO("transcription", errors.New("503")))
	m.passThrough(w)
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), words("emergency"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, StageFinalAnalysis, summary.Reports[0].FailedStage)
	assert.False(t, state.HasProcessed("en:emergency"))
}

func TestDriver_IngestFailureKeepsWordPending(t *testing.T) {
	m := newMockStages()
	w := VocabularyWord{Word: "emergency", Language: "en"}
	mapping := mappingFor(w)
	m.ingest.On("Ingest", mock.Anything, mock.Anything, mock.Anything).
		Return([]IngestResult{{VideoKey: mapping.VideoKey(), Err: errors.New("502")}}, nil)
	m.passThrough(w)
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), words("emergency"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Reports[0].IngestFailures)
	assert.False(t, state.HasProcessed("en:emergency"))
}

func TestDriver_FatalErrorAbortsRun(t *testing.T) {
	m := newMockStages()
	m.search.On("Search", mock.Anything, mock.Anything).Return([]CandidateClip{{ClipID: "c1"}}, nil)
	m.filter.On("Filter", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(FilterResult{}, apperrors.ConfigRequired("scoring.api_key"))
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), words("a", "b", "c"))
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	m.search.AssertNumberOfCalls(t, "Search", 1)
	assert.False(t, summary.Stopped)
}

func TestDriver_CancellationFinishesInFlightWord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newMockStages()
	one := VocabularyWord{Word: "one", Language: "en"}
	mapping := mappingFor(one)
	m.search.On("Search", mock.Anything, one).
		Run(func(mock.Arguments) { cancel() }).
		Return([]CandidateClip{clipFor(one)}, nil)
	m.ingest.On("Ingest", mock.Anything, []VerifiedMapping{mapping}, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return([]IngestResult{{VideoKey: mapping.VideoKey(), Status: "created", MappingsCreated: 1}}, nil)
	m.passThrough(one)
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(ctx, words("one", "two"))
	assert.ErrorIs(t, err, ErrStopped)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 1, summary.Processed)
	assert.True(t, state.HasProcessed("en:one"))
	assert.False(t, state.HasProcessed("en:two"))
	m.search.AssertNumberOfCalls(t, "Search", 1)
}

func TestDriver_ParallelWorkers(t *testing.T) {
	m := newMockStages()
	list := words("a", "b", "c", "d", "e")
	for _, w := range list {
		m.passThrough(w)
	}
	state := openTestState(t, t.TempDir())

	summary, err := NewDriver(m.stages(), state, DriverOptions{Workers: 3}, logging.Discard()).Run(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Processed)
	require.Len(t, summary.Reports, 5)
	for i, r := range summary.Reports {
		assert.Equal(t, list[i].Word, r.Word)
	}
	assert.Equal(t, 5, summary.MappingsCreated)
	m.ingest.AssertNumberOfCalls(t, "Ingest", 5)
}

func TestDriver_RunLockHeld(t *testing.T) {
	root := t.TempDir()
	lock, err := AcquireRunLock(root)
	require.NoError(t, err)
	defer lock.Release()

	m := newMockStages()
	state := openTestState(t, root)
	_, err = NewDriver(m.stages(), state, DriverOptions{StorageRoot: root}, logging.Discard()).Run(context.Background(), words("a"))
	assert.ErrorIs(t, err, ErrRunLocked)
	m.search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestDriver_PassesLanguageVocabulary(t *testing.T) {
	m := newMockStages()
	list := []VocabularyWord{{"run", "en"}, {"chat", "fr"}, {"walk", "en"}}
	m.search.On("Search", mock.Anything, mock.Anything).Return([]CandidateClip{{ClipID: "c1"}}, nil)
	m.filter.On("Filter", mock.Anything, list[0], []string{"run", "walk"}, mock.Anything).Return(FilterResult{}, nil).Once()
	m.filter.On("Filter", mock.Anything, list[1], []string{"chat"}, mock.Anything).Return(FilterResult{}, nil).Once()
	m.filter.On("Filter", mock.Anything, list[2], []string{"run", "walk"}, mock.Anything).Return(FilterResult{}, nil).Once()
	state := openTestState(t, t.TempDir())

	_, err := NewDriver(m.stages(), state, DriverOptions{}, logging.Discard()).Run(context.Background(), list)
	require.NoError(t, err)
	m.filter.AssertExpectations(t)
}
