package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/logging"
)

func seedFailedUpload(t *testing.T) (*FilesystemCache, *FileStateStore) {
	t.Helper()
	root := t.TempDir()
	cache, err := NewFilesystemCache(filepath.Join(root, "cache"))
	require.NoError(t, err)
	state := openTestState(t, root)

	m := verifiedMapping(t, t.TempDir(), "c1", "emergency")
	require.NoError(t, cache.Put(context.Background(), StageFinalAnalysis, Key{Word: "emergency.en", ClipID: "c1"},
		finalAnalysis{ClipID: "c1", Status: VerifyVerified, Mapping: &m}))
	require.NoError(t, state.RecordFailure(FailureEntry{
		Word: "en:emergency", ClipID: "c1", VideoKey: m.VideoKey(), Stage: string(StageIngest), Error: "502", RunID: "run-1",
	}))
	return cache, state
}

func TestRetryFailedUploads_Resolves(t *testing.T) {
	cache, state := seedFailedUpload(t)
	require.NoError(t, state.MarkProcessed("en:done"))
	require.NoError(t, state.RecordFailure(FailureEntry{Word: "en:done", Stage: string(StageMetadata), Error: "429"}))
	require.NoError(t, state.RecordFailure(FailureEntry{Word: "en:open", Stage: string(StageMetadata), Error: "429"}))

	uploader := &fakeUploader{}
	ing := NewIngester(uploader, state, 10, logging.Discard())

	report, err := RetryFailedUploads(context.Background(), cache, state, ing, "retry-1", logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Pruned)

	failures := state.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "en:open", failures[0].Word)
	assert.Len(t, state.Snapshot().UploadedVideos, 1)
	assert.Equal(t, "retry-1", uploader.requests[0].SourceID)
}

func TestRetryFailedUploads_FailsAgain(t *testing.T) {
	cache, state := seedFailedUpload(t)
	uploader := &fakeUploader{err: apperrors.TransientIO("backend upload", errors.New("503"))}
	ing := NewIngester(uploader, state, 10, logging.Discard())

	report, err := RetryFailedUploads(context.Background(), cache, state, ing, "retry-2", logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	failures := state.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "retry-2", failures[0].RunID)
	assert.Equal(t, "en:emergency", failures[0].Word)
}

func TestRetryFailedUploads_Unrecoverable(t *testing.T) {
	root := t.TempDir()
	cache, err := NewFilesystemCache(filepath.Join(root, "cache"))
	require.NoError(t, err)
	state := openTestState(t, root)
	require.NoError(t, state.RecordFailure(FailureEntry{Word: "en:gone", ClipID: "x", Stage: string(StageIngest), Error: "e"}))

	uploader := &fakeUploader{}
	report, err := RetryFailedUploads(context.Background(), cache, state, NewIngester(uploader, state, 10, logging.Discard()), "r", logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unrecoverable)
	assert.Empty(t, uploader.requests)
	assert.Len(t, state.Failures(), 1)
}

func TestParseWordKey(t *testing.T) {
	w, ok := ParseWordKey("en:give up")
	require.True(t, ok)
	assert.Equal(t, VocabularyWord{Word: "give up", Language: "en"}, w)

	_, ok = ParseWordKey("nolang")
	assert.False(t, ok)
	_, ok = ParseWordKey(":x")
	assert.False(t, ok)
}
