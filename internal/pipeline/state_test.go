package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianzhicdev/dogetionary-sub008/pkg/logging"
)

func openTestState(t *testing.T, root string) *FileStateStore {
	t.Helper()
	store, err := OpenFileStateStore(root, logging.Discard())
	require.NoError(t, err)
	return store
}

func TestFileStateStore_PersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	store := openTestState(t, root)

	require.NoError(t, store.MarkProcessed("en:emergency"))
	require.NoError(t, store.MarkProcessed("en:emergency"))
	require.NoError(t, store.RecordUpload("rescue.mp4#abc"))
	require.NoError(t, store.RecordFailure(FailureEntry{Word: "en:fire", Stage: "ingest", Error: "boom"}))

	reopened := openTestState(t, root)
	assert.True(t, reopened.HasProcessed("en:emergency"))
	assert.False(t, reopened.HasProcessed("en:fire"))
	assert.True(t, reopened.HasUploaded("rescue.mp4#abc"))

	failures := reopened.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "boom", failures[0].Error)
	assert.False(t, failures[0].Timestamp.IsZero())

	data, err := os.ReadFile(filepath.Join(root, processedWordsFile))
	require.NoError(t, err)
	assert.Equal(t, "en:emergency\n", string(data))
}

func TestFileStateStore_IgnoresTornTrailingLine(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, processedWordsFile), []byte("en:one\nen:tw"), 0o644))

	store := openTestState(t, root)
	assert.True(t, store.HasProcessed("en:one"))
	assert.False(t, store.HasProcessed("en:tw"))

	// The next append replaces the torn record
	require.NoError(t, store.MarkProcessed("en:two"))
	data, err := os.ReadFile(filepath.Join(root, processedWordsFile))
	require.NoError(t, err)
	assert.Equal(t, "en:one\nen:two\n", string(data))

	reopened := openTestState(t, root)
	assert.True(t, reopened.HasProcessed("en:two"))
	assert.False(t, reopened.HasProcessed("en:tw"))
}

func TestFileStateStore_SkipsUnreadableFailure(t *testing.T) {
	root := t.TempDir()
	content := "{\"word\":\"en:a\",\"stage\":\"ingest\",\"error\":\"x\"}\nnot-json\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, failedUploadsFile), []byte(content), 0o644))

	store := openTestState(t, root)
	assert.Len(t, store.Failures(), 1)
}

func TestFileStateStore_Snapshot(t *testing.T) {
	store := openTestState(t, t.TempDir())
	require.NoError(t, store.MarkProcessed("en:b"))
	require.NoError(t, store.MarkProcessed("en:a"))
	require.NoError(t, store.RecordUpload("v.mp4#1"))

	snap := store.Snapshot()
	assert.Equal(t, []string{"en:a", "en:b"}, snap.ProcessedWords)
	assert.Equal(t, []string{"v.mp4#1"}, snap.UploadedVideos)
	assert.Empty(t, snap.Failures)
}

func TestFileStateStore_Resets(t *testing.T) {
	root := t.TempDir()
	store := openTestState(t, root)
	require.NoError(t, store.MarkProcessed("en:a"))
	require.NoError(t, store.RecordUpload("v.mp4#1"))
	require.NoError(t, store.RecordFailure(FailureEntry{Word: "en:a", Stage: "ingest", Error: "x"}))
	require.NoError(t, store.RecordFailure(FailureEntry{Word: "en:b", Stage: "ingest", Error: "y"}))

	require.NoError(t, store.ResetProcessed())
	require.NoError(t, store.ResetUploads())
	require.NoError(t, store.ReplaceFailures(store.Failures()[1:]))

	reopened := openTestState(t, root)
	assert.False(t, reopened.HasProcessed("en:a"))
	assert.False(t, reopened.HasUploaded("v.mp4#1"))
	require.Len(t, reopened.Failures(), 1)
	assert.Equal(t, "en:b", reopened.Failures()[0].Word)
}

func TestFileStateStore_RejectsEmptyKeys(t *testing.T) {
	store := openTestState(t, t.TempDir())
	assert.Error(t, store.MarkProcessed(" "))
	assert.Error(t, store.RecordUpload(""))
}

func TestRunLock(t *testing.T) {
	root := t.TempDir()
	first, err := AcquireRunLock(root)
	require.NoError(t, err)

	_, err = AcquireRunLock(root)
	assert.ErrorIs(t, err, ErrRunLocked)

	require.NoError(t, first.Release())
	second, err := AcquireRunLock(root)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestFailureEntryTimestampKept(t *testing.T) {
	store := openTestState(t, t.TempDir())
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordFailure(FailureEntry{Word: "en:a", Stage: "metadata", Error: "x", Timestamp: ts}))
	assert.Equal(t, ts, store.Failures()[0].Timestamp)
}
