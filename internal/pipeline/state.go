package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	processedWordsFile = "processed_words.txt"
	uploadedVideosFile = "uploaded_videos.txt"
	failedUploadsFile  = "failed_uploads.jsonl"
	stateLockFile      = ".state.lock"
	runLockFile        = ".run.lock"
)

// ErrRunLocked is returned when another process holds the run lock for the
// same storage root.
var ErrRunLocked = errors.New("another run is using this storage root")

// FailureEntry is one line of the failed-upload log.
type FailureEntry struct {
	Word      string    `json:"word"`
	ClipID    string    `json:"clip_id,omitempty"`
	VideoKey  string    `json:"video_key,omitempty"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
}

// StateSnapshot is a point-in-time copy of the persisted pipeline state.
type StateSnapshot struct {
	ProcessedWords []string       `json:"processed_words"`
	UploadedVideos []string       `json:"uploaded_videos"`
	Failures       []FailureEntry `json:"failures"`
}

// StateStore is the checkpoint store. Records are only ever appended; the
// Reset methods exist for deliberate operator action.
type StateStore interface {
	HasProcessed(word string) bool
	MarkProcessed(word string) error
	HasUploaded(videoKey string) bool
	RecordUpload(videoKey string) error
	RecordFailure(entry FailureEntry) error
	Failures() []FailureEntry
	Snapshot() StateSnapshot
}

// FileStateStore persists state as flat files under a storage root. Appends
// are serialized in-process by a mutex and across processes by an advisory
// file lock.
type FileStateStore struct {
	root   string
	logger *slog.Logger

	mu        sync.Mutex
	fileLock  *flock.Flock
	processed map[string]struct{}
	uploaded  map[string]struct{}
	failures  []FailureEntry
}

// OpenFileStateStore loads the state files under root, creating root if needed.
func OpenFileStateStore(root string, logger *slog.Logger) (*FileStateStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("state root is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create state root: %w", err)
	}
	s := &FileStateStore{
		root:      root,
		logger:    logger,
		fileLock:  flock.New(filepath.Join(root, stateLockFile)),
		processed: make(map[string]struct{}),
		uploaded:  make(map[string]struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStateStore) load() error {
	if err := s.fileLock.RLock(); err != nil {
		return fmt.Errorf("lock state: %w", err)
	}
	defer s.fileLock.Unlock()

	words, err := readLines(filepath.Join(s.root, processedWordsFile))
	if err != nil {
		return err
	}
	for _, w := range words {
		s.processed[w] = struct{}{}
	}

	videos, err := readLines(filepath.Join(s.root, uploadedVideosFile))
	if err != nil {
		return err
	}
	for _, v := range videos {
		s.uploaded[v] = struct{}{}
	}

	lines, err := readLines(filepath.Join(s.root, failedUploadsFile))
	if err != nil {
		return err
	}
	for _, line := range lines {
		var entry FailureEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.logger.Warn("skipping unreadable failure record", "error", err)
			continue
		}
		s.failures = append(s.failures, entry)
	}
	return nil
}

// readLines returns the complete, non-blank lines of path. A trailing line
// without a newline is the remains of an interrupted append and is ignored.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[:i+1]
	} else {
		data = nil
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return lines, nil
}

// appendLine appends line to name, first cutting off any torn record left
// by an interrupted append.
func (s *FileStateStore) appendLine(name, line string) error {
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock state: %w", err)
	}
	defer s.fileLock.Unlock()

	f, err := os.OpenFile(filepath.Join(s.root, name), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if end, err := completeLength(f, info.Size()); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	} else if end != info.Size() {
		s.logger.Warn("dropping torn state record", "file", name, "bytes", info.Size()-end)
		if err := f.Truncate(end); err != nil {
			return fmt.Errorf("truncate %s: %w", name, err)
		}
	}

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return f.Sync()
}

// completeLength returns the length of f up to and including its last newline.
func completeLength(f *os.File, size int64) (int64, error) {
	const chunk = 4096
	buf := make([]byte, chunk)
	for end := size; end > 0; {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// HasProcessed reports whether word finished in an earlier run.
func (s *FileStateStore) HasProcessed(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[word]
	return ok
}

// MarkProcessed records word as done. Marking twice writes one line.
func (s *FileStateStore) MarkProcessed(word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return errors.New("word is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[word]; ok {
		return nil
	}
	if err := s.appendLine(processedWordsFile, word); err != nil {
		return err
	}
	s.processed[word] = struct{}{}
	return nil
}

// HasUploaded reports whether the backend confirmed videoKey.
func (s *FileStateStore) HasUploaded(videoKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.uploaded[videoKey]
	return ok
}

// RecordUpload records a backend-confirmed video.
func (s *FileStateStore) RecordUpload(videoKey string) error {
	videoKey = strings.TrimSpace(videoKey)
	if videoKey == "" {
		return errors.New("video key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploaded[videoKey]; ok {
		return nil
	}
	if err := s.appendLine(uploadedVideosFile, videoKey); err != nil {
		return err
	}
	s.uploaded[videoKey] = struct{}{}
	return nil
}

// RecordFailure appends entry to the failed-upload log.
func (s *FileStateStore) RecordFailure(entry FailureEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode failure: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLine(failedUploadsFile, string(data)); err != nil {
		return err
	}
	s.failures = append(s.failures, entry)
	return nil
}

// Failures returns a copy of the failed-upload log.
func (s *FileStateStore) Failures() []FailureEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailureEntry(nil), s.failures...)
}

// Snapshot returns sorted copies of all state records.
func (s *FileStateStore) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StateSnapshot{
		ProcessedWords: make([]string, 0, len(s.processed)),
		UploadedVideos: make([]string, 0, len(s.uploaded)),
		Failures:       append([]FailureEntry(nil), s.failures...),
	}
	for w := range s.processed {
		snap.ProcessedWords = append(snap.ProcessedWords, w)
	}
	for v := range s.uploaded {
		snap.UploadedVideos = append(snap.UploadedVideos, v)
	}
	sort.Strings(snap.ProcessedWords)
	sort.Strings(snap.UploadedVideos)
	return snap
}

// ResetProcessed forgets every processed word so the next run redoes them.
func (s *FileStateStore) ResetProcessed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.removeFile(processedWordsFile); err != nil {
		return err
	}
	s.processed = make(map[string]struct{})
	return nil
}

// ResetUploads forgets every confirmed upload.
func (s *FileStateStore) ResetUploads() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.removeFile(uploadedVideosFile); err != nil {
		return err
	}
	s.uploaded = make(map[string]struct{})
	return nil
}

// ReplaceFailures rewrites the failed-upload log with entries. Used after an
// operator retry to drop the failures that were resolved.
func (s *FileStateStore) ReplaceFailures(entries []FailureEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode failure: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock state: %w", err)
	}
	defer s.fileLock.Unlock()
	if err := writeFileAtomic(filepath.Join(s.root, failedUploadsFile), buf.Bytes(), 0o644); err != nil {
		return err
	}
	s.failures = append([]FailureEntry(nil), entries...)
	return nil
}

func (s *FileStateStore) removeFile(name string) error {
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock state: %w", err)
	}
	defer s.fileLock.Unlock()
	if err := os.Remove(filepath.Join(s.root, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// RunLock guards a storage root against two concurrent runs.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the run lock for root without blocking.
func AcquireRunLock(root string) (*RunLock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create state root: %w", err)
	}
	lock := flock.New(filepath.Join(root, runLockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunLocked
	}
	return &RunLock{lock: lock}, nil
}

// Release gives the run lock back.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
