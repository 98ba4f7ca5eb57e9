package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Stage names a cache namespace. Each stage writes only its own namespace.
type Stage string

const (
	StageMetadata         Stage = "metadata"
	StageCandidates       Stage = "candidates"
	StageAudioTranscripts Stage = "audio_transcripts"
	StageFinalAnalysis    Stage = "final_analysis"
)

const indexName = "_index"

// Key addresses one cache record. An empty ClipID addresses the word-level
// record of a stage.
type Key struct {
	Word   string
	ClipID string
}

// WordKey is the word-level key for word.
func WordKey(word string) Key {
	return Key{Word: word}
}

// Cache stores stage results keyed by word and clip.
type Cache interface {
	Get(ctx context.Context, stage Stage, key Key, dst any) (bool, error)
	Put(ctx context.Context, stage Stage, key Key, value any) error
	Delete(ctx context.Context, stage Stage, key Key) error
	List(ctx context.Context, stage Stage, word string) ([]Key, error)
}

// FilesystemCache keeps one JSON file per record under
// <root>/<stage>/<word>/<clip_id>.json.
type FilesystemCache struct {
	root string
}

// NewFilesystemCache creates the cache rooted at root.
func NewFilesystemCache(root string) (*FilesystemCache, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("cache root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &FilesystemCache{root: root}, nil
}

// Root returns the backing directory.
func (c *FilesystemCache) Root() string {
	return c.root
}

// Get decodes the record at key into dst. A missing record is not an error.
func (c *FilesystemCache) Get(ctx context.Context, stage Stage, key Key, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := os.ReadFile(c.path(stage, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s cache for %q: %w", stage, key.Word, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s cache for %q/%s: %w", stage, key.Word, key.ClipID, err)
	}
	return true, nil
}

// Put encodes value and replaces the record at key atomically.
func (c *FilesystemCache) Put(ctx context.Context, stage Stage, key Key, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s cache record: %w", stage, err)
	}
	path := c.path(stage, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// Delete removes the record at key. Deleting a missing record succeeds.
func (c *FilesystemCache) Delete(ctx context.Context, stage Stage, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(c.path(stage, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s cache record: %w", stage, err)
	}
	return nil
}

// Clear removes every record of a stage.
func (c *FilesystemCache) Clear(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.root, string(stage))); err != nil {
		return fmt.Errorf("clear %s cache: %w", stage, err)
	}
	return nil
}

// List returns the clip-level keys stored for word, sorted by clip id.
func (c *FilesystemCache) List(ctx context.Context, stage Stage, word string) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.wordDir(stage, word))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s cache for %q: %w", stage, word, err)
	}
	var keys []Key
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if id == indexName {
			continue
		}
		keys = append(keys, Key{Word: word, ClipID: id})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ClipID < keys[j].ClipID })
	return keys, nil
}

func (c *FilesystemCache) wordDir(stage Stage, word string) string {
	return filepath.Join(c.root, string(stage), sanitizeSegment(word))
}

func (c *FilesystemCache) path(stage Stage, key Key) string {
	name := indexName
	if key.ClipID != "" {
		name = sanitizeSegment(key.ClipID)
	}
	return filepath.Join(c.wordDir(stage, key.Word), name+".json")
}

var unsafeSegment = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// sanitizeSegment turns a word or clip id into a single safe path segment.
func sanitizeSegment(s string) string {
	cleaned := unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "_")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "_"
	}
	return cleaned
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
