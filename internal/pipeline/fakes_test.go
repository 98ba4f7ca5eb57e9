package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/clipsearch"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/scoring"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/videos"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/whisper"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/download"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/ffmpeg"
)

type fakeCatalog struct {
	mu      sync.Mutex
	pages   map[string][]clipsearch.Page
	err     error
	queries []clipsearch.Query
}

func (f *fakeCatalog) Search(_ context.Context, q clipsearch.Query) (*clipsearch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	pages := f.pages[q.Term]
	if q.Page-1 >= len(pages) {
		return &clipsearch.Page{Page: q.Page, TotalPages: len(pages)}, nil
	}
	p := pages[q.Page-1]
	p.Page = q.Page
	p.TotalPages = len(pages)
	return &p, nil
}

func (f *fakeCatalog) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// fakeScorer answers with fixed scores per transcript.
type fakeScorer struct {
	mu       sync.Mutex
	byText   map[string][]scoring.WordScore
	err      error
	requests []scoring.Request
}

func (f *fakeScorer) Score(_ context.Context, req scoring.Request) ([]scoring.WordScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.byText[req.Transcript], nil
}

func (f *fakeScorer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeFetcher writes small fake video files.
type fakeFetcher struct {
	mu    sync.Mutex
	dir   string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Download(_ context.Context, rawURL, name string, _ time.Time) (*download.DownloadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, "clip_"+name+".mp4")
	data := []byte("video:" + rawURL)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &download.DownloadResult{FilePath: path, ContentType: "video/mp4", ContentLength: int64(len(data)), Format: "mp4"}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, input, outDir string, _ ffmpeg.AudioOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(outDir, filepath.Base(input)+".mp3")
	return out, os.WriteFile(out, []byte("audio"), 0o644)
}

// fakeTranscriber returns a transcript keyed by the source video file name.
type fakeTranscriber struct {
	mu      sync.Mutex
	byClip  map[string]*whisper.Transcript
	err     error
	invoked int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath, _ string) (*whisper.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked++
	if f.err != nil {
		return nil, f.err
	}
	base := filepath.Base(audioPath)
	for id, tr := range f.byClip {
		if base == id+".mp4.mp3" {
			return tr, nil
		}
	}
	return &whisper.Transcript{}, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	requests []*videos.BatchUploadRequest
	err      error
	nextID   uint
}

func (f *fakeUploader) UploadBatch(_ context.Context, req *videos.BatchUploadRequest) (*videos.BatchUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := &videos.BatchUploadResponse{Success: true, TotalVideos: len(req.Videos)}
	for _, v := range req.Videos {
		f.nextID++
		resp.Results = append(resp.Results, videos.VideoResult{
			Slug:            v.Slug,
			VideoID:         f.nextID,
			Status:          videos.StatusCreated,
			MappingsCreated: len(v.WordMappings),
		})
		resp.TotalMappings += len(v.WordMappings)
	}
	return resp, nil
}

func (f *fakeUploader) uploaded() []videos.VideoInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []videos.VideoInput
	for _, r := range f.requests {
		out = append(out, r.Videos...)
	}
	return out
}

func ws(word string, score float64) scoring.WordScore {
	return scoring.WordScore{Word: word, Score: score, Reason: "test"}
}
