// Package cleanup sweeps leftover downloads and extracted audio from the
// pipeline's scratch directory.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPatterns match downloaded clips and extracted audio tracks.
var DefaultPatterns = []string{"clip_*", "*.mp3"}

// Service removes files matching its patterns once they are older than maxAge.
type Service struct {
	dir      string
	patterns []string
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewService creates a sweeper for dir. A nil patterns list means
// DefaultPatterns.
func NewService(dir string, patterns []string, maxAge, interval time.Duration, logger *slog.Logger) *Service {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dir:      dir,
		patterns: patterns,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start sweeps once, then again every interval until ctx is done or Stop
// is called.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.Sweep()
	if s.interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Debug("cleanup started", "dir", s.dir, "interval", s.interval, "max_age", s.maxAge)
}

// Stop ends the periodic sweep and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep removes stale files now and reports how many were removed.
func (s *Service) Sweep() int {
	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, pattern := range s.patterns {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			s.logger.Warn("bad cleanup pattern", "pattern", pattern, "error", err)
			continue
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove stale file", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("removed stale scratch files", "dir", s.dir, "count", removed)
	}
	return removed
}
