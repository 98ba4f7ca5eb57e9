// Package retry holds the backoff arithmetic shared by the outbound HTTP
// clients: exponential delays with a cap, Retry-After parsing, and a
// context-aware sleep that tests can replace.
package retry

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sleeper replaces the real sleep in tests.
type Sleeper func(time.Duration)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry number attempt (1-based):
// attempt 1 -> Base, attempt 2 -> Base*2, attempt 3 -> Base*4, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && delay > b.Max/2 {
			delay = b.Max
			break
		}
		delay *= 2
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// Schedule hands out the retry delays of a single request. Delays never
// decrease from one retry to the next and never exceed Max, even when a
// server asks for a longer Retry-After.
type Schedule struct {
	backoff Backoff
	prev    time.Duration
}

// Schedule starts a fresh delay sequence for one request.
func (b Backoff) Schedule() *Schedule {
	return &Schedule{backoff: b}
}

// Next returns the wait before retry number attempt: the larger of the
// exponential delay, floor and the previous delay, capped at Max.
func (s *Schedule) Next(attempt int, floor time.Duration) time.Duration {
	delay := max(s.prev, s.backoff.Delay(attempt), floor)
	if s.backoff.Max > 0 && delay > s.backoff.Max {
		delay = s.backoff.Max
	}
	s.prev = delay
	return delay
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// Sleep waits for delay or until ctx is done. With a non-nil sleeper the
// wait is delegated to it.
func Sleep(ctx context.Context, delay time.Duration, sleeper Sleeper) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if sleeper != nil {
		sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
