// Package cache holds short-lived serialized API responses in memory.
package cache

import (
	"context"
	"time"
)

// Cache stores byte values under string keys until they expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear drops every entry.
	Clear(ctx context.Context) error
}

// Stats counts cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int64
	MaxSize   int64
}
