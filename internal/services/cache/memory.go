package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL applies when Set is called without a positive ttl.
const DefaultTTL = 30 * time.Second

type entry struct {
	value  []byte
	expiry time.Time
	size   int64
}

// Memory is a size-bounded in-memory Cache. When full, entries closest to
// expiry are evicted first.
type Memory struct {
	mu      sync.Mutex
	items   map[string]*entry
	size    int64
	maxSize int64
	stats   Stats
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemory creates a cache holding at most maxBytes of keys and values
// (0 = unbounded) and starts a sweeper that drops expired entries every
// sweepEvery (0 = never).
func NewMemory(maxBytes int64, sweepEvery time.Duration) *Memory {
	m := &Memory{
		items:   make(map[string]*entry),
		maxSize: maxBytes,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go m.sweep(sweepEvery)
	} else {
		close(m.done)
	}
	return m
}

// Get returns the value stored under key if it has not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok || !m.now().Before(e.expiry) {
		if ok {
			m.remove(key, e)
		}
		m.stats.Misses++
		return nil, false
	}
	m.stats.Hits++
	return e.value, true
}

// Set stores value under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	size := int64(len(key) + len(value))

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.items[key]; ok {
		m.remove(key, old)
	}
	if m.maxSize > 0 && size > m.maxSize {
		return nil
	}
	m.makeRoom(size)
	m.items[key] = &entry{value: value, expiry: m.now().Add(ttl), size: size}
	m.size += size
	m.stats.Sets++
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	if e, ok := m.items[key]; ok {
		m.remove(key, e)
	}
	m.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]*entry)
	m.size = 0
	m.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Size = m.size
	s.MaxSize = m.maxSize
	return s
}

// Stop ends the sweeper.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Memory) sweep(every time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.removeExpired()
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// remove must be called with mu held.
func (m *Memory) remove(key string, e *entry) {
	delete(m.items, key)
	m.size -= e.size
}

func (m *Memory) removeExpired() {
	now := m.now()
	for key, e := range m.items {
		if !now.Before(e.expiry) {
			m.remove(key, e)
			m.stats.Evictions++
		}
	}
}

func (m *Memory) makeRoom(needed int64) {
	if m.maxSize <= 0 || m.size+needed <= m.maxSize {
		return
	}
	m.removeExpired()
	for m.size+needed > m.maxSize && len(m.items) > 0 {
		var (
			victim string
			oldest *entry
		)
		for key, e := range m.items {
			if oldest == nil || e.expiry.Before(oldest.expiry) {
				victim, oldest = key, e
			}
		}
		m.remove(victim, oldest)
		m.stats.Evictions++
	}
}
