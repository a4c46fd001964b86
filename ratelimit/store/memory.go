package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count  int64
	start  time.Time
	window time.Duration
}

// closed reports whether the window has been open longer than its duration.
// A request landing exactly on the boundary still belongs to the old window.
func (e *memoryEntry) closed(now time.Time) bool {
	return now.Sub(e.start) > e.window
}

// Memory is the per-process ledger: a map guarded by a single mutex.
//
// Every gateway instance keeps its own Memory, so the effective limit grows with
// the number of instances. Use the Redis store when instances must share one ledger.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	now      func() time.Time
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock replaces time.Now. Tests use it to move the window boundary.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithCleanupInterval sets how often closed windows are evicted.
// Zero or negative disables eviction and the ledger grows with every new key.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.interval = d
	}
}

// NewMemory creates an in-memory ledger. Unless disabled with
// WithCleanupInterval(0), a background goroutine evicts closed windows once a
// minute; call Close to stop it.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:  make(map[string]*memoryEntry),
		now:      time.Now,
		interval: time.Minute,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.interval > 0 {
		go m.cleanup()
	}
	return m
}

// Increment applies the fixed-window step for key under the store lock, so
// concurrent requests from the same key never lose an update.
//
// The context is accepted for interface compatibility; in-memory operations
// complete immediately.
func (m *Memory) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, exists := m.entries[key]
	if !exists {
		entry = &memoryEntry{start: now, window: window}
		m.entries[key] = entry
	}

	if entry.closed(now) {
		entry.count = 1
		entry.start = now
		entry.window = window
	} else {
		entry.count++
	}

	ttl := max(0, entry.start.Add(window).Sub(now))
	return entry.count, ttl, nil
}

// Get returns the open window for key, or the zero Window.
func (m *Memory) Get(_ context.Context, key string) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists || entry.closed(m.now()) {
		return Window{}, nil
	}
	return Window{Count: entry.count, Start: entry.start}, nil
}

// Reset removes the window for key.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Len returns the number of keys currently held, closed windows included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	return nil
}

// runCleanup evicts every closed window in one pass.
func (m *Memory) runCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.entries {
		if entry.closed(now) {
			delete(m.entries, key)
		}
	}
}

func (m *Memory) cleanup() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runCleanup()
		case <-m.stopCh:
			return
		}
	}
}
