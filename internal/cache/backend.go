package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Backend is a byte-oriented key-value store with per-entry expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one slot per key; misses are nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// InvalidatePattern deletes every key matching a glob pattern and
	// returns how many were removed.
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
	Close() error
}

// Sizer reports how many live entries a backend holds.
type Sizer interface {
	Len(ctx context.Context) (int, error)
}

type memEntry struct {
	val       []byte
	expiresAt time.Time
}

// MemoryBackend is the in-process fallback. Expired entries are dropped
// lazily on read or by Sweep.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memEntry), now: time.Now}
}

// SetClock overrides the time source.
func (m *MemoryBackend) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryBackend) getLocked(key string, now time.Time) ([]byte, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.After(now) {
		delete(m.entries, key)
		return nil, false
	}
	return e.val, true
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key, m.now())
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *MemoryBackend) MGet(_ context.Context, keys []string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := m.getLocked(k, now); ok {
			out[i] = v
		}
	}
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memEntry{val: val, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) MSet(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := m.now().Add(ttl)
	for k, v := range items {
		m.entries[k] = memEntry{val: v, expiresAt: exp}
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// InvalidatePattern approximates glob matching: every '*' is removed and the
// remainder is matched as a substring.
func (m *MemoryBackend) InvalidatePattern(_ context.Context, pattern string) (int, error) {
	needle := strings.ReplaceAll(pattern, "*", "")
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if strings.Contains(k, needle) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len counts live entries.
func (m *MemoryBackend) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, e := range m.entries {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryBackend) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Clear drops everything.
func (m *MemoryBackend) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]memEntry)
	m.mu.Unlock()
}

func (m *MemoryBackend) Close() error { return nil }
