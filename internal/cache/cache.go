// Package cache provides a JSON key-value cache over a pluggable backend,
// with Redis and in-process implementations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// DefaultTTL applies when neither the call nor the manager sets one.
const DefaultTTL = time.Hour

// Manager serializes values as JSON and namespaces keys.
type Manager struct {
	backend Backend
	prefix  string
	ttl     time.Duration
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeyPrefix prepends prefix to every key.
func WithKeyPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithDefaultTTL sets the TTL used when a call gives none.
func WithDefaultTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager. A nil backend uses a fresh MemoryBackend.
func NewManager(backend Backend, opts ...Option) *Manager {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	m := &Manager{backend: backend, ttl: DefaultTTL, logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With("component", "cache")
	return m
}

// Backend returns the underlying store.
func (m *Manager) Backend() Backend { return m.backend }

type callOpts struct {
	ttl    time.Duration
	prefix string
}

// CallOption adjusts a single call.
type CallOption func(*callOpts)

// TTL overrides the expiry for one write.
func TTL(d time.Duration) CallOption { return func(o *callOpts) { o.ttl = d } }

// Prefix adds a per-call namespace, giving keys of the form "prefix:key".
func Prefix(p string) CallOption { return func(o *callOpts) { o.prefix = p } }

func (m *Manager) resolve(opts []CallOption) callOpts {
	o := callOpts{ttl: m.ttl}
	for _, fn := range opts {
		fn(&o)
	}
	if o.ttl <= 0 {
		o.ttl = m.ttl
	}
	return o
}

func (m *Manager) key(key string, o callOpts) string {
	parts := make([]string, 0, 3)
	if m.prefix != "" {
		parts = append(parts, m.prefix)
	}
	if o.prefix != "" {
		parts = append(parts, o.prefix)
	}
	parts = append(parts, key)
	return strings.Join(parts, ":")
}

// Get decodes the value at key into dst. Backend failures are logged and
// reported as a miss.
func (m *Manager) Get(ctx context.Context, key string, dst any, opts ...CallOption) (bool, error) {
	full := m.key(key, m.resolve(opts))
	b, err := m.backend.Get(ctx, full)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			m.logger.Warn("cache get failed", "key", full, "err", err)
		}
		m.misses.Add(1)
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		m.misses.Add(1)
		return false, fmt.Errorf("decode cache entry %s: %w", full, err)
	}
	m.hits.Add(1)
	return true, nil
}

// Set stores v under key.
func (m *Manager) Set(ctx context.Context, key string, v any, opts ...CallOption) error {
	o := m.resolve(opts)
	full := m.key(key, o)
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", full, err)
	}
	if err := m.backend.Set(ctx, full, b, o.ttl); err != nil {
		m.logger.Warn("cache set failed", "key", full, "err", err)
		return err
	}
	return nil
}

// Delete removes key.
func (m *Manager) Delete(ctx context.Context, key string, opts ...CallOption) error {
	full := m.key(key, m.resolve(opts))
	if err := m.backend.Delete(ctx, full); err != nil {
		m.logger.Warn("cache delete failed", "key", full, "err", err)
		return err
	}
	return nil
}

// MSet stores several values with the same options.
func (m *Manager) MSet(ctx context.Context, items map[string]any, opts ...CallOption) error {
	o := m.resolve(opts)
	raw := make(map[string][]byte, len(items))
	for k, v := range items {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode cache entry %s: %w", k, err)
		}
		raw[m.key(k, o)] = b
	}
	if err := m.backend.MSet(ctx, raw, o.ttl); err != nil {
		m.logger.Warn("cache mset failed", "count", len(items), "err", err)
		return err
	}
	return nil
}

// InvalidatePattern removes keys matching pattern within the manager's namespace.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string, opts ...CallOption) (int, error) {
	full := m.key(pattern, m.resolve(opts))
	n, err := m.backend.InvalidatePattern(ctx, full)
	if err != nil {
		m.logger.Warn("cache invalidate failed", "pattern", full, "err", err)
	}
	return n, err
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns hit counters and, when the backend supports it, its size.
func (m *Manager) Stats(ctx context.Context) Stats {
	s := Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	if sz, ok := m.backend.(Sizer); ok {
		if n, err := sz.Len(ctx); err == nil {
			s.Size = n
		}
	}
	return s
}

// Close releases the backend.
func (m *Manager) Close() error { return m.backend.Close() }

// GetJSON is the typed form of Get. It returns ErrMiss when absent.
func GetJSON[T any](ctx context.Context, m *Manager, key string, opts ...CallOption) (T, error) {
	var v T
	ok, err := m.Get(ctx, key, &v, opts...)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ErrMiss
	}
	return v, nil
}

// MGet fetches several keys at once. Misses and undecodable entries are nil.
func MGet[T any](ctx context.Context, m *Manager, keys []string, opts ...CallOption) []*T {
	o := m.resolve(opts)
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.key(k, o)
	}
	out := make([]*T, len(keys))
	raw, err := m.backend.MGet(ctx, full)
	if err != nil {
		m.logger.Warn("cache mget failed", "count", len(keys), "err", err)
		m.misses.Add(int64(len(keys)))
		return out
	}
	for i, b := range raw {
		if b == nil {
			m.misses.Add(1)
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			m.misses.Add(1)
			continue
		}
		m.hits.Add(1)
		out[i] = &v
	}
	return out
}

// Config selects a backend.
type Config struct {
	Backend    string        `yaml:"backend"`
	RedisAddr  string        `yaml:"redis_addr"`
	Prefix     string        `yaml:"prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// NewFromConfig builds a Manager. A Redis backend that cannot be reached
// degrades to the in-process backend.
func NewFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	var backend Backend
	if cfg.Backend == "redis" {
		rb, err := DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", "component", "cache", "err", err)
		} else {
			backend = rb
		}
	}
	return NewManager(backend, WithKeyPrefix(cfg.Prefix), WithDefaultTTL(cfg.DefaultTTL), WithLogger(logger))
}
