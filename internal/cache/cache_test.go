package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func newRedisManager(t *testing.T, opts ...Option) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewManager(NewRedisBackend(client), opts...)
	t.Cleanup(func() { m.Close() })
	return m, mr
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newMemoryManager(t *testing.T, opts ...Option) (*Manager, *MemoryBackend, *testClock) {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mb := NewMemoryBackend()
	mb.SetClock(clk.now)
	return NewManager(mb, opts...), mb, clk
}

func TestManagerRoundTrip(t *testing.T) {
	ctx := context.Background()
	redisM, _ := newRedisManager(t)
	memM, _, _ := newMemoryManager(t)

	for name, m := range map[string]*Manager{"redis": redisM, "memory": memM} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, m.Set(ctx, "a", item{Name: "x", Score: 1.5}))
			got, err := GetJSON[item](ctx, m, "a")
			require.NoError(t, err)
			assert.Equal(t, item{Name: "x", Score: 1.5}, got)

			require.NoError(t, m.Delete(ctx, "a"))
			_, err = GetJSON[item](ctx, m, "a")
			assert.ErrorIs(t, err, ErrMiss)

			require.NoError(t, m.MSet(ctx, map[string]any{"b": item{Name: "b"}, "c": item{Name: "c"}}))
			got2 := MGet[item](ctx, m, []string{"b", "missing", "c"})
			require.Len(t, got2, 3)
			assert.Equal(t, "b", got2[0].Name)
			assert.Nil(t, got2[1])
			assert.Equal(t, "c", got2[2].Name)

			st := m.Stats(ctx)
			assert.Equal(t, int64(3), st.Hits)
			assert.Equal(t, int64(2), st.Misses)
			assert.InDelta(t, 0.6, st.HitRate, 1e-9)
			assert.Equal(t, 2, st.Size)
		})
	}
}

func TestPrefixing(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, WithKeyPrefix("bm"))
	require.NoError(t, m.Set(ctx, "k", 1, Prefix("analysis")))
	assert.True(t, mr.Exists("bm:analysis:k"))

	var n int
	ok, err := m.Get(ctx, "k", &n, Prefix("analysis"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, WithDefaultTTL(time.Minute))
	require.NoError(t, m.Set(ctx, "short", "v", TTL(time.Second)))
	require.NoError(t, m.Set(ctx, "default", "v"))
	assert.Equal(t, time.Minute, mr.TTL("default"))

	mr.FastForward(2 * time.Second)
	_, err := GetJSON[string](ctx, m, "short")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = GetJSON[string](ctx, m, "default")
	assert.NoError(t, err)
}

func TestMemoryExpiryIsLazy(t *testing.T) {
	ctx := context.Background()
	m, mb, clk := newMemoryManager(t)
	require.NoError(t, m.Set(ctx, "k", "v", TTL(time.Second)))
	require.NoError(t, m.Set(ctx, "long", "v"))

	clk.t = clk.t.Add(2 * time.Second)
	assert.Len(t, mb.entries, 2)
	_, err := GetJSON[string](ctx, m, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Len(t, mb.entries, 1)

	clk.t = clk.t.Add(2 * DefaultTTL)
	assert.Equal(t, 1, mb.Sweep())
}

func TestInvalidatePattern(t *testing.T) {
	ctx := context.Background()
	redisM, _ := newRedisManager(t)
	memM, _, _ := newMemoryManager(t)

	for name, m := range map[string]*Manager{"redis": redisM, "memory": memM} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, m.MSet(ctx, map[string]any{
				"analysis:1:a": 1,
				"analysis:1:b": 2,
				"analysis:2:a": 3,
				"trends:x":     4,
			}))
			n, err := m.InvalidatePattern(ctx, "analysis:1:*")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, err = GetJSON[int](ctx, m, "analysis:2:a")
			assert.NoError(t, err)
			_, err = GetJSON[int](ctx, m, "analysis:1:b")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestMemoryPatternIsSubstring(t *testing.T) {
	ctx := context.Background()
	mb := NewMemoryBackend()
	require.NoError(t, mb.Set(ctx, "x:user:1", []byte("1"), time.Hour))
	n, err := mb.InvalidatePattern(ctx, "*user*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDecodeError(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newMemoryManager(t)
	require.NoError(t, m.Set(ctx, "k", "not a number"))
	_, err := GetJSON[int](ctx, m, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
}

func TestBackendFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t)
	mr.Close()
	var v string
	ok, err := m.Get(ctx, "k", &v)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Error(t, m.Set(ctx, "k", "v"))
	assert.Nil(t, MGet[string](ctx, m, []string{"k"})[0])
}

func TestNewFromConfigFallsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m := NewFromConfig(ctx, Config{Backend: "redis", RedisAddr: "127.0.0.1:1"}, nil)
	_, ok := m.Backend().(*MemoryBackend)
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	m = NewFromConfig(ctx, Config{Backend: "redis", RedisAddr: mr.Addr(), Prefix: "bm"}, nil)
	defer m.Close()
	_, ok = m.Backend().(*RedisBackend)
	assert.True(t, ok)
}
