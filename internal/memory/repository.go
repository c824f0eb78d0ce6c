package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rcliao/brightmatter/internal/model"
)

// ErrMemoryNotFound is returned when a memory id does not exist.
var ErrMemoryNotFound = errors.New("memory not found")

// Repository persists memory chunks and per-user compression levels.
type Repository interface {
	// SaveChunk inserts or replaces a chunk.
	SaveChunk(ctx context.Context, c model.MemoryChunk) error

	// Chunk returns one chunk or ErrMemoryNotFound.
	Chunk(ctx context.Context, id string) (model.MemoryChunk, error)

	// UserChunks returns a user's chunks, oldest first.
	UserChunks(ctx context.Context, userID int64) ([]model.MemoryChunk, error)

	// DeleteChunk removes one chunk or returns ErrMemoryNotFound.
	DeleteChunk(ctx context.Context, id string) error

	// DeleteUserChunks removes every chunk of a user and returns how many.
	DeleteUserChunks(ctx context.Context, userID int64) (int, error)

	// CompressionLevel returns the number of compression passes run for a user.
	CompressionLevel(ctx context.Context, userID int64) (int, error)

	// SetCompressionLevel stores a user's compression level.
	SetCompressionLevel(ctx context.Context, userID int64, level int) error

	// Users lists every user with at least one chunk.
	Users(ctx context.Context) ([]int64, error)
}

// MemRepository is an in-process Repository.
type MemRepository struct {
	mu     sync.RWMutex
	chunks map[string]model.MemoryChunk
	levels map[int64]int
}

// NewMemRepository returns an empty in-process repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		chunks: make(map[string]model.MemoryChunk),
		levels: make(map[int64]int),
	}
}

func (r *MemRepository) SaveChunk(_ context.Context, c model.MemoryChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[c.ID] = cloneChunk(c)
	return nil
}

func (r *MemRepository) Chunk(_ context.Context, id string) (model.MemoryChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[id]
	if !ok {
		return model.MemoryChunk{}, ErrMemoryNotFound
	}
	return cloneChunk(c), nil
}

func (r *MemRepository) UserChunks(_ context.Context, userID int64) ([]model.MemoryChunk, error) {
	r.mu.RLock()
	var out []model.MemoryChunk
	for _, c := range r.chunks {
		if c.UserID == userID {
			out = append(out, cloneChunk(c))
		}
	}
	r.mu.RUnlock()
	SortOldestFirst(out)
	return out, nil
}

func (r *MemRepository) DeleteChunk(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunks[id]; !ok {
		return ErrMemoryNotFound
	}
	delete(r.chunks, id)
	return nil
}

func (r *MemRepository) DeleteUserChunks(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, c := range r.chunks {
		if c.UserID == userID {
			delete(r.chunks, id)
			n++
		}
	}
	delete(r.levels, userID)
	return n, nil
}

func (r *MemRepository) CompressionLevel(_ context.Context, userID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.levels[userID], nil
}

func (r *MemRepository) SetCompressionLevel(_ context.Context, userID int64, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[userID] = level
	return nil
}

func (r *MemRepository) Users(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	seen := make(map[int64]bool)
	for _, c := range r.chunks {
		seen[c.UserID] = true
	}
	r.mu.RUnlock()
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// SortOldestFirst orders chunks by timestamp, then id.
func SortOldestFirst(cs []model.MemoryChunk) {
	sort.SliceStable(cs, func(i, j int) bool {
		ti, tj := cs[i].Metadata.Timestamp, cs[j].Metadata.Timestamp
		if ti.Equal(tj) {
			return cs[i].ID < cs[j].ID
		}
		return ti.Before(tj)
	})
}

func cloneChunk(c model.MemoryChunk) model.MemoryChunk {
	c.Metadata.Tags = append([]string(nil), c.Metadata.Tags...)
	c.Embeddings = append([]float64(nil), c.Embeddings...)
	return c
}
