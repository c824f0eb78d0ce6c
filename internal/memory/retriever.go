package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rcliao/brightmatter/internal/embedding"
	"github.com/rcliao/brightmatter/internal/model"
)

// DefaultLimit caps retrieval results when a query sets no limit.
const DefaultLimit = 10

// recencyHalfLife halves a memory's recency score.
const recencyHalfLife = 24 * time.Hour

// Retriever ranks candidate chunks for a query. Candidates are already
// filtered to the query's user, type, context and time range.
type Retriever interface {
	Rank(ctx context.Context, q model.MemoryQuery, candidates []model.MemoryChunk, now time.Time) ([]model.ScoredMemory, error)
}

// RecencyRetriever returns the newest chunks first, scored by a 24h
// half-life decay.
type RecencyRetriever struct{}

func (RecencyRetriever) Rank(_ context.Context, _ model.MemoryQuery, candidates []model.MemoryChunk, now time.Time) ([]model.ScoredMemory, error) {
	out := make([]model.ScoredMemory, len(candidates))
	for i, c := range candidates {
		out[i] = model.ScoredMemory{Memory: c, Score: RecencyScore(c, now)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Memory.Metadata.Timestamp.After(out[j].Memory.Metadata.Timestamp)
	})
	return out, nil
}

// RecencyScore is 1 for a chunk recorded now, 0.5 a day later.
func RecencyScore(c model.MemoryChunk, now time.Time) float64 {
	age := c.Age(now)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age.Hours()/recencyHalfLife.Hours())
}

// SemanticRetriever ranks chunks by cosine similarity between the query and
// chunk embeddings. Chunks without stored embeddings are embedded on demand.
// An empty query text falls back to recency order.
type SemanticRetriever struct {
	Embedder embedding.Embedder
}

func (s SemanticRetriever) Rank(ctx context.Context, q model.MemoryQuery, candidates []model.MemoryChunk, now time.Time) ([]model.ScoredMemory, error) {
	if q.Query == "" || s.Embedder == nil {
		return RecencyRetriever{}.Rank(ctx, q, candidates, now)
	}
	qv, err := s.Embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var missing []string
	var missingIdx []int
	for i, c := range candidates {
		if len(c.Embeddings) != len(qv) {
			missing = append(missing, c.Content)
			missingIdx = append(missingIdx, i)
		}
	}
	vecs := make([]embedding.Vector, len(candidates))
	for i, c := range candidates {
		vecs[i] = c.Embeddings
	}
	if len(missing) > 0 {
		got, err := s.Embedder.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("embed candidates: %w", err)
		}
		for j, idx := range missingIdx {
			vecs[idx] = got[j]
		}
	}

	out := make([]model.ScoredMemory, len(candidates))
	for i, c := range candidates {
		sim, err := embedding.CosineSimilarity(qv, vecs[i])
		if err != nil {
			return nil, fmt.Errorf("score memory %s: %w", c.ID, err)
		}
		out[i] = model.ScoredMemory{Memory: c, Score: model.Clamp01(sim)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Memory.Metadata.Timestamp.After(out[j].Memory.Metadata.Timestamp)
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}
