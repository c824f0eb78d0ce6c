// Package embedding provides a pluggable interface for text embedding providers
// with a deterministic hash-based fallback.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrDimensionMismatch is returned when comparing vectors of different lengths.
var ErrDimensionMismatch = errors.New("vectors must have the same dimension")

// Vector is an embedding vector.
type Vector = []float64

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
// Zero vectors have similarity 0.
func CosineSimilarity(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity %d vs %d: %w", len(a), len(b), ErrDimensionMismatch)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Fallback uses a primary embedder and degrades to a secondary one whenever
// the primary fails.
type Fallback struct {
	primary   Embedder
	secondary Embedder
	logger    *slog.Logger
}

// WithFallback wraps primary so that failures are served by a HashEmbedder of
// the same dimension. A nil primary returns the hash embedder directly.
func WithFallback(primary Embedder, logger *slog.Logger) Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	if primary == nil {
		return NewHashEmbedder(DefaultHashDims)
	}
	return &Fallback{
		primary:   primary,
		secondary: NewHashEmbedder(primary.Dims()),
		logger:    logger.With("component", "embedding"),
	}
}

func (f *Fallback) Embed(ctx context.Context, text string) (Vector, error) {
	v, err := f.primary.Embed(ctx, text)
	if err == nil {
		return v, nil
	}
	f.logger.Warn("embedding provider failed, using hash fallback", "err", err)
	return f.secondary.Embed(ctx, text)
}

func (f *Fallback) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	vs, err := f.primary.EmbedBatch(ctx, texts)
	if err == nil && len(vs) == len(texts) {
		return vs, nil
	}
	f.logger.Warn("batch embedding failed, using hash fallback", "err", err, "count", len(texts))
	return f.secondary.EmbedBatch(ctx, texts)
}

func (f *Fallback) Dims() int { return f.primary.Dims() }

// Config selects and tunes an embedding provider.
type Config struct {
	Provider string        `yaml:"embed_provider"`
	Model    string        `yaml:"embed_model"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NewFromConfig creates an embedder from cfg.
// Provider: "ollama" | "openai" | "hash" | "" (disabled, returns nil).
func NewFromConfig(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(cfg.BaseURL, model, cfg.Timeout), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder: api key required")
		}
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, 0), nil
	case "hash":
		return NewHashEmbedder(DefaultHashDims), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
