package embedding

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity(Vector{1, 0}, Vector{1, 0, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()
	a, _ := h.Embed(ctx, "Launch day for the new album")
	b, _ := h.Embed(ctx, "Launch day for the new album")
	if len(a) != 64 {
		t.Fatalf("dims = %d, want 64", len(a))
	}
	sim, _ := CosineSimilarity(a, b)
	if math.Abs(sim-1) > 1e-9 {
		t.Errorf("same text similarity = %f, want 1", sim)
	}

	related, _ := h.Embed(ctx, "album launch day")
	unrelated, _ := h.Embed(ctx, "quarterly tax filing")
	simRel, _ := CosineSimilarity(a, related)
	simUnrel, _ := CosineSimilarity(a, unrelated)
	if simRel <= simUnrel {
		t.Errorf("related similarity %f should exceed unrelated %f", simRel, simUnrel)
	}

	empty, _ := h.Embed(ctx, "")
	if len(empty) != 64 {
		t.Errorf("empty text dims = %d", len(empty))
	}
}

type failingEmbedder struct{ dims int }

func (f failingEmbedder) Embed(context.Context, string) (Vector, error) {
	return nil, errors.New("provider down")
}
func (f failingEmbedder) EmbedBatch(context.Context, []string) ([]Vector, error) {
	return nil, errors.New("provider down")
}
func (f failingEmbedder) Dims() int { return f.dims }

func TestWithFallback(t *testing.T) {
	e := WithFallback(failingEmbedder{dims: 32}, nil)
	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("fallback should not fail: %v", err)
	}
	if len(v) != 32 {
		t.Errorf("fallback dims = %d, want 32", len(v))
	}
	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil || len(vs) != 2 {
		t.Fatalf("batch fallback = %d, %v", len(vs), err)
	}

	if _, ok := WithFallback(nil, nil).(*HashEmbedder); !ok {
		t.Error("nil primary should yield a hash embedder")
	}
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "all-minilm", 0)
	if e.Dims() != 384 {
		t.Errorf("dims = %d, want 384", e.Dims())
	}
	vs, err := e.EmbedBatch(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vs) != 2 || len(vs[0]) != 3 {
		t.Errorf("unexpected vectors: %v", vs)
	}
}

func TestOllamaEmbedderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model missing", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0).Embed(context.Background(), "x"); err == nil {
		t.Error("expected error on 500")
	}
}

type fakeEmbeddingsAPI struct {
	params openai.EmbeddingNewParams
	resp   *openai.CreateEmbeddingResponse
	err    error
}

func (f *fakeEmbeddingsAPI) New(_ context.Context, body openai.EmbeddingNewParams, _ ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	f.params = body
	return f.resp, f.err
}

func TestOpenAIEmbedder(t *testing.T) {
	api := &fakeEmbeddingsAPI{resp: &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{
			{Index: 1, Embedding: []float64{0, 1}},
			{Index: 0, Embedding: []float64{1, 0}},
		},
		Usage: openai.CreateEmbeddingResponseUsage{TotalTokens: 12},
	}}
	e := newOpenAIEmbedder(api, "", 2)
	var tokens int64
	e.OnUsage(func(_ context.Context, model string, n int64) {
		if model != defaultOpenAIModel {
			t.Errorf("model = %s", model)
		}
		tokens = n
	})

	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vs[0][0] != 1 || vs[1][1] != 1 {
		t.Errorf("vectors not ordered by index: %v", vs)
	}
	if tokens != 12 {
		t.Errorf("tokens = %d, want 12", tokens)
	}
	if len(api.params.Input.OfArrayOfStrings) != 2 {
		t.Errorf("batch input not sent as array")
	}

	if _, err := e.Embed(context.Background(), "single"); err == nil {
		t.Error("expected count mismatch error for single input with two vectors")
	}
}

func TestNewFromConfig(t *testing.T) {
	e, err := NewFromConfig(Config{})
	if err != nil || e != nil {
		t.Errorf("disabled provider = %v, %v", e, err)
	}
	if _, err := NewFromConfig(Config{Provider: "openai"}); err == nil {
		t.Error("openai without key should fail")
	}
	if _, err := NewFromConfig(Config{Provider: "bogus"}); err == nil {
		t.Error("unknown provider should fail")
	}
	e, err = NewFromConfig(Config{Provider: "hash"})
	if err != nil || e.Dims() != DefaultHashDims {
		t.Errorf("hash provider = %v, %v", e, err)
	}
}
