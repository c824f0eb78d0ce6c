package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashDims is the dimension of hash embeddings when none is given.
const DefaultHashDims = 256

// HashEmbedder produces deterministic pseudo-embeddings by feature-hashing
// lowercase tokens into a fixed number of buckets. Texts sharing words land
// close together; it needs no network and never fails.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a hash embedder with dims dimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	return h.vector(text), nil
}

func (h *HashEmbedder) EmbedBatch(_ context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) Dims() int { return h.dims }

func (h *HashEmbedder) vector(text string) Vector {
	v := make(Vector, h.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '#' && r != '@'
	})
	if len(tokens) == 0 {
		// Whole-text hash so empty or symbol-only input still gets a stable vector.
		sum := xxhash.Sum64String(text)
		v[sum%uint64(h.dims)] = 1
		return v
	}
	for _, tok := range tokens {
		sum := xxhash.Sum64String(tok)
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1
		}
		v[sum%uint64(h.dims)] += sign
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}
