package model

import (
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a new lexically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewIDAt returns an identifier whose time component is t.
func NewIDAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

// ClampScore bounds v to [0,100]. NaN becomes 0.
func ClampScore(v float64) float64 {
	return clamp(v, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Mean returns the arithmetic mean of vs, or 0 when empty.
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
