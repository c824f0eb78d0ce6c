// Package model defines the core data types shared by the scoring and memory subsystems.
package model

import "time"

// SignalType identifies what a Signal measures.
type SignalType string

const (
	SignalEngagement SignalType = "engagement"
	SignalViral      SignalType = "viral"
	SignalSafety     SignalType = "safety"
	SignalQuality    SignalType = "quality"
)

// SignalTypes lists every signal type in breakdown order.
var SignalTypes = []SignalType{SignalEngagement, SignalViral, SignalSafety, SignalQuality}

// ContentType is the format of a piece of creator content.
type ContentType string

// ValidContentTypes are the allowed content formats.
var ValidContentTypes = map[ContentType]bool{
	"post":  true,
	"video": true,
	"image": true,
	"story": true,
	"reel":  true,
}

// Trend is the direction of a series of scores.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Signal is a single typed, confidence-weighted observation about content.
// Value and Confidence are always within [0,1].
type Signal struct {
	ID         string         `json:"id"`
	Type       SignalType     `json:"type"`
	Value      float64        `json:"value"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Metrics are the raw engagement counters reported for a piece of content.
type Metrics struct {
	Likes    int64 `json:"likes,omitempty"`
	Shares   int64 `json:"shares,omitempty"`
	Comments int64 `json:"comments,omitempty"`
	Views    int64 `json:"views,omitempty"`
	Saves    int64 `json:"saves,omitempty"`
}

// Content is a raw content event fed into the signal engine.
type Content struct {
	ID       string         `json:"id"`
	UserID   int64          `json:"user_id"`
	Platform string         `json:"platform"`
	Type     ContentType    `json:"type"`
	Text     string         `json:"text,omitempty"`
	Metrics  *Metrics       `json:"metrics,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ContentSignals is the result of processing one content event.
type ContentSignals struct {
	ContentID       string      `json:"content_id"`
	UserID          int64       `json:"user_id"`
	Platform        string      `json:"platform"`
	ContentType     ContentType `json:"content_type"`
	Signals         []Signal    `json:"signals"`
	AggregatedScore float64     `json:"aggregated_score"`
	Timestamp       time.Time   `json:"timestamp"`
}

// SignalValue returns the value of the first signal of type t, or 0.
func (cs ContentSignals) SignalValue(t SignalType) float64 {
	for _, s := range cs.Signals {
		if s.Type == t {
			return s.Value
		}
	}
	return 0
}

// SignalWeights weights each signal type.
type SignalWeights struct {
	Engagement float64 `json:"engagement" yaml:"engagement"`
	Viral      float64 `json:"viral" yaml:"viral"`
	Safety     float64 `json:"safety" yaml:"safety"`
	Quality    float64 `json:"quality" yaml:"quality"`
}

// DefaultSignalWeights are the default analysis weights.
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{Engagement: 0.30, Viral: 0.25, Safety: 0.25, Quality: 0.20}
}

// For returns the weight assigned to t.
func (w SignalWeights) For(t SignalType) float64 {
	switch t {
	case SignalEngagement:
		return w.Engagement
	case SignalViral:
		return w.Viral
	case SignalSafety:
		return w.Safety
	case SignalQuality:
		return w.Quality
	}
	return 0.25
}

// Breakdown holds one value per signal type.
type Breakdown struct {
	Engagement float64 `json:"engagement"`
	Viral      float64 `json:"viral"`
	Safety     float64 `json:"safety"`
	Quality    float64 `json:"quality"`
}

// SignalAnalysis is derived on demand from a content id's signal history.
type SignalAnalysis struct {
	Overall         float64   `json:"overall"`
	Breakdown       Breakdown `json:"breakdown"`
	Trend           Trend     `json:"trend"`
	Confidence      float64   `json:"confidence"`
	Recommendations []string  `json:"recommendations"`
}

// SignalSeries is a per-type time series for one content id.
type SignalSeries struct {
	Timestamps []time.Time `json:"timestamps"`
	Engagement []float64   `json:"engagement"`
	Viral      []float64   `json:"viral"`
	Safety     []float64   `json:"safety"`
	Quality    []float64   `json:"quality"`
}
