package optimizer

import "github.com/rcliao/brightmatter/internal/model"

// Request asks for an optimized variant of a piece of content.
type Request struct {
	UserID         int64              `json:"user_id"`
	Text           string             `json:"text"`
	Type           model.ContentType  `json:"type"`
	Platform       string             `json:"platform"`
	Metrics        *model.Metrics     `json:"metrics,omitempty"`
	TargetAudience string             `json:"target_audience,omitempty"`
	Goals          []model.SignalType `json:"goals,omitempty"`
}

// ImprovementType names what an improvement changed.
type ImprovementType string

const (
	ImproveTone      ImprovementType = "tone"
	ImproveStructure ImprovementType = "structure"
	ImproveHashtags  ImprovementType = "hashtags"
	ImproveTiming    ImprovementType = "timing"
	ImproveCTA       ImprovementType = "cta"
	ImproveKeywords  ImprovementType = "keywords"
)

// Improvement is one discrete change between original and optimized text.
type Improvement struct {
	Type        ImprovementType `json:"type"`
	Description string          `json:"description"`
	Before      string          `json:"before"`
	After       string          `json:"after"`
	Impact      float64         `json:"impact"`
}

// Result bundles an optimization.
type Result struct {
	OriginalAnalysis model.SignalAnalysis `json:"original_analysis"`
	OptimizedContent string               `json:"optimized_content"`
	Improvements     []Improvement        `json:"improvements"`
	PredictedMetrics model.Breakdown      `json:"predicted_metrics"`
	Recommendations  []string             `json:"recommendations"`
	Confidence       float64              `json:"confidence"`
	Source           string               `json:"source"`
}

// ViralFactors are the five inputs of the viral score, each within [0,1].
type ViralFactors struct {
	Trending     float64 `json:"trending"`
	Shareability float64 `json:"shareability"`
	Emotion      float64 `json:"emotion"`
	Timing       float64 `json:"timing"`
	Format       float64 `json:"format"`
}

// Timing is a recommended posting slot.
type Timing struct {
	DayOfWeek string `json:"day_of_week"`
	HourOfDay int    `json:"hour_of_day"`
	Timezone  string `json:"timezone"`
}

// ViralPotential scores how likely content is to spread.
type ViralPotential struct {
	Score         int          `json:"score"`
	Factors       ViralFactors `json:"factors"`
	Suggestions   []string     `json:"suggestions"`
	OptimalTiming Timing       `json:"optimal_timing"`
}

// CompetitorInsights summarizes what peers do.
type CompetitorInsights struct {
	TopPerformers    []string `json:"top_performers"`
	CommonStrategies []string `json:"common_strategies"`
	Gaps             []string `json:"gaps"`
}

// TrendAnalysis describes what is currently trending on a platform.
type TrendAnalysis struct {
	TrendingTopics     []string           `json:"trending_topics"`
	Hashtags           []string           `json:"hashtags"`
	Keywords           []string           `json:"keywords"`
	Sentiment          string             `json:"sentiment"`
	CompetitorInsights CompetitorInsights `json:"competitor_insights"`
}

// Suggestions is a bundle of content ideas.
type Suggestions struct {
	Suggestions []string `json:"suggestions"`
	Templates   []string `json:"templates"`
	Hashtags    []string `json:"hashtags"`
	Timing      []string `json:"timing"`
}
