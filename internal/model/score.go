package model

import "time"

// Tier is a named band of VeriScore.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
	TierDiamond  Tier = "Diamond"
)

// Rank orders tiers from Bronze (0) to Diamond (4).
func (t Tier) Rank() int {
	switch t {
	case TierSilver:
		return 1
	case TierGold:
		return 2
	case TierPlatinum:
		return 3
	case TierDiamond:
		return 4
	}
	return 0
}

// CreatorProfile is caller-owned input describing a creator. Read-only here.
type CreatorProfile struct {
	UserID            int64     `json:"user_id"`
	TotalPosts        int64     `json:"total_posts"`
	TotalEngagement   int64     `json:"total_engagement"`
	FollowerCount     int64     `json:"follower_count"`
	AverageEngagement float64   `json:"average_engagement"`
	StreakDays        int       `json:"streak_days"`
	JoinDate          time.Time `json:"join_date"`
	Platforms         []string  `json:"platforms,omitempty"`
	ContentTypes      []string  `json:"content_types,omitempty"`
}

// ScoreFactors are the six VeriScore inputs, each within [0,1].
type ScoreFactors struct {
	Engagement   float64 `json:"engagement"`
	Consistency  float64 `json:"consistency"`
	Growth       float64 `json:"growth"`
	Quality      float64 `json:"quality"`
	Authenticity float64 `json:"authenticity"`
	Community    float64 `json:"community"`
}

// ScoreWeights weight the six factors.
type ScoreWeights struct {
	Engagement   float64 `json:"engagement" yaml:"engagement"`
	Consistency  float64 `json:"consistency" yaml:"consistency"`
	Growth       float64 `json:"growth" yaml:"growth"`
	Quality      float64 `json:"quality" yaml:"quality"`
	Authenticity float64 `json:"authenticity" yaml:"authenticity"`
	Community    float64 `json:"community" yaml:"community"`
}

// DefaultScoreWeights are the default factor weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Engagement:   0.25,
		Consistency:  0.20,
		Growth:       0.15,
		Quality:      0.15,
		Authenticity: 0.15,
		Community:    0.10,
	}
}

// Apply returns the weighted sum of f.
func (w ScoreWeights) Apply(f ScoreFactors) float64 {
	return f.Engagement*w.Engagement +
		f.Consistency*w.Consistency +
		f.Growth*w.Growth +
		f.Quality*w.Quality +
		f.Authenticity*w.Authenticity +
		f.Community*w.Community
}

// VeriScoreBreakdown is the result of one VeriScore computation.
type VeriScoreBreakdown struct {
	CurrentScore  float64      `json:"current_score"`
	PreviousScore float64      `json:"previous_score"`
	Change        float64      `json:"change"`
	Factors       ScoreFactors `json:"factors"`
	Percentile    int          `json:"percentile"`
	Tier          Tier         `json:"tier"`
	Trend         Trend        `json:"trend"`
	NextMilestone float64      `json:"next_milestone"`
}

// VeriScoreHistory is one persisted score computation.
type VeriScoreHistory struct {
	Timestamp time.Time    `json:"timestamp"`
	Score     float64      `json:"score"`
	Factors   ScoreFactors `json:"factors"`
	Events    []string     `json:"events,omitempty"`
}

// ScoreExplanation is a human-readable account of a breakdown.
type ScoreExplanation struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	ActionItems  []string `json:"action_items"`
}

// TrajectoryPoint is a projected score on a given day offset.
type TrajectoryPoint struct {
	Day   int     `json:"day"`
	Score float64 `json:"score"`
}

// ScoreTrajectory is a linear projection of a user's score history.
type ScoreTrajectory struct {
	CurrentScore   float64           `json:"current_score"`
	PredictedScore float64           `json:"predicted_score"`
	Confidence     float64           `json:"confidence"`
	Trajectory     []TrajectoryPoint `json:"trajectory"`
}
