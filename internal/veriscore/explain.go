package veriscore

import (
	"fmt"
	"math"

	"github.com/rcliao/brightmatter/internal/model"
)

const trajectoryPoints = 7

type factorText struct {
	value       func(model.ScoreFactors) float64
	strength    string
	improvement string
}

var factorTexts = []factorText{
	{func(f model.ScoreFactors) float64 { return f.Engagement }, "High engagement rates", "Engagement could be higher"},
	{func(f model.ScoreFactors) float64 { return f.Consistency }, "Consistent posting schedule", "More consistent posting needed"},
	{func(f model.ScoreFactors) float64 { return f.Growth }, "Strong follower growth", "Focus on follower growth"},
	{func(f model.ScoreFactors) float64 { return f.Quality }, "High-quality content", "Content quality needs improvement"},
	{func(f model.ScoreFactors) float64 { return f.Authenticity }, "Authentic brand voice", "Strengthen brand authenticity"},
	{func(f model.ScoreFactors) float64 { return f.Community }, "Active community engagement", "Increase community interaction"},
}

// Explain renders a breakdown as a summary with strengths, improvements and action items.
func Explain(b model.VeriScoreBreakdown) model.ScoreExplanation {
	out := model.ScoreExplanation{
		Strengths:    []string{},
		Improvements: []string{},
		ActionItems:  []string{},
	}
	for _, ft := range factorTexts {
		v := ft.value(b.Factors)
		if v > 0.7 {
			out.Strengths = append(out.Strengths, ft.strength)
		}
		if v < 0.5 {
			out.Improvements = append(out.Improvements, ft.improvement)
		}
	}
	if b.Factors.Engagement < 0.6 {
		out.ActionItems = append(out.ActionItems, "Try asking questions in your posts to boost engagement")
	}
	if b.Factors.Consistency < 0.6 {
		out.ActionItems = append(out.ActionItems, "Create a content calendar and stick to it")
	}
	if b.Factors.Growth < 0.6 {
		out.ActionItems = append(out.ActionItems, "Use trending hashtags and collaborate with others")
	}

	var tail string
	switch b.Trend {
	case model.TrendRising:
		tail = "Keep up the great work!"
	case model.TrendFalling:
		tail = "Focus on improvements to boost your score."
	default:
		tail = "Your score is stable - try implementing some action items."
	}
	out.Summary = fmt.Sprintf("Your VeriScore is %.1f/100 (%s tier). %s", b.CurrentScore, b.Tier, tail)
	return out
}

// PredictTrajectory projects userID's score forward days days using a
// least-squares fit over the last seven history entries. Fewer than three
// entries yield an empty, zero-confidence result.
func (c *Calculator) PredictTrajectory(userID int64, days int) model.ScoreTrajectory {
	if days <= 0 {
		days = 30
	}
	h := c.history.Snapshot(userID)
	if len(h) < 3 {
		return model.ScoreTrajectory{Trajectory: []model.TrajectoryPoint{}}
	}
	current := h[len(h)-1].Score
	if len(h) > trajectoryPoints {
		h = h[len(h)-trajectoryPoints:]
	}
	scores := make([]float64, len(h))
	for i, e := range h {
		scores[i] = e.Score
	}
	slope := LinearSlope(scores)

	points := make([]model.TrajectoryPoint, 0, days+1)
	for d := 0; d <= days; d++ {
		points = append(points, model.TrajectoryPoint{Day: d, Score: model.ClampScore(current + slope*float64(d))})
	}
	return model.ScoreTrajectory{
		CurrentScore:   current,
		PredictedScore: model.ClampScore(current + slope*float64(days)),
		Confidence:     math.Min(float64(len(h))/trajectoryPoints, 1),
		Trajectory:     points,
	}
}

// LinearSlope is the ordinary least squares slope of ys against their index.
func LinearSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
