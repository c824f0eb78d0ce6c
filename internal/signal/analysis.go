package signal

import "github.com/rcliao/brightmatter/internal/model"

const (
	trendWindow   = 5
	trendDeadZone = 0.05
)

// Aggregate is the confidence-and-type-weighted mean of signals.
// It returns 0 when the total weight is zero.
func Aggregate(signals []model.Signal, w model.SignalWeights) float64 {
	var sum, total float64
	for _, s := range signals {
		tw := w.For(s.Type)
		sum += s.Value * s.Confidence * tw
		total += s.Confidence * tw
	}
	if total <= 0 {
		return 0
	}
	return model.Clamp01(sum / total)
}

// Trend compares the first and second half of the last five aggregated scores.
func Trend(hist []model.ContentSignals) model.Trend {
	if len(hist) < 2 {
		return model.TrendStable
	}
	if len(hist) > trendWindow {
		hist = hist[len(hist)-trendWindow:]
	}
	scores := make([]float64, len(hist))
	for i, h := range hist {
		scores[i] = h.AggregatedScore
	}
	mid := len(scores) / 2
	diff := model.Mean(scores[mid:]) - model.Mean(scores[:mid])
	switch {
	case diff > trendDeadZone:
		return model.TrendRising
	case diff < -trendDeadZone:
		return model.TrendFalling
	}
	return model.TrendStable
}

func averageConfidence(signals []model.Signal) float64 {
	cs := make([]float64, len(signals))
	for i, s := range signals {
		cs[i] = s.Confidence
	}
	return model.Mean(cs)
}

// Recommendations returns rule-based advice for a breakdown and trend.
func Recommendations(b model.Breakdown, trend model.Trend) []string {
	recs := []string{}
	if b.Engagement < 0.3 {
		recs = append(recs, "Increase engagement by asking questions or adding call-to-actions")
	}
	if b.Viral < 0.2 {
		recs = append(recs, "Add shareable elements like quotes, tips, or relatable content")
	}
	if b.Safety < 0.8 {
		recs = append(recs, "Review content for potential safety concerns")
	}
	if b.Quality < 0.5 {
		recs = append(recs, "Improve content quality with better descriptions or visuals")
	}
	switch trend {
	case model.TrendFalling:
		recs = append(recs, "Consider refreshing your content strategy")
	case model.TrendRising:
		recs = append(recs, "Keep up the great work! Your content is performing well")
	}
	return recs
}
