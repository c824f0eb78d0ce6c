package veriscore

import "github.com/rcliao/brightmatter/internal/model"

// Milestones are the tier boundaries in ascending order.
var Milestones = []float64{30, 50, 70, 90, 100}

// TierFor maps a score to its tier. It is monotonic in score.
func TierFor(score float64) model.Tier {
	switch {
	case score >= 90:
		return model.TierDiamond
	case score >= 70:
		return model.TierPlatinum
	case score >= 50:
		return model.TierGold
	case score >= 30:
		return model.TierSilver
	}
	return model.TierBronze
}

// PercentileFor is a coarse bucket lookup, not a population percentile.
func PercentileFor(score float64) int {
	switch {
	case score >= 90:
		return 95
	case score >= 70:
		return 80
	case score >= 50:
		return 60
	case score >= 30:
		return 40
	}
	return 20
}

// NextMilestone returns the smallest milestone strictly above score, else 100.
func NextMilestone(score float64) float64 {
	for _, m := range Milestones {
		if m > score {
			return m
		}
	}
	return 100
}
