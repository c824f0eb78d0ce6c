package veriscore

import (
	"math"
	"time"

	"github.com/rcliao/brightmatter/internal/model"
)

const (
	consistencyWindowDays = 30
	maxStreakBonus        = 0.3
	followersPerDayTarget = 10
	day                   = 24 * time.Hour
)

// Factors computes the six factors from a profile and recent signal history.
// Each factor falls back to a neutral value when there is no signal history.
func Factors(p model.CreatorProfile, signals []model.ContentSignals, now time.Time) model.ScoreFactors {
	return model.ScoreFactors{
		Engagement:   engagementFactor(signals),
		Consistency:  consistencyFactor(p, signals),
		Growth:       growthFactor(p, now),
		Quality:      qualityFactor(signals),
		Authenticity: authenticityFactor(p),
		Community:    communityFactor(p),
	}
}

func meanSignal(signals []model.ContentSignals, t model.SignalType) float64 {
	var sum float64
	for _, cs := range signals {
		sum += cs.SignalValue(t)
	}
	return sum / float64(len(signals))
}

func engagementFactor(signals []model.ContentSignals) float64 {
	if len(signals) == 0 {
		return 0.5
	}
	return model.Clamp01(meanSignal(signals, model.SignalEngagement) * 1.2)
}

func consistencyFactor(p model.CreatorProfile, signals []model.ContentSignals) float64 {
	if len(signals) == 0 {
		return 0.3
	}
	perDay := math.Min(float64(len(signals))/consistencyWindowDays, 1)
	streak := math.Min(float64(p.StreakDays)/consistencyWindowDays, maxStreakBonus)
	return model.Clamp01(perDay + streak)
}

func accountAgeDays(joined, now time.Time) float64 {
	if joined.IsZero() {
		return 0
	}
	return now.Sub(joined).Hours() / 24
}

func growthFactor(p model.CreatorProfile, now time.Time) float64 {
	age := math.Max(accountAgeDays(p.JoinDate, now), 1)
	return model.Clamp01(float64(p.FollowerCount) / age / followersPerDayTarget)
}

func qualityFactor(signals []model.ContentSignals) float64 {
	if len(signals) == 0 {
		return 0.5
	}
	return model.Clamp01(meanSignal(signals, model.SignalQuality))
}

func authenticityFactor(p model.CreatorProfile) float64 {
	platforms := float64(len(p.Platforms)) / 5
	types := float64(len(p.ContentTypes)) / 4
	return model.Clamp01((platforms + types) / 2)
}

func communityFactor(p model.CreatorProfile) float64 {
	ratio := float64(p.TotalEngagement) / float64(max(p.FollowerCount, 1))
	return model.Clamp01(ratio * 10)
}

// Decay blends score with an exponential tenure decay. The result is never
// below 80% of score.
func Decay(score, rate, days float64) float64 {
	if days < 0 {
		days = 0
	}
	return score * (0.8 + 0.2*math.Exp(-rate*days))
}
