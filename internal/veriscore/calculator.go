// Package veriscore computes the 0-100 creator reputation score, its tier,
// and projections from each user's score history.
package veriscore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/brightmatter/internal/history"
	"github.com/rcliao/brightmatter/internal/model"
)

// DefaultDecayRate is the daily tenure decay rate.
const DefaultDecayRate = 0.01

// HistoryStore persists score history entries.
type HistoryStore interface {
	AppendScore(ctx context.Context, userID int64, h model.VeriScoreHistory) error
}

// Calculator computes VeriScores and keeps bounded per-user history.
type Calculator struct {
	weights   model.ScoreWeights
	decayRate float64
	history   *history.Keyed[int64, model.VeriScoreHistory]
	store     HistoryStore
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithWeights sets the default factor weights.
func WithWeights(w model.ScoreWeights) Option {
	return func(c *Calculator) { c.weights = w }
}

// WithDecayRate sets the daily tenure decay rate.
func WithDecayRate(r float64) Option {
	return func(c *Calculator) { c.decayRate = r }
}

// WithHistorySize bounds the per-user history.
func WithHistorySize(n int) Option {
	return func(c *Calculator) { c.history = history.NewKeyed[int64, model.VeriScoreHistory](n) }
}

// WithStore persists every computed score.
func WithStore(s HistoryStore) Option {
	return func(c *Calculator) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) { c.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// New creates a Calculator.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		weights:   model.DefaultScoreWeights(),
		decayRate: DefaultDecayRate,
		history:   history.NewKeyed[int64, model.VeriScoreHistory](history.DefaultCapacity),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "veriscore")
	return c
}

// Calculate scores a creator and appends the result to their history.
// A nil weights pointer uses the calculator defaults.
func (c *Calculator) Calculate(ctx context.Context, userID int64, p model.CreatorProfile, signals []model.ContentSignals, weights *model.ScoreWeights) (model.VeriScoreBreakdown, error) {
	if userID == 0 {
		return model.VeriScoreBreakdown{}, fmt.Errorf("calculate veriscore: user id is required")
	}
	w := c.weights
	if weights != nil {
		w = *weights
	}
	now := c.now()

	factors := Factors(p, signals, now)
	decayed := Decay(w.Apply(factors), c.decayRate, accountAgeDays(p.JoinDate, now))
	current := model.ClampScore(decayed * 100)

	prior := c.history.Snapshot(userID)
	var previous float64
	if len(prior) > 0 {
		previous = prior[len(prior)-1].Score
	}
	change := current - previous

	entry := model.VeriScoreHistory{
		Timestamp: now,
		Score:     current,
		Factors:   factors,
		Events:    Events(factors, change),
	}
	c.history.Append(userID, entry)
	if c.store != nil {
		if err := c.store.AppendScore(ctx, userID, entry); err != nil {
			c.logger.Warn("persist score failed", "user_id", userID, "err", err)
		}
	}

	return model.VeriScoreBreakdown{
		CurrentScore:  current,
		PreviousScore: previous,
		Change:        change,
		Factors:       factors,
		Percentile:    PercentileFor(current),
		Tier:          TierFor(current),
		Trend:         TrendOf(prior),
		NextMilestone: NextMilestone(current),
	}, nil
}

// SeedHistory appends previously persisted entries for userID.
func (c *Calculator) SeedHistory(userID int64, entries ...model.VeriScoreHistory) {
	for _, e := range entries {
		c.history.Append(userID, e)
	}
}

// History returns userID's score history, oldest first.
func (c *Calculator) History(userID int64) []model.VeriScoreHistory {
	return c.history.Snapshot(userID)
}

// TrendOf compares the first and last of the last five history entries.
func TrendOf(h []model.VeriScoreHistory) model.Trend {
	if len(h) < 2 {
		return model.TrendStable
	}
	if len(h) > 5 {
		h = h[len(h)-5:]
	}
	change := h[len(h)-1].Score - h[0].Score
	switch {
	case change > 2:
		return model.TrendRising
	case change < -2:
		return model.TrendFalling
	}
	return model.TrendStable
}

// Events describes notable changes for a history entry.
func Events(f model.ScoreFactors, change float64) []string {
	var events []string
	if change > 5 {
		events = append(events, "Significant score increase")
	}
	if change < -5 {
		events = append(events, "Score decreased")
	}
	if f.Engagement > 0.8 {
		events = append(events, "High engagement achieved")
	}
	if f.Consistency > 0.8 {
		events = append(events, "Consistent posting streak")
	}
	return events
}
