// Package signal turns raw content events into weighted signals and
// analyzes their history per content id.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/brightmatter/internal/history"
	"github.com/rcliao/brightmatter/internal/model"
)

// ErrNoHistory is returned when a content id has never been processed.
var ErrNoHistory = errors.New("no signal history for content")

// HistoryStore persists processed content signals.
type HistoryStore interface {
	AppendSignals(ctx context.Context, cs model.ContentSignals) error
}

// Engine processes content into signals and keeps bounded history per content id.
type Engine struct {
	weights    model.SignalWeights
	generators []Generator
	history    *history.Keyed[string, model.ContentSignals]
	store      HistoryStore
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights sets the default weights used for aggregation and analysis.
func WithWeights(w model.SignalWeights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithGenerators replaces the signal generators.
func WithGenerators(g ...Generator) Option {
	return func(e *Engine) { e.generators = g }
}

// WithHistorySize bounds the per-content history.
func WithHistorySize(n int) Option {
	return func(e *Engine) { e.history = history.NewKeyed[string, model.ContentSignals](n) }
}

// WithStore persists every processed record.
func WithStore(s HistoryStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		weights:    model.DefaultSignalWeights(),
		generators: DefaultGenerators(),
		history:    history.NewKeyed[string, model.ContentSignals](history.DefaultCapacity),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("component", "signal")
	return e
}

// ProcessContent derives signals for c, aggregates them and records the result.
// A generator that fails is logged and skipped.
func (e *Engine) ProcessContent(ctx context.Context, c model.Content) (model.ContentSignals, error) {
	cs, err := e.derive(c)
	if err != nil {
		return cs, err
	}
	e.history.Append(c.ID, cs)

	if e.store != nil {
		if err := e.store.AppendSignals(ctx, cs); err != nil {
			e.logger.Warn("persist signals failed", "content_id", c.ID, "err", err)
		}
	}
	return cs, nil
}

// Analyze derives and summarizes signals for c without recording or
// persisting them. The trend is always stable.
func (e *Engine) Analyze(c model.Content, weights *model.SignalWeights) (model.SignalAnalysis, error) {
	cs, err := e.derive(c)
	if err != nil {
		return model.SignalAnalysis{}, err
	}
	return e.analyze([]model.ContentSignals{cs}, weights), nil
}

func (e *Engine) derive(c model.Content) (model.ContentSignals, error) {
	if c.ID == "" {
		return model.ContentSignals{}, fmt.Errorf("process content: content id is required")
	}
	if c.Type != "" && !model.ValidContentTypes[c.Type] {
		return model.ContentSignals{}, fmt.Errorf("process content: invalid content type %q", c.Type)
	}

	now := e.now()
	signals := make([]model.Signal, 0, len(e.generators))
	for _, gen := range e.generators {
		s, err := runGenerator(gen, c, now)
		if err != nil {
			e.logger.Warn("signal generator failed", "content_id", c.ID, "err", err)
			continue
		}
		if s != nil {
			signals = append(signals, *s)
		}
	}

	return model.ContentSignals{
		ContentID:       c.ID,
		UserID:          c.UserID,
		Platform:        c.Platform,
		ContentType:     c.Type,
		Signals:         signals,
		AggregatedScore: Aggregate(signals, e.weights),
		Timestamp:       now,
	}, nil
}

func runGenerator(gen Generator, c model.Content, now time.Time) (s *model.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return gen(c, now)
}

// Restore appends a previously persisted record to the in-memory history.
func (e *Engine) Restore(cs model.ContentSignals) {
	e.history.Append(cs.ContentID, cs)
}

// Forget drops the history for contentID.
func (e *Engine) Forget(contentID string) {
	e.history.Delete(contentID)
}

// History returns the recorded signals for contentID, oldest first.
func (e *Engine) History(contentID string) []model.ContentSignals {
	return e.history.Snapshot(contentID)
}

// UserSignals returns every recorded record belonging to userID.
func (e *Engine) UserSignals(userID int64) []model.ContentSignals {
	var out []model.ContentSignals
	for _, id := range e.history.Keys() {
		for _, cs := range e.history.Snapshot(id) {
			if cs.UserID == userID {
				out = append(out, cs)
			}
		}
	}
	return out
}

// AnalyzeSignals summarizes the latest record for contentID. A nil weights
// pointer uses the engine defaults.
func (e *Engine) AnalyzeSignals(contentID string, weights *model.SignalWeights) (model.SignalAnalysis, error) {
	hist := e.history.Snapshot(contentID)
	if len(hist) == 0 {
		return model.SignalAnalysis{}, fmt.Errorf("analyze %s: %w", contentID, ErrNoHistory)
	}
	return e.analyze(hist, weights), nil
}

func (e *Engine) analyze(hist []model.ContentSignals, weights *model.SignalWeights) model.SignalAnalysis {
	w := e.weights
	if weights != nil {
		w = *weights
	}
	latest := hist[len(hist)-1]
	b := model.Breakdown{
		Engagement: latest.SignalValue(model.SignalEngagement),
		Viral:      latest.SignalValue(model.SignalViral),
		Safety:     latest.SignalValue(model.SignalSafety),
		Quality:    latest.SignalValue(model.SignalQuality),
	}
	overall := b.Engagement*w.Engagement + b.Viral*w.Viral + b.Safety*w.Safety + b.Quality*w.Quality
	trend := Trend(hist)

	return model.SignalAnalysis{
		Overall:         model.Clamp01(overall),
		Breakdown:       b,
		Trend:           trend,
		Confidence:      averageConfidence(latest.Signals),
		Recommendations: Recommendations(b, trend),
	}
}

// SignalTrends returns the per-type series for contentID recorded within
// window of now. A zero window means 24 hours.
func (e *Engine) SignalTrends(contentID string, window time.Duration) model.SignalSeries {
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := e.now().Add(-window)
	series := model.SignalSeries{
		Timestamps: []time.Time{},
		Engagement: []float64{},
		Viral:      []float64{},
		Safety:     []float64{},
		Quality:    []float64{},
	}
	for _, h := range e.history.Snapshot(contentID) {
		if h.Timestamp.Before(cutoff) {
			continue
		}
		series.Timestamps = append(series.Timestamps, h.Timestamp)
		series.Engagement = append(series.Engagement, h.SignalValue(model.SignalEngagement))
		series.Viral = append(series.Viral, h.SignalValue(model.SignalViral))
		series.Safety = append(series.Safety, h.SignalValue(model.SignalSafety))
		series.Quality = append(series.Quality, h.SignalValue(model.SignalQuality))
	}
	return series
}
