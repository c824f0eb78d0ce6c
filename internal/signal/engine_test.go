package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/brightmatter/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(opts...), clk
}

func signalByType(t *testing.T, cs model.ContentSignals, typ model.SignalType) model.Signal {
	t.Helper()
	for _, s := range cs.Signals {
		if s.Type == typ {
			return s
		}
	}
	t.Fatalf("no %s signal", typ)
	return model.Signal{}
}

func TestProcessContentLaunchPost(t *testing.T) {
	e, _ := newTestEngine(t)
	cs, err := e.ProcessContent(context.Background(), model.Content{
		ID:       "c1",
		UserID:   7,
		Platform: "instagram",
		Type:     "post",
		Text:     "Check this out! #launch",
		Metrics:  &model.Metrics{Likes: 50, Shares: 5, Comments: 10, Views: 1000},
	})
	require.NoError(t, err)
	require.Len(t, cs.Signals, 4)

	assert.InDelta(t, 0.65, signalByType(t, cs, model.SignalEngagement).Value, 1e-9)
	assert.InDelta(t, 0.1, signalByType(t, cs, model.SignalViral).Value, 1e-9)
	assert.InDelta(t, 0.9, signalByType(t, cs, model.SignalSafety).Value, 1e-9)
	assert.GreaterOrEqual(t, signalByType(t, cs, model.SignalQuality).Value, 0.7)

	assert.Greater(t, cs.AggregatedScore, 0.3)
	assert.Less(t, cs.AggregatedScore, 0.8)
	assert.InDelta(t, 0.658, cs.AggregatedScore, 0.001)
}

func TestProcessContentNoEvidence(t *testing.T) {
	tests := []struct {
		name    string
		metrics *model.Metrics
	}{
		{"nil metrics", nil},
		{"zero metrics", &model.Metrics{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			cs, err := e.ProcessContent(context.Background(), model.Content{ID: "empty", Type: "post", Metrics: tt.metrics})
			require.NoError(t, err)
			assert.Empty(t, cs.Signals)
			assert.Zero(t, cs.AggregatedScore)
		})
	}
}

func TestProcessContentViewsOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	cs, err := e.ProcessContent(context.Background(), model.Content{
		ID:      "seen",
		Metrics: &model.Metrics{Views: 500},
	})
	require.NoError(t, err)
	assert.Zero(t, signalByType(t, cs, model.SignalEngagement).Value)
	assert.Zero(t, signalByType(t, cs, model.SignalViral).Value)
	assert.InDelta(t, 0.5, signalByType(t, cs, model.SignalQuality).Value, 1e-9)
}

func TestAnalyzeDoesNotRecord(t *testing.T) {
	st := &recordingStore{}
	e, _ := newTestEngine(t, WithStore(st))
	a, err := e.Analyze(model.Content{
		ID:      "scratch",
		UserID:  7,
		Text:    "Check this out! #launch",
		Metrics: &model.Metrics{Likes: 50, Shares: 5, Comments: 10, Views: 1000},
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, a.Breakdown.Engagement, 1e-9)
	assert.Equal(t, model.TrendStable, a.Trend)

	assert.Empty(t, st.got)
	assert.Empty(t, e.History("scratch"))
	assert.Empty(t, e.UserSignals(7))
}

func TestProcessContentClampsExtremes(t *testing.T) {
	e, _ := newTestEngine(t)
	cs, err := e.ProcessContent(context.Background(), model.Content{
		ID:      "huge",
		Text:    "a fake scam with a very long description that goes past fifty characters",
		Metrics: &model.Metrics{Likes: 1_000_000_000, Shares: 1_000_000_000, Views: 0},
	})
	require.NoError(t, err)
	for _, s := range cs.Signals {
		assert.GreaterOrEqual(t, s.Value, 0.0, s.Type)
		assert.LessOrEqual(t, s.Value, 1.0, s.Type)
		assert.GreaterOrEqual(t, s.Confidence, 0.0, s.Type)
		assert.LessOrEqual(t, s.Confidence, 1.0, s.Type)
	}
	assert.InDelta(t, 0.2, signalByType(t, cs, model.SignalSafety).Value, 1e-9)
	assert.LessOrEqual(t, cs.AggregatedScore, 1.0)
}

func TestProcessContentSkipsFailingGenerator(t *testing.T) {
	failing := func(model.Content, time.Time) (*model.Signal, error) {
		return nil, errors.New("boom")
	}
	panicking := func(model.Content, time.Time) (*model.Signal, error) {
		panic("bad generator")
	}
	e, _ := newTestEngine(t, WithGenerators(failing, Safety, panicking))
	cs, err := e.ProcessContent(context.Background(), model.Content{ID: "x", Text: "hello world"})
	require.NoError(t, err)
	require.Len(t, cs.Signals, 1)
	assert.Equal(t, model.SignalSafety, cs.Signals[0].Type)
}

func TestProcessContentValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.ProcessContent(context.Background(), model.Content{})
	assert.Error(t, err)
	_, err = e.ProcessContent(context.Background(), model.Content{ID: "a", Type: "podcast"})
	assert.Error(t, err)
}

type recordingStore struct {
	got []model.ContentSignals
	err error
}

func (r *recordingStore) AppendSignals(_ context.Context, cs model.ContentSignals) error {
	r.got = append(r.got, cs)
	return r.err
}

func TestProcessContentPersists(t *testing.T) {
	st := &recordingStore{err: errors.New("disk full")}
	e, _ := newTestEngine(t, WithStore(st))
	_, err := e.ProcessContent(context.Background(), model.Content{ID: "p", Text: "persist me"})
	require.NoError(t, err)
	assert.Len(t, st.got, 1)
}

func TestAnalyzeSignalsNoHistory(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.AnalyzeSignals("missing", nil)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestAnalyzeSignals(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.ProcessContent(context.Background(), model.Content{
		ID:      "c1",
		Text:    "short",
		Metrics: &model.Metrics{Views: 1000},
	})
	require.NoError(t, err)

	a, err := e.AnalyzeSignals("c1", nil)
	require.NoError(t, err)
	assert.Equal(t, model.TrendStable, a.Trend)
	assert.Zero(t, a.Breakdown.Engagement)
	assert.Contains(t, a.Recommendations, "Increase engagement by asking questions or adding call-to-actions")
	assert.Contains(t, a.Recommendations, "Add shareable elements like quotes, tips, or relatable content")
	assert.NotContains(t, a.Recommendations, "Review content for potential safety concerns")

	w := model.SignalWeights{Safety: 1}
	custom, err := e.AnalyzeSignals("c1", &w)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, custom.Overall, 1e-9)
}

func TestTrend(t *testing.T) {
	mk := func(scores ...float64) []model.ContentSignals {
		out := make([]model.ContentSignals, len(scores))
		for i, s := range scores {
			out[i].AggregatedScore = s
		}
		return out
	}
	tests := []struct {
		name   string
		scores []float64
		want   model.Trend
	}{
		{"single point", []float64{0.5}, model.TrendStable},
		{"rising", []float64{0.2, 0.3, 0.5, 0.6}, model.TrendRising},
		{"falling", []float64{0.8, 0.7, 0.3}, model.TrendFalling},
		{"dead zone", []float64{0.5, 0.52, 0.54}, model.TrendStable},
		{"only last five", []float64{0.9, 0.9, 0.1, 0.1, 0.5, 0.5, 0.5}, model.TrendRising},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Trend(mk(tt.scores...)))
		})
	}
}

func TestHistoryBounded(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := 0; i < 150; i++ {
		_, err := e.ProcessContent(context.Background(), model.Content{ID: "c", Text: "repeat"})
		require.NoError(t, err)
	}
	assert.Len(t, e.History("c"), 100)
}

func TestSignalTrendsWindow(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	_, err := e.ProcessContent(ctx, model.Content{ID: "c", Text: "old post text"})
	require.NoError(t, err)
	clk.Advance(48 * time.Hour)
	_, err = e.ProcessContent(ctx, model.Content{ID: "c", Text: "new post text", Metrics: &model.Metrics{Likes: 1, Views: 10}})
	require.NoError(t, err)

	series := e.SignalTrends("c", 0)
	require.Len(t, series.Timestamps, 1)
	assert.InDelta(t, 1.0, series.Engagement[0], 1e-9)

	all := e.SignalTrends("c", 72*time.Hour)
	assert.Len(t, all.Quality, 2)

	assert.Empty(t, e.SignalTrends("none", 0).Timestamps)
}

func TestAggregateZeroWeight(t *testing.T) {
	assert.Zero(t, Aggregate(nil, model.DefaultSignalWeights()))
	s := []model.Signal{{Type: model.SignalSafety, Value: 1, Confidence: 0}}
	assert.Zero(t, Aggregate(s, model.DefaultSignalWeights()))
}

func TestUserSignals(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	for _, c := range []model.Content{
		{ID: "a", UserID: 1, Text: "one"},
		{ID: "b", UserID: 1, Text: "two"},
		{ID: "c", UserID: 2, Text: "three"},
	} {
		_, err := e.ProcessContent(ctx, c)
		require.NoError(t, err)
	}
	assert.Len(t, e.UserSignals(1), 2)
	assert.Len(t, e.UserSignals(3), 0)
}

func TestForget(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.ProcessContent(context.Background(), model.Content{ID: "tmp", Text: "scratch"})
	require.NoError(t, err)
	e.Forget("tmp")
	_, err = e.AnalyzeSignals("tmp", nil)
	assert.ErrorIs(t, err, ErrNoHistory)
}
