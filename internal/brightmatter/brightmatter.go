// Package brightmatter composes signal analysis, VeriScore and content
// optimization into a single analysis of a creator's content.
package brightmatter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rcliao/brightmatter/internal/cache"
	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/optimizer"
	"github.com/rcliao/brightmatter/internal/signal"
	"github.com/rcliao/brightmatter/internal/veriscore"
)

const (
	maxRecommendations  = 5
	defaultBatchWorkers = 8
	analysisPrefix      = "analysis"
)

// Options toggles optional parts of an analysis.
type Options struct {
	IncludeOptimization  bool                 `json:"include_optimization,omitempty"`
	IncludeViralAnalysis bool                 `json:"include_viral_analysis,omitempty"`
	SignalWeights        *model.SignalWeights `json:"signal_weights,omitempty"`
	ScoreWeights         *model.ScoreWeights  `json:"score_weights,omitempty"`
}

// Request asks for an analysis of one piece of content.
type Request struct {
	UserID  int64                `json:"user_id"`
	Content model.Content        `json:"content"`
	Profile model.CreatorProfile `json:"profile"`
	Options Options              `json:"options"`
}

// Result is a full analysis.
type Result struct {
	ContentSignals  model.ContentSignals      `json:"content_signals"`
	SignalAnalysis  model.SignalAnalysis      `json:"signal_analysis"`
	VeriScore       model.VeriScoreBreakdown  `json:"veriscore"`
	Optimization    *optimizer.Result         `json:"optimization,omitempty"`
	ViralPotential  *optimizer.ViralPotential `json:"viral_potential,omitempty"`
	Recommendations []string                  `json:"recommendations"`
	Confidence      float64                   `json:"confidence"`
}

// BatchItem is the outcome of one request in a batch.
type BatchItem struct {
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
	Error  string  `json:"error,omitempty"`
}

// Performance summarizes a creator's recent results.
type Performance struct {
	AverageVeriScore     float64     `json:"average_veriscore"`
	Trend                model.Trend `json:"trend"`
	TopPerformingContent []string    `json:"top_performing_content"`
	ImprovementAreas     []string    `json:"improvement_areas"`
}

// UserInsights is a performance report for one creator.
type UserInsights struct {
	Performance     Performance `json:"performance"`
	Recommendations []string    `json:"recommendations"`
	NextSteps       []string    `json:"next_steps"`
}

// TrendingInsights is a platform trend digest.
type TrendingInsights struct {
	Topics        []string `json:"topics"`
	Hashtags      []string `json:"hashtags"`
	Timing        []string `json:"timing"`
	Opportunities []string `json:"opportunities"`
}

// CacheStats reports analysis cache effectiveness.
type CacheStats struct {
	cache.Stats
	Enabled bool `json:"enabled"`
}

// Orchestrator runs analyses.
type Orchestrator struct {
	engine   *signal.Engine
	calc     *veriscore.Calculator
	opt      *optimizer.Optimizer
	cache    *cache.Manager
	cacheTTL time.Duration
	workers  int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache stores analyses in m. Without it a private in-process cache is used.
func WithCache(m *cache.Manager) Option {
	return func(o *Orchestrator) { o.cache = m }
}

// WithCacheTTL sets how long analyses are cached. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(o *Orchestrator) { o.cacheTTL = d }
}

// WithBatchWorkers bounds BatchAnalyze parallelism.
func WithBatchWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator over the three services.
func New(engine *signal.Engine, calc *veriscore.Calculator, opt *optimizer.Optimizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		calc:     calc,
		opt:      opt,
		cacheTTL: time.Hour,
		workers:  defaultBatchWorkers,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.cache == nil {
		o.cache = cache.NewManager(nil, cache.WithLogger(o.logger))
	}
	o.logger = o.logger.With("component", "brightmatter")
	return o
}

// CacheKey identifies an analysis by user, content and platform.
func CacheKey(req Request) string {
	return fmt.Sprintf("%d:%s:%s", req.UserID, req.Content.ID, req.Content.Platform)
}

// AnalyzeContent processes the content, analyzes its signals, scores the
// creator and optionally adds optimization and viral analysis. Results are
// cached by CacheKey.
func (o *Orchestrator) AnalyzeContent(ctx context.Context, req Request) (*Result, error) {
	key := CacheKey(req)
	if o.cacheTTL > 0 {
		if res, err := cache.GetJSON[Result](ctx, o.cache, key, cache.Prefix(analysisPrefix)); err == nil {
			return &res, nil
		}
	}

	content := req.Content
	content.UserID = req.UserID
	cs, err := o.engine.ProcessContent(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("analyze content: %w", err)
	}
	analysis, err := o.engine.AnalyzeSignals(cs.ContentID, req.Options.SignalWeights)
	if err != nil {
		return nil, fmt.Errorf("analyze content: %w", err)
	}
	score, err := o.calc.Calculate(ctx, req.UserID, req.Profile, []model.ContentSignals{cs}, req.Options.ScoreWeights)
	if err != nil {
		return nil, fmt.Errorf("analyze content: %w", err)
	}

	res := &Result{
		ContentSignals: cs,
		SignalAnalysis: analysis,
		VeriScore:      score,
	}
	if req.Options.IncludeOptimization {
		opt := o.opt.OptimizeContent(ctx, optimizer.Request{
			UserID:   req.UserID,
			Text:     content.Text,
			Type:     content.Type,
			Platform: content.Platform,
			Metrics:  content.Metrics,
			Goals:    []model.SignalType{model.SignalEngagement, model.SignalViral, model.SignalQuality},
		})
		res.Optimization = &opt
	}
	if req.Options.IncludeViralAnalysis {
		vp := o.opt.AnalyzeViralPotential(ctx, content.Text, content.Platform)
		res.ViralPotential = &vp
	}
	res.Recommendations = UnifiedRecommendations(res)
	res.Confidence = overallConfidence(res)

	if o.cacheTTL > 0 {
		if err := o.cache.Set(ctx, key, res, cache.Prefix(analysisPrefix), cache.TTL(o.cacheTTL)); err != nil {
			o.logger.Warn("cache analysis failed", "key", key, "err", err)
		}
	}
	return res, nil
}

// UnifiedRecommendations merges signal, score, optimization and viral advice,
// drops duplicates and keeps the first five.
func UnifiedRecommendations(r *Result) []string {
	recs := append([]string{}, r.SignalAnalysis.Recommendations...)
	if r.VeriScore.Factors.Engagement < 0.6 {
		recs = append(recs, "Focus on creating more engaging content")
	}
	if r.VeriScore.Factors.Consistency < 0.6 {
		recs = append(recs, "Maintain a consistent posting schedule")
	}
	if r.Optimization != nil {
		recs = append(recs, r.Optimization.Recommendations...)
	}
	if r.ViralPotential != nil && r.ViralPotential.Score < 60 {
		recs = append(recs, "Add trending elements to increase viral potential")
	}

	seen := make(map[string]bool, len(recs))
	out := make([]string, 0, maxRecommendations)
	for _, rec := range recs {
		if seen[rec] {
			continue
		}
		seen[rec] = true
		out = append(out, rec)
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}

func overallConfidence(r *Result) float64 {
	scores := []float64{r.SignalAnalysis.Confidence}
	if r.Optimization != nil {
		scores = append(scores, r.Optimization.Confidence)
	}
	return model.Clamp01(model.Mean(scores))
}

// BatchAnalyze analyzes every request in parallel. Each item carries its own
// result or error; one failure does not affect the others.
func (o *Orchestrator) BatchAnalyze(ctx context.Context, reqs []Request) []BatchItem {
	out := make([]BatchItem, len(reqs))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, req Request) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				out[i] = BatchItem{Err: err, Error: err.Error()}
				return
			}
			res, err := o.AnalyzeContent(ctx, req)
			if err != nil {
				o.logger.Warn("batch item failed", "index", i, "content_id", req.Content.ID, "err", err)
				out[i] = BatchItem{Err: err, Error: err.Error()}
				return
			}
			out[i] = BatchItem{Result: res}
		}(i, req)
	}
	wg.Wait()
	return out
}

var defaultNextSteps = []string{
	"Create a content calendar",
	"Analyze your top 5 posts for patterns",
	"Experiment with different content formats",
}

// UserInsights summarizes a creator's last days of scores and content.
func (o *Orchestrator) UserInsights(userID int64, days int) UserInsights {
	if days <= 0 {
		days = 30
	}
	cutoff := o.now().AddDate(0, 0, -days)

	var recent []model.VeriScoreHistory
	for _, h := range o.calc.History(userID) {
		if !h.Timestamp.Before(cutoff) {
			recent = append(recent, h)
		}
	}
	scores := make([]float64, len(recent))
	for i, h := range recent {
		scores[i] = h.Score
	}

	ins := UserInsights{
		Performance: Performance{
			AverageVeriScore:     model.Mean(scores),
			Trend:                veriscore.TrendOf(recent),
			TopPerformingContent: o.topContent(userID, cutoff, 3),
			ImprovementAreas:     []string{},
		},
		Recommendations: []string{},
		NextSteps:       append([]string{}, defaultNextSteps...),
	}
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		ex := veriscore.Explain(model.VeriScoreBreakdown{
			CurrentScore: last.Score,
			Factors:      last.Factors,
			Tier:         veriscore.TierFor(last.Score),
			Trend:        ins.Performance.Trend,
		})
		ins.Performance.ImprovementAreas = ex.Improvements
		ins.Recommendations = ex.ActionItems
	}
	return ins
}

func (o *Orchestrator) topContent(userID int64, since time.Time, n int) []string {
	latest := make(map[string]model.ContentSignals)
	for _, cs := range o.engine.UserSignals(userID) {
		if cs.Timestamp.Before(since) {
			continue
		}
		if prev, ok := latest[cs.ContentID]; !ok || cs.Timestamp.After(prev.Timestamp) {
			latest[cs.ContentID] = cs
		}
	}
	all := make([]model.ContentSignals, 0, len(latest))
	for _, cs := range latest {
		all = append(all, cs)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].AggregatedScore == all[j].AggregatedScore {
			return all[i].ContentID < all[j].ContentID
		}
		return all[i].AggregatedScore > all[j].AggregatedScore
	})
	out := []string{}
	for i := 0; i < len(all) && i < n; i++ {
		cs := all[i]
		out = append(out, fmt.Sprintf("%s %s on %s scored %.2f", cs.ContentType, cs.ContentID, cs.Platform, cs.AggregatedScore))
	}
	return out
}

// TrendingInsights returns trending topics, hashtags, posting hours and gaps
// for platform.
func (o *Orchestrator) TrendingInsights(ctx context.Context, platform, category string) TrendingInsights {
	t := o.opt.TrendAnalysis(ctx, platform, category)
	timing := []string{}
	for _, h := range optimizer.PlatformHours(platform) {
		timing = append(timing, fmt.Sprintf("%02d:00 UTC", h))
	}
	return TrendingInsights{
		Topics:        t.TrendingTopics,
		Hashtags:      t.Hashtags,
		Timing:        timing,
		Opportunities: t.CompetitorInsights.Gaps,
	}
}

// ContentIdeas returns ideas for a creator.
func (o *Orchestrator) ContentIdeas(ctx context.Context, userID int64, platform, contentType string) optimizer.Suggestions {
	return o.opt.ContentSuggestions(ctx, userID, platform, contentType)
}

// ClearCache drops cached analyses and optimizer results.
func (o *Orchestrator) ClearCache(ctx context.Context) {
	if _, err := o.cache.InvalidatePattern(ctx, "*", cache.Prefix(analysisPrefix)); err != nil {
		o.logger.Warn("clear analysis cache failed", "err", err)
	}
	o.opt.ClearCache(ctx)
	o.logger.Info("cache cleared")
}

// CacheStats reports the shared cache's counters.
func (o *Orchestrator) CacheStats(ctx context.Context) CacheStats {
	return CacheStats{Stats: o.cache.Stats(ctx), Enabled: o.cacheTTL > 0}
}
