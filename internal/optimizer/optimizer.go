// Package optimizer suggests content improvements, viral potential and
// trend-driven ideas. Every method returns a usable result: when the live
// capability is missing or fails, a deterministic fallback answers instead.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rcliao/brightmatter/internal/cache"
	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/signal"
)

// Enrichment is the capability behind the optimizer.
type Enrichment interface {
	Name() string
	Rewrite(ctx context.Context, req Request) (string, error)
	ViralFactors(ctx context.Context, text, platform string) (ViralFactors, error)
	OptimalTiming(ctx context.Context, text, platform string) (Timing, error)
	Trends(ctx context.Context, platform, category string) (TrendAnalysis, error)
	Suggestions(ctx context.Context, userID int64, platform, contentType string) (Suggestions, error)
}

var baseMetrics = model.Breakdown{Engagement: 0.6, Viral: 0.4, Quality: 0.7, Safety: 0.9}

// Optimizer produces optimization results over an Enrichment capability.
type Optimizer struct {
	engine   *signal.Engine
	enrich   Enrichment
	fallback FallbackEnrichment
	cache    *cache.Manager
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithEnrichment selects the capability. The default is FallbackEnrichment.
func WithEnrichment(e Enrichment) Option {
	return func(o *Optimizer) {
		if e != nil {
			o.enrich = e
		}
	}
}

// WithCache stores results in m.
func WithCache(m *cache.Manager) Option {
	return func(o *Optimizer) { o.cache = m }
}

// WithCacheTTL sets how long results are kept.
func WithCacheTTL(d time.Duration) Option {
	return func(o *Optimizer) { o.cacheTTL = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// New creates an Optimizer that analyzes originals with engine.
func New(engine *signal.Engine, opts ...Option) *Optimizer {
	o := &Optimizer{
		engine:   engine,
		enrich:   FallbackEnrichment{},
		cacheTTL: time.Hour,
		logger:   slog.Default(),
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.cache == nil {
		o.cache = cache.NewManager(nil, cache.WithLogger(o.logger))
	}
	o.logger = o.logger.With("component", "optimizer")
	return o
}

// Live reports whether a non-fallback capability is configured.
func (o *Optimizer) Live() bool {
	_, ok := o.enrich.(FallbackEnrichment)
	return !ok
}

// CacheKey derives the result cache key from the request identity.
func CacheKey(req Request) string {
	raw := fmt.Sprintf("%d\x00%s\x00%s\x00%s", req.UserID, req.Platform, req.Type, req.Text)
	return fmt.Sprintf("%016x", xxhash.Sum64String(raw))
}

func (o *Optimizer) degrade(op string, err error) {
	o.logger.Warn("enrichment failed, using fallback", "op", op, "provider", o.enrich.Name(), "err", err)
}

// OptimizeContent rewrites req and predicts the effect of the changes.
func (o *Optimizer) OptimizeContent(ctx context.Context, req Request) Result {
	key := CacheKey(req)
	if res, err := cache.GetJSON[Result](ctx, o.cache, key, cache.Prefix("optimize")); err == nil {
		return res
	}

	analysis := o.analyzeOriginal(req)

	source := o.enrich.Name()
	optimized, err := o.enrich.Rewrite(ctx, req)
	if err != nil {
		o.degrade("rewrite", err)
		optimized, _ = o.fallback.Rewrite(ctx, req)
		source = o.fallback.Name()
	}

	improvements := IdentifyImprovements(req.Text, optimized)
	boost := meanImpact(improvements)
	res := Result{
		OriginalAnalysis: analysis,
		OptimizedContent: optimized,
		Improvements:     improvements,
		PredictedMetrics: model.Breakdown{
			Engagement: model.Clamp01(baseMetrics.Engagement + boost),
			Viral:      model.Clamp01(baseMetrics.Viral + boost),
			Quality:    model.Clamp01(baseMetrics.Quality + boost),
			Safety:     baseMetrics.Safety,
		},
		Recommendations: optimizationRecommendations(analysis, improvements),
		Confidence:      model.Clamp01((boost + analysis.Confidence) / 2),
		Source:          source,
	}
	if err := o.cache.Set(ctx, key, res, cache.Prefix("optimize"), cache.TTL(o.cacheTTL)); err != nil {
		o.logger.Warn("cache optimization failed", "err", err)
	}
	return res
}

func (o *Optimizer) analyzeOriginal(req Request) model.SignalAnalysis {
	if o.engine == nil {
		return fallbackAnalysis()
	}
	a, err := o.engine.Analyze(model.Content{
		ID:       "opt_" + model.NewID(),
		UserID:   req.UserID,
		Platform: req.Platform,
		Type:     req.Type,
		Text:     req.Text,
		Metrics:  req.Metrics,
	}, nil)
	if err != nil {
		o.logger.Warn("analyze original failed", "err", err)
		return fallbackAnalysis()
	}
	return a
}

func fallbackAnalysis() model.SignalAnalysis {
	return model.SignalAnalysis{
		Overall:         0.6,
		Breakdown:       model.Breakdown{Engagement: 0.5, Viral: 0.4, Safety: 0.9, Quality: 0.6},
		Trend:           model.TrendStable,
		Confidence:      0.7,
		Recommendations: []string{"Add more engaging elements"},
	}
}

// IdentifyImprovements lists the hashtag and call-to-action changes that
// optimized adds over original.
func IdentifyImprovements(original, optimized string) []Improvement {
	out := []Improvement{}
	if strings.Count(optimized, "#") > strings.Count(original, "#") {
		out = append(out, Improvement{
			Type:        ImproveHashtags,
			Description: "Added relevant hashtags for better discoverability",
			Before:      original,
			After:       optimized,
			Impact:      0.3,
		})
	}
	if strings.Count(optimized, "?") > strings.Count(original, "?") {
		out = append(out, Improvement{
			Type:        ImproveCTA,
			Description: "Added engaging call-to-action",
			Before:      original,
			After:       optimized,
			Impact:      0.4,
		})
	}
	return out
}

func meanImpact(imps []Improvement) float64 {
	vs := make([]float64, len(imps))
	for i, imp := range imps {
		vs[i] = imp.Impact
	}
	return model.Mean(vs)
}

func optimizationRecommendations(a model.SignalAnalysis, imps []Improvement) []string {
	recs := []string{}
	if a.Breakdown.Engagement < 0.6 {
		recs = append(recs, "Add more engaging elements like questions or polls")
	}
	if a.Breakdown.Viral < 0.4 {
		recs = append(recs, "Include trending hashtags and shareable content")
	}
	if len(imps) > 0 {
		recs = append(recs, "Consider implementing the suggested improvements")
	}
	return recs
}

// ViralScore weights the five factors into a 0-100 integer.
func ViralScore(f ViralFactors) int {
	s := f.Trending*0.30 + f.Shareability*0.25 + f.Emotion*0.20 + f.Timing*0.15 + f.Format*0.10
	return int(math.Round(model.Clamp01(s) * 100))
}

// ViralSuggestions returns advice for weak factors.
func ViralSuggestions(f ViralFactors) []string {
	out := []string{}
	if f.Trending < 0.5 {
		out = append(out, "Include trending topics or hashtags")
	}
	if f.Shareability < 0.6 {
		out = append(out, "Make content more shareable with quotes or tips")
	}
	if f.Emotion < 0.6 {
		out = append(out, "Add emotional hooks to increase engagement")
	}
	return out
}

// AnalyzeViralPotential scores text for platform.
func (o *Optimizer) AnalyzeViralPotential(ctx context.Context, text, platform string) ViralPotential {
	f, err := o.enrich.ViralFactors(ctx, text, platform)
	if err != nil {
		o.degrade("viral_factors", err)
		f, _ = o.fallback.ViralFactors(ctx, text, platform)
	}
	timing, err := o.enrich.OptimalTiming(ctx, text, platform)
	if err != nil {
		o.degrade("optimal_timing", err)
		timing, _ = o.fallback.OptimalTiming(ctx, text, platform)
	}
	return ViralPotential{
		Score:         ViralScore(f),
		Factors:       f,
		Suggestions:   ViralSuggestions(f),
		OptimalTiming: timing,
	}
}

// TrendAnalysis returns trending topics for platform, cached per category.
func (o *Optimizer) TrendAnalysis(ctx context.Context, platform, category string) TrendAnalysis {
	if category == "" {
		category = "general"
	}
	key := platform + ":" + category
	if t, err := cache.GetJSON[TrendAnalysis](ctx, o.cache, key, cache.Prefix("trends")); err == nil {
		return t
	}
	t, err := o.enrich.Trends(ctx, platform, category)
	if err != nil {
		o.degrade("trends", err)
		t, _ = o.fallback.Trends(ctx, platform, category)
	}
	if err := o.cache.Set(ctx, key, t, cache.Prefix("trends"), cache.TTL(o.cacheTTL)); err != nil {
		o.logger.Warn("cache trends failed", "err", err)
	}
	return t
}

// ContentSuggestions returns ideas, templates, hashtags and timing tips.
func (o *Optimizer) ContentSuggestions(ctx context.Context, userID int64, platform, contentType string) Suggestions {
	s, err := o.enrich.Suggestions(ctx, userID, platform, contentType)
	if err != nil {
		o.degrade("suggestions", err)
		s, _ = o.fallback.Suggestions(ctx, userID, platform, contentType)
	}
	return s
}

// ClearCache drops cached optimizations and trends.
func (o *Optimizer) ClearCache(ctx context.Context) {
	for _, p := range []string{"optimize", "trends"} {
		if _, err := o.cache.InvalidatePattern(ctx, "*", cache.Prefix(p)); err != nil {
			o.logger.Warn("clear cache failed", "prefix", p, "err", err)
		}
	}
}
