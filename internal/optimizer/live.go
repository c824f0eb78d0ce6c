package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rcliao/brightmatter/internal/cost"
	"github.com/rcliao/brightmatter/internal/embedding"
	"github.com/rcliao/brightmatter/internal/model"
)

const (
	rewriteSystem = "You rewrite social media posts to increase engagement. " +
		"Keep the author's voice, add one question for the audience and two or three relevant hashtags. " +
		"Reply with the rewritten post only."
	ideasSystem = "You suggest short content ideas for creators. Reply with one idea per line, no numbering."
)

var errNoCapability = errors.New("capability not configured")

// LiveEnrichment calls an embedding provider and a language model, reporting
// every call to a cost tracker. Pieces without an external source reuse the
// deterministic implementation.
type LiveEnrichment struct {
	embedder  embedding.Embedder
	completer Completer
	tracker   cost.Tracker
	base      FallbackEnrichment
	logger    *slog.Logger

	mu        sync.Mutex
	topicVecs []embedding.Vector
}

// NewLiveEnrichment wires the live capability. Any argument may be nil; the
// corresponding methods then fail and the optimizer falls back.
func NewLiveEnrichment(e embedding.Embedder, c Completer, t cost.Tracker, logger *slog.Logger) *LiveEnrichment {
	if t == nil {
		t = cost.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveEnrichment{
		embedder:  e,
		completer: c,
		tracker:   t,
		logger:    logger.With("component", "optimizer"),
	}
}

func (l *LiveEnrichment) Name() string { return "live" }

// track reports usage without letting bookkeeping affect the caller.
func (l *LiveEnrichment) track(ctx context.Context, u cost.Usage) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("cost tracker panicked", "endpoint", u.Endpoint, "panic", r)
		}
	}()
	if u.EstimatedCost == 0 {
		u.EstimatedCost = cost.EstimateCost(u.Service, u.TokensUsed)
	}
	if err := l.tracker.TrackUsage(ctx, u); err != nil {
		l.logger.Warn("cost tracking failed", "endpoint", u.Endpoint, "err", err)
	}
}

func (l *LiveEnrichment) Rewrite(ctx context.Context, req Request) (string, error) {
	if l.completer == nil {
		return "", fmt.Errorf("rewrite: %w", errNoCapability)
	}
	prompt := fmt.Sprintf("Platform: %s\nFormat: %s\n", req.Platform, req.Type)
	if req.TargetAudience != "" {
		prompt += "Audience: " + req.TargetAudience + "\n"
	}
	prompt += "Post:\n" + req.Text
	c, err := l.completer.Complete(ctx, rewriteSystem, prompt)
	if err != nil {
		return "", err
	}
	l.track(ctx, cost.Usage{UserID: req.UserID, Service: cost.ServiceOpenAI, Endpoint: "content_optimization", TokensUsed: c.Tokens})
	if c.Text == "" {
		return "", errors.New("rewrite: empty completion")
	}
	return c.Text, nil
}

// ViralFactors measures how close the content sits to current trending
// topics in embedding space; the remaining factors are hash-derived.
func (l *LiveEnrichment) ViralFactors(ctx context.Context, text, platform string) (ViralFactors, error) {
	if l.embedder == nil {
		return ViralFactors{}, fmt.Errorf("viral factors: %w", errNoCapability)
	}
	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		return ViralFactors{}, fmt.Errorf("embed content: %w", err)
	}
	chars := utf8.RuneCountInString(text)
	l.track(ctx, cost.Usage{
		Service:       cost.ServiceChroma,
		Endpoint:      "embedding_generation",
		TokensUsed:    int64(chars / 4),
		EstimatedCost: cost.EstimateCost(cost.ServiceChroma, int64(chars)),
	})

	topics, err := l.topicVectors(ctx)
	if err != nil {
		return ViralFactors{}, err
	}
	best := 0.0
	for _, tv := range topics {
		sim, err := embedding.CosineSimilarity(vec, tv)
		if err != nil {
			return ViralFactors{}, err
		}
		best = math.Max(best, sim)
	}

	f, _ := l.base.ViralFactors(ctx, text, platform)
	f.Trending = 0.2 + 0.8*model.Clamp01(best)
	return f, nil
}

func (l *LiveEnrichment) topicVectors(ctx context.Context) ([]embedding.Vector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.topicVecs != nil {
		return l.topicVecs, nil
	}
	vs, err := l.embedder.EmbedBatch(ctx, trendingTopics)
	if err != nil {
		return nil, fmt.Errorf("embed trending topics: %w", err)
	}
	l.topicVecs = vs
	return vs, nil
}

// OptimalTiming picks a weekday and one of the platform's peak hours from a
// hash of the content.
func (l *LiveEnrichment) OptimalTiming(_ context.Context, text, platform string) (Timing, error) {
	h := contentHash(platform, text)
	hours := PlatformHours(platform)
	return Timing{
		DayOfWeek: weekdays[h%uint64(len(weekdays))],
		HourOfDay: hours[(h>>8)%uint64(len(hours))],
		Timezone:  "UTC",
	}, nil
}

// Trends has no external source yet and serves the curated lists.
func (l *LiveEnrichment) Trends(ctx context.Context, platform, category string) (TrendAnalysis, error) {
	return l.base.Trends(ctx, platform, category)
}

func (l *LiveEnrichment) Suggestions(ctx context.Context, userID int64, platform, contentType string) (Suggestions, error) {
	if l.completer == nil {
		return Suggestions{}, fmt.Errorf("suggestions: %w", errNoCapability)
	}
	prompt := fmt.Sprintf("Give five %s ideas for %s.", contentType, platform)
	c, err := l.completer.Complete(ctx, ideasSystem, prompt)
	if err != nil {
		return Suggestions{}, err
	}
	l.track(ctx, cost.Usage{UserID: userID, Service: cost.ServiceOpenAI, Endpoint: "content_suggestions", TokensUsed: c.Tokens})

	ideas := parseLines(c.Text)
	if len(ideas) == 0 {
		return Suggestions{}, errors.New("suggestions: empty completion")
	}
	s, _ := l.base.Suggestions(ctx, userID, platform, contentType)
	s.Suggestions = ideas
	return s, nil
}

func parseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789.) "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
