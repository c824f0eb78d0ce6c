package signal

import (
	"strings"
	"time"

	"github.com/rcliao/brightmatter/internal/model"
)

const (
	// excellentEngagementRate is the interaction rate treated as a perfect score.
	excellentEngagementRate = 0.1
	// viralShareRate is the share rate treated as fully viral.
	viralShareRate = 0.05
)

// UnsafeKeywords are matched case-insensitively against content text.
var UnsafeKeywords = []string{"spam", "scam", "fake", "hate"}

// Generator derives one signal from content. It returns nil when the content
// carries no evidence for its signal type.
type Generator func(c model.Content, now time.Time) (*model.Signal, error)

// DefaultGenerators returns the built-in engagement, viral, safety and
// quality generators in that order.
func DefaultGenerators() []Generator {
	return []Generator{Engagement, Viral, Safety, Quality}
}

// interacted reports whether m shows any views or interactions.
func interacted(m *model.Metrics) bool {
	return m != nil && (m.Views > 0 || m.Likes+m.Shares+m.Comments > 0)
}

func saved(m *model.Metrics) bool {
	return m != nil && m.Saves > 0
}

func newSignal(prefix string, t model.SignalType, value, confidence float64, now time.Time, source string, meta map[string]any) *model.Signal {
	return &model.Signal{
		ID:         prefix + "_" + model.NewIDAt(now),
		Type:       t,
		Value:      model.Clamp01(value),
		Confidence: model.Clamp01(confidence),
		Timestamp:  now,
		Source:     source,
		Metadata:   meta,
	}
}

// Engagement scores (likes+shares+comments)/views against an excellent rate of 10%.
func Engagement(c model.Content, now time.Time) (*model.Signal, error) {
	if !interacted(c.Metrics) {
		return nil, nil
	}
	m := c.Metrics
	total := m.Likes + m.Shares + m.Comments
	views := max(m.Views, 1)
	rate := float64(total) / float64(views)
	conf := 0.5 + float64(m.Views)/10000
	return newSignal("eng", model.SignalEngagement, rate/excellentEngagementRate, conf, now, "metrics_analysis", map[string]any{
		"engagement_rate":   rate,
		"total_engagements": total,
		"views":             m.Views,
		"platform":          c.Platform,
	}), nil
}

// Viral scores the share rate against a 5% reference.
func Viral(c model.Content, now time.Time) (*model.Signal, error) {
	if !interacted(c.Metrics) {
		return nil, nil
	}
	m := c.Metrics
	rate := float64(m.Shares) / float64(max(m.Views, 1))
	conf := 0.3 + float64(m.Views)/5000
	return newSignal("vir", model.SignalViral, rate/viralShareRate, conf, now, "viral_analysis", map[string]any{
		"share_rate": rate,
		"shares":     m.Shares,
		"views":      m.Views,
		"platform":   c.Platform,
	}), nil
}

// Safety checks text against UnsafeKeywords.
func Safety(c model.Content, now time.Time) (*model.Signal, error) {
	if c.Text == "" {
		return nil, nil
	}
	lower := strings.ToLower(c.Text)
	unsafe := false
	for _, kw := range UnsafeKeywords {
		if strings.Contains(lower, kw) {
			unsafe = true
			break
		}
	}
	value := 0.9
	if unsafe {
		value = 0.2
	}
	return newSignal("saf", model.SignalSafety, value, 0.7, now, "safety_analysis", map[string]any{
		"text_length":        len(c.Text),
		"has_unsafe_content": unsafe,
		"platform":           c.Platform,
	}), nil
}

// Quality is an additive heuristic over text length and engagement.
func Quality(c model.Content, now time.Time) (*model.Signal, error) {
	if c.Text == "" && !interacted(c.Metrics) && !saved(c.Metrics) {
		return nil, nil
	}
	hasText := len(c.Text) > 10
	hasEngagement := c.Metrics != nil && c.Metrics.Likes > 0
	hasDescription := len(c.Text) > 50

	score := 0.5
	if hasText {
		score += 0.2
	}
	if hasEngagement {
		score += 0.2
	}
	if hasDescription {
		score += 0.1
	}
	return newSignal("qua", model.SignalQuality, score, 0.6, now, "quality_analysis", map[string]any{
		"text_length":         len(c.Text),
		"has_text":            hasText,
		"has_good_engagement": hasEngagement,
		"has_description":     hasDescription,
		"platform":            c.Platform,
	}), nil
}
