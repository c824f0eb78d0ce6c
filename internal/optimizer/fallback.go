package optimizer

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// MockSuffix is appended to content by the deterministic rewriter.
const MockSuffix = " What are your thoughts? 💭 #content #creator #viral"

var (
	weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

	trendingTopics = []string{
		"AI and automation",
		"Creator economy",
		"Productivity tips",
		"Mental health awareness",
		"Sustainable living",
	}
	trendingHashtags = []string{
		"#trending", "#viral", "#creator", "#content", "#growth",
		"#engagement", "#tips", "#motivation", "#success", "#community",
	}
	trendingKeywords = []string{
		"authentic", "behind-the-scenes", "tutorial", "tips", "journey",
		"growth", "community", "success", "motivation", "lifestyle",
	}
	ideaSuggestions = []string{
		"Share a behind-the-scenes moment",
		"Create a tutorial or how-to guide",
		"Post about your daily routine",
		"Share a success story or milestone",
		"Ask your audience a question",
	}
	ideaTemplates = []string{
		"POV: [situation]",
		"Things I wish I knew before [topic]",
		"How to [skill] in [timeframe]",
		"My [number] favorite [items]",
		"Rating [items] as someone who [qualification]",
	}
	ideaHashtags = []string{
		"#creator", "#content", "#viral", "#trending", "#engagement",
		"#growth", "#tips", "#motivation", "#success", "#community",
	}
	timingTips = []string{
		"Post between 9-11 AM for maximum engagement",
		"Tuesday and Thursday are your best days",
		"Avoid posting on weekends for business content",
		"Schedule posts 2-3 hours before peak activity",
	}
)

func clone(s []string) []string {
	return append([]string(nil), s...)
}

// FallbackEnrichment is the deterministic capability used when no live
// provider is configured or the live one fails. It never returns an error.
type FallbackEnrichment struct{}

func (FallbackEnrichment) Name() string { return "fallback" }

func (FallbackEnrichment) Rewrite(_ context.Context, req Request) (string, error) {
	return req.Text + MockSuffix, nil
}

// span maps 16 bits of h onto [lo, hi].
func span(h uint64, shift uint, lo, hi float64) float64 {
	frac := float64((h>>shift)&0xffff) / 0xffff
	return lo + frac*(hi-lo)
}

func contentHash(platform, text string) uint64 {
	d := xxhash.New()
	d.WriteString(platform)
	d.WriteString("\x00")
	d.WriteString(text)
	return d.Sum64()
}

// ViralFactors derives stable pseudo-factors from a hash of the content.
func (FallbackEnrichment) ViralFactors(_ context.Context, text, platform string) (ViralFactors, error) {
	h := contentHash(platform, text)
	h2 := xxhash.Sum64String(strconv.FormatUint(h, 16))
	return ViralFactors{
		Trending:     span(h, 0, 0.2, 1),
		Shareability: span(h, 16, 0.1, 1),
		Emotion:      span(h, 32, 0.3, 1),
		Timing:       span(h, 48, 0.4, 1),
		Format:       span(h2, 0, 0.2, 1),
	}, nil
}

func (FallbackEnrichment) OptimalTiming(context.Context, string, string) (Timing, error) {
	return Timing{DayOfWeek: "Tuesday", HourOfDay: 19, Timezone: "UTC"}, nil
}

func (FallbackEnrichment) Trends(context.Context, string, string) (TrendAnalysis, error) {
	return TrendAnalysis{
		TrendingTopics: clone(trendingTopics),
		Hashtags:       clone(trendingHashtags),
		Keywords:       clone(trendingKeywords),
		Sentiment:      "positive",
		CompetitorInsights: CompetitorInsights{
			TopPerformers:    []string{"Consistent posting schedule", "High-quality visuals", "Engaging storytelling"},
			CommonStrategies: []string{"User-generated content", "Trending audio/hashtags", "Cross-platform promotion"},
			Gaps:             []string{"Limited educational content", "Low community engagement", "Inconsistent brand voice"},
		},
	}, nil
}

func (FallbackEnrichment) Suggestions(context.Context, int64, string, string) (Suggestions, error) {
	return Suggestions{
		Suggestions: clone(ideaSuggestions),
		Templates:   clone(ideaTemplates),
		Hashtags:    clone(ideaHashtags),
		Timing:      clone(timingTips),
	}, nil
}

// PlatformHours lists candidate posting hours for a platform.
func PlatformHours(platform string) []int {
	if platform == "instagram" {
		return []int{9, 12, 15, 18, 21}
	}
	return []int{8, 11, 14, 17, 20}
}
