package cli

import (
	"fmt"
	"io"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/veriscore"
)

func init() {
	score := &cobra.Command{
		Use:   "score",
		Short: "Compute a creator's VeriScore",
		Long:  "Compute a creator's VeriScore from their stored profile and signal history. Profile flags update the stored profile first.",
		Run:   runScore,
	}
	score.Flags().Int64P("user", "u", 0, "Creator user id (required)")
	score.Flags().Int64("posts", -1, "Total posts")
	score.Flags().Int64("engagement", -1, "Total engagement")
	score.Flags().Int64("followers", -1, "Follower count")
	score.Flags().Float64("avg-engagement", -1, "Average engagement per post")
	score.Flags().Int("streak", -1, "Posting streak in days")
	score.Flags().String("joined", "", "Join date (any common format)")
	score.Flags().String("platforms", "", "Comma-separated platforms")
	score.MarkFlagRequired("user")

	explain := &cobra.Command{
		Use:   "explain",
		Short: "Explain a creator's latest VeriScore",
		Run:   runExplain,
	}
	explain.Flags().Int64P("user", "u", 0, "Creator user id (required)")
	explain.MarkFlagRequired("user")

	predict := &cobra.Command{
		Use:   "predict",
		Short: "Project a creator's VeriScore forward",
		Run:   runPredict,
	}
	predict.Flags().Int64P("user", "u", 0, "Creator user id (required)")
	predict.Flags().Int("days", 30, "Days to project")
	predict.MarkFlagRequired("user")

	insights := &cobra.Command{
		Use:   "insights",
		Short: "Summarize a creator's recent performance",
		Run:   runInsights,
	}
	insights.Flags().Int64P("user", "u", 0, "Creator user id (required)")
	insights.Flags().Int("days", 30, "Days to cover")
	insights.MarkFlagRequired("user")

	RootCmd.AddCommand(score, explain, predict, insights)
}

func runScore(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")

	a := mustApp(ctx)
	defer a.Close()
	if err := a.loadUser(ctx, userID); err != nil {
		exitErr("score", err)
	}

	p := a.profileOrEmpty(ctx, userID)
	changed, err := applyProfileFlags(cmd, &p)
	if err != nil {
		exitErr("score", err)
	}
	if changed {
		if err := a.store.SaveProfile(ctx, p); err != nil {
			exitErr("save profile", err)
		}
	}

	b, err := a.calc.Calculate(ctx, userID, p, a.engine.UserSignals(userID), nil)
	if err != nil {
		exitErr("score", err)
	}

	emit(b, func(w io.Writer) {
		fmt.Fprintf(w, "veriscore %.1f (%+.1f)  tier %s  percentile %d  trend %s  next milestone %.0f\n",
			b.CurrentScore, b.Change, b.Tier, b.Percentile, b.Trend, b.NextMilestone)
	})
}

// applyProfileFlags copies any set profile flags onto p.
func applyProfileFlags(cmd *cobra.Command, p *model.CreatorProfile) (bool, error) {
	changed := false
	if v, _ := cmd.Flags().GetInt64("posts"); v >= 0 {
		p.TotalPosts, changed = v, true
	}
	if v, _ := cmd.Flags().GetInt64("engagement"); v >= 0 {
		p.TotalEngagement, changed = v, true
	}
	if v, _ := cmd.Flags().GetInt64("followers"); v >= 0 {
		p.FollowerCount, changed = v, true
	}
	if v, _ := cmd.Flags().GetFloat64("avg-engagement"); v >= 0 {
		p.AverageEngagement, changed = v, true
	}
	if v, _ := cmd.Flags().GetInt("streak"); v >= 0 {
		p.StreakDays, changed = v, true
	}
	if v, _ := cmd.Flags().GetString("joined"); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return false, fmt.Errorf("parse --joined: %w", err)
		}
		p.JoinDate, changed = t, true
	}
	if v, _ := cmd.Flags().GetString("platforms"); v != "" {
		p.Platforms, changed = splitList(v), true
	}
	return changed, nil
}

func runExplain(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")

	a := mustApp(ctx)
	defer a.Close()
	if err := a.loadUser(ctx, userID); err != nil {
		exitErr("explain", err)
	}

	hist := a.calc.History(userID)
	if len(hist) == 0 {
		exitErr("explain", fmt.Errorf("no score history for user %d (run score first)", userID))
	}
	last := hist[len(hist)-1]
	b := model.VeriScoreBreakdown{
		CurrentScore:  last.Score,
		Factors:       last.Factors,
		Percentile:    veriscore.PercentileFor(last.Score),
		Tier:          veriscore.TierFor(last.Score),
		Trend:         veriscore.TrendOf(hist[:len(hist)-1]),
		NextMilestone: veriscore.NextMilestone(last.Score),
	}
	if len(hist) > 1 {
		b.PreviousScore = hist[len(hist)-2].Score
		b.Change = b.CurrentScore - b.PreviousScore
	}
	ex := veriscore.Explain(b)

	emit(ex, func(w io.Writer) {
		fmt.Fprintln(w, ex.Summary)
		section(w, "Strengths", ex.Strengths)
		section(w, "Improvements", ex.Improvements)
		section(w, "Action items", ex.ActionItems)
	})
}

func runPredict(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	days, _ := cmd.Flags().GetInt("days")

	a := mustApp(ctx)
	defer a.Close()
	if err := a.loadUser(ctx, userID); err != nil {
		exitErr("predict", err)
	}

	tr := a.calc.PredictTrajectory(userID, days)
	emit(tr, func(w io.Writer) {
		fmt.Fprintf(w, "current %.1f  predicted %.1f in %d days  confidence %.2f\n",
			tr.CurrentScore, tr.PredictedScore, days, tr.Confidence)
	})
}

func runInsights(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	days, _ := cmd.Flags().GetInt("days")

	a := mustApp(ctx)
	defer a.Close()
	if err := a.loadUser(ctx, userID); err != nil {
		exitErr("insights", err)
	}

	ins := a.bm.UserInsights(userID, days)
	emit(ins, func(w io.Writer) {
		fmt.Fprintf(w, "average veriscore %.1f  trend %s\n", ins.Performance.AverageVeriScore, ins.Performance.Trend)
		section(w, "Top content", ins.Performance.TopPerformingContent)
		section(w, "Improvement areas", ins.Performance.ImprovementAreas)
		section(w, "Recommendations", ins.Recommendations)
		section(w, "Next steps", ins.NextSteps)
	})
}

func section(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}
