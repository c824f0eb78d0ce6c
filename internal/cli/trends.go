package cli

import (
	"io"

	"github.com/spf13/cobra"
)

func init() {
	trends := &cobra.Command{
		Use:   "trends",
		Short: "Show trending topics and posting times for a platform",
		Run:   runTrends,
	}
	trends.Flags().StringP("platform", "p", "instagram", "Platform")
	trends.Flags().String("category", "", "Category")

	ideas := &cobra.Command{
		Use:   "ideas",
		Short: "Suggest content ideas for a creator",
		Run:   runIdeas,
	}
	ideas.Flags().Int64P("user", "u", 0, "Creator user id")
	ideas.Flags().StringP("platform", "p", "instagram", "Platform")
	ideas.Flags().StringP("type", "t", "post", "Content type")

	RootCmd.AddCommand(trends, ideas)
}

func runTrends(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	platform, _ := cmd.Flags().GetString("platform")
	category, _ := cmd.Flags().GetString("category")

	a := mustApp(ctx)
	defer a.Close()

	ins := a.bm.TrendingInsights(ctx, platform, category)
	a.usage.Flush()
	emit(ins, func(w io.Writer) {
		section(w, "Topics", ins.Topics)
		section(w, "Hashtags", ins.Hashtags)
		section(w, "Best times", ins.Timing)
		section(w, "Opportunities", ins.Opportunities)
	})
}

func runIdeas(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	platform, _ := cmd.Flags().GetString("platform")
	ctype, _ := cmd.Flags().GetString("type")

	a := mustApp(ctx)
	defer a.Close()

	sug := a.bm.ContentIdeas(ctx, userID, platform, ctype)
	a.usage.Flush()
	emit(sug, func(w io.Writer) {
		section(w, "Ideas", sug.Suggestions)
		section(w, "Templates", sug.Templates)
		section(w, "Hashtags", sug.Hashtags)
		section(w, "Timing", sug.Timing)
	})
}
