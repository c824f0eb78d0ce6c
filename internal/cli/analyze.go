package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rcliao/brightmatter/internal/brightmatter"
	"github.com/rcliao/brightmatter/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze [content]",
		Short: "Analyze a piece of content",
		Long:  "Process content into signals, score the creator and optionally suggest an optimized rewrite. Content can be a positional arg or piped via stdin. With --batch, reads a JSON array of requests from a file.",
		Run:   runAnalyze,
	}

	cmd.Flags().Int64P("user", "u", 0, "Creator user id (required)")
	cmd.Flags().String("id", "", "Content id (default: random)")
	cmd.Flags().StringP("platform", "p", "instagram", "Platform")
	cmd.Flags().StringP("type", "t", "post", "Content type: post, video, image, story, reel")
	cmd.Flags().Int64("likes", 0, "Likes")
	cmd.Flags().Int64("shares", 0, "Shares")
	cmd.Flags().Int64("comments", 0, "Comments")
	cmd.Flags().Int64("views", 0, "Views")
	cmd.Flags().Int64("saves", 0, "Saves")
	cmd.Flags().Bool("optimize", false, "Include an optimized rewrite")
	cmd.Flags().Bool("viral", false, "Include viral potential")
	cmd.Flags().String("batch", "", "JSON file of requests to analyze together")

	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	if batch, _ := cmd.Flags().GetString("batch"); batch != "" {
		runBatch(cmd, batch)
		return
	}

	userID, _ := cmd.Flags().GetInt64("user")
	if userID == 0 {
		exitErr("analyze", fmt.Errorf("--user is required"))
	}
	contentID, _ := cmd.Flags().GetString("id")
	if contentID == "" {
		contentID = uuid.NewString()
	}
	platform, _ := cmd.Flags().GetString("platform")
	ctype, _ := cmd.Flags().GetString("type")
	optimize, _ := cmd.Flags().GetBool("optimize")
	viral, _ := cmd.Flags().GetBool("viral")

	text, err := readContent(args)
	if err != nil {
		exitErr("analyze", err)
	}

	var metrics model.Metrics
	metrics.Likes, _ = cmd.Flags().GetInt64("likes")
	metrics.Shares, _ = cmd.Flags().GetInt64("shares")
	metrics.Comments, _ = cmd.Flags().GetInt64("comments")
	metrics.Views, _ = cmd.Flags().GetInt64("views")
	metrics.Saves, _ = cmd.Flags().GetInt64("saves")

	a := mustApp(ctx)
	defer a.Close()
	if err := a.loadUser(ctx, userID); err != nil {
		exitErr("analyze", err)
	}

	req := brightmatter.Request{
		UserID: userID,
		Content: model.Content{
			ID:       contentID,
			UserID:   userID,
			Platform: platform,
			Type:     model.ContentType(ctype),
			Text:     text,
			Metrics:  &metrics,
		},
		Profile: a.profileOrEmpty(ctx, userID),
		Options: brightmatter.Options{IncludeOptimization: optimize, IncludeViralAnalysis: viral},
	}

	res, err := a.bm.AnalyzeContent(ctx, req)
	if err != nil {
		exitErr("analyze", err)
	}
	a.usage.Flush()

	emit(res, func(w io.Writer) {
		fmt.Fprintf(w, "content %s  signals %.2f  veriscore %.1f (%s, %s)\n",
			res.ContentSignals.ContentID, res.SignalAnalysis.Overall,
			res.VeriScore.CurrentScore, res.VeriScore.Tier, res.VeriScore.Trend)
		if res.Optimization != nil {
			fmt.Fprintf(w, "optimized: %s\n", res.Optimization.OptimizedContent)
		}
		if res.ViralPotential != nil {
			fmt.Fprintf(w, "viral score: %d\n", res.ViralPotential.Score)
		}
		for _, r := range res.Recommendations {
			fmt.Fprintf(w, "- %s\n", r)
		}
	})
}

func runBatch(cmd *cobra.Command, path string) {
	ctx := cmd.Context()
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		exitErr("read batch", err)
	}

	var reqs []brightmatter.Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		exitErr("parse batch", err)
	}

	a := mustApp(ctx)
	defer a.Close()

	for i := range reqs {
		r := &reqs[i]
		if r.Content.ID == "" {
			r.Content.ID = uuid.NewString()
		}
		if r.Content.UserID == 0 {
			r.Content.UserID = r.UserID
		}
		if err := a.loadUser(ctx, r.UserID); err != nil {
			exitErr("analyze", err)
		}
		if r.Profile.UserID == 0 {
			r.Profile = a.profileOrEmpty(ctx, r.UserID)
		}
	}

	items := a.bm.BatchAnalyze(ctx, reqs)
	a.usage.Flush()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	emit(items, func(w io.Writer) {
		for i, it := range items {
			if it.Err != nil {
				fmt.Fprintf(w, "%d  error: %s\n", i, strings.TrimSpace(it.Error))
				continue
			}
			fmt.Fprintf(w, "%d  %s  veriscore %.1f\n", i, it.Result.ContentSignals.ContentID, it.Result.VeriScore.CurrentScore)
		}
		fmt.Fprintf(w, "%d analyzed, %d failed\n", len(items)-failed, failed)
	})
}
