package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [activity]",
		Short: "Assemble working context for a user",
		Long:  "Open a session, optionally record an activity in it, then merge short-term and long-term memories into a ranked working context.",
		Run:   runContext,
	}

	cmd.Flags().Int64P("user", "u", 0, "User id (required)")
	cmd.Flags().StringP("type", "t", "general", "Context type: general, task, social, campaign, ai_agent, profile")
	cmd.Flags().StringP("session", "s", "", "Session id (default: random)")
	cmd.Flags().Duration("lookback", 24*time.Hour, "Long-term lookback window")
	cmd.Flags().Float64P("importance", "i", 0.5, "Importance of the recorded activity")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	ctype, _ := cmd.Flags().GetString("type")
	sessionID, _ := cmd.Flags().GetString("session")
	lookback, _ := cmd.Flags().GetDuration("lookback")
	importance, _ := cmd.Flags().GetFloat64("importance")
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	activity, err := readContent(args)
	if err != nil {
		exitErr("context", err)
	}

	a := mustApp(ctx)
	defer a.Close()

	if _, err := a.sessions.CreateSessionContext(ctx, sessionID, userID, model.InteractionType(ctype), nil); err != nil {
		exitErr("context", err)
	}
	if activity != "" {
		if _, err := a.sessions.UpdateSessionActivity(ctx, sessionID, model.Activity{
			Content:         activity,
			InteractionType: model.InteractionType(ctype),
			Importance:      importance,
		}); err != nil {
			exitErr("context", err)
		}
	}

	merged, err := a.sessions.MergeContextMemories(ctx, sessionID, lookback)
	if err != nil {
		exitErr("context", err)
	}
	a.memory.Queue().Wait()

	out := struct {
		SessionID string             `json:"session_id"`
		Stats     model.ContextStats `json:"stats"`
		model.ContextMergeResult
	}{sessionID, a.sessions.ContextStats(userID), merged}

	emit(out, func(w io.Writer) {
		fmt.Fprintf(w, "session %s: %d short-term, %d long-term\n", sessionID, len(merged.ShortTerm), len(merged.LongTerm))
		for _, sm := range merged.Merged {
			fmt.Fprintf(w, "%.2f  %-8s  %s\n", sm.Score, sm.Memory.Metadata.InteractionType, oneLine(sm.Memory.Content, 80))
		}
	})
}
