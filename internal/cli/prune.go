package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rcliao/brightmatter/internal/scheduler"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply pruning policies to stored memories",
		Run:   runPrune,
	}

	cmd.Flags().Int64P("user", "u", 0, "User id")
	cmd.Flags().Bool("all", false, "Prune every user")
	cmd.Flags().Bool("policies", false, "List active policies and exit")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	all, _ := cmd.Flags().GetBool("all")
	listPolicies, _ := cmd.Flags().GetBool("policies")

	a := mustApp(ctx)
	defer a.Close()

	if listPolicies {
		emit(a.pruner.Policies(), func(w io.Writer) {
			for _, p := range a.pruner.Policies() {
				fmt.Fprintf(w, "%d  %-18s  enabled=%t  rules=%d\n", p.Priority, p.ID, p.Enabled, len(p.Rules))
			}
		})
		return
	}

	if all {
		s, err := scheduler.New(a.memory, a.pruner, scheduler.WithLogger(a.logger))
		if err != nil {
			exitErr("prune", err)
		}
		rep, err := s.PruneAll(ctx)
		if err != nil {
			exitErr("prune", err)
		}
		emit(rep, nil)
		return
	}

	if userID == 0 {
		exitErr("prune", fmt.Errorf("--user or --all is required"))
	}
	res, err := a.pruner.PruneUserMemories(ctx, userID)
	if err != nil {
		exitErr("prune", err)
	}
	emit(res, func(w io.Writer) {
		fmt.Fprintf(w, "processed %d: deleted %d, compressed %d, archived %d, flagged %d (%s)\n",
			res.Processed, res.Deleted, res.Compressed, res.Archived, res.Flagged, res.ProcessingTime)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "error: %s\n", e)
		}
	})
}
