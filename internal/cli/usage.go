package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show external API usage and estimated cost",
		Run:   runUsage,
	}

	cmd.Flags().Int64P("user", "u", 0, "User id (0 covers calls not tied to a user)")
	cmd.Flags().Int("days", 30, "Days to look back")

	RootCmd.AddCommand(cmd)
}

func runUsage(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	days, _ := cmd.Flags().GetInt("days")

	a := mustApp(ctx)
	defer a.Close()

	sums, err := a.ledger.UserUsage(ctx, userID, days)
	if err != nil {
		exitErr("usage", err)
	}

	emit(sums, func(w io.Writer) {
		if len(sums) == 0 {
			fmt.Fprintln(w, "no usage recorded")
		}
		for _, s := range sums {
			fmt.Fprintf(w, "%-10s %8s calls %12s tokens  $%.4f\n", s.Service,
				humanize.Comma(int64(s.RequestCount)), humanize.Comma(s.TotalTokens), s.TotalCost)
		}
	})
}
