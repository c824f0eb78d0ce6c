package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/brightmatter/internal/brightmatter"
	"github.com/rcliao/brightmatter/internal/pruning"
	"github.com/rcliao/brightmatter/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database, cache and pruning statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	st, err := a.store.Stats(ctx, a.cfg.DBPath)
	if err != nil {
		exitErr("stats", err)
	}

	out := struct {
		*store.Stats
		Cache   brightmatter.CacheStats `json:"cache"`
		Pruning pruning.Stats           `json:"pruning"`
	}{st, a.bm.CacheStats(ctx), a.pruner.Stats()}

	emit(out, func(w io.Writer) {
		fmt.Fprintf(w, "database   %s (%s)\n", st.DBPath, humanize.Bytes(uint64(st.DBSizeBytes)))
		fmt.Fprintf(w, "memories   %s total, %s compressed, %s archived, %s flagged\n",
			humanize.Comma(int64(st.TotalChunks)), humanize.Comma(int64(st.CompressedChunks)),
			humanize.Comma(int64(st.ArchivedChunks)), humanize.Comma(int64(st.FlaggedChunks)))
		fmt.Fprintf(w, "scoring    %d profiles, %s scores, %s signal snapshots\n",
			st.Profiles, humanize.Comma(int64(st.ScoreEntries)), humanize.Comma(int64(st.SignalEntries)))
		fmt.Fprintf(w, "usage      %s calls, $%.4f\n", humanize.Comma(int64(st.UsageRecords)), st.TotalCost)
		fmt.Fprintf(w, "cache      %d hits, %d misses (%.0f%%)\n", out.Cache.Hits, out.Cache.Misses, out.Cache.HitRate*100)
		for _, u := range st.Users {
			fmt.Fprintf(w, "  user %-8d %6s memories  %s\n", u.UserID, humanize.Comma(int64(u.Chunks)), humanize.Bytes(uint64(u.Bytes)))
		}
	})
}
