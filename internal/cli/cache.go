package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func init() {
	c := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the analysis cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit counters",
		Run:   runCacheStats,
	}
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached analyses and optimizer results",
		Run:   runCacheClear,
	}

	c.AddCommand(stats, clear)
	RootCmd.AddCommand(c)
}

func runCacheStats(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	st := a.bm.CacheStats(ctx)
	emit(st, func(w io.Writer) {
		fmt.Fprintf(w, "backend %s, %d entries, %d hits, %d misses\n", a.cfg.Cache.Backend, st.Size, st.Hits, st.Misses)
	})
}

func runCacheClear(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	a.bm.ClearCache(ctx)
	emit(map[string]any{"ok": true}, nil)
}
