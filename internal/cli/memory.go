package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/store"
)

func init() {
	mem := &cobra.Command{
		Use:   "memory",
		Short: "Store and recall per-user interaction memory",
	}

	put := &cobra.Command{
		Use:   "store [content]",
		Short: "Store an interaction",
		Long:  "Store an interaction. Content can be a positional arg or piped via stdin.",
		Run:   runMemoryStore,
	}
	put.Flags().Int64P("user", "u", 0, "User id (required)")
	put.Flags().StringP("type", "t", "task", "Interaction type: task, social, campaign, ai_agent, profile")
	put.Flags().Float64P("importance", "i", 0.5, "Importance in [0,1]")
	put.Flags().String("tags", "", "Comma-separated tags")
	put.Flags().String("context", "", "Context (session) id")
	put.MarkFlagRequired("user")

	get := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Retrieve relevant memories",
		Run:   runMemoryRetrieve,
	}
	get.Flags().Int64P("user", "u", 0, "User id (required)")
	get.Flags().StringP("type", "t", "", "Filter by interaction type")
	get.Flags().String("context", "", "Filter by context id")
	get.Flags().String("since", "", "Only memories at or after this time (any common format)")
	get.Flags().String("until", "", "Only memories at or before this time")
	get.Flags().IntP("limit", "l", 10, "Max results")
	get.MarkFlagRequired("user")

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Substring search over stored memories",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMemorySearch,
	}
	search.Flags().Int64P("user", "u", 0, "User id (0 searches every user)")
	search.Flags().StringP("type", "t", "", "Filter by interaction type")
	search.Flags().IntP("limit", "l", 20, "Max results")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's memory statistics",
		Run:   runMemoryStats,
	}
	stats.Flags().Int64P("user", "u", 0, "User id (required)")
	stats.MarkFlagRequired("user")

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory of a user",
		Run:   runMemoryClear,
	}
	clear.Flags().Int64P("user", "u", 0, "User id (required)")
	clear.MarkFlagRequired("user")

	compress := &cobra.Command{
		Use:   "compress",
		Short: "Compress a user's old, low-importance memories",
		Run:   runMemoryCompress,
	}
	compress.Flags().Int64P("user", "u", 0, "User id (required)")
	compress.MarkFlagRequired("user")

	mem.AddCommand(put, get, search, stats, clear, compress)
	RootCmd.AddCommand(mem)
}

func runMemoryStore(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	itype, _ := cmd.Flags().GetString("type")
	importance, _ := cmd.Flags().GetFloat64("importance")
	tags, _ := cmd.Flags().GetString("tags")
	contextID, _ := cmd.Flags().GetString("context")

	content, err := readContent(args)
	if err != nil {
		exitErr("memory store", err)
	}

	a := mustApp(ctx)
	defer a.Close()

	id, err := a.memory.StoreInteraction(ctx, model.MemoryChunk{
		UserID:  userID,
		Content: content,
		Metadata: model.ChunkMeta{
			InteractionType: model.InteractionType(itype),
			ContextID:       contextID,
			Importance:      importance,
			Tags:            splitList(tags),
		},
	})
	if err != nil {
		exitErr("memory store", err)
	}
	a.memory.Queue().Wait()

	emit(map[string]any{"ok": true, "id": id}, func(w io.Writer) { fmt.Fprintln(w, id) })
}

func runMemoryRetrieve(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	itype, _ := cmd.Flags().GetString("type")
	contextID, _ := cmd.Flags().GetString("context")
	limit, _ := cmd.Flags().GetInt("limit")

	q := model.MemoryQuery{
		UserID:          userID,
		Query:           strings.Join(args, " "),
		InteractionType: model.InteractionType(itype),
		ContextID:       contextID,
		Limit:           limit,
	}
	var err error
	if q.Since, err = flagTime(cmd, "since"); err != nil {
		exitErr("memory retrieve", err)
	}
	if q.Until, err = flagTime(cmd, "until"); err != nil {
		exitErr("memory retrieve", err)
	}

	a := mustApp(ctx)
	defer a.Close()

	res, err := a.memory.RetrieveMemories(ctx, q)
	if err != nil {
		exitErr("memory retrieve", err)
	}

	emit(res, func(w io.Writer) {
		for i, c := range res.Chunks {
			fmt.Fprintf(w, "%.2f  %-8s  %-14s  %s\n", res.RelevanceScores[i], c.Metadata.InteractionType,
				humanize.Time(c.Metadata.Timestamp), oneLine(c.Content, 80))
		}
		fmt.Fprintf(w, "%d of %d shown (%s)\n", len(res.Chunks), res.TotalFound, res.QueryTime)
	})
}

func runMemorySearch(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	itype, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	a := mustApp(ctx)
	defer a.Close()

	results, err := a.store.Search(ctx, store.SearchParams{
		UserID: userID,
		Query:  strings.Join(args, " "),
		Type:   model.InteractionType(itype),
		Limit:  limit,
	})
	if err != nil {
		exitErr("memory search", err)
	}

	emit(results, func(w io.Writer) {
		for _, c := range results {
			fmt.Fprintf(w, "%s  user %d  %s\n", c.ID, c.UserID, oneLine(c.Content, 80))
		}
	})
}

func runMemoryStats(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")

	a := mustApp(ctx)
	defer a.Close()

	st, err := a.memory.MemoryStats(ctx, userID)
	if err != nil {
		exitErr("memory stats", err)
	}

	emit(st, func(w io.Writer) {
		last := "never"
		if !st.LastInteraction.IsZero() {
			last = humanize.Time(st.LastInteraction)
		}
		fmt.Fprintf(w, "%s memories, %s, compression level %d, last interaction %s\n",
			humanize.Comma(int64(st.TotalMemories)), humanize.Bytes(uint64(st.MemorySize)),
			st.CompressionLevel, last)
	})
}

func runMemoryClear(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")

	a := mustApp(ctx)
	defer a.Close()

	n, err := a.memory.ClearUserMemories(ctx, userID)
	if err != nil {
		exitErr("memory clear", err)
	}
	emit(map[string]any{"ok": true, "deleted": n}, nil)
}

func runMemoryCompress(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")

	a := mustApp(ctx)
	defer a.Close()

	n, err := a.memory.CompressMemories(ctx, userID)
	if err != nil {
		exitErr("memory compress", err)
	}
	level, _ := a.store.CompressionLevel(ctx, userID)
	emit(map[string]any{"ok": true, "compressed": n, "compression_level": level}, nil)
}

func flagTime(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseAny(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return t, nil
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
