package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/brightmatter/internal/cost"
	"github.com/rcliao/brightmatter/internal/memory"
	"github.com/rcliao/brightmatter/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), opts...)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func chunk(id string, userID int64, content string, at time.Time) model.MemoryChunk {
	return model.MemoryChunk{
		ID:      id,
		UserID:  userID,
		Content: content,
		Metadata: model.ChunkMeta{
			Timestamp:       at,
			InteractionType: model.InteractionTask,
			Importance:      0.5,
		},
	}
}

func TestSaveAndGetChunk(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := chunk("mem_1", 7, "drafted a reel script", testNow)
	c.Metadata.ContextID = "sess-1"
	c.Metadata.Tags = []string{"reel", "draft"}
	c.Embeddings = []float64{0.1, 0.2}
	c.Flagged = true
	if err := s.SaveChunk(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Chunk(ctx, "mem_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != c.Content || got.UserID != 7 {
		t.Errorf("unexpected chunk %+v", got)
	}
	if !got.Metadata.Timestamp.Equal(testNow) {
		t.Errorf("timestamp = %v, want %v", got.Metadata.Timestamp, testNow)
	}
	if got.Metadata.ContextID != "sess-1" || len(got.Metadata.Tags) != 2 || len(got.Embeddings) != 2 {
		t.Errorf("metadata not round-tripped: %+v", got)
	}
	if !got.Flagged || got.Archived || got.Compressed {
		t.Errorf("flags = %v/%v/%v", got.Flagged, got.Archived, got.Compressed)
	}

	// Replace in place
	c.Archived = true
	c.Content = "updated"
	s.SaveChunk(ctx, c)
	got, _ = s.Chunk(ctx, "mem_1")
	if !got.Archived || got.Content != "updated" {
		t.Errorf("replace failed: %+v", got)
	}
}

func TestChunkNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Chunk(ctx, "missing"); !errors.Is(err, memory.ErrMemoryNotFound) {
		t.Errorf("expected ErrMemoryNotFound, got %v", err)
	}
	if err := s.DeleteChunk(ctx, "missing"); !errors.Is(err, memory.ErrMemoryNotFound) {
		t.Errorf("expected ErrMemoryNotFound on delete, got %v", err)
	}
}

func TestUserChunksOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunk(ctx, chunk("b", 1, "second", testNow.Add(time.Millisecond)))
	s.SaveChunk(ctx, chunk("c", 1, "third", testNow.Add(time.Hour)))
	s.SaveChunk(ctx, chunk("a", 1, "first", testNow))
	s.SaveChunk(ctx, chunk("z", 2, "other user", testNow))

	got, err := s.UserChunks(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}

	users, _ := s.Users(ctx)
	if len(users) != 2 || users[0] != 1 || users[1] != 2 {
		t.Errorf("users = %v", users)
	}
}

func TestDeleteUserChunksResetsLevel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunk(ctx, chunk("a", 1, "x", testNow))
	s.SaveChunk(ctx, chunk("b", 1, "y", testNow))
	s.SaveChunk(ctx, chunk("c", 2, "z", testNow))
	s.SetCompressionLevel(ctx, 1, 3)

	level, _ := s.CompressionLevel(ctx, 1)
	if level != 3 {
		t.Fatalf("level = %d, want 3", level)
	}

	n, err := s.DeleteUserChunks(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	level, _ = s.CompressionLevel(ctx, 1)
	if level != 0 {
		t.Errorf("level after clear = %d, want 0", level)
	}
	left, _ := s.UserChunks(ctx, 2)
	if len(left) != 1 {
		t.Errorf("other user's chunks touched: %d left", len(left))
	}
}

func TestStoreBacksMemoryCore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	core := memory.New(memory.WithRepository(s), memory.WithClock(func() time.Time { return testNow }))
	defer core.Close()

	id, err := core.StoreInteraction(ctx, model.MemoryChunk{
		UserID:   5,
		Content:  "planned a campaign",
		Metadata: model.ChunkMeta{InteractionType: model.InteractionCampaign, Importance: 0.9},
	})
	if err != nil {
		t.Fatalf("store interaction: %v", err)
	}

	res, err := core.RetrieveMemories(ctx, model.MemoryQuery{UserID: 5})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFound != 1 || res.Chunks[0].ID != id {
		t.Errorf("unexpected retrieval %+v", res)
	}

	if err := core.Archive(ctx, id); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, _ := s.Chunk(ctx, id)
	if !got.Archived {
		t.Error("archive not persisted")
	}
}

func TestProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Profile(ctx, 9); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	p := model.CreatorProfile{
		UserID:            9,
		TotalPosts:        120,
		TotalEngagement:   54000,
		FollowerCount:     8000,
		AverageEngagement: 450,
		StreakDays:        21,
		JoinDate:          testNow.AddDate(-1, 0, 0),
		Platforms:         []string{"instagram", "tiktok"},
	}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.Profile(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if got.FollowerCount != 8000 || got.StreakDays != 21 || len(got.Platforms) != 2 {
		t.Errorf("unexpected profile %+v", got)
	}
	if !got.JoinDate.Equal(p.JoinDate) {
		t.Errorf("join date = %v, want %v", got.JoinDate, p.JoinDate)
	}
	if got.ContentTypes != nil {
		t.Errorf("expected nil content types, got %v", got.ContentTypes)
	}
}

func TestScoreHistoryTrimmed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithHistoryLimit(3))

	for i := 0; i < 5; i++ {
		err := s.AppendScore(ctx, 1, model.VeriScoreHistory{
			Timestamp: testNow.Add(time.Duration(i) * time.Hour),
			Score:     float64(10 * (i + 1)),
			Factors:   model.ScoreFactors{Engagement: 0.5},
			Events:    []string{"score_increase"},
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	s.AppendScore(ctx, 2, model.VeriScoreHistory{Timestamp: testNow, Score: 99})

	got, err := s.ScoreHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Score != 30 || got[2].Score != 50 {
		t.Errorf("kept wrong entries: %v, %v", got[0].Score, got[2].Score)
	}
	if got[0].Factors.Engagement != 0.5 || len(got[0].Events) != 1 {
		t.Errorf("entry not round-tripped: %+v", got[0])
	}
	other, _ := s.ScoreHistory(ctx, 2)
	if len(other) != 1 {
		t.Errorf("trim crossed users: %d", len(other))
	}
}

func TestSignalHistoryTrimmedPerContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithHistoryLimit(2))

	for i := 0; i < 4; i++ {
		s.AppendSignals(ctx, model.ContentSignals{
			ContentID:       "post-1",
			UserID:          3,
			Platform:        "instagram",
			ContentType:     "post",
			Signals:         []model.Signal{{ID: "s", Type: model.SignalEngagement, Value: 0.4, Confidence: 0.8}},
			AggregatedScore: float64(i) / 10,
			Timestamp:       testNow.Add(time.Duration(i) * time.Minute),
		})
	}
	s.AppendSignals(ctx, model.ContentSignals{ContentID: "post-2", UserID: 3, Timestamp: testNow})

	got, err := s.SignalHistory(ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}
	if got[0].AggregatedScore != 0.2 || got[1].AggregatedScore != 0.3 {
		t.Errorf("kept wrong snapshots: %v, %v", got[0].AggregatedScore, got[1].AggregatedScore)
	}
	if got[0].SignalValue(model.SignalEngagement) != 0.4 {
		t.Errorf("signals not round-tripped: %+v", got[0].Signals)
	}

	all, _ := s.UserSignals(ctx, 3)
	if len(all) != 3 {
		t.Errorf("expected 3 snapshots for user, got %d", len(all))
	}
}

func TestUsageAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := testNow.Truncate(24 * time.Hour)
	records := []cost.Usage{
		{UserID: 1, Service: "openai", Endpoint: "chat", TokensUsed: 100, EstimatedCost: 0.5, CreatedAt: day.Add(time.Hour)},
		{UserID: 1, Service: "openai", Endpoint: "embed", TokensUsed: 50, EstimatedCost: 0.25, CreatedAt: day.Add(2 * time.Hour)},
		{UserID: 1, Service: "chroma", Endpoint: "query", TokensUsed: 10, EstimatedCost: 0.1, CreatedAt: day.Add(time.Hour)},
		{UserID: 2, Service: "openai", Endpoint: "chat", TokensUsed: 10, EstimatedCost: 1, CreatedAt: day.Add(-time.Hour)},
	}
	for _, r := range records {
		if err := s.RecordUsage(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	total, err := s.CostSince(ctx, "openai", day)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0.75 {
		t.Errorf("openai cost today = %v, want 0.75", total)
	}

	sums, err := s.UserUsage(ctx, 1, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 || sums[0].Service != "chroma" || sums[1].Service != "openai" {
		t.Fatalf("unexpected summaries %+v", sums)
	}
	if sums[1].TotalTokens != 150 || sums[1].RequestCount != 2 {
		t.Errorf("openai summary = %+v", sums[1])
	}

	none, _ := s.UserUsage(ctx, 42, day)
	if len(none) != 0 {
		t.Errorf("expected no usage, got %v", none)
	}
}

func TestLedgerOverStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ledger := cost.NewLedger(s, cost.WithClock(func() time.Time { return testNow }))

	if err := ledger.TrackUsage(ctx, cost.Usage{UserID: 1, Service: "openai", Endpoint: "chat", TokensUsed: 1000}); err != nil {
		t.Fatal(err)
	}
	spent, err := ledger.TodaysCost(ctx, "openai")
	if err != nil {
		t.Fatal(err)
	}
	if spent <= 0 {
		t.Errorf("expected positive cost, got %v", spent)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	for _, st := range []*SQLiteStore{s, s2} {
		c := chunk("a", 1, "héllo", testNow)
		c.Compressed = true
		st.SaveChunk(ctx, c)
		st.SaveChunk(ctx, chunk("b", 1, "abc", testNow))
		st.SaveChunk(ctx, chunk("c", 2, "z", testNow))
		st.SaveProfile(ctx, model.CreatorProfile{UserID: 1})
	}

	st, err := s2.Stats(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalChunks != 3 || st.CompressedChunks != 1 || st.Profiles != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.DBSizeBytes == 0 {
		t.Error("expected non-zero db size")
	}
	if len(st.Users) != 2 || st.Users[0].UserID != 1 || st.Users[0].Chunks != 2 {
		t.Fatalf("unexpected user stats %+v", st.Users)
	}
	if st.Users[0].Bytes != 9 {
		t.Errorf("user 1 bytes = %d, want 9", st.Users[0].Bytes)
	}
}
