package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/brightmatter/internal/embedding"
	"github.com/rcliao/brightmatter/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCore(t *testing.T, opts ...Option) (*Core, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New(append([]Option{WithClock(clk.Now)}, opts...)...)
	t.Cleanup(c.Close)
	return c, clk
}

func chunk(userID int64, content string, typ model.InteractionType, ts time.Time) model.MemoryChunk {
	return model.MemoryChunk{
		UserID:  userID,
		Content: content,
		Metadata: model.ChunkMeta{
			Timestamp:       ts,
			InteractionType: typ,
			Importance:      0.5,
		},
	}
}

func TestStoreInteractionAssignsIDAndTimestamp(t *testing.T) {
	c, clk := newTestCore(t)
	ctx := context.Background()

	id, err := c.StoreInteraction(ctx, model.MemoryChunk{UserID: 1, Content: "joined campaign", Metadata: model.ChunkMeta{Importance: 3}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "mem_"))

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), got.Metadata.Timestamp)
	assert.Equal(t, model.InteractionTask, got.Metadata.InteractionType)
	assert.Equal(t, 1.0, got.Metadata.Importance)
}

func TestStoreInteractionValidates(t *testing.T) {
	c, _ := newTestCore(t)
	ctx := context.Background()

	_, err := c.StoreInteraction(ctx, model.MemoryChunk{UserID: 1, Content: "  "})
	assert.Error(t, err)

	_, err = c.StoreInteraction(ctx, chunk(1, "x", "chat", time.Time{}))
	assert.Error(t, err)
}

func TestRetrieveMemoriesRecencyAndFilters(t *testing.T) {
	c, clk := newTestCore(t)
	ctx := context.Background()
	now := clk.Now()

	for i, typ := range []model.InteractionType{model.InteractionTask, model.InteractionSocial, model.InteractionTask} {
		_, err := c.StoreInteraction(ctx, chunk(1, "event", typ, now.Add(-time.Duration(3-i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := c.StoreInteraction(ctx, chunk(2, "other user", model.InteractionTask, now))
	require.NoError(t, err)

	res, err := c.RetrieveMemories(ctx, model.MemoryQuery{UserID: 1})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, 3, res.TotalFound)
	assert.Equal(t, now.Add(-time.Hour), res.Chunks[0].Metadata.Timestamp)
	assert.Greater(t, res.RelevanceScores[0], res.RelevanceScores[2])

	res, err = c.RetrieveMemories(ctx, model.MemoryQuery{UserID: 1, InteractionType: model.InteractionTask, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 1)
	assert.Equal(t, 2, res.TotalFound)

	res, err = c.RetrieveMemories(ctx, model.MemoryQuery{UserID: 1, Since: now.Add(-150 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
}

func TestRetrieveSkipsArchived(t *testing.T) {
	c, _ := newTestCore(t)
	ctx := context.Background()
	id, err := c.StoreInteraction(ctx, chunk(1, "hidden", model.InteractionTask, time.Time{}))
	require.NoError(t, err)
	require.NoError(t, c.Archive(ctx, id))

	res, err := c.RetrieveMemories(ctx, model.MemoryQuery{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)

	all, err := c.Memories(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSemanticRetrieverRanksBySimilarity(t *testing.T) {
	emb := embedding.NewHashEmbedder(64)
	c, clk := newTestCore(t, WithEmbedder(emb), WithRetriever(SemanticRetriever{Embedder: emb}))
	ctx := context.Background()

	_, err := c.StoreInteraction(ctx, chunk(1, "completed the brand campaign brief", model.InteractionCampaign, clk.Now()))
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = c.StoreInteraction(ctx, chunk(1, "posted a cooking reel", model.InteractionSocial, clk.Now()))
	require.NoError(t, err)

	res, err := c.RetrieveMemories(ctx, model.MemoryQuery{UserID: 1, Query: "brand campaign"})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Contains(t, res.Chunks[0].Content, "campaign")
	assert.NotEmpty(t, res.Chunks[0].Embeddings)
}

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) Embed(context.Context, string) (embedding.Vector, error) {
	return nil, errors.New("provider down")
}

func TestStoreSurvivesEmbeddingFailure(t *testing.T) {
	c, _ := newTestCore(t, WithEmbedder(failingEmbedder{}))
	id, err := c.StoreInteraction(context.Background(), chunk(1, "still stored", model.InteractionTask, time.Time{}))
	require.NoError(t, err)
	got, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, got.Embeddings)
}

func TestMaxChunksEvictsOldest(t *testing.T) {
	c, clk := newTestCore(t, WithMaxChunks(3))
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := c.StoreInteraction(ctx, chunk(1, "m", model.InteractionTask, clk.Now()))
		require.NoError(t, err)
		ids = append(ids, id)
		clk.Advance(time.Second)
	}
	all, err := c.Memories(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	_, err = c.Get(ctx, ids[0])
	assert.ErrorIs(t, err, ErrMemoryNotFound)
}

func TestCompressionScheduledAboveThreshold(t *testing.T) {
	c, clk := newTestCore(t, WithCompressionThreshold(3), WithDigestBudget(40))
	ctx := context.Background()
	old := clk.Now().Add(-30 * 24 * time.Hour)
	long := "First sentence stays. " + strings.Repeat("Detail that goes away. ", 10)

	for i := 0; i < 3; i++ {
		m := chunk(1, long, model.InteractionTask, old)
		m.Metadata.Importance = 0.2
		_, err := c.StoreInteraction(ctx, m)
		require.NoError(t, err)
	}
	c.Queue().Wait()
	st, err := c.MemoryStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, st.CompressionLevel)

	_, err = c.StoreInteraction(ctx, chunk(1, "fresh", model.InteractionTask, time.Time{}))
	require.NoError(t, err)
	c.Queue().Wait()

	st, err = c.MemoryStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CompressionLevel)
	assert.Equal(t, 4, st.TotalMemories)
	assert.Equal(t, clk.Now(), st.LastInteraction)

	all, err := c.Memories(ctx, 1)
	require.NoError(t, err)
	for _, m := range all[:3] {
		assert.True(t, m.Compressed)
		assert.Equal(t, "First sentence stays.", m.Content)
	}
	assert.False(t, all[3].Compressed)
}

func TestCompressMemoriesBelowThresholdIsNoop(t *testing.T) {
	c, _ := newTestCore(t)
	n, err := c.CompressMemories(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMutators(t *testing.T) {
	c, _ := newTestCore(t)
	ctx := context.Background()
	id, err := c.StoreInteraction(ctx, chunk(1, "note", model.InteractionProfile, time.Time{}))
	require.NoError(t, err)

	require.NoError(t, c.Flag(ctx, id))
	require.NoError(t, c.UpdateImportance(ctx, id, -2))
	require.NoError(t, c.Compress(ctx, id))
	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Flagged)
	assert.True(t, got.Compressed)
	assert.Zero(t, got.Metadata.Importance)

	require.NoError(t, c.Delete(ctx, id))
	assert.ErrorIs(t, c.Delete(ctx, id), ErrMemoryNotFound)
	assert.ErrorIs(t, c.Archive(ctx, "missing"), ErrMemoryNotFound)
}

func TestClearUserMemories(t *testing.T) {
	c, _ := newTestCore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.StoreInteraction(ctx, chunk(9, "x", model.InteractionTask, time.Time{}))
		require.NoError(t, err)
	}
	n, err := c.ClearUserMemories(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st, err := c.MemoryStats(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, st.TotalMemories)
	users, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestTaskQueue(t *testing.T) {
	q := NewTaskQueue(1, nil)
	defer q.Close()

	release := make(chan struct{})
	ran := 0
	require.NoError(t, q.Submit("block", func(context.Context) error { <-release; ran++; return nil }))
	// The worker may or may not have picked up the first task yet, so
	// fill until the buffer rejects.
	var full error
	for i := 0; i < 3 && full == nil; i++ {
		full = q.Submit("fill", func(context.Context) error { ran++; return nil })
	}
	assert.ErrorIs(t, full, ErrQueueFull)
	close(release)
	q.Wait()
	assert.GreaterOrEqual(t, ran, 1)

	require.NoError(t, q.Submit("panics", func(context.Context) error { panic("boom") }))
	q.Wait()

	q.Close()
	assert.ErrorIs(t, q.Submit("late", func(context.Context) error { return nil }), ErrQueueClosed)
}
