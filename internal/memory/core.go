// Package memory stores user interaction memories and retrieves them by
// recency or semantic similarity.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/brightmatter/internal/compress"
	"github.com/rcliao/brightmatter/internal/embedding"
	"github.com/rcliao/brightmatter/internal/model"
)

const (
	DefaultCompressionThreshold = 1000
	DefaultMaxChunks            = 10000

	// Chunks older than compressAfter with importance below
	// compressBelowImportance are digested during a compression pass.
	compressAfter           = 7 * 24 * time.Hour
	compressBelowImportance = 0.5
)

// Core is the memory service.
type Core struct {
	repo      Repository
	retriever Retriever
	embedder  embedding.Embedder
	queue     *TaskQueue
	ownQueue  bool
	threshold int
	maxChunks int
	budget    int
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[int64]bool
}

// Option configures a Core.
type Option func(*Core)

// WithRepository sets the persistence backend. The default is in-process.
func WithRepository(r Repository) Option {
	return func(c *Core) { c.repo = r }
}

// WithRetriever sets the ranking strategy. The default is RecencyRetriever.
func WithRetriever(r Retriever) Option {
	return func(c *Core) { c.retriever = r }
}

// WithEmbedder embeds content on store.
func WithEmbedder(e embedding.Embedder) Option {
	return func(c *Core) { c.embedder = e }
}

// WithQueue runs background compression on q.
func WithQueue(q *TaskQueue) Option {
	return func(c *Core) { c.queue = q }
}

// WithCompressionThreshold sets the chunk count above which compression runs.
func WithCompressionThreshold(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithMaxChunks caps stored chunks per user; the oldest are evicted.
func WithMaxChunks(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.maxChunks = n
		}
	}
}

// WithDigestBudget sets the byte size of compressed content.
func WithDigestBudget(n int) Option {
	return func(c *Core) { c.budget = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) { c.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// New creates a Core.
func New(opts ...Option) *Core {
	c := &Core{
		threshold: DefaultCompressionThreshold,
		maxChunks: DefaultMaxChunks,
		budget:    compress.DefaultBudget,
		now:       time.Now,
		logger:    slog.Default(),
		pending:   make(map[int64]bool),
	}
	for _, fn := range opts {
		fn(c)
	}
	c.logger = c.logger.With("component", "memory")
	if c.repo == nil {
		c.repo = NewMemRepository()
	}
	if c.retriever == nil {
		c.retriever = RecencyRetriever{}
	}
	if c.queue == nil {
		c.queue = NewTaskQueue(0, c.logger)
		c.ownQueue = true
	}
	return c
}

// Queue exposes the background queue so callers can wait on it.
func (c *Core) Queue() *TaskQueue { return c.queue }

// Close stops the background queue if Core created it.
func (c *Core) Close() {
	if c.ownQueue {
		c.queue.Close()
	}
}

// StoreInteraction records chunk and returns its id. The id and a zero
// timestamp are filled in. When the user's chunk count exceeds the
// compression threshold, a compression pass is queued.
func (c *Core) StoreInteraction(ctx context.Context, chunk model.MemoryChunk) (string, error) {
	if strings.TrimSpace(chunk.Content) == "" {
		return "", fmt.Errorf("store interaction: content is required")
	}
	if chunk.Metadata.InteractionType == "" {
		chunk.Metadata.InteractionType = model.InteractionTask
	}
	if !model.ValidInteractionTypes[chunk.Metadata.InteractionType] {
		return "", fmt.Errorf("store interaction: invalid interaction type %q", chunk.Metadata.InteractionType)
	}
	now := c.now()
	if chunk.Metadata.Timestamp.IsZero() {
		chunk.Metadata.Timestamp = now
	}
	chunk.ID = "mem_" + model.NewIDAt(now)
	chunk.Metadata.Importance = model.Clamp01(chunk.Metadata.Importance)

	if c.embedder != nil && len(chunk.Embeddings) == 0 {
		vec, err := c.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			c.logger.Warn("embed memory failed", "user_id", chunk.UserID, "err", err)
		} else {
			chunk.Embeddings = vec
		}
	}

	if err := c.repo.SaveChunk(ctx, chunk); err != nil {
		return "", fmt.Errorf("store interaction: %w", err)
	}

	chunks, err := c.repo.UserChunks(ctx, chunk.UserID)
	if err != nil {
		return chunk.ID, fmt.Errorf("load user memories: %w", err)
	}
	if excess := len(chunks) - c.maxChunks; excess > 0 {
		for _, old := range chunks[:excess] {
			if err := c.repo.DeleteChunk(ctx, old.ID); err != nil {
				c.logger.Warn("evict memory failed", "id", old.ID, "err", err)
			}
		}
		c.logger.Debug("evicted memories", "user_id", chunk.UserID, "count", excess)
		chunks = chunks[excess:]
	}
	if len(chunks) > c.threshold {
		c.scheduleCompression(chunk.UserID)
	}
	return chunk.ID, nil
}

func (c *Core) scheduleCompression(userID int64) {
	c.mu.Lock()
	if c.pending[userID] {
		c.mu.Unlock()
		return
	}
	c.pending[userID] = true
	c.mu.Unlock()

	err := c.queue.Submit(fmt.Sprintf("compress:%d", userID), func(ctx context.Context) error {
		defer c.clearPending(userID)
		_, err := c.CompressMemories(ctx, userID)
		return err
	})
	if err != nil {
		c.clearPending(userID)
		c.logger.Warn("schedule compression failed", "user_id", userID, "err", err)
	}
}

func (c *Core) clearPending(userID int64) {
	c.mu.Lock()
	delete(c.pending, userID)
	c.mu.Unlock()
}

// RetrieveMemories returns a user's non-archived chunks matching q, ranked by
// the configured Retriever. TotalFound counts matches before the limit.
func (c *Core) RetrieveMemories(ctx context.Context, q model.MemoryQuery) (model.RetrievalResult, error) {
	start := time.Now()
	chunks, err := c.repo.UserChunks(ctx, q.UserID)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("retrieve memories: %w", err)
	}
	candidates := chunks[:0]
	for _, ch := range chunks {
		if matches(ch, q) {
			candidates = append(candidates, ch)
		}
	}

	ranked, err := c.retriever.Rank(ctx, q, candidates, c.now())
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("rank memories: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	res := model.RetrievalResult{
		Chunks:          make([]model.MemoryChunk, len(ranked)),
		RelevanceScores: make([]float64, len(ranked)),
		TotalFound:      len(candidates),
	}
	for i, sm := range ranked {
		res.Chunks[i] = sm.Memory
		res.RelevanceScores[i] = sm.Score
	}
	res.QueryTime = time.Since(start)
	return res, nil
}

func matches(ch model.MemoryChunk, q model.MemoryQuery) bool {
	if ch.Archived {
		return false
	}
	if q.InteractionType != "" && ch.Metadata.InteractionType != q.InteractionType {
		return false
	}
	if q.ContextID != "" && ch.Metadata.ContextID != q.ContextID {
		return false
	}
	ts := ch.Metadata.Timestamp
	if !q.Since.IsZero() && ts.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && ts.After(q.Until) {
		return false
	}
	return true
}

// CompressMemories digests a user's old, low-importance chunks once the user
// holds at least the compression threshold, and bumps the compression level.
// It returns how many chunks were compressed.
func (c *Core) CompressMemories(ctx context.Context, userID int64) (int, error) {
	chunks, err := c.repo.UserChunks(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("compress memories: %w", err)
	}
	if len(chunks) < c.threshold {
		return 0, nil
	}
	now := c.now()
	n := 0
	for _, ch := range chunks {
		if ch.Compressed || ch.Age(now) < compressAfter || ch.Metadata.Importance >= compressBelowImportance {
			continue
		}
		if err := c.compressChunk(ctx, ch); err != nil {
			return n, err
		}
		n++
	}
	level, err := c.repo.CompressionLevel(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("read compression level: %w", err)
	}
	if err := c.repo.SetCompressionLevel(ctx, userID, level+1); err != nil {
		return n, fmt.Errorf("set compression level: %w", err)
	}
	c.logger.Info("compressed memories", "user_id", userID, "chunks", n, "level", level+1)
	return n, nil
}

func (c *Core) compressChunk(ctx context.Context, ch model.MemoryChunk) error {
	ch.Content = compress.Digest(ch.Content, c.budget)
	ch.Compressed = true
	if err := c.repo.SaveChunk(ctx, ch); err != nil {
		return fmt.Errorf("save compressed memory %s: %w", ch.ID, err)
	}
	return nil
}

// MemoryStats summarizes a user's memory.
func (c *Core) MemoryStats(ctx context.Context, userID int64) (model.MemoryStats, error) {
	chunks, err := c.repo.UserChunks(ctx, userID)
	if err != nil {
		return model.MemoryStats{}, fmt.Errorf("memory stats: %w", err)
	}
	level, err := c.repo.CompressionLevel(ctx, userID)
	if err != nil {
		return model.MemoryStats{}, fmt.Errorf("memory stats: %w", err)
	}
	st := model.MemoryStats{TotalMemories: len(chunks), CompressionLevel: level}
	for _, ch := range chunks {
		st.MemorySize += int64(len(ch.Content))
		if ch.Metadata.Timestamp.After(st.LastInteraction) {
			st.LastInteraction = ch.Metadata.Timestamp
		}
	}
	return st, nil
}

// ClearUserMemories deletes every chunk of a user and returns how many.
func (c *Core) ClearUserMemories(ctx context.Context, userID int64) (int, error) {
	n, err := c.repo.DeleteUserChunks(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear user memories: %w", err)
	}
	c.logger.Info("cleared memories", "user_id", userID, "count", n)
	return n, nil
}

// Memories returns every chunk of a user, archived included, oldest first.
func (c *Core) Memories(ctx context.Context, userID int64) ([]model.MemoryChunk, error) {
	return c.repo.UserChunks(ctx, userID)
}

// Get returns one chunk.
func (c *Core) Get(ctx context.Context, id string) (model.MemoryChunk, error) {
	return c.repo.Chunk(ctx, id)
}

// Users lists users that have memories.
func (c *Core) Users(ctx context.Context) ([]int64, error) {
	return c.repo.Users(ctx)
}

// Delete removes one chunk.
func (c *Core) Delete(ctx context.Context, id string) error {
	if err := c.repo.DeleteChunk(ctx, id); err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	return nil
}

// Compress digests one chunk regardless of its age.
func (c *Core) Compress(ctx context.Context, id string) error {
	ch, err := c.repo.Chunk(ctx, id)
	if err != nil {
		return fmt.Errorf("compress memory %s: %w", id, err)
	}
	if ch.Compressed {
		return nil
	}
	return c.compressChunk(ctx, ch)
}

// Archive hides a chunk from retrieval without deleting it.
func (c *Core) Archive(ctx context.Context, id string) error {
	return c.update(ctx, id, func(ch *model.MemoryChunk) { ch.Archived = true })
}

// Flag marks a chunk for review.
func (c *Core) Flag(ctx context.Context, id string) error {
	return c.update(ctx, id, func(ch *model.MemoryChunk) { ch.Flagged = true })
}

// UpdateImportance sets a chunk's importance, clamped to [0,1].
func (c *Core) UpdateImportance(ctx context.Context, id string, importance float64) error {
	return c.update(ctx, id, func(ch *model.MemoryChunk) { ch.Metadata.Importance = model.Clamp01(importance) })
}

func (c *Core) update(ctx context.Context, id string, fn func(*model.MemoryChunk)) error {
	ch, err := c.repo.Chunk(ctx, id)
	if err != nil {
		return fmt.Errorf("update memory %s: %w", id, err)
	}
	fn(&ch)
	if err := c.repo.SaveChunk(ctx, ch); err != nil {
		return fmt.Errorf("update memory %s: %w", id, err)
	}
	return nil
}
