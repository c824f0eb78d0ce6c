package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/brightmatter/internal/history"
	"github.com/rcliao/brightmatter/internal/memory"
	"github.com/rcliao/brightmatter/internal/model"
	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	historyLimit int
	now          func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithHistoryLimit bounds score history per user and signal history per content id.
func WithHistoryLimit(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithClock sets the time source used for rows without their own timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, historyLimit: history.DefaultCapacity, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_chunks (
		id               TEXT PRIMARY KEY,
		user_id          INTEGER NOT NULL,
		content          TEXT NOT NULL,
		timestamp        TEXT NOT NULL,
		interaction_type TEXT NOT NULL,
		context_id       TEXT,
		importance       REAL NOT NULL DEFAULT 0.5,
		tags             TEXT,
		embeddings       TEXT,
		compressed       INTEGER NOT NULL DEFAULT 0,
		archived         INTEGER NOT NULL DEFAULT 0,
		flagged          INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_user ON memory_chunks(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS compression_levels (
		user_id INTEGER PRIMARY KEY,
		level   INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS creator_profiles (
		user_id            INTEGER PRIMARY KEY,
		total_posts        INTEGER NOT NULL DEFAULT 0,
		total_engagement   INTEGER NOT NULL DEFAULT 0,
		follower_count     INTEGER NOT NULL DEFAULT 0,
		average_engagement REAL NOT NULL DEFAULT 0,
		streak_days        INTEGER NOT NULL DEFAULT 0,
		join_date          TEXT,
		platforms          TEXT,
		content_types      TEXT,
		updated_at         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS score_history (
		id        TEXT PRIMARY KEY,
		user_id   INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		score     REAL NOT NULL,
		factors   TEXT NOT NULL,
		events    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_score_user ON score_history(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS signal_history (
		id               TEXT PRIMARY KEY,
		content_id       TEXT NOT NULL,
		user_id          INTEGER NOT NULL,
		platform         TEXT,
		content_type     TEXT,
		signals          TEXT NOT NULL,
		aggregated_score REAL NOT NULL,
		timestamp        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signal_content ON signal_history(content_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_signal_user ON signal_history(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS api_usage (
		id             TEXT PRIMARY KEY,
		user_id        INTEGER NOT NULL DEFAULT 0,
		service        TEXT NOT NULL,
		endpoint       TEXT,
		tokens_used    INTEGER NOT NULL DEFAULT 0,
		estimated_cost REAL NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_service ON api_usage(service, created_at);
	CREATE INDEX IF NOT EXISTS idx_usage_user ON api_usage(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const chunkColumns = `id, user_id, content, timestamp, interaction_type, context_id,
	importance, tags, embeddings, compressed, archived, flagged`

// SaveChunk inserts or replaces a memory chunk.
func (s *SQLiteStore) SaveChunk(ctx context.Context, c model.MemoryChunk) error {
	tags, err := marshalOptional(c.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	emb, err := marshalOptional(c.Embeddings)
	if err != nil {
		return fmt.Errorf("marshal embeddings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO memory_chunks (`+chunkColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Content, formatTime(c.Metadata.Timestamp),
		string(c.Metadata.InteractionType), nullString(c.Metadata.ContextID),
		c.Metadata.Importance, tags, emb, c.Compressed, c.Archived, c.Flagged)
	if err != nil {
		return fmt.Errorf("save chunk %s: %w", c.ID, err)
	}
	return nil
}

// Chunk returns one memory chunk.
func (s *SQLiteStore) Chunk(ctx context.Context, id string) (model.MemoryChunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM memory_chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return model.MemoryChunk{}, memory.ErrMemoryNotFound
	}
	if err != nil {
		return model.MemoryChunk{}, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// UserChunks returns a user's chunks, oldest first.
func (s *SQLiteStore) UserChunks(ctx context.Context, userID int64) ([]model.MemoryChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM memory_chunks WHERE user_id = ? ORDER BY timestamp, id`, userID)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}

// DeleteChunk removes one chunk.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_chunks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chunk %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.ErrMemoryNotFound
	}
	return nil
}

// DeleteUserChunks removes every chunk of a user along with the compression level.
func (s *SQLiteStore) DeleteUserChunks(ctx context.Context, userID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM memory_chunks WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM compression_levels WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("reset compression level: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// CompressionLevel returns how many compression passes ran for a user.
func (s *SQLiteStore) CompressionLevel(ctx context.Context, userID int64) (int, error) {
	var level int
	err := s.db.QueryRowContext(ctx,
		`SELECT level FROM compression_levels WHERE user_id = ?`, userID).Scan(&level)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return level, err
}

// SetCompressionLevel stores a user's compression level.
func (s *SQLiteStore) SetCompressionLevel(ctx context.Context, userID int64, level int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compression_levels (user_id, level) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET level = excluded.level`, userID, level)
	return err
}

// Users lists every user with at least one chunk.
func (s *SQLiteStore) Users(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM memory_chunks ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row scanner) (model.MemoryChunk, error) {
	var c model.MemoryChunk
	var ts, itype string
	var contextID, tags, emb sql.NullString

	err := row.Scan(
		&c.ID, &c.UserID, &c.Content, &ts, &itype, &contextID,
		&c.Metadata.Importance, &tags, &emb, &c.Compressed, &c.Archived, &c.Flagged,
	)
	if err != nil {
		return c, err
	}

	c.Metadata.Timestamp = parseTime(ts)
	c.Metadata.InteractionType = model.InteractionType(itype)
	if contextID.Valid {
		c.Metadata.ContextID = contextID.String
	}
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &c.Metadata.Tags)
	}
	if emb.Valid {
		json.Unmarshal([]byte(emb.String), &c.Embeddings)
	}
	return c, nil
}

func collectChunks(rows *sql.Rows) ([]model.MemoryChunk, error) {
	defer rows.Close()
	var chunks []model.MemoryChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// marshalOptional encodes v as JSON, storing empty slices as NULL.
func marshalOptional[T any](v []T) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
