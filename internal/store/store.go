// Package store provides durable storage for memories, creator profiles,
// score and signal history, and API usage, backed by SQLite.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/brightmatter/internal/cost"
	"github.com/rcliao/brightmatter/internal/memory"
	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/signal"
	"github.com/rcliao/brightmatter/internal/veriscore"
)

// ErrProfileNotFound is returned when no profile is stored for a user.
var ErrProfileNotFound = errors.New("profile not found")

// SearchParams holds parameters for searching memory chunks.
type SearchParams struct {
	UserID int64
	Query  string
	Type   model.InteractionType
	Limit  int
}

// Store is everything the services persist.
type Store interface {
	memory.Repository
	cost.Sink
	signal.HistoryStore
	veriscore.HistoryStore

	// SaveProfile inserts or replaces a creator profile.
	SaveProfile(ctx context.Context, p model.CreatorProfile) error

	// Profile returns a stored profile or ErrProfileNotFound.
	Profile(ctx context.Context, userID int64) (model.CreatorProfile, error)

	// ScoreHistory returns a user's persisted scores, oldest first.
	ScoreHistory(ctx context.Context, userID int64) ([]model.VeriScoreHistory, error)

	// UserSignals returns every persisted signal snapshot for a user, oldest first.
	UserSignals(ctx context.Context, userID int64) ([]model.ContentSignals, error)

	// Search finds non-archived chunks whose content or tags contain the query.
	Search(ctx context.Context, p SearchParams) ([]model.MemoryChunk, error)

	// Close closes the store.
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
