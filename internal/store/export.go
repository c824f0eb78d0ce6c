package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/brightmatter/internal/model"
)

// ExportVersion is the current export document version.
const ExportVersion = 1

// Export is a portable snapshot of one user's (or every user's) data.
type Export struct {
	Version    int                      `json:"version"`
	ExportedAt time.Time                `json:"exported_at"`
	UserID     int64                    `json:"user_id,omitempty"`
	Profile    *model.CreatorProfile    `json:"profile,omitempty"`
	Chunks     []model.MemoryChunk      `json:"chunks"`
	Scores     []model.VeriScoreHistory `json:"scores,omitempty"`
}

// ExportAll returns a user's chunks, profile and score history. A zero
// userID exports every user's chunks only.
func (s *SQLiteStore) ExportAll(ctx context.Context, userID int64) (*Export, error) {
	ex := &Export{Version: ExportVersion, ExportedAt: s.now().UTC(), UserID: userID}

	if userID == 0 {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+chunkColumns+` FROM memory_chunks ORDER BY user_id, timestamp, id`)
		if err != nil {
			return nil, err
		}
		if ex.Chunks, err = collectChunks(rows); err != nil {
			return nil, err
		}
		return ex, nil
	}

	var err error
	if ex.Chunks, err = s.UserChunks(ctx, userID); err != nil {
		return nil, fmt.Errorf("export chunks: %w", err)
	}
	if ex.Scores, err = s.ScoreHistory(ctx, userID); err != nil {
		return nil, fmt.Errorf("export scores: %w", err)
	}
	p, err := s.Profile(ctx, userID)
	switch {
	case err == nil:
		ex.Profile = &p
	case !errors.Is(err, ErrProfileNotFound):
		return nil, fmt.Errorf("export profile: %w", err)
	}
	return ex, nil
}

// Import stores the contents of an export. Chunks whose id already exists
// are skipped. Returns the number of chunks imported.
func (s *SQLiteStore) Import(ctx context.Context, ex *Export) (int, error) {
	if ex.Version > ExportVersion {
		return 0, fmt.Errorf("unsupported export version %d", ex.Version)
	}

	imported := 0
	for _, c := range ex.Chunks {
		if c.ID == "" {
			c.ID = "mem_" + model.NewIDAt(c.Metadata.Timestamp)
		}
		if _, err := s.Chunk(ctx, c.ID); err == nil {
			continue
		}
		if err := s.SaveChunk(ctx, c); err != nil {
			return imported, err
		}
		imported++
	}
	if ex.Profile != nil {
		if err := s.SaveProfile(ctx, *ex.Profile); err != nil {
			return imported, err
		}
	}
	if ex.UserID != 0 && len(ex.Scores) > 0 {
		existing, err := s.ScoreHistory(ctx, ex.UserID)
		if err != nil {
			return imported, err
		}
		seen := make(map[string]bool, len(existing))
		for _, h := range existing {
			seen[formatTime(h.Timestamp)] = true
		}
		for _, h := range ex.Scores {
			if seen[formatTime(h.Timestamp)] {
				continue
			}
			if err := s.AppendScore(ctx, ex.UserID, h); err != nil {
				return imported, err
			}
		}
	}
	return imported, nil
}
