package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath           string      `json:"db_path"`
	DBSizeBytes      int64       `json:"db_size_bytes"`
	TotalChunks      int         `json:"total_chunks"`
	CompressedChunks int         `json:"compressed_chunks"`
	ArchivedChunks   int         `json:"archived_chunks"`
	FlaggedChunks    int         `json:"flagged_chunks"`
	Profiles         int         `json:"profiles"`
	ScoreEntries     int         `json:"score_entries"`
	SignalEntries    int         `json:"signal_entries"`
	UsageRecords     int         `json:"usage_records"`
	TotalCost        float64     `json:"total_cost"`
	Users            []UserStats `json:"users"`
}

// UserStats holds per-user chunk counts.
type UserStats struct {
	UserID int64 `json:"user_id"`
	Chunks int   `json:"chunks"`
	Bytes  int64 `json:"bytes"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_chunks`).Scan(&st.TotalChunks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_chunks WHERE compressed = 1`).Scan(&st.CompressedChunks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_chunks WHERE archived = 1`).Scan(&st.ArchivedChunks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_chunks WHERE flagged = 1`).Scan(&st.FlaggedChunks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM creator_profiles`).Scan(&st.Profiles)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM score_history`).Scan(&st.ScoreEntries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signal_history`).Scan(&st.SignalEntries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(estimated_cost), 0) FROM api_usage`).Scan(&st.UsageRecords, &st.TotalCost)

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*) AS cnt, COALESCE(SUM(LENGTH(CAST(content AS BLOB))), 0)
		FROM memory_chunks
		GROUP BY user_id ORDER BY cnt DESC, user_id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var us UserStats
		rows.Scan(&us.UserID, &us.Chunks, &us.Bytes)
		st.Users = append(st.Users, us)
	}

	return st, nil
}
