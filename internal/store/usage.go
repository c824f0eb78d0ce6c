package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/brightmatter/internal/cost"
	"github.com/rcliao/brightmatter/internal/model"
)

// RecordUsage persists one external API call.
func (s *SQLiteStore) RecordUsage(ctx context.Context, u cost.Usage) error {
	at := u.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_usage (id, user_id, service, endpoint, tokens_used, estimated_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		model.NewIDAt(at), u.UserID, u.Service, u.Endpoint, u.TokensUsed, u.EstimatedCost, formatTime(at))
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// CostSince sums the estimated cost of a service's calls at or after since.
func (s *SQLiteStore) CostSince(ctx context.Context, service string, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(estimated_cost), 0) FROM api_usage
		 WHERE service = ? AND created_at >= ?`, service, formatTime(since)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("cost since: %w", err)
	}
	return total, nil
}

// UserUsage aggregates a user's calls at or after since, one row per service.
func (s *SQLiteStore) UserUsage(ctx context.Context, userID int64, since time.Time) ([]cost.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service, SUM(estimated_cost), SUM(tokens_used), COUNT(*)
		 FROM api_usage WHERE user_id = ? AND created_at >= ?
		 GROUP BY service ORDER BY service`, userID, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []cost.Summary{}
	for rows.Next() {
		var sum cost.Summary
		if err := rows.Scan(&sum.Service, &sum.TotalCost, &sum.TotalTokens, &sum.RequestCount); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
