package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rcliao/brightmatter/internal/model"
)

// SaveProfile inserts or replaces a creator profile.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p model.CreatorProfile) error {
	platforms, err := marshalOptional(p.Platforms)
	if err != nil {
		return fmt.Errorf("marshal platforms: %w", err)
	}
	types, err := marshalOptional(p.ContentTypes)
	if err != nil {
		return fmt.Errorf("marshal content types: %w", err)
	}
	var joined sql.NullString
	if !p.JoinDate.IsZero() {
		joined = sql.NullString{String: formatTime(p.JoinDate), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO creator_profiles
		 (user_id, total_posts, total_engagement, follower_count, average_engagement,
		  streak_days, join_date, platforms, content_types, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.TotalPosts, p.TotalEngagement, p.FollowerCount, p.AverageEngagement,
		p.StreakDays, joined, platforms, types, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save profile %d: %w", p.UserID, err)
	}
	return nil
}

// Profile returns the stored profile for userID.
func (s *SQLiteStore) Profile(ctx context.Context, userID int64) (model.CreatorProfile, error) {
	var p model.CreatorProfile
	var joined, platforms, types sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, total_posts, total_engagement, follower_count, average_engagement,
		        streak_days, join_date, platforms, content_types
		 FROM creator_profiles WHERE user_id = ?`, userID).Scan(
		&p.UserID, &p.TotalPosts, &p.TotalEngagement, &p.FollowerCount, &p.AverageEngagement,
		&p.StreakDays, &joined, &platforms, &types)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("user %d: %w", userID, ErrProfileNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("get profile %d: %w", userID, err)
	}

	if joined.Valid {
		p.JoinDate = parseTime(joined.String)
	}
	if platforms.Valid {
		json.Unmarshal([]byte(platforms.String), &p.Platforms)
	}
	if types.Valid {
		json.Unmarshal([]byte(types.String), &p.ContentTypes)
	}
	return p, nil
}
