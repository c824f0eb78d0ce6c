package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcliao/brightmatter/internal/model"
)

// AppendScore persists one score computation and trims the user's history
// to the newest historyLimit entries.
func (s *SQLiteStore) AppendScore(ctx context.Context, userID int64, h model.VeriScoreHistory) error {
	factors, err := json.Marshal(h.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	events, err := marshalOptional(h.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	ts := h.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO score_history (id, user_id, timestamp, score, factors, events)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		model.NewIDAt(ts), userID, formatTime(ts), h.Score, string(factors), events)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM score_history WHERE user_id = ? AND id NOT IN (
			SELECT id FROM score_history WHERE user_id = ?
			ORDER BY timestamp DESC, id DESC LIMIT ?)`,
		userID, userID, s.historyLimit)
	if err != nil {
		return fmt.Errorf("trim score history: %w", err)
	}
	return tx.Commit()
}

// ScoreHistory returns a user's persisted scores, oldest first.
func (s *SQLiteStore) ScoreHistory(ctx context.Context, userID int64) ([]model.VeriScoreHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, score, factors, events FROM score_history
		 WHERE user_id = ? ORDER BY timestamp, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VeriScoreHistory
	for rows.Next() {
		var h model.VeriScoreHistory
		var ts, factors string
		var events *string
		if err := rows.Scan(&ts, &h.Score, &factors, &events); err != nil {
			return nil, err
		}
		h.Timestamp = parseTime(ts)
		if err := json.Unmarshal([]byte(factors), &h.Factors); err != nil {
			return nil, fmt.Errorf("decode factors: %w", err)
		}
		if events != nil {
			json.Unmarshal([]byte(*events), &h.Events)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AppendSignals persists one processed content snapshot and trims that
// content id's history to the newest historyLimit entries.
func (s *SQLiteStore) AppendSignals(ctx context.Context, cs model.ContentSignals) error {
	signals, err := json.Marshal(cs.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	ts := cs.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO signal_history
		 (id, content_id, user_id, platform, content_type, signals, aggregated_score, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		model.NewIDAt(ts), cs.ContentID, cs.UserID, cs.Platform, string(cs.ContentType),
		string(signals), cs.AggregatedScore, formatTime(ts))
	if err != nil {
		return fmt.Errorf("insert signals: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM signal_history WHERE content_id = ? AND id NOT IN (
			SELECT id FROM signal_history WHERE content_id = ?
			ORDER BY timestamp DESC, id DESC LIMIT ?)`,
		cs.ContentID, cs.ContentID, s.historyLimit)
	if err != nil {
		return fmt.Errorf("trim signal history: %w", err)
	}
	return tx.Commit()
}

// SignalHistory returns the persisted snapshots for one content id, oldest first.
func (s *SQLiteStore) SignalHistory(ctx context.Context, contentID string) ([]model.ContentSignals, error) {
	return s.querySignals(ctx, `WHERE content_id = ?`, contentID)
}

// UserSignals returns every persisted snapshot for a user, oldest first.
func (s *SQLiteStore) UserSignals(ctx context.Context, userID int64) ([]model.ContentSignals, error) {
	return s.querySignals(ctx, `WHERE user_id = ?`, userID)
}

func (s *SQLiteStore) querySignals(ctx context.Context, where string, arg interface{}) ([]model.ContentSignals, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_id, user_id, platform, content_type, signals, aggregated_score, timestamp
		 FROM signal_history `+where+` ORDER BY timestamp, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ContentSignals
	for rows.Next() {
		var cs model.ContentSignals
		var platform, ctype *string
		var signals, ts string
		if err := rows.Scan(&cs.ContentID, &cs.UserID, &platform, &ctype, &signals, &cs.AggregatedScore, &ts); err != nil {
			return nil, err
		}
		if platform != nil {
			cs.Platform = *platform
		}
		if ctype != nil {
			cs.ContentType = model.ContentType(*ctype)
		}
		if err := json.Unmarshal([]byte(signals), &cs.Signals); err != nil {
			return nil, fmt.Errorf("decode signals: %w", err)
		}
		cs.Timestamp = parseTime(ts)
		out = append(out, cs)
	}
	return out, rows.Err()
}
