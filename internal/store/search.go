package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/brightmatter/internal/model"
)

// Search finds a user's non-archived chunks whose content or tags contain
// the query substring, newest first.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.MemoryChunk, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := "%" + p.Query + "%"

	where := []string{"archived = 0", "(content LIKE ? OR tags LIKE ?)"}
	args := []interface{}{query, query}

	if p.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, p.UserID)
	}
	if p.Type != "" {
		where = append(where, "interaction_type = ?")
		args = append(args, string(p.Type))
	}

	sql := fmt.Sprintf(`
		SELECT %s FROM memory_chunks
		WHERE %s
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, chunkColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}
