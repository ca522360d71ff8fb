package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/af-corp/querysmith/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryRepository is append-only: records are inserted and listed, never
// updated.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Append(ctx context.Context, rec *types.HistoryRecord) error {
	query := `
INSERT INTO history_records (id, user_id, mode, request_text, output, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.ExecContext(ctx, query,
		rec.ID.String(), rec.UserID, string(rec.Mode), rec.RequestText, rec.Output, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	return nil
}

// List returns the user's most recent records, newest first. limit is
// clamped to [1, 100]; zero means the default of 20.
func (r *HistoryRepository) List(ctx context.Context, userID string, limit int) ([]types.HistoryRecord, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, mode, request_text, output, created_at
FROM history_records
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]types.HistoryRecord, 0, limit)
	for rows.Next() {
		var rec types.HistoryRecord
		var mode string
		if err := rows.Scan(&rec.ID, &rec.UserID, &mode, &rec.RequestText, &rec.Output, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec.Mode = types.Mode(mode)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}
