package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UsageRepository keeps one counter row per user per UTC day.
type UsageRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db, now: time.Now}
}

// CheckAndConsume increments today's counter only while it is below limit.
// The conditional upsert returns no row once the limit is reached, so two
// concurrent requests can never both take the last unit.
func (r *UsageRepository) CheckAndConsume(ctx context.Context, userID string, limit int64) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	day := r.now().UTC().Format("2006-01-02")

	query := `
INSERT INTO usage_counters (user_id, day, used)
VALUES ($1, $2, 1)
ON CONFLICT (user_id, day)
DO UPDATE SET used = usage_counters.used + 1
WHERE usage_counters.used < $3
RETURNING used`

	var used int64
	if err := r.db.QueryRowContext(ctx, query, userID, day, limit).Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("consume quota: %w", err)
	}
	return true, nil
}

// Used reports how many units the user has consumed today.
func (r *UsageRepository) Used(ctx context.Context, userID string) (int64, error) {
	day := r.now().UTC().Format("2006-01-02")

	var used int64
	err := r.db.QueryRowContext(ctx, `
SELECT used
FROM usage_counters
WHERE user_id = $1 AND day = $2`, userID, day).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return used, nil
}
