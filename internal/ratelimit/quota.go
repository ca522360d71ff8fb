package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaTracker counts model-backed runs per user per UTC day in Redis.
type QuotaTracker struct {
	rdb *redis.Client
	now func() time.Time
}

// NewQuotaTracker creates a quota tracker. If rdb is nil, every check passes.
func NewQuotaTracker(rdb *redis.Client) *QuotaTracker {
	return &QuotaTracker{rdb: rdb, now: time.Now}
}

func dailyQuotaKey(userID string, day time.Time) string {
	return fmt.Sprintf("qs:quota:daily:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

// quotaScript increments the counter only while it is below the limit.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = TTL seconds, applied when the key is created
// Returns: [used, 1=allowed/0=denied]
var quotaScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local used = tonumber(redis.call('GET', key) or '0')
if used >= limit then
    return {used, 0}
end

used = redis.call('INCR', key)
if used == 1 then
    redis.call('EXPIRE', key, ttl)
end
return {used, 1}
`)

// CheckAndConsume takes one unit of today's quota if any remains. Redis
// errors are returned so the caller can refuse rather than over-serve.
func (q *QuotaTracker) CheckAndConsume(ctx context.Context, userID string, limit int64) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	if q.rdb == nil {
		return true, nil
	}

	now := q.now()
	result, err := quotaScript.Run(ctx, q.rdb, []string{dailyQuotaKey(userID, now)},
		limit, untilNextDay(now),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("consume quota: %w", err)
	}
	return result[1] == 1, nil
}

// Used returns today's consumption for the user.
func (q *QuotaTracker) Used(ctx context.Context, userID string) (int64, error) {
	if q.rdb == nil {
		return 0, nil
	}
	used, err := q.rdb.Get(ctx, dailyQuotaKey(userID, q.now())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return used, nil
}

// untilNextDay is the key TTL in seconds: the rest of the UTC day plus a
// minute of slack.
func untilNextDay(now time.Time) int64 {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return int64(midnight.Sub(now).Seconds()) + 60
}
