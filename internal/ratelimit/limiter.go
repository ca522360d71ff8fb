package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const rpmKeyPrefix = "qs:rl:rpm:"

// LimitResult is the outcome of one sliding-window check.
type LimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts requests per API key over a sliding window kept in a Redis
// sorted set. A nil client admits everything.
type Limiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, now: time.Now}
}

// windowScript trims the window, then admits and records the request if
// there is room. Scores and members are microsecond timestamps.
//
// KEYS[1] bucket, ARGV: window start, now, limit, ttl seconds, member suffix.
// Returns {count after the call, allowed 1/0, oldest score in window}.
var windowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. ARGV[5])
    count = count + 1
    allowed = 1
end
redis.call('EXPIRE', key, tonumber(ARGV[4]))

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = now
if oldest[2] then
    oldest_score = tonumber(oldest[2])
end
return {count, allowed, oldest_score}
`)

// AllowKey checks the per-minute budget of one API key.
func (l *Limiter) AllowKey(ctx context.Context, keyID string, rpm int64) LimitResult {
	return l.check(ctx, rpmKeyPrefix+keyID, rpm, time.Minute)
}

func (l *Limiter) check(ctx context.Context, bucket string, limit int64, window time.Duration) LimitResult {
	now := l.now()
	if l.rdb == nil {
		return LimitResult{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: now.Add(window)}
	}

	nowMicro := now.UnixMicro()
	res, err := windowScript.Run(ctx, l.rdb, []string{bucket},
		now.Add(-window).UnixMicro(), nowMicro, limit, int64(window/time.Second)+1, nowMicro%1_000_003,
	).Int64Slice()
	if err != nil || len(res) < 3 {
		slog.Warn("rate limit check failed, admitting request", "bucket", bucket, "error", err)
		return LimitResult{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(window)}
	}

	return windowResult(now, window, limit, res[0], res[1] == 1, res[2])
}

// windowResult derives headers from the script's answer. The window frees a
// slot when its oldest entry ages out.
func windowResult(now time.Time, window time.Duration, limit, count int64, allowed bool, oldestMicro int64) LimitResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.UnixMicro(oldestMicro).Add(window)
	if resetAt.Before(now) {
		resetAt = now
	}
	r := LimitResult{Allowed: allowed, Limit: limit, Remaining: remaining, ResetAt: resetAt}
	if !allowed {
		r.RetryAfter = resetAt.Sub(now)
		if r.RetryAfter < time.Second {
			r.RetryAfter = time.Second
		}
	}
	return r
}
