package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "qs:key:"

// KeyStore looks up API key metadata by hash.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error)
}

// NewKey is what the issuing tool records for a freshly generated key.
type NewKey struct {
	Hash       string
	Prefix     string
	UserID     string
	Name       string
	RPMLimit   *int
	DailyQuota *int64
	ExpiresAt  time.Time
}

// CachedKeyStore implements KeyStore with PostgreSQL + Redis cache.
type CachedKeyStore struct {
	db    *sql.DB
	redis *redis.Client
}

func NewCachedKeyStore(db *sql.DB, rdb *redis.Client) *CachedKeyStore {
	return &CachedKeyStore{db: db, redis: rdb}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	// Check Redis cache first
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var meta KeyMetadata
			if err := json.Unmarshal(cached, &meta); err == nil {
				return &meta, nil
			}
		}
	}

	meta, err := s.lookupDB(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	if s.redis != nil {
		data, err := json.Marshal(meta)
		if err == nil {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, redisCacheTTL)
		}
	}

	return meta, nil
}

func (s *CachedKeyStore) lookupDB(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	var meta KeyMetadata
	var rpm sql.NullInt32
	var quota sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
SELECT id, user_id, name, rpm_limit, daily_quota, expires_at
FROM api_keys
WHERE key_hash = $1
  AND status = 'active'
  AND expires_at > NOW()`, keyHash).Scan(
		&meta.ID,
		&meta.UserID,
		&meta.Name,
		&rpm,
		&quota,
		&meta.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query api_keys: %w", err)
	}

	if rpm.Valid {
		v := int(rpm.Int32)
		meta.RPMLimit = &v
	}
	if quota.Valid {
		v := quota.Int64
		meta.DailyQuota = &v
	}

	// Update last_used_at asynchronously (fire-and-forget)
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := s.db.ExecContext(bgCtx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, meta.ID); err != nil {
			slog.Debug("last_used_at update failed", "key_id", meta.ID, "error", err)
		}
	}()

	return &meta, nil
}

// Create records a new key and returns its id.
func (s *CachedKeyStore) Create(ctx context.Context, k NewKey) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
INSERT INTO api_keys (key_hash, key_prefix, user_id, name, rpm_limit, daily_quota, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, k.Hash, k.Prefix, k.UserID, k.Name, nullInt(k.RPMLimit), nullInt64(k.DailyQuota), k.ExpiresAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert api key: %w", err)
	}
	return id, nil
}

// Revoke marks a key inactive and drops any cached copy.
func (s *CachedKeyStore) Revoke(ctx context.Context, keyHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET status = 'revoked' WHERE key_hash = $1 AND status = 'active'`, keyHash)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	if s.redis != nil {
		s.redis.Del(ctx, redisKeyPrefix+keyHash)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	return n > 0, nil
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
