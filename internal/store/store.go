package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/querysmith/internal/types"
)

// ErrNotFound is returned by repositories when the requested row does not exist.
var ErrNotFound = errors.New("not found")

const (
	schemaCacheTTL    = 5 * time.Minute
	schemaCachePrefix = "qs:schema:"
)

// SchemaRepository is the durable home of schema contexts.
type SchemaRepository interface {
	GetSchema(ctx context.Context, userID string) (types.SchemaContext, error)
	PutSchema(ctx context.Context, sc types.SchemaContext) (types.SchemaContext, error)
}

// CachedSchemaStore serves schema contexts from Redis, falling back to the
// repository on a miss. Writes go to the repository and drop the cached copy.
// A nil Redis client disables caching.
type CachedSchemaStore struct {
	repo   SchemaRepository
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedSchemaStore(repo SchemaRepository, rdb *redis.Client, logger *slog.Logger) *CachedSchemaStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSchemaStore{repo: repo, redis: rdb, ttl: schemaCacheTTL, logger: logger}
}

// SchemaContext returns the user's schema text. found is false when the user
// has never saved one or saved only whitespace.
func (s *CachedSchemaStore) SchemaContext(ctx context.Context, userID string) (string, bool, error) {
	sc, err := s.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(sc.Text) == "" {
		return "", false, nil
	}
	return sc.Text, true, nil
}

func (s *CachedSchemaStore) Get(ctx context.Context, userID string) (types.SchemaContext, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, schemaCachePrefix+userID).Bytes()
		if err == nil {
			var sc types.SchemaContext
			if err := json.Unmarshal(cached, &sc); err == nil {
				return sc, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("schema cache read failed", "user_id", userID, "error", err)
		}
	}

	sc, err := s.repo.GetSchema(ctx, userID)
	if err != nil {
		return types.SchemaContext{}, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(sc); err == nil {
			if err := s.redis.Set(ctx, schemaCachePrefix+userID, data, s.ttl).Err(); err != nil {
				s.logger.Warn("schema cache write failed", "user_id", userID, "error", err)
			}
		}
	}
	return sc, nil
}

func (s *CachedSchemaStore) Put(ctx context.Context, userID, text string) (types.SchemaContext, error) {
	sc, err := s.repo.PutSchema(ctx, types.SchemaContext{UserID: userID, Text: text})
	if err != nil {
		return types.SchemaContext{}, fmt.Errorf("put schema: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, schemaCachePrefix+userID).Err(); err != nil {
			s.logger.Warn("schema cache invalidation failed", "user_id", userID, "error", err)
		}
	}
	return sc, nil
}
