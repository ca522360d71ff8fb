package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/af-corp/querysmith/internal/store"
	"github.com/af-corp/querysmith/internal/types"
)

// SchemaRepository persists one schema context per user.
type SchemaRepository struct {
	db *sql.DB
}

func NewSchemaRepository(db *sql.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

func (r *SchemaRepository) GetSchema(ctx context.Context, userID string) (types.SchemaContext, error) {
	query := `
SELECT user_id, schema_text, updated_at
FROM schema_contexts
WHERE user_id = $1`

	var sc types.SchemaContext
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&sc.UserID, &sc.Text, &sc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SchemaContext{}, store.ErrNotFound
		}
		return types.SchemaContext{}, fmt.Errorf("get schema context: %w", err)
	}
	return sc, nil
}

func (r *SchemaRepository) PutSchema(ctx context.Context, sc types.SchemaContext) (types.SchemaContext, error) {
	query := `
INSERT INTO schema_contexts (user_id, schema_text, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id)
DO UPDATE SET schema_text = EXCLUDED.schema_text, updated_at = NOW()
RETURNING updated_at`

	if err := r.db.QueryRowContext(ctx, query, sc.UserID, sc.Text).Scan(&sc.UpdatedAt); err != nil {
		return types.SchemaContext{}, fmt.Errorf("put schema context: %w", err)
	}
	return sc, nil
}
