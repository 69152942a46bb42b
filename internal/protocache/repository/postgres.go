package repository

import (
	"context"
	"database/sql"

	"whatsapp-control-plane/backend/internal/db/sqlc/gen"
)

type PostgresRepository struct {
	queries *gen.Queries
}

// NewPostgresRepository returns a protocol cache repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{queries: gen.New(db)}
}

func (r *PostgresRepository) Purge(ctx context.Context, whatsappID int64) (int64, error) {
	return r.queries.DeleteProtocolCacheByWhatsapp(ctx, whatsappID)
}
