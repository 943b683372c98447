package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncLogRepository handles sync audit-log database operations. Rows are
// append-only, one per orchestration pass.
type SyncLogRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new sync log row.
func (r *SyncLogRepository) Create(ctx context.Context, log *SyncLog) error {
	query := `
		INSERT INTO sync_logs (sync_source, status, response, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		log.Source,
		log.Status,
		log.Response,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting sync log: %w", err)
	}
	return nil
}
