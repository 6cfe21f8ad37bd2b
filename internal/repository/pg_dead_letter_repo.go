package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgDeadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewPgDeadLetterRepository returns a DeadLetterRepository backed by PostgreSQL.
func NewPgDeadLetterRepository(pool *pgxpool.Pool) DeadLetterRepository {
	return &pgDeadLetterRepository{pool: pool}
}

func (r *pgDeadLetterRepository) RecordFailure(ctx context.Context, queue, jobID string, payload []byte) error {
	// payload may be nil or arbitrary JSON; stored as-is for inspection.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO job_failures (id, queue, job_id, payload, created_at)
		VALUES ($1,$2,$3,$4,now())`,
		uuid.New().String(), queue, jobID, payload,
	)
	if err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	return nil
}
