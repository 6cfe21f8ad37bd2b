package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by PostgreSQL. Leasing relies on
// FOR UPDATE SKIP LOCKED, so any number of processes can share the tables.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) CreateQueue(ctx context.Context, name string, p Policy) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queues
			(name, retry_limit, retry_delay_seconds, retry_backoff,
			 expire_in_seconds, retain_seconds, dead_letter, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),now())
		ON CONFLICT (name) DO NOTHING`,
		name, p.RetryLimit, int(p.RetryDelay.Seconds()), p.RetryBackoff,
		int(p.ExpireIn.Seconds()), int(p.RetainFor.Seconds()), p.DeadLetter,
	)
	if err != nil {
		return fmt.Errorf("create queue %s: %w", name, err)
	}
	return nil
}

func (s *pgStore) Enqueue(ctx context.Context, queue string, payload []byte, expireIn time.Duration, opts EnqueueOptions) (string, error) {
	id := uuid.New().String()

	var key *string
	if opts.SingletonKey != "" {
		key = &opts.SingletonKey
	}
	startAfter := opts.StartAfter
	if startAfter.IsZero() {
		startAfter = time.Now().UTC()
	}

	// The partial unique index on (queue, singleton_key) covers only live
	// jobs, so ON CONFLICT DO NOTHING implements the merge semantics.
	var insertedID string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, queue, payload, singleton_key, start_after, expire_in_seconds)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		id, queue, payload, key, startAfter, int(expireIn.Seconds()),
	).Scan(&insertedID)

	if errors.Is(err, pgx.ErrNoRows) {
		// Merged: report the live job the caller's attempt collapsed into.
		var existingID string
		err = s.pool.QueryRow(ctx, `
			SELECT id FROM jobs
			WHERE queue = $1 AND singleton_key = $2 AND state IN ('available','active')`,
			queue, opts.SingletonKey,
		).Scan(&existingID)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil // completed between insert and lookup
		}
		if err != nil {
			return "", fmt.Errorf("lookup merged job: %w", err)
		}
		return existingID, nil
	}
	if err != nil {
		return "", fmt.Errorf("enqueue on %s: %w", queue, err)
	}
	return insertedID, nil
}

func (s *pgStore) EnqueueBatch(ctx context.Context, queue string, payloads [][]byte, expireIn time.Duration) error {
	if len(payloads) == 0 {
		return nil
	}

	ids := make([]string, len(payloads))
	bodies := make([]string, len(payloads))
	for i, p := range payloads {
		ids[i] = uuid.New().String()
		bodies[i] = string(p)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, queue, payload, start_after, expire_in_seconds)
		SELECT unnest($1::uuid[]), $2, unnest($3::text[])::jsonb, now(), $4`,
		ids, queue, bodies, int(expireIn.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("enqueue batch on %s: %w", queue, err)
	}
	return nil
}

func (s *pgStore) Lease(ctx context.Context, queue string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM jobs
			WHERE queue = $1 AND state = 'available' AND start_after <= now()
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET state = 'active', started_at = now()
		FROM next
		WHERE j.id = next.id
		RETURNING j.id, j.queue, j.payload, j.state, j.singleton_key,
		          j.retry_count, j.start_after, j.started_at,
		          j.expire_in_seconds, j.completed_at, j.created_at`, queue)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *pgStore) Complete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = 'completed', completed_at = now() WHERE id = $1`, jobID)
	return err
}

func (s *pgStore) Retry(ctx context.Context, jobID string, startAfter time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'available', retry_count = retry_count + 1,
		    started_at = NULL, start_after = $2
		WHERE id = $1`, jobID, startAfter)
	return err
}

func (s *pgStore) MarkFailed(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = 'failed', completed_at = now() WHERE id = $1`, jobID)
	return err
}

func (s *pgStore) DeadLetter(ctx context.Context, jobID, targetQueue string, targetExpireIn time.Duration) error {
	// Single statement keeps the fail + forward atomic without an explicit
	// transaction; the dead-lettered copy carries the original payload.
	_, err := s.pool.Exec(ctx, `
		WITH dead AS (
			UPDATE jobs SET state = 'failed', completed_at = now()
			WHERE id = $1
			RETURNING payload
		)
		INSERT INTO jobs (id, queue, payload, start_after, expire_in_seconds)
		SELECT $2, $3, dead.payload, now(), $4 FROM dead`,
		jobID, uuid.New().String(), targetQueue, int(targetExpireIn.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("dead-letter job %s to %s: %w", jobID, targetQueue, err)
	}
	return nil
}

func (s *pgStore) ListExpired(ctx context.Context) ([]*Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, queue, payload, state, singleton_key, retry_count,
		       start_after, started_at, expire_in_seconds, completed_at, created_at
		FROM jobs
		WHERE state = 'active'
		  AND started_at + make_interval(secs => expire_in_seconds) < now()
		LIMIT 500`)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *pgStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		USING queues
		WHERE jobs.queue = queues.name
		  AND jobs.state IN ('completed','failed')
		  AND jobs.completed_at + make_interval(secs => queues.retain_seconds) < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) Depth(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE queue = $1 AND state IN ('available','active')`,
		queue,
	).Scan(&n)
	return n, err
}

// scanJob reads a single job row from any pgx row type.
func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var expireSecs int
	err := row.Scan(
		&j.ID, &j.Queue, &j.Payload, &j.State, &j.SingletonKey,
		&j.RetryCount, &j.StartAfter, &j.StartedAt,
		&expireSecs, &j.CompletedAt, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ExpireIn = time.Duration(expireSecs) * time.Second
	return &j, nil
}
