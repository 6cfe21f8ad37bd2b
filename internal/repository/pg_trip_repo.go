package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
)

type pgTripRepository struct {
	pool *pgxpool.Pool
}

// NewPgTripRepository returns a TripRepository backed by PostgreSQL.
func NewPgTripRepository(pool *pgxpool.Pool) TripRepository {
	return &pgTripRepository{pool: pool}
}

func (r *pgTripRepository) GetTrip(ctx context.Context, id string) (*domain.Trip, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, start_date, end_date, timezone, cancelled
		FROM trips WHERE id = $1`, id)

	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return t, err
}

func (r *pgTripRepository) ActiveTrips(ctx context.Context) ([]*domain.Trip, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, start_date, end_date, timezone, cancelled
		FROM trips WHERE cancelled = FALSE`)
	if err != nil {
		return nil, fmt.Errorf("query active trips: %w", err)
	}
	defer rows.Close()

	var trips []*domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (r *pgTripRepository) TripNames(ctx context.Context, tripIDs []string) (map[string]string, error) {
	if len(tripIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM trips WHERE id = ANY($1::uuid[])`, tripIDs)
	if err != nil {
		return nil, fmt.Errorf("query trip names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(tripIDs))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (r *pgTripRepository) EventsStartingBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trip_id, name, location, start_time, all_day, deleted_at
		FROM events
		WHERE start_time >= $1 AND start_time <= $2
		  AND deleted_at IS NULL
		  AND all_day = FALSE`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *pgTripRepository) TripEvents(ctx context.Context, tripID string) ([]*domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trip_id, name, location, start_time, all_day, deleted_at
		FROM events
		WHERE trip_id = $1 AND deleted_at IS NULL
		ORDER BY start_time`,
		tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("query trip events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *pgTripRepository) GoingMembers(ctx context.Context, tripID string) ([]domain.Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.user_id, u.phone_number
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.trip_id = $1 AND m.status = $2`,
		tripID, string(domain.StatusGoing),
	)
	if err != nil {
		return nil, fmt.Errorf("query going members: %w", err)
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.UserID, &rec.PhoneNumber); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

// ---- helpers ----

func scanTrip(row pgx.Row) (*domain.Trip, error) {
	var t domain.Trip
	if err := row.Scan(&t.ID, &t.Name, &t.StartDate, &t.EndDate, &t.Timezone, &t.Cancelled); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var events []*domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TripID, &e.Name, &e.Location, &e.StartTime, &e.AllDay, &e.DeletedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
