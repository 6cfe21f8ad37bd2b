package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
)

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

func (r *pgNotificationRepository) CreateBatch(ctx context.Context, notifications []*domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	ids, userIDs, tripIDs, types, titles, bodies, datas, err := notificationColumns(notifications)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, trip_id, type, title, body, data, created_at)
		SELECT unnest($1::uuid[]), unnest($2::uuid[]), unnest($3::uuid[]),
		       unnest($4::text[]), unnest($5::text[]), unnest($6::text[]),
		       unnest($7::text[])::jsonb, now()`,
		ids, userIDs, tripIDs, types, titles, bodies, datas,
	)
	if err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) CreateBatchDeduped(ctx context.Context, notifType, referenceID string, notifications []*domain.Notification) ([]string, error) {
	if len(notifications) == 0 {
		return nil, nil
	}

	byUser := make(map[string]*domain.Notification, len(notifications))
	allUserIDs := make([]string, 0, len(notifications))
	for _, n := range notifications {
		byUser[n.UserID] = n
		allUserIDs = append(allUserIDs, n.UserID)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Marker inserts decide the winners: a conflicting row means another
	// run already notified that user, so they are skipped here.
	rows, err := tx.Query(ctx, `
		INSERT INTO dedup_markers (type, reference_id, user_id, created_at)
		SELECT $1, $2, unnest($3::uuid[]), now()
		ON CONFLICT (type, reference_id, user_id) DO NOTHING
		RETURNING user_id`,
		notifType, referenceID, allUserIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("insert dedup markers: %w", err)
	}

	var winners []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return nil, err
		}
		winners = append(winners, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(winners) == 0 {
		return nil, tx.Commit(ctx)
	}

	won := make([]*domain.Notification, 0, len(winners))
	for _, userID := range winners {
		won = append(won, byUser[userID])
	}

	ids, userIDs, tripIDs, types, titles, bodies, datas, err := notificationColumns(won)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (id, user_id, trip_id, type, title, body, data, created_at)
		SELECT unnest($1::uuid[]), unnest($2::uuid[]), unnest($3::uuid[]),
		       unnest($4::text[]), unnest($5::text[]), unnest($6::text[]),
		       unnest($7::text[])::jsonb, now()`,
		ids, userIDs, tripIDs, types, titles, bodies, datas,
	)
	if err != nil {
		return nil, fmt.Errorf("insert deduped notifications: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit deduped batch: %w", err)
	}
	return winners, nil
}

func (r *pgNotificationRepository) ExistingMarkers(ctx context.Context, notifType, referenceID string, userIDs []string) (map[string]bool, error) {
	if len(userIDs) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM dedup_markers
		WHERE type = $1 AND reference_id = $2 AND user_id = ANY($3::uuid[])`,
		notifType, referenceID, userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query dedup markers: %w", err)
	}
	defer rows.Close()

	marked := make(map[string]bool)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		marked[userID] = true
	}
	return marked, rows.Err()
}

func (r *pgNotificationRepository) PreferencesFor(ctx context.Context, tripID string, userIDs []string) (map[string]domain.Preferences, error) {
	if len(userIDs) == 0 {
		return map[string]domain.Preferences{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, event_reminders, daily_itinerary, trip_messages
		FROM notification_preferences
		WHERE trip_id = $1 AND user_id = ANY($2::uuid[])`,
		tripID, userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]domain.Preferences)
	for rows.Next() {
		var userID string
		var p domain.Preferences
		if err := rows.Scan(&userID, &p.EventReminders, &p.DailyItinerary, &p.TripMessages); err != nil {
			return nil, err
		}
		prefs[userID] = p
	}
	return prefs, rows.Err()
}

func (r *pgNotificationRepository) List(ctx context.Context, userID string, f domain.NotificationFilter) ([]*domain.Notification, int, int, error) {
	where := " WHERE user_id = $1"
	args := []any{userID}
	if f.TripID != nil {
		args = append(args, *f.TripID)
		where += fmt.Sprintf(" AND trip_id = $%d", len(args))
	}
	baseWhere := where
	if f.UnreadOnly {
		where += " AND read_at IS NULL"
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications"+where, args...).Scan(&total); err != nil {
		return nil, 0, 0, fmt.Errorf("count notifications: %w", err)
	}
	var unread int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications"+baseWhere+" AND read_at IS NULL", args...).Scan(&unread); err != nil {
		return nil, 0, 0, fmt.Errorf("count unread: %w", err)
	}

	offset := (f.Page - 1) * f.Limit
	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`
		SELECT id, user_id, trip_id, type, title, body, data, read_at, created_at
		FROM notifications%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var items []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		items = append(items, n)
	}
	return items, total, unread, rows.Err()
}

func (r *pgNotificationRepository) UnreadCount(ctx context.Context, userID string, tripID *string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`
	args := []any{userID}
	if tripID != nil {
		query += " AND trip_id = $2"
		args = append(args, *tripID)
	}

	var n int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *pgNotificationRepository) MarkRead(ctx context.Context, notificationID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = now()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL`,
		notificationID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "already read" from "not yours / missing".
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`,
			notificationID, userID,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *pgNotificationRepository) MarkAllRead(ctx context.Context, userID string, tripID *string) error {
	query := `UPDATE notifications SET read_at = now() WHERE user_id = $1 AND read_at IS NULL`
	args := []any{userID}
	if tripID != nil {
		query += " AND trip_id = $2"
		args = append(args, *tripID)
	}
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}

func (r *pgNotificationRepository) GetPreferences(ctx context.Context, userID, tripID string) (domain.Preferences, error) {
	var p domain.Preferences
	err := r.pool.QueryRow(ctx, `
		SELECT event_reminders, daily_itinerary, trip_messages
		FROM notification_preferences
		WHERE user_id = $1 AND trip_id = $2`,
		userID, tripID,
	).Scan(&p.EventReminders, &p.DailyItinerary, &p.TripMessages)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultPreferences(), nil
	}
	return p, err
}

func (r *pgNotificationRepository) UpsertPreferences(ctx context.Context, userID, tripID string, p domain.Preferences) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_preferences
			(user_id, trip_id, event_reminders, daily_itinerary, trip_messages, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (user_id, trip_id) DO UPDATE
		SET event_reminders = EXCLUDED.event_reminders,
		    daily_itinerary = EXCLUDED.daily_itinerary,
		    trip_messages   = EXCLUDED.trip_messages,
		    updated_at      = now()`,
		userID, tripID, p.EventReminders, p.DailyItinerary, p.TripMessages,
	)
	return err
}

// ---- helpers ----

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	var data []byte
	err := row.Scan(&n.ID, &n.UserID, &n.TripID, &n.Type, &n.Title, &n.Body, &data, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("decode notification data: %w", err)
		}
	}
	return &n, nil
}

// notificationColumns flattens notifications into parallel arrays for a
// single unnest-based insert.
func notificationColumns(notifications []*domain.Notification) (ids, userIDs []string, tripIDs []*string, types, titles, bodies []string, datas []*string, err error) {
	for _, n := range notifications {
		id := n.ID
		if id == "" {
			id = uuid.New().String()
		}
		ids = append(ids, id)
		userIDs = append(userIDs, n.UserID)
		tripIDs = append(tripIDs, n.TripID)
		types = append(types, n.Type)
		titles = append(titles, n.Title)
		bodies = append(bodies, n.Body)

		if n.Data == nil {
			datas = append(datas, nil)
			continue
		}
		raw, merr := json.Marshal(n.Data)
		if merr != nil {
			return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal notification data: %w", merr)
		}
		s := string(raw)
		datas = append(datas, &s)
	}
	return ids, userIDs, tripIDs, types, titles, bodies, datas, nil
}
