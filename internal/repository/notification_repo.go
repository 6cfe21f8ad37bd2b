package repository

import (
	"context"
	"time"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
)

// NotificationRepository defines all persistence operations for
// notifications, preferences, and dedup markers. The pgx implementation is
// in pg_notification_repo.go; tests use a hand-written mock.
type NotificationRepository interface {
	// CreateBatch bulk-inserts notifications with no deduplication, for
	// one-off types.
	CreateBatch(ctx context.Context, notifications []*domain.Notification) error

	// CreateBatchDeduped, in one transaction, inserts a dedup marker per
	// notification with conflict-safe semantics and then inserts
	// notification rows only for the users whose marker insert won.
	// Returns those user IDs. Two overlapping runs for the same
	// (type, referenceID) therefore converge on one row per user.
	CreateBatchDeduped(ctx context.Context, notifType, referenceID string, notifications []*domain.Notification) ([]string, error)

	// ExistingMarkers reports which of the given users already have a
	// marker for (notifType, referenceID).
	ExistingMarkers(ctx context.Context, notifType, referenceID string, userIDs []string) (map[string]bool, error)

	// PreferencesFor batch-loads stored preference rows for a trip's users.
	// Users absent from the result use domain.DefaultPreferences.
	PreferencesFor(ctx context.Context, tripID string, userIDs []string) (map[string]domain.Preferences, error)

	List(ctx context.Context, userID string, f domain.NotificationFilter) (items []*domain.Notification, total, unread int, err error)
	UnreadCount(ctx context.Context, userID string, tripID *string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string, tripID *string) error

	GetPreferences(ctx context.Context, userID, tripID string) (domain.Preferences, error)
	UpsertPreferences(ctx context.Context, userID, tripID string, p domain.Preferences) error
}

// TripRepository is the read-only domain scan and recipient query
// capability. The pipeline never writes through it.
type TripRepository interface {
	GetTrip(ctx context.Context, id string) (*domain.Trip, error)
	ActiveTrips(ctx context.Context) ([]*domain.Trip, error)
	TripNames(ctx context.Context, tripIDs []string) (map[string]string, error)

	// EventsStartingBetween returns events with from <= start_time <= to,
	// excluding soft-deleted and all-day events.
	EventsStartingBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error)

	// TripEvents returns a trip's non-deleted events ordered by start time.
	TripEvents(ctx context.Context, tripID string) ([]*domain.Event, error)

	// GoingMembers resolves the recipient set: members with status "going"
	// joined to their phone number.
	GoingMembers(ctx context.Context, tripID string) ([]domain.Recipient, error)
}

// DeadLetterRepository records terminal job failures for operator
// inspection.
type DeadLetterRepository interface {
	RecordFailure(ctx context.Context, queue, jobID string, payload []byte) error
}
