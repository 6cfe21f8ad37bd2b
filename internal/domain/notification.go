package domain

import "time"

// Notification type constants. The two cron-produced types are subject to
// cross-run deduplication via dedup markers; trip_update always delivers.
const (
	TypeEventReminder  = "event_reminder"
	TypeDailyItinerary = "daily_itinerary"
	TypeTripMessage    = "trip_message"
	TypeTripUpdate     = "trip_update"
)

// IsRecurring reports whether a notification type is produced by a cron
// scanner and therefore deduplicated across overlapping batch runs.
func IsRecurring(notifType string) bool {
	return notifType == TypeEventReminder || notifType == TypeDailyItinerary
}

// Notification is one message materialized for one user. Immutable after
// creation except for ReadAt.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	TripID    *string        `json:"trip_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Preferences holds the per-(trip, user) opt-in flags.
type Preferences struct {
	EventReminders bool `json:"event_reminders"`
	DailyItinerary bool `json:"daily_itinerary"`
	TripMessages   bool `json:"trip_messages"`
}

// DefaultPreferences applies when a user has no stored row: every category enabled.
func DefaultPreferences() Preferences {
	return Preferences{EventReminders: true, DailyItinerary: true, TripMessages: true}
}

// Allows reports whether a notification of the given type should be
// delivered out-of-band (SMS) under these preferences. Types without a
// category, including trip_update, always deliver.
func (p Preferences) Allows(notifType string) bool {
	switch notifType {
	case TypeEventReminder:
		return p.EventReminders
	case TypeDailyItinerary:
		return p.DailyItinerary
	case TypeTripMessage:
		return p.TripMessages
	default:
		return true
	}
}

// NotificationFilter holds query parameters for paginated listing.
type NotificationFilter struct {
	TripID     *string
	UnreadOnly bool
	Page       int
	Limit      int
}

// DedupMarker records that a (type, referenceId, user) tuple was already
// materialized. At most one marker exists per tuple; inserts are
// conflict-safe so overlapping batch runs converge.
type DedupMarker struct {
	Type        string    `json:"type"`
	ReferenceID string    `json:"reference_id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
