package domain

import "time"

// RSVPStatus is a member's attendance state. Only "going" members receive
// trip notifications.
type RSVPStatus string

const (
	StatusInvited  RSVPStatus = "invited"
	StatusGoing    RSVPStatus = "going"
	StatusNotGoing RSVPStatus = "not_going"
	StatusMaybe    RSVPStatus = "maybe"
)

// Trip carries the fields the pipeline reads; the full trip entity is owned
// by the CRUD side of the platform. StartDate and EndDate are local calendar
// dates ("2006-01-02") in the trip's timezone, nullable while a trip is
// still being planned.
type Trip struct {
	ID        string
	Name      string
	StartDate *string
	EndDate   *string
	Timezone  string
	Cancelled bool
}

// Event is a scheduled item on a trip's itinerary.
type Event struct {
	ID        string
	TripID    string
	Name      string
	Location  *string
	StartTime time.Time
	AllDay    bool
	DeletedAt *time.Time
}

// Recipient joins a going member to a deliverable contact address.
type Recipient struct {
	UserID      string
	PhoneNumber string
}
