package notify

// Queue names. Delivery and batch queues are paired with their own
// dead-letter queues; the cron queues have none because their scanner
// handlers only read and enqueue.
const (
	QueueNotificationBatch      = "notification/batch"
	QueueNotificationBatchDLQ   = "notification/batch/dlq"
	QueueNotificationDeliver    = "notification/deliver"
	QueueNotificationDeliverDLQ = "notification/deliver/dlq"
	QueueInvitationSend         = "invitation/send"
	QueueInvitationSendDLQ      = "invitation/send/dlq"
	QueueEventReminders         = "event-reminders"
	QueueDailyItineraries       = "daily-itineraries"
)

// Default cron expressions for the scanners. The itinerary cadence is
// coarser than the morning window it tests, so the window is checked on
// each tick rather than precisely scheduled.
const (
	DefaultEventReminderCron  = "*/5 * * * *"
	DefaultDailyItineraryCron = "*/15 * * * *"
)

// BatchPayload is the fan-out job consumed by the batch worker. Field names
// are part of the wire contract shared with API producers.
type BatchPayload struct {
	TripID        string         `json:"tripId"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Data          map[string]any `json:"data,omitempty"`
	ExcludeUserID string         `json:"excludeUserId,omitempty"`
}

// DeliverPayload is one outbound message for the delivery workers.
type DeliverPayload struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

// EventReminderKey is the idempotency key for an event's fan-out job, so
// overlapping scanner ticks that re-observe the same event merge at enqueue.
func EventReminderKey(eventID string) string {
	return "event-reminder:" + eventID
}

// DailyItineraryKey keys a trip's digest by local calendar date, so the trip
// is fanned out at most once per local day however many ticks land inside
// the morning window.
func DailyItineraryKey(tripID, localDate string) string {
	return "daily-itinerary:" + tripID + ":" + localDate
}
