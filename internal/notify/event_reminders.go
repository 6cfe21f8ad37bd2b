package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
)

// EventReminderScanner runs on the event-reminders cron queue. Each tick it
// looks for events starting roughly an hour out and emits one fan-out job
// per event. The window is wider than the cron cadence, so an event may be
// seen by two ticks; the per-event idempotency key merges the duplicates.
type EventReminderScanner struct {
	trips  repository.TripRepository
	queue  *jobqueue.Client
	logger *zap.Logger

	windowFrom time.Duration
	windowTo   time.Duration
	now        func() time.Time
}

func NewEventReminderScanner(trips repository.TripRepository, queue *jobqueue.Client, logger *zap.Logger) *EventReminderScanner {
	return &EventReminderScanner{
		trips:      trips,
		queue:      queue,
		logger:     logger,
		windowFrom: 55 * time.Minute,
		windowTo:   65 * time.Minute,
		now:        time.Now,
	}
}

// Handle scans one reminder window. Scanners are pure read-then-enqueue:
// recipient-aware writes belong to the batch worker.
func (s *EventReminderScanner) Handle(ctx context.Context, _ *jobqueue.Job) error {
	now := s.now().UTC()
	from := now.Add(s.windowFrom)
	to := now.Add(s.windowTo)

	events, err := s.trips.EventsStartingBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("scan upcoming events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	// One trip-name lookup for the whole window, not one per event.
	tripIDs := make([]string, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if !seen[e.TripID] {
			seen[e.TripID] = true
			tripIDs = append(tripIDs, e.TripID)
		}
	}
	names, err := s.trips.TripNames(ctx, tripIDs)
	if err != nil {
		return fmt.Errorf("load trip names: %w", err)
	}

	enqueued := 0
	for _, e := range events {
		title, ok := names[e.TripID]
		if !ok {
			title = "Trip"
		}
		body := e.Name + " starts in 1 hour"
		if e.Location != nil && *e.Location != "" {
			body += " at " + *e.Location
		}

		_, err := s.queue.Enqueue(ctx, QueueNotificationBatch, BatchPayload{
			TripID: e.TripID,
			Type:   domain.TypeEventReminder,
			Title:  title,
			Body:   body,
			Data:   map[string]any{"eventId": e.ID, "referenceId": e.ID},
		}, jobqueue.EnqueueOptions{SingletonKey: EventReminderKey(e.ID)})
		if err != nil {
			return fmt.Errorf("enqueue reminder for event %s: %w", e.ID, err)
		}
		enqueued++
	}

	s.logger.Info("enqueued event reminder batches", zap.Int("count", enqueued))
	return nil
}
