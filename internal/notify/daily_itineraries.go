package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
)

// NoEventsBody is the digest body for a day with nothing scheduled.
const NoEventsBody = "No events scheduled for today."

const localDateLayout = "2006-01-02"

// DailyItineraryScanner runs on the daily-itineraries cron queue. Each tick
// it walks the active trips and, for any trip whose local clock is inside
// the morning window on a day within its date range, enqueues one digest
// fan-out keyed by (trip, local date).
type DailyItineraryScanner struct {
	trips  repository.TripRepository
	queue  *jobqueue.Client
	logger *zap.Logger

	// Morning window bounds as minutes since local midnight, inclusive.
	windowStartMin int
	windowEndMin   int
	now            func() time.Time
}

func NewDailyItineraryScanner(trips repository.TripRepository, queue *jobqueue.Client, logger *zap.Logger) *DailyItineraryScanner {
	return &DailyItineraryScanner{
		trips:          trips,
		queue:          queue,
		logger:         logger,
		windowStartMin: 7*60 + 45,
		windowEndMin:   8*60 + 15,
		now:            time.Now,
	}
}

func (s *DailyItineraryScanner) Handle(ctx context.Context, _ *jobqueue.Job) error {
	trips, err := s.trips.ActiveTrips(ctx)
	if err != nil {
		return fmt.Errorf("load active trips: %w", err)
	}

	enqueued := 0
	for _, trip := range trips {
		if trip.StartDate == nil || trip.EndDate == nil {
			continue
		}
		loc, err := time.LoadLocation(trip.Timezone)
		if err != nil {
			s.logger.Warn("trip has invalid timezone",
				zap.String("trip_id", trip.ID), zap.String("timezone", trip.Timezone))
			continue
		}

		local := s.now().In(loc)
		minute := local.Hour()*60 + local.Minute()
		if minute < s.windowStartMin || minute > s.windowEndMin {
			continue
		}

		// Local-date strings compare lexically.
		today := local.Format(localDateLayout)
		if today < *trip.StartDate || today > *trip.EndDate {
			continue
		}

		body, err := s.renderDay(ctx, trip.ID, loc, today)
		if err != nil {
			return err
		}

		referenceID := trip.ID + ":" + today
		_, err = s.queue.Enqueue(ctx, QueueNotificationBatch, BatchPayload{
			TripID: trip.ID,
			Type:   domain.TypeDailyItinerary,
			Title:  trip.Name + " - Today's Schedule",
			Body:   body,
			Data:   map[string]any{"tripId": trip.ID, "referenceId": referenceID},
		}, jobqueue.EnqueueOptions{
			SingletonKey: DailyItineraryKey(trip.ID, today),
			ExpireIn:     15 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("enqueue itinerary for trip %s: %w", trip.ID, err)
		}
		enqueued++
	}

	s.logger.Info("enqueued daily itinerary batches", zap.Int("count", enqueued))
	return nil
}

// renderDay builds the plain-text schedule for a trip's local date, one
// numbered line per event, or the no-events placeholder.
func (s *DailyItineraryScanner) renderDay(ctx context.Context, tripID string, loc *time.Location, localDate string) (string, error) {
	events, err := s.trips.TripEvents(ctx, tripID)
	if err != nil {
		return "", fmt.Errorf("load events for trip %s: %w", tripID, err)
	}

	var lines []string
	for _, e := range events {
		start := e.StartTime.In(loc)
		if start.Format(localDateLayout) != localDate {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %s", len(lines)+1, start.Format("3:04 PM"), e.Name))
	}
	if len(lines) == 0 {
		return NoEventsBody, nil
	}
	return strings.Join(lines, "\n"), nil
}
