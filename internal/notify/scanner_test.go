package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
)

type scannerEnv struct {
	trips  *repository.MockTripRepository
	store  *jobqueue.MemStore
	client *jobqueue.Client
}

func newScannerEnv(t *testing.T) *scannerEnv {
	t.Helper()
	store := jobqueue.NewMemStore()
	client := jobqueue.NewClient(store, zap.NewNop(), jobqueue.Hooks{}, jobqueue.Options{})
	if err := client.CreateQueue(context.Background(), QueueNotificationBatch, jobqueue.Policy{ExpireIn: 5 * time.Minute}); err != nil {
		t.Fatalf("create queue: %v", err)
	}
	return &scannerEnv{trips: repository.NewMockTripRepository(), store: store, client: client}
}

func (e *scannerEnv) batchJobs(t *testing.T) []BatchPayload {
	t.Helper()
	var out []BatchPayload
	for _, j := range e.store.Snapshot() {
		if j.Queue != QueueNotificationBatch {
			continue
		}
		var p BatchPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			t.Fatalf("unmarshal batch payload: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func fixedNow(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestEventReminders_WindowBounds(t *testing.T) {
	env := newScannerEnv(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	env.trips.AddTrip(&domain.Trip{ID: "trip-1", Name: "Lisbon", Timezone: "UTC"})
	env.trips.AddEvent(&domain.Event{ID: "e60", TripID: "trip-1", Name: "Dinner", StartTime: now.Add(60 * time.Minute)})
	env.trips.AddEvent(&domain.Event{ID: "e70", TripID: "trip-1", Name: "Drinks", StartTime: now.Add(70 * time.Minute)})

	s := NewEventReminderScanner(env.trips, env.client, zap.NewNop())
	s.now = fixedNow(now)

	if err := s.Handle(context.Background(), nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	jobs := env.batchJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("batch jobs = %d, want 1 (only the 60-minute event)", len(jobs))
	}
	if jobs[0].Data["eventId"] != "e60" {
		t.Errorf("eventId = %v, want e60", jobs[0].Data["eventId"])
	}
	if jobs[0].Title != "Lisbon" {
		t.Errorf("title = %q, want trip name", jobs[0].Title)
	}
	if jobs[0].Body != "Dinner starts in 1 hour" {
		t.Errorf("body = %q", jobs[0].Body)
	}
}

func TestEventReminders_BodyIncludesLocation(t *testing.T) {
	env := newScannerEnv(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	loc := "Mercado da Ribeira"

	env.trips.AddTrip(&domain.Trip{ID: "trip-1", Name: "Lisbon", Timezone: "UTC"})
	env.trips.AddEvent(&domain.Event{ID: "e1", TripID: "trip-1", Name: "Dinner", Location: &loc, StartTime: now.Add(time.Hour)})

	s := NewEventReminderScanner(env.trips, env.client, zap.NewNop())
	s.now = fixedNow(now)
	if err := s.Handle(context.Background(), nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	jobs := env.batchJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("batch jobs = %d, want 1", len(jobs))
	}
	want := "Dinner starts in 1 hour at Mercado da Ribeira"
	if jobs[0].Body != want {
		t.Errorf("body = %q, want %q", jobs[0].Body, want)
	}
}

func TestEventReminders_RescanMergesOnKey(t *testing.T) {
	env := newScannerEnv(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	env.trips.AddTrip(&domain.Trip{ID: "trip-1", Name: "Lisbon", Timezone: "UTC"})
	env.trips.AddEvent(&domain.Event{ID: "e1", TripID: "trip-1", Name: "Dinner", StartTime: now.Add(time.Hour)})

	s := NewEventReminderScanner(env.trips, env.client, zap.NewNop())
	s.now = fixedNow(now)

	// Two overlapping ticks observe the same event.
	for i := 0; i < 2; i++ {
		if err := s.Handle(context.Background(), nil); err != nil {
			t.Fatalf("Handle %d: %v", i, err)
		}
	}
	if got := len(env.batchJobs(t)); got != 1 {
		t.Errorf("batch jobs = %d, want 1 after duplicate scans", got)
	}
}

func itineraryTrip(tz string) *domain.Trip {
	start, end := "2026-08-29", "2026-09-02"
	return &domain.Trip{ID: "trip-1", Name: "Lisbon", StartDate: &start, EndDate: &end, Timezone: tz}
}

func TestDailyItineraries_MorningWindowEdges(t *testing.T) {
	cases := []struct {
		clock string
		want  int
	}{
		{"07:44", 0},
		{"07:45", 1},
		{"08:00", 1},
		{"08:15", 1},
		{"08:16", 0},
	}
	for _, tc := range cases {
		t.Run(tc.clock, func(t *testing.T) {
			env := newScannerEnv(t)
			env.trips.AddTrip(itineraryTrip("UTC"))

			now, err := time.Parse("2006-01-02 15:04", "2026-08-30 "+tc.clock)
			if err != nil {
				t.Fatalf("parse clock: %v", err)
			}

			s := NewDailyItineraryScanner(env.trips, env.client, zap.NewNop())
			s.now = fixedNow(now.UTC())
			if err := s.Handle(context.Background(), nil); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if got := len(env.batchJobs(t)); got != tc.want {
				t.Errorf("batch jobs = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDailyItineraries_UsesTripTimezone(t *testing.T) {
	env := newScannerEnv(t)
	env.trips.AddTrip(itineraryTrip("America/New_York"))

	// 12:00 UTC is 08:00 in New York in August.
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	s := NewDailyItineraryScanner(env.trips, env.client, zap.NewNop())
	s.now = fixedNow(now)
	if err := s.Handle(context.Background(), nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := len(env.batchJobs(t)); got != 1 {
		t.Fatalf("batch jobs = %d, want 1", got)
	}
}

func TestDailyItineraries_NoEventsPlaceholder(t *testing.T) {
	env := newScannerEnv(t)
	env.trips.AddTrip(itineraryTrip("UTC"))

	now := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	s := NewDailyItineraryScanner(env.trips, env.client, zap.NewNop())
	s.now = fixedNow(now)
	if err := s.Handle(context.Background(), nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	jobs := env.batchJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("batch jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Body != NoEventsBody {
		t.Errorf("body = %q, want placeholder", jobs[0].Body)
	}
	if jobs[0].Title != "Lisbon - Today's Schedule" {
		t.Errorf("title = %q", jobs[0].Title)
	}
}

func TestDailyItineraries_RendersTodaysEventsInOrder(t *testing.T) {
	env := newScannerEnv(t)
	env.trips.AddTrip(itineraryTrip("UTC"))
	env.trips.AddEvent(&domain.Event{ID: "e2", TripID: "trip-1", Name: "Dinner",
		StartTime: time.Date(2026, 8, 30, 19, 30, 0, 0, time.UTC)})
	env.trips.AddEvent(&domain.Event{ID: "e1", TripID: "trip-1", Name: "Museum",
		StartTime: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)})
	env.trips.AddEvent(&domain.Event{ID: "e3", TripID: "trip-1", Name: "Flight home",
		StartTime: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)})

	now := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	s := NewDailyItineraryScanner(env.trips, env.client, zap.NewNop())
	s.now = fixedNow(now)
	if err := s.Handle(context.Background(), nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	jobs := env.batchJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("batch jobs = %d, want 1", len(jobs))
	}
	want := "1. 10:00 AM - Museum\n2. 7:30 PM - Dinner"
	if jobs[0].Body != want {
		t.Errorf("body = %q, want %q", jobs[0].Body, want)
	}
}

func TestDailyItineraries_OncePerLocalDay(t *testing.T) {
	env := newScannerEnv(t)
	env.trips.AddTrip(itineraryTrip("UTC"))

	s := NewDailyItineraryScanner(env.trips, env.client, zap.NewNop())
	for _, clock := range []int{45, 50, 55} {
		s.now = fixedNow(time.Date(2026, 8, 30, 7, clock, 0, 0, time.UTC))
		if err := s.Handle(context.Background(), nil); err != nil {
			t.Fatalf("Handle at :%d: %v", clock, err)
		}
	}
	if got := len(env.batchJobs(t)); got != 1 {
		t.Errorf("batch jobs = %d, want 1 for three ticks in one window", got)
	}
}

func TestDailyItineraries_OutsideDateRangeSkipped(t *testing.T) {
	env := newScannerEnv(t)
	env.trips.AddTrip(itineraryTrip("UTC"))

	now := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC) // after end date
	s := NewDailyItineraryScanner(env.trips, env.client, zap.NewNop())
	s.now = fixedNow(now)
	if err := s.Handle(context.Background(), nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := len(env.batchJobs(t)); got != 0 {
		t.Errorf("batch jobs = %d, want 0", got)
	}
}
