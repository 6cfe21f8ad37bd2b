package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/notify"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
)

type serviceEnv struct {
	svc    *NotificationService
	notifs *repository.MockNotificationRepository
	trips  *repository.MockTripRepository
	store  *jobqueue.MemStore
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	store := jobqueue.NewMemStore()
	client := jobqueue.NewClient(store, zap.NewNop(), jobqueue.Hooks{}, jobqueue.Options{})
	ctx := context.Background()
	for _, q := range []string{notify.QueueNotificationBatch, notify.QueueInvitationSend} {
		if err := client.CreateQueue(ctx, q, jobqueue.Policy{}); err != nil {
			t.Fatalf("create queue %s: %v", q, err)
		}
	}

	notifs := repository.NewMockNotificationRepository()
	trips := repository.NewMockTripRepository()
	return &serviceEnv{
		svc:    NewNotificationService(notifs, trips, client, zap.NewNop()),
		notifs: notifs,
		trips:  trips,
		store:  store,
	}
}

func TestNotifyTripMembers_EnqueuesBatchJob(t *testing.T) {
	env := newServiceEnv(t)
	env.trips.AddTrip(&domain.Trip{ID: "trip-1", Name: "Lisbon", Timezone: "UTC"})

	jobID, err := env.svc.NotifyTripMembers(context.Background(), "trip-1",
		domain.TypeTripMessage, "Lisbon", "hello", nil, "author")
	if err != nil {
		t.Fatalf("NotifyTripMembers: %v", err)
	}
	if jobID == "" {
		t.Fatal("empty job ID")
	}

	jobs := env.store.Snapshot()
	if len(jobs) != 1 || jobs[0].Queue != notify.QueueNotificationBatch {
		t.Fatalf("jobs = %+v, want one batch job", jobs)
	}
	var p notify.BatchPayload
	if err := json.Unmarshal(jobs[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.ExcludeUserID != "author" || p.Type != domain.TypeTripMessage {
		t.Errorf("payload = %+v", p)
	}
}

func TestNotifyTripMembers_Validation(t *testing.T) {
	env := newServiceEnv(t)
	env.trips.AddTrip(&domain.Trip{ID: "trip-1", Name: "Lisbon", Timezone: "UTC"})

	cases := []struct {
		name                string
		tripID, title, body string
		want                error
	}{
		{"missing trip", "", "t", "b", domain.ErrInvalidTripID},
		{"missing title", "trip-1", " ", "b", domain.ErrInvalidTitle},
		{"missing body", "trip-1", "t", "", domain.ErrInvalidBody},
		{"unknown trip", "trip-9", "t", "b", domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.NotifyTripMembers(context.Background(), tc.tripID,
				domain.TypeTripMessage, tc.title, tc.body, nil, "")
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNotifyTripMembers_CancelledTripRejected(t *testing.T) {
	env := newServiceEnv(t)
	env.trips.AddTrip(&domain.Trip{ID: "trip-1", Name: "Lisbon", Timezone: "UTC", Cancelled: true})

	_, err := env.svc.NotifyTripMembers(context.Background(), "trip-1",
		domain.TypeTripUpdate, "t", "b", nil, "")
	if !errors.Is(err, domain.ErrTripCancelled) {
		t.Fatalf("err = %v, want ErrTripCancelled", err)
	}
	if got := len(env.store.Snapshot()); got != 0 {
		t.Errorf("jobs = %d, want 0", got)
	}
}

func TestSendInvitation_EnqueuesDeliverPayload(t *testing.T) {
	env := newServiceEnv(t)

	if _, err := env.svc.SendInvitation(context.Background(), "+15551234", "join us"); err != nil {
		t.Fatalf("SendInvitation: %v", err)
	}

	jobs := env.store.Snapshot()
	if len(jobs) != 1 || jobs[0].Queue != notify.QueueInvitationSend {
		t.Fatalf("jobs = %+v, want one invitation job", jobs)
	}
	var p notify.DeliverPayload
	if err := json.Unmarshal(jobs[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Address != "+15551234" || p.Message != "join us" {
		t.Errorf("payload = %+v", p)
	}
}

func TestList_DefaultsPagination(t *testing.T) {
	env := newServiceEnv(t)
	tripID := "trip-1"
	if err := env.notifs.CreateBatch(context.Background(), []*domain.Notification{
		{UserID: "u1", TripID: &tripID, Type: domain.TypeTripMessage, Title: "t", Body: "b"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, total, unread, err := env.svc.List(context.Background(), "u1", domain.NotificationFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || total != 1 || unread != 1 {
		t.Errorf("items=%d total=%d unread=%d, want 1/1/1", len(items), total, unread)
	}
}

func TestPreferences_DefaultsWhenAbsent(t *testing.T) {
	env := newServiceEnv(t)

	p, err := env.svc.GetPreferences(context.Background(), "u1", "trip-1")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if !p.EventReminders || !p.DailyItinerary || !p.TripMessages {
		t.Errorf("defaults should enable every category, got %+v", p)
	}
}

func TestUpdatePreferences_RequiresExistingTrip(t *testing.T) {
	env := newServiceEnv(t)

	err := env.svc.UpdatePreferences(context.Background(), "u1", "trip-9", domain.DefaultPreferences())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	env.trips.AddTrip(&domain.Trip{ID: "trip-1", Name: "Lisbon", Timezone: "UTC"})
	prefs := domain.Preferences{EventReminders: false, DailyItinerary: true, TripMessages: true}
	if err := env.svc.UpdatePreferences(context.Background(), "u1", "trip-1", prefs); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	got, err := env.svc.GetPreferences(context.Background(), "u1", "trip-1")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if got.EventReminders {
		t.Error("EventReminders should be disabled after update")
	}
}
