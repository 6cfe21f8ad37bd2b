package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
)

// Metrics carries fan-out callbacks injected by main; nil fields are no-ops.
type Metrics struct {
	OnFanOut func(notifType string, notifications, deliveries int)
}

func (m Metrics) fanOut(notifType string, notifications, deliveries int) {
	if m.OnFanOut != nil {
		m.OnFanOut(notifType, notifications, deliveries)
	}
}

// BatchWorker consumes one fan-out job and turns it into per-recipient
// notification rows plus delivery jobs. All per-recipient branching happens
// in memory; the database sees three batched statements however large the
// trip is.
type BatchWorker struct {
	notifications repository.NotificationRepository
	trips         repository.TripRepository
	queue         *jobqueue.Client
	logger        *zap.Logger
	metrics       Metrics
}

func NewBatchWorker(
	notifications repository.NotificationRepository,
	trips repository.TripRepository,
	queue *jobqueue.Client,
	logger *zap.Logger,
	metrics Metrics,
) *BatchWorker {
	return &BatchWorker{
		notifications: notifications,
		trips:         trips,
		queue:         queue,
		logger:        logger,
		metrics:       metrics,
	}
}

// Handle processes one notification/batch job:
//
//  1. resolve going members with a contact address, minus excludeUserId
//  2. nothing to do on an empty recipient set
//  3. batch-load preferences; absent rows use defaults
//  4. for recurring types, drop recipients already covered by a dedup marker
//  5. build one notification per remaining recipient; preference-enabled
//     recipients also get a delivery payload
//  6. persist notifications (marker-gated for recurring types, so two
//     overlapping jobs for the same referenceId converge instead of
//     double-notifying)
//  7. bulk-enqueue the delivery jobs
func (w *BatchWorker) Handle(ctx context.Context, job *jobqueue.Job) error {
	var p BatchPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal batch payload: %w", err)
	}
	if p.TripID == "" {
		return fmt.Errorf("batch payload missing tripId")
	}

	recipients, err := w.trips.GoingMembers(ctx, p.TripID)
	if err != nil {
		return fmt.Errorf("resolve recipients for trip %s: %w", p.TripID, err)
	}
	if p.ExcludeUserID != "" {
		kept := recipients[:0]
		for _, r := range recipients {
			if r.UserID != p.ExcludeUserID {
				kept = append(kept, r)
			}
		}
		recipients = kept
	}
	if len(recipients) == 0 {
		return nil
	}

	userIDs := make([]string, len(recipients))
	for i, r := range recipients {
		userIDs[i] = r.UserID
	}

	prefs, err := w.notifications.PreferencesFor(ctx, p.TripID, userIDs)
	if err != nil {
		return fmt.Errorf("load preferences for trip %s: %w", p.TripID, err)
	}

	recurring := domain.IsRecurring(p.Type)
	referenceID := ""
	if v, ok := p.Data["referenceId"]; ok {
		referenceID = fmt.Sprint(v)
	}

	// Cheap pre-filter against markers from earlier runs. The gated insert
	// below is what actually guarantees convergence when two jobs race.
	marked := map[string]bool{}
	if recurring && referenceID != "" {
		marked, err = w.notifications.ExistingMarkers(ctx, p.Type, referenceID, userIDs)
		if err != nil {
			return fmt.Errorf("load dedup markers: %w", err)
		}
	}

	var records []*domain.Notification
	addresses := make(map[string]string, len(recipients))
	wantsDelivery := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		if marked[r.UserID] {
			continue
		}
		tripID := p.TripID
		records = append(records, &domain.Notification{
			UserID: r.UserID,
			TripID: &tripID,
			Type:   p.Type,
			Title:  p.Title,
			Body:   p.Body,
			Data:   p.Data,
		})
		addresses[r.UserID] = r.PhoneNumber

		userPrefs, ok := prefs[r.UserID]
		if !ok {
			userPrefs = domain.DefaultPreferences()
		}
		wantsDelivery[r.UserID] = userPrefs.Allows(p.Type)
	}
	if len(records) == 0 {
		return nil
	}

	// Persist. For recurring types the marker insert arbitrates concurrent
	// runs: only marker winners get a notification row or a delivery job.
	delivered := make([]string, 0, len(records))
	if recurring && referenceID != "" {
		winners, err := w.notifications.CreateBatchDeduped(ctx, p.Type, referenceID, records)
		if err != nil {
			return fmt.Errorf("insert notifications: %w", err)
		}
		delivered = winners
	} else {
		if err := w.notifications.CreateBatch(ctx, records); err != nil {
			return fmt.Errorf("insert notifications: %w", err)
		}
		for _, rec := range records {
			delivered = append(delivered, rec.UserID)
		}
	}

	message := p.Title + ": " + p.Body
	var deliveries []any
	for _, userID := range delivered {
		if !wantsDelivery[userID] {
			continue
		}
		deliveries = append(deliveries, DeliverPayload{
			Address: addresses[userID],
			Message: message,
		})
	}
	if err := w.queue.EnqueueBatch(ctx, QueueNotificationDeliver, deliveries); err != nil {
		return fmt.Errorf("enqueue deliveries: %w", err)
	}

	w.metrics.fanOut(p.Type, len(delivered), len(deliveries))
	w.logger.Debug("fan-out complete",
		zap.String("trip_id", p.TripID),
		zap.String("type", p.Type),
		zap.Int("notifications", len(delivered)),
		zap.Int("deliveries", len(deliveries)))
	return nil
}
