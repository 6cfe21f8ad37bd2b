package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/notify"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
)

// NotificationService is the synchronous entry point into the pipeline.
// HTTP handlers call it to fan a message out to a trip (bypassing the cron
// producers entirely), to send invitations, and to read or update a user's
// notifications and preferences. All asynchronous work still flows through
// the queue; the service never writes notification rows itself.
type NotificationService struct {
	notifications repository.NotificationRepository
	trips         repository.TripRepository
	queue         *jobqueue.Client
	logger        *zap.Logger
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	trips repository.TripRepository,
	queue *jobqueue.Client,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		trips:         trips,
		queue:         queue,
		logger:        logger,
	}
}

// NotifyTripMembers enqueues one fan-out job for a trip. excludeUserID keeps
// an author from being notified of their own post. Returns the job ID.
func (s *NotificationService) NotifyTripMembers(
	ctx context.Context,
	tripID, notifType, title, body string,
	data map[string]any,
	excludeUserID string,
) (string, error) {
	if strings.TrimSpace(tripID) == "" {
		return "", domain.ErrInvalidTripID
	}
	if strings.TrimSpace(title) == "" {
		return "", domain.ErrInvalidTitle
	}
	if strings.TrimSpace(body) == "" {
		return "", domain.ErrInvalidBody
	}

	trip, err := s.trips.GetTrip(ctx, tripID)
	if err != nil {
		return "", err
	}
	if trip.Cancelled {
		return "", domain.ErrTripCancelled
	}

	jobID, err := s.queue.Enqueue(ctx, notify.QueueNotificationBatch, notify.BatchPayload{
		TripID:        tripID,
		Type:          notifType,
		Title:         title,
		Body:          body,
		Data:          data,
		ExcludeUserID: excludeUserID,
	}, jobqueue.EnqueueOptions{})
	if err != nil {
		return "", fmt.Errorf("enqueue batch for trip %s: %w", tripID, err)
	}

	s.logger.Info("trip fan-out enqueued",
		zap.String("trip_id", tripID),
		zap.String("type", notifType),
		zap.String("job_id", jobID))
	return jobID, nil
}

// SendInvitation enqueues one invitation message for delivery.
func (s *NotificationService) SendInvitation(ctx context.Context, address, message string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", domain.ErrInvalidUserID
	}
	jobID, err := s.queue.Enqueue(ctx, notify.QueueInvitationSend, notify.DeliverPayload{
		Address: address,
		Message: message,
	}, jobqueue.EnqueueOptions{})
	if err != nil {
		return "", fmt.Errorf("enqueue invitation: %w", err)
	}
	return jobID, nil
}

// List returns a user's notifications with total and unread counts.
func (s *NotificationService) List(ctx context.Context, userID string, f domain.NotificationFilter) ([]*domain.Notification, int, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, 0, domain.ErrInvalidUserID
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return s.notifications.List(ctx, userID, f)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string, tripID *string) (int, error) {
	return s.notifications.UnreadCount(ctx, userID, tripID)
}

// MarkRead marks one of the user's notifications read. Already-read rows are
// a no-op, unknown IDs return domain.ErrNotFound.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	return s.notifications.MarkRead(ctx, notificationID, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string, tripID *string) error {
	return s.notifications.MarkAllRead(ctx, userID, tripID)
}

// GetPreferences returns the stored row or category defaults when absent.
func (s *NotificationService) GetPreferences(ctx context.Context, userID, tripID string) (domain.Preferences, error) {
	return s.notifications.GetPreferences(ctx, userID, tripID)
}

func (s *NotificationService) UpdatePreferences(ctx context.Context, userID, tripID string, p domain.Preferences) error {
	if _, err := s.trips.GetTrip(ctx, tripID); err != nil {
		return err
	}
	return s.notifications.UpsertPreferences(ctx, userID, tripID, p)
}
