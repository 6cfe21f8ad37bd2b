package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
)

// Config carries the queue tuning knobs. The retry numbers are deployment
// configuration, not constants; DefaultConfig holds the values the system
// ships with.
type Config struct {
	RetryLimit         int
	RetryDelay         time.Duration
	RetryBackoff       bool
	ExpireIn           time.Duration
	RetainFor          time.Duration
	BatchRetainFor     time.Duration
	DeliverConcurrency int
	EventReminderCron  string
	DailyItineraryCron string
}

func DefaultConfig() Config {
	return Config{
		RetryLimit:         3,
		RetryDelay:         10 * time.Second,
		RetryBackoff:       true,
		ExpireIn:           5 * time.Minute,
		RetainFor:          7 * 24 * time.Hour,
		BatchRetainFor:     time.Hour,
		DeliverConcurrency: 3,
		EventReminderCron:  DefaultEventReminderCron,
		DailyItineraryCron: DefaultDailyItineraryCron,
	}
}

// Workers bundles the handlers Register wires onto the queue client.
type Workers struct {
	Batch            *BatchWorker
	EventReminders   *EventReminderScanner
	DailyItineraries *DailyItineraryScanner
	Deliver          *DeliverWorker
	DeadLetter       *DeadLetterWorker
}

// Register creates every queue, wires the cron schedules, and registers the
// workers. Dead-letter queues are created before the queues that reference
// them.
func Register(ctx context.Context, client *jobqueue.Client, w Workers, cfg Config) error {
	dlqPolicy := jobqueue.Policy{
		ExpireIn:  cfg.ExpireIn,
		RetainFor: cfg.RetainFor,
	}
	deliverPolicy := jobqueue.Policy{
		RetryLimit:   cfg.RetryLimit,
		RetryDelay:   cfg.RetryDelay,
		RetryBackoff: cfg.RetryBackoff,
		ExpireIn:     cfg.ExpireIn,
		RetainFor:    cfg.RetainFor,
		DeadLetter:   QueueNotificationDeliverDLQ,
	}
	invitePolicy := deliverPolicy
	invitePolicy.DeadLetter = QueueInvitationSendDLQ
	batchPolicy := jobqueue.Policy{
		RetryLimit:   cfg.RetryLimit,
		RetryDelay:   cfg.RetryDelay,
		RetryBackoff: cfg.RetryBackoff,
		ExpireIn:     cfg.ExpireIn,
		RetainFor:    cfg.BatchRetainFor,
		DeadLetter:   QueueNotificationBatchDLQ,
	}
	// Scanner failures need no dead-letter target: the next cron tick
	// re-runs the scan from scratch.
	cronPolicy := jobqueue.Policy{
		ExpireIn:  cfg.ExpireIn,
		RetainFor: cfg.BatchRetainFor,
	}

	queues := []struct {
		name   string
		policy jobqueue.Policy
	}{
		{QueueNotificationDeliverDLQ, dlqPolicy},
		{QueueNotificationDeliver, deliverPolicy},
		{QueueInvitationSendDLQ, dlqPolicy},
		{QueueInvitationSend, invitePolicy},
		{QueueNotificationBatchDLQ, dlqPolicy},
		{QueueNotificationBatch, batchPolicy},
		{QueueEventReminders, cronPolicy},
		{QueueDailyItineraries, cronPolicy},
	}
	for _, q := range queues {
		if err := client.CreateQueue(ctx, q.name, q.policy); err != nil {
			return fmt.Errorf("create queue %s: %w", q.name, err)
		}
	}

	if err := client.Schedule(QueueEventReminders, cfg.EventReminderCron); err != nil {
		return fmt.Errorf("schedule event reminders: %w", err)
	}
	if err := client.Schedule(QueueDailyItineraries, cfg.DailyItineraryCron); err != nil {
		return fmt.Errorf("schedule daily itineraries: %w", err)
	}

	registrations := []struct {
		queue   string
		opts    jobqueue.WorkOptions
		handler jobqueue.Handler
	}{
		{QueueNotificationDeliver, jobqueue.WorkOptions{Concurrency: cfg.DeliverConcurrency}, w.Deliver.Handle},
		{QueueInvitationSend, jobqueue.WorkOptions{Concurrency: cfg.DeliverConcurrency}, w.Deliver.Handle},
		{QueueNotificationBatch, jobqueue.WorkOptions{}, w.Batch.Handle},
		{QueueEventReminders, jobqueue.WorkOptions{PollInterval: time.Minute}, w.EventReminders.Handle},
		{QueueDailyItineraries, jobqueue.WorkOptions{PollInterval: time.Minute}, w.DailyItineraries.Handle},
		{QueueNotificationDeliverDLQ, jobqueue.WorkOptions{}, w.DeadLetter.Handle},
		{QueueInvitationSendDLQ, jobqueue.WorkOptions{}, w.DeadLetter.Handle},
		{QueueNotificationBatchDLQ, jobqueue.WorkOptions{}, w.DeadLetter.Handle},
	}
	for _, r := range registrations {
		if err := client.Work(r.queue, r.opts, r.handler); err != nil {
			return fmt.Errorf("register worker for %s: %w", r.queue, err)
		}
	}
	return nil
}
