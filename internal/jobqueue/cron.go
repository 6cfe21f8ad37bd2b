package jobqueue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// runCron evaluates registered schedules on a coarse tick. Each fire
// enqueues an empty-payload job whose singleton key is bucketed to the
// fire's minute, so a tick observed twice (or by two scheduler processes)
// still yields exactly one job. Correctness under overlap comes from the
// key, not from any lock.
func (c *Client) runCron(ctx context.Context) {
	c.mu.Lock()
	n := len(c.schedules)
	c.mu.Unlock()
	if n == 0 {
		return
	}

	ticker := time.NewTicker(c.opts.CronTick)
	defer ticker.Stop()

	c.logger.Info("cron runner started", zap.Int("schedules", n))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cron runner stopping")
			return
		case now := <-ticker.C:
			c.fireDue(ctx, now)
		}
	}
}

func (c *Client) fireDue(ctx context.Context, now time.Time) {
	c.mu.Lock()
	schedules := c.schedules
	c.mu.Unlock()

	for _, s := range schedules {
		for !s.next.After(now) {
			key := CronSingletonKey(s.queue, s.next)
			if _, err := c.Enqueue(ctx, s.queue, nil, EnqueueOptions{SingletonKey: key}); err != nil {
				c.logger.Error("cron enqueue failed",
					zap.String("queue", s.queue), zap.Error(err))
			}
			s.next = s.sched.Next(s.next)
		}
	}
}

// CronSingletonKey buckets a fire time to its minute. Exported because the
// bucketing is part of the queue's duplicate-suppression contract.
func CronSingletonKey(queue string, fireAt time.Time) string {
	return fmt.Sprintf("cron:%s:%d", queue, fireAt.Truncate(time.Minute).Unix())
}
