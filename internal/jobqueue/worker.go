package jobqueue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// runWorker is one worker slot: lease one job, process it, repeat. When the
// queue is empty it sleeps for the poll interval instead of spinning.
func (c *Client) runWorker(ctx context.Context, reg *registration, slot int) {
	log := c.logger.With(zap.String("queue", reg.queue), zap.Int("slot", slot))
	log.Info("worker started")

	for {
		if ctx.Err() != nil {
			log.Info("worker stopping")
			return
		}

		job, err := c.store.Lease(ctx, reg.queue)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping")
				return
			}
			log.Error("lease error", zap.Error(err))
			if !sleep(ctx, reg.pollInterval) {
				return
			}
			continue
		}

		if job == nil {
			if !sleep(ctx, reg.pollInterval) {
				log.Info("worker stopping")
				return
			}
			continue
		}

		c.process(ctx, reg, job)
	}
}

// process runs the handler under the job's attempt window. The deadline
// mirrors the lease expiry: a handler that overruns is failed the same way
// as one that returns an error.
func (c *Client) process(ctx context.Context, reg *registration, job *Job) {
	start := time.Now()
	log := c.logger.With(zap.String("queue", job.Queue), zap.String("job_id", job.ID))

	expireIn := job.ExpireIn
	if expireIn <= 0 {
		expireIn = time.Minute
	}
	hctx, cancel := context.WithTimeout(ctx, expireIn)
	err := invoke(hctx, reg.handler, job)
	cancel()

	if err != nil {
		log.Warn("handler failed", zap.Error(err), zap.Int("retry_count", job.RetryCount))
		c.failJob(ctx, job)
		return
	}

	if err := c.store.Complete(ctx, job.ID); err != nil {
		// The lease will expire and the job will be retried; at-least-once,
		// not exactly-once.
		log.Error("failed to complete job", zap.Error(err))
		return
	}
	c.hooks.OnCompleted(job.Queue, time.Since(start))
}

// invoke shields the worker slot from handler panics, converting them into
// ordinary failures so a malformed payload exhausts retries instead of
// crash-looping the process.
func invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// runMaintenance periodically fails jobs whose lease expired and deletes
// completed jobs past their retention window.
func (c *Client) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(c.opts.MaintenanceInterval)
	defer ticker.Stop()

	c.logger.Info("maintenance loop started", zap.Duration("interval", c.opts.MaintenanceInterval))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("maintenance loop stopping")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Client) sweep(ctx context.Context) {
	expired, err := c.store.ListExpired(ctx)
	if err != nil {
		c.logger.Error("expiry sweep error", zap.Error(err))
	}
	for _, job := range expired {
		c.logger.Warn("job lease expired",
			zap.String("queue", job.Queue), zap.String("job_id", job.ID))
		c.failJob(ctx, job)
	}

	deleted, err := c.store.DeleteExpired(ctx)
	if err != nil {
		c.logger.Error("retention sweep error", zap.Error(err))
		return
	}
	if deleted > 0 {
		c.logger.Debug("deleted retained jobs", zap.Int64("count", deleted))
	}
}

// sleep waits for d or until ctx is cancelled; reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
