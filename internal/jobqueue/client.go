package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Handler processes one leased job. A nil return acknowledges the job; an
// error triggers the queue's retry policy. Handlers never implement their
// own retry loops.
type Handler func(ctx context.Context, job *Job) error

// WorkOptions tunes a registered handler.
type WorkOptions struct {
	// Concurrency is the number of worker slots for this queue inside this
	// process ("local concurrency"). Defaults to 1.
	Concurrency int
	// PollInterval overrides the client default for this queue.
	PollInterval time.Duration
}

// Hooks carries metric callbacks injected by main. Using a struct keeps the
// client constructor signature clean; nil fields are no-ops.
type Hooks struct {
	OnCompleted    func(queue string, latency time.Duration)
	OnFailed       func(queue string)
	OnDeadLettered func(queue string)
}

// Options holds client-wide timing knobs.
type Options struct {
	PollInterval        time.Duration // empty-queue sleep between leases
	MaintenanceInterval time.Duration // lease-expiry and retention sweep cadence
	CronTick            time.Duration // schedule evaluation cadence
}

type registration struct {
	queue        string
	concurrency  int
	pollInterval time.Duration
	handler      Handler
}

type schedule struct {
	queue string
	sched cron.Schedule
	next  time.Time
}

// Client is the durable queue: enqueue, cron scheduling, lease-and-process
// workers, retry/backoff, and dead-letter routing on one Store. It is
// constructed explicitly and passed to every producer and worker; there is
// no package-level instance.
type Client struct {
	store  Store
	logger *zap.Logger
	hooks  Hooks
	opts   Options

	mu            sync.Mutex
	policies      map[string]Policy
	registrations []*registration
	schedules     []*schedule

	wg sync.WaitGroup
}

func NewClient(store Store, logger *zap.Logger, hooks Hooks, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaintenanceInterval <= 0 {
		opts.MaintenanceInterval = 30 * time.Second
	}
	if opts.CronTick <= 0 {
		opts.CronTick = 15 * time.Second
	}
	if hooks.OnCompleted == nil {
		hooks.OnCompleted = func(string, time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func(string) {}
	}
	if hooks.OnDeadLettered == nil {
		hooks.OnDeadLettered = func(string) {}
	}
	return &Client{
		store:    store,
		logger:   logger,
		hooks:    hooks,
		opts:     opts,
		policies: make(map[string]Policy),
	}
}

// CreateQueue registers a queue with its processing policy. Idempotent: a
// second call with the same name keeps the original policy.
func (c *Client) CreateQueue(ctx context.Context, name string, p Policy) error {
	if err := c.store.CreateQueue(ctx, name, p); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.policies[name]; !ok {
		c.policies[name] = p
	}
	return nil
}

// Enqueue marshals payload to JSON and inserts one job. A nil payload
// produces an empty-payload job. Returns the job ID, which on a singleton
// merge is the ID of the already-live job.
func (c *Client) Enqueue(ctx context.Context, queue string, payload any, opts EnqueueOptions) (string, error) {
	policy, err := c.policy(queue)
	if err != nil {
		return "", err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshal payload for %s: %w", queue, err)
		}
	}

	expireIn := policy.ExpireIn
	if opts.ExpireIn > 0 {
		expireIn = opts.ExpireIn
	}
	return c.store.Enqueue(ctx, queue, body, expireIn, opts)
}

// EnqueueBatch inserts many jobs in a single store call.
func (c *Client) EnqueueBatch(ctx context.Context, queue string, payloads []any) error {
	if len(payloads) == 0 {
		return nil
	}
	policy, err := c.policy(queue)
	if err != nil {
		return err
	}

	bodies := make([][]byte, len(payloads))
	for i, p := range payloads {
		bodies[i], err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal payload %d for %s: %w", i, queue, err)
		}
	}
	return c.store.EnqueueBatch(ctx, queue, bodies, policy.ExpireIn)
}

// Schedule registers a recurring trigger: at each cron tick an empty-payload
// job is enqueued on the queue. The job carries a singleton key bucketed to
// the tick's minute, so duplicate ticks (or a second scheduler process)
// merge instead of double-enqueueing. Standard 5-field cron expressions.
func (c *Client) Schedule(queue, cronSpec string) error {
	if _, err := c.policy(queue); err != nil {
		return err
	}
	sched, err := cron.ParseStandard(cronSpec)
	if err != nil {
		return fmt.Errorf("parse cron %q for %s: %w", cronSpec, queue, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedules = append(c.schedules, &schedule{
		queue: queue,
		sched: sched,
		next:  sched.Next(time.Now()),
	})
	return nil
}

// Work registers a handler for a queue. Slots start on Start.
func (c *Client) Work(queue string, opts WorkOptions, h Handler) error {
	if _, err := c.policy(queue); err != nil {
		return err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = c.opts.PollInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations = append(c.registrations, &registration{
		queue:        queue,
		concurrency:  opts.Concurrency,
		pollInterval: opts.PollInterval,
		handler:      h,
	})
	return nil
}

// Start launches all worker slots, the cron runner, and the maintenance
// loop. Cancelling ctx stops everything; call Wait to drain in-flight jobs.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	regs := c.registrations
	c.mu.Unlock()

	for _, reg := range regs {
		for slot := 0; slot < reg.concurrency; slot++ {
			c.wg.Add(1)
			go func(reg *registration, slot int) {
				defer c.wg.Done()
				c.runWorker(ctx, reg, slot)
			}(reg, slot)
		}
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.runCron(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.runMaintenance(ctx)
	}()
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Depth counts live jobs on a queue; used by the metrics snapshot endpoint.
func (c *Client) Depth(ctx context.Context, queue string) (int64, error) {
	return c.store.Depth(ctx, queue)
}

// QueueNames returns every queue created on this client.
func (c *Client) QueueNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.policies))
	for name := range c.policies {
		names = append(names, name)
	}
	return names
}

func (c *Client) policy(queue string) (Policy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.policies[queue]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return p, nil
}

// failJob applies the queue policy to a failed attempt: schedule a retry
// with backoff while the budget lasts, otherwise route to the dead-letter
// queue (or terminally fail when none is configured).
func (c *Client) failJob(ctx context.Context, job *Job) {
	policy, err := c.policy(job.Queue)
	if err != nil {
		c.logger.Error("failed job on unregistered queue", zap.String("queue", job.Queue), zap.String("job_id", job.ID))
		return
	}

	c.hooks.OnFailed(job.Queue)

	if job.RetryCount < policy.RetryLimit {
		delay := retryDelay(policy, job.RetryCount)
		if err := c.store.Retry(ctx, job.ID, time.Now().UTC().Add(delay)); err != nil {
			c.logger.Error("failed to schedule retry",
				zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	if policy.DeadLetter == "" {
		if err := c.store.MarkFailed(ctx, job.ID); err != nil {
			c.logger.Error("failed to mark job failed",
				zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	target, err := c.policy(policy.DeadLetter)
	if err != nil {
		c.logger.Error("dead-letter queue not registered",
			zap.String("queue", job.Queue), zap.String("dead_letter", policy.DeadLetter))
		return
	}
	if err := c.store.DeadLetter(ctx, job.ID, policy.DeadLetter, target.ExpireIn); err != nil {
		c.logger.Error("failed to dead-letter job",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	c.hooks.OnDeadLettered(job.Queue)
	c.logger.Warn("job dead-lettered",
		zap.String("queue", job.Queue),
		zap.String("dead_letter", policy.DeadLetter),
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount))
}

// retryDelay computes the backoff before attempt retryCount+1.
// Fixed policy: always RetryDelay. Exponential: RetryDelay doubled per
// attempt, exponent clamped to keep the shift sane.
func retryDelay(p Policy, retryCount int) time.Duration {
	if !p.RetryBackoff {
		return p.RetryDelay
	}
	exp := retryCount
	if exp > 16 {
		exp = 16
	}
	return p.RetryDelay << uint(exp)
}
