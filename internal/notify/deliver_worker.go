package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/ratelimiter"
	"github.com/chris-hendrix/tripful-sub006/internal/sms"
)

// DeliverWorker consumes one {address, message} job and makes exactly one
// send attempt. It carries no business logic: a send failure surfaces as a
// handler error so the queue's retry policy applies, which means a retried
// job whose earlier attempt actually landed can send twice. That trade-off
// is accepted; the alternative is losing messages.
type DeliverWorker struct {
	sender  sms.Sender
	limiter *ratelimiter.Limiter
	logger  *zap.Logger
}

func NewDeliverWorker(sender sms.Sender, limiter *ratelimiter.Limiter, logger *zap.Logger) *DeliverWorker {
	return &DeliverWorker{sender: sender, limiter: limiter, logger: logger}
}

func (w *DeliverWorker) Handle(ctx context.Context, job *jobqueue.Job) error {
	var p DeliverPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal delivery payload: %w", err)
	}
	if p.Address == "" {
		return fmt.Errorf("delivery payload missing address")
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if err := w.sender.Send(ctx, p.Address, p.Message); err != nil {
		return fmt.Errorf("send to %s: %w", p.Address, err)
	}

	w.logger.Debug("message sent", zap.String("queue", job.Queue))
	return nil
}
