package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
)

// DeadLetterWorker is the terminal consumer for every dead-letter queue. It
// records the failure for operator inspection and nothing else. It must
// never return an error: a dead-letter queue has no dead-letter queue of its
// own, so any payload shape, including a missing one, degrades to "log and
// continue".
type DeadLetterWorker struct {
	failures repository.DeadLetterRepository
	logger   *zap.Logger
}

func NewDeadLetterWorker(failures repository.DeadLetterRepository, logger *zap.Logger) *DeadLetterWorker {
	return &DeadLetterWorker{failures: failures, logger: logger}
}

func (w *DeadLetterWorker) Handle(ctx context.Context, job *jobqueue.Job) error {
	if err := w.failures.RecordFailure(ctx, job.Queue, job.ID, job.Payload); err != nil {
		w.logger.Error("failed to record dead-lettered job",
			zap.String("queue", job.Queue),
			zap.String("job_id", job.ID),
			zap.Error(err))
		return nil
	}

	w.logger.Warn("dead-lettered job recorded",
		zap.String("queue", job.Queue),
		zap.String("job_id", job.ID),
		zap.Int("payload_bytes", len(job.Payload)))
	return nil
}
