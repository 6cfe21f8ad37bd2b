package jobqueue

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownQueue is returned when a handler or enqueue targets a queue that
// was never created on this client.
var ErrUnknownQueue = errors.New("unknown queue")

// Store defines the persistence primitives behind the queue client. The pgx
// implementation is in pg_store.go; tests use the in-memory memStore, which
// implements the same lease and singleton semantics.
//
// Retry, dead-letter, and scheduling decisions live in the Client; the Store
// only moves rows between states.
type Store interface {
	// CreateQueue registers a queue. Calling it again with the same name is
	// a no-op; the original policy wins.
	CreateQueue(ctx context.Context, name string, p Policy) error

	// Enqueue inserts one job. When opts.SingletonKey matches a live job on
	// the queue the insert is silently merged and the existing job's ID is
	// returned (empty if it completed concurrently).
	Enqueue(ctx context.Context, queue string, payload []byte, expireIn time.Duration, opts EnqueueOptions) (string, error)

	// EnqueueBatch bulk-inserts jobs with no singleton keys in one statement.
	EnqueueBatch(ctx context.Context, queue string, payloads [][]byte, expireIn time.Duration) error

	// Lease grants exclusive ownership of one available job whose
	// start_after has passed, or returns (nil, nil) when the queue is empty.
	// A leased job is never handed to a second caller.
	Lease(ctx context.Context, queue string) (*Job, error)

	// Complete marks a leased job done.
	Complete(ctx context.Context, jobID string) error

	// Retry returns a leased job to the available state with an incremented
	// retry count, visible again at startAfter.
	Retry(ctx context.Context, jobID string, startAfter time.Time) error

	// MarkFailed terminally fails a job without dead-lettering.
	MarkFailed(ctx context.Context, jobID string) error

	// DeadLetter atomically fails the job and re-enqueues its original
	// payload on the target queue.
	DeadLetter(ctx context.Context, jobID, targetQueue string, targetExpireIn time.Duration) error

	// ListExpired returns active jobs whose lease window has elapsed.
	ListExpired(ctx context.Context) ([]*Job, error)

	// DeleteExpired removes completed and failed jobs past their queue's
	// retention window, returning the number deleted.
	DeleteExpired(ctx context.Context) (int64, error)

	// Depth counts live (available + active) jobs on a queue.
	Depth(ctx context.Context, queue string) (int64, error)
}
