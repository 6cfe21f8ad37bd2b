package jobqueue

import "time"

// State tracks the lifecycle of a job.
//
// available -> active -> completed
//                     -> available (retry, with backoff)
//                     -> failed (retries exhausted; payload forwarded to the
//                        queue's dead-letter queue when one is configured)
type State string

const (
	StateAvailable State = "available"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Policy is the per-queue processing contract, set once at CreateQueue.
type Policy struct {
	// RetryLimit is the number of retries after the first attempt.
	RetryLimit int
	// RetryDelay is the base delay before a retry becomes available again.
	RetryDelay time.Duration
	// RetryBackoff doubles the delay on every attempt when true.
	RetryBackoff bool
	// ExpireIn bounds a single attempt: a leased job not acknowledged within
	// this window is treated exactly like a handler failure.
	ExpireIn time.Duration
	// RetainFor controls how long completed and failed rows are kept before
	// the maintenance loop deletes them.
	RetainFor time.Duration
	// DeadLetter names the queue that receives the payload of a job whose
	// retries are exhausted. Empty means the job is simply marked failed.
	DeadLetter string
}

// Job is one unit of queued work. Payload is raw JSON; nil for the
// empty-payload jobs produced by cron schedules.
type Job struct {
	ID           string
	Queue        string
	Payload      []byte
	State        State
	SingletonKey *string
	RetryCount   int
	StartAfter   time.Time
	StartedAt    *time.Time
	ExpireIn     time.Duration
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// EnqueueOptions tunes a single enqueue call.
type EnqueueOptions struct {
	// SingletonKey collapses duplicate enqueue attempts: while a live
	// (available or active) job with the same key exists on the queue, new
	// attempts merge into it instead of creating a second job.
	SingletonKey string
	// StartAfter delays visibility. Zero means immediately.
	StartAfter time.Time
	// ExpireIn overrides the queue policy's attempt window when positive.
	ExpireIn time.Duration
}
