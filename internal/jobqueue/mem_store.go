package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is a hand-written, in-memory Store used in unit tests. It mirrors
// the pg implementation's semantics: singleton merge against live jobs,
// exclusive leases, and retention-based cleanup. No mock-generation library
// needed.
type MemStore struct {
	mu     sync.Mutex
	queues map[string]Policy
	jobs   map[string]*Job
	seq    int // preserves insertion order for lease ordering
	order  map[string]int
}

func NewMemStore() *MemStore {
	return &MemStore{
		queues: make(map[string]Policy),
		jobs:   make(map[string]*Job),
		order:  make(map[string]int),
	}
}

func (m *MemStore) CreateQueue(_ context.Context, name string, p Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[name]; ok {
		return nil
	}
	m.queues[name] = p
	return nil
}

func (m *MemStore) Enqueue(_ context.Context, queue string, payload []byte, expireIn time.Duration, opts EnqueueOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.SingletonKey != "" {
		for _, j := range m.jobs {
			if j.Queue == queue && j.SingletonKey != nil && *j.SingletonKey == opts.SingletonKey &&
				(j.State == StateAvailable || j.State == StateActive) {
				return j.ID, nil
			}
		}
	}

	startAfter := opts.StartAfter
	if startAfter.IsZero() {
		startAfter = time.Now().UTC()
	}

	j := &Job{
		ID:         uuid.New().String(),
		Queue:      queue,
		Payload:    payload,
		State:      StateAvailable,
		RetryCount: 0,
		StartAfter: startAfter,
		ExpireIn:   expireIn,
		CreatedAt:  time.Now().UTC(),
	}
	if opts.SingletonKey != "" {
		key := opts.SingletonKey
		j.SingletonKey = &key
	}
	m.insert(j)
	return j.ID, nil
}

func (m *MemStore) EnqueueBatch(_ context.Context, queue string, payloads [][]byte, expireIn time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range payloads {
		m.insert(&Job{
			ID:         uuid.New().String(),
			Queue:      queue,
			Payload:    p,
			State:      StateAvailable,
			StartAfter: now,
			ExpireIn:   expireIn,
			CreatedAt:  now,
		})
	}
	return nil
}

func (m *MemStore) Lease(_ context.Context, queue string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var best *Job
	for _, j := range m.jobs {
		if j.Queue != queue || j.State != StateAvailable || j.StartAfter.After(now) {
			continue
		}
		if best == nil || m.order[j.ID] < m.order[best.ID] {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	started := now
	best.State = StateActive
	best.StartedAt = &started
	clone := *best
	return &clone, nil
}

func (m *MemStore) Complete(_ context.Context, jobID string) error {
	return m.finish(jobID, StateCompleted)
}

func (m *MemStore) Retry(_ context.Context, jobID string, startAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		j.State = StateAvailable
		j.RetryCount++
		j.StartedAt = nil
		j.StartAfter = startAfter
	}
	return nil
}

func (m *MemStore) MarkFailed(_ context.Context, jobID string) error {
	return m.finish(jobID, StateFailed)
}

func (m *MemStore) DeadLetter(_ context.Context, jobID, targetQueue string, targetExpireIn time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	j.State = StateFailed
	j.CompletedAt = &now

	m.insert(&Job{
		ID:         uuid.New().String(),
		Queue:      targetQueue,
		Payload:    j.Payload,
		State:      StateAvailable,
		StartAfter: now,
		ExpireIn:   targetExpireIn,
		CreatedAt:  now,
	})
	return nil
}

func (m *MemStore) ListExpired(_ context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var expired []*Job
	for _, j := range m.jobs {
		if j.State == StateActive && j.StartedAt != nil && j.StartedAt.Add(j.ExpireIn).Before(now) {
			clone := *j
			expired = append(expired, &clone)
		}
	}
	return expired, nil
}

func (m *MemStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var deleted int64
	for id, j := range m.jobs {
		if j.State != StateCompleted && j.State != StateFailed {
			continue
		}
		retain := m.queues[j.Queue].RetainFor
		if j.CompletedAt != nil && j.CompletedAt.Add(retain).Before(now) {
			delete(m.jobs, id)
			delete(m.order, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemStore) Depth(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, j := range m.jobs {
		if j.Queue == queue && (j.State == StateAvailable || j.State == StateActive) {
			n++
		}
	}
	return n, nil
}

// Snapshot returns copies of every stored job; test helper.
func (m *MemStore) Snapshot() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		clone := *j
		jobs = append(jobs, &clone)
	}
	return jobs
}

func (m *MemStore) insert(j *Job) {
	m.seq++
	m.order[j.ID] = m.seq
	m.jobs[j.ID] = j
}

func (m *MemStore) finish(jobID string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		now := time.Now().UTC()
		j.State = state
		j.CompletedAt = &now
	}
	return nil
}

// compile-time check that MemStore implements Store
var _ Store = (*MemStore)(nil)
