package repository

import (
	"context"
	"sync"
)

// RecordedFailure is one captured RecordFailure call.
type RecordedFailure struct {
	Queue   string
	JobID   string
	Payload []byte
}

// MockDeadLetterRepository records failures in memory for assertions.
type MockDeadLetterRepository struct {
	mu       sync.Mutex
	failures []RecordedFailure

	RecordErr error
}

func NewMockDeadLetterRepository() *MockDeadLetterRepository {
	return &MockDeadLetterRepository{}
}

func (m *MockDeadLetterRepository) RecordFailure(_ context.Context, queue, jobID string, payload []byte) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, RecordedFailure{Queue: queue, JobID: jobID, Payload: payload})
	return nil
}

// Failures returns a copy of everything recorded so far.
func (m *MockDeadLetterRepository) Failures() []RecordedFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedFailure, len(m.failures))
	copy(out, m.failures)
	return out
}

var _ DeadLetterRepository = (*MockDeadLetterRepository)(nil)
