package repository

import (
	"context"
	"sync"
	"time"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
)

// MockTripRepository is a hand-written, in-memory implementation of
// TripRepository for unit tests. Trips, events and members are seeded by
// tests through the exported helpers.
type MockTripRepository struct {
	mu      sync.RWMutex
	trips   map[string]*domain.Trip
	events  map[string][]*domain.Event // by trip ID
	members map[string][]mockMember

	GetErr error
}

type mockMember struct {
	recipient domain.Recipient
	status    domain.RSVPStatus
}

func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips:   make(map[string]*domain.Trip),
		events:  make(map[string][]*domain.Event),
		members: make(map[string][]mockMember),
	}
}

func (m *MockTripRepository) AddTrip(t *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *t
	m.trips[t.ID] = &clone
}

func (m *MockTripRepository) AddEvent(e *domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *e
	m.events[e.TripID] = append(m.events[e.TripID], &clone)
}

func (m *MockTripRepository) AddMember(tripID string, r domain.Recipient, status domain.RSVPStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[tripID] = append(m.members[tripID], mockMember{recipient: r, status: status})
}

func (m *MockTripRepository) GetTrip(_ context.Context, tripID string) (*domain.Trip, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trips[tripID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (m *MockTripRepository) ActiveTrips(_ context.Context) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Trip
	for _, t := range m.trips {
		if t.Cancelled {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockTripRepository) TripNames(_ context.Context, tripIDs []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make(map[string]string)
	for _, id := range tripIDs {
		if t, ok := m.trips[id]; ok {
			names[id] = t.Name
		}
	}
	return names, nil
}

func (m *MockTripRepository) EventsStartingBetween(_ context.Context, from, to time.Time) ([]*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Event
	for _, events := range m.events {
		for _, e := range events {
			if e.DeletedAt != nil || e.AllDay {
				continue
			}
			if e.StartTime.Before(from) || e.StartTime.After(to) {
				continue
			}
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *MockTripRepository) TripEvents(_ context.Context, tripID string) ([]*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Event
	for _, e := range m.events[tripID] {
		if e.DeletedAt != nil {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	sortEventsByStart(out)
	return out, nil
}

func (m *MockTripRepository) GoingMembers(_ context.Context, tripID string) ([]domain.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Recipient
	for _, mem := range m.members[tripID] {
		if mem.status == domain.StatusGoing {
			out = append(out, mem.recipient)
		}
	}
	return out, nil
}

func sortEventsByStart(events []*domain.Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].StartTime.Before(events[j-1].StartTime); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

var _ TripRepository = (*MockTripRepository)(nil)
