package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chris-hendrix/tripful-sub006/internal/domain"
)

// MockNotificationRepository is a hand-written, in-memory implementation of
// NotificationRepository used in unit tests. Its deduped insert reproduces
// the conflict-safe marker semantics of the pg implementation, so
// concurrency tests exercise the same convergence behaviour.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	notifications []*domain.Notification
	markers       map[string]bool // type|referenceID|userID
	preferences   map[string]domain.Preferences

	// Optional error overrides; set in tests to simulate failure paths.
	CreateErr      error
	PreferencesErr error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		markers:     make(map[string]bool),
		preferences: make(map[string]domain.Preferences),
	}
}

func markerKey(notifType, referenceID, userID string) string {
	return notifType + "|" + referenceID + "|" + userID
}

func prefKey(tripID, userID string) string {
	return tripID + "|" + userID
}

// SetPreferences seeds a stored preference row; test helper.
func (m *MockNotificationRepository) SetPreferences(tripID, userID string, p domain.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[prefKey(tripID, userID)] = p
}

// SetMarker seeds an existing dedup marker; test helper.
func (m *MockNotificationRepository) SetMarker(notifType, referenceID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[markerKey(notifType, referenceID, userID)] = true
}

// Notifications returns a copy of every stored notification; test helper.
func (m *MockNotificationRepository) Notifications() []*domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		clone := *n
		out = append(out, &clone)
	}
	return out
}

func (m *MockNotificationRepository) CreateBatch(_ context.Context, notifications []*domain.Notification) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(notifications)
	return nil
}

func (m *MockNotificationRepository) CreateBatchDeduped(_ context.Context, notifType, referenceID string, notifications []*domain.Notification) ([]string, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var winners []string
	var won []*domain.Notification
	for _, n := range notifications {
		key := markerKey(notifType, referenceID, n.UserID)
		if m.markers[key] {
			continue
		}
		m.markers[key] = true
		winners = append(winners, n.UserID)
		won = append(won, n)
	}
	m.store(won)
	return winners, nil
}

func (m *MockNotificationRepository) ExistingMarkers(_ context.Context, notifType, referenceID string, userIDs []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	marked := make(map[string]bool)
	for _, userID := range userIDs {
		if m.markers[markerKey(notifType, referenceID, userID)] {
			marked[userID] = true
		}
	}
	return marked, nil
}

func (m *MockNotificationRepository) PreferencesFor(_ context.Context, tripID string, userIDs []string) (map[string]domain.Preferences, error) {
	if m.PreferencesErr != nil {
		return nil, m.PreferencesErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefs := make(map[string]domain.Preferences)
	for _, userID := range userIDs {
		if p, ok := m.preferences[prefKey(tripID, userID)]; ok {
			prefs[userID] = p
		}
	}
	return prefs, nil
}

func (m *MockNotificationRepository) List(_ context.Context, userID string, f domain.NotificationFilter) ([]*domain.Notification, int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []*domain.Notification
	unread := 0
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if f.TripID != nil && (n.TripID == nil || *n.TripID != *f.TripID) {
			continue
		}
		if n.ReadAt == nil {
			unread++
		}
		if f.UnreadOnly && n.ReadAt != nil {
			continue
		}
		clone := *n
		items = append(items, &clone)
	}
	return items, len(items), unread, nil
}

func (m *MockNotificationRepository) UnreadCount(_ context.Context, userID string, tripID *string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, notif := range m.notifications {
		if notif.UserID != userID || notif.ReadAt != nil {
			continue
		}
		if tripID != nil && (notif.TripID == nil || *notif.TripID != *tripID) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MockNotificationRepository) MarkRead(_ context.Context, notificationID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		if n.ID == notificationID && n.UserID == userID {
			if n.ReadAt == nil {
				now := time.Now().UTC()
				n.ReadAt = &now
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockNotificationRepository) MarkAllRead(_ context.Context, userID string, tripID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, n := range m.notifications {
		if n.UserID != userID || n.ReadAt != nil {
			continue
		}
		if tripID != nil && (n.TripID == nil || *n.TripID != *tripID) {
			continue
		}
		n.ReadAt = &now
	}
	return nil
}

func (m *MockNotificationRepository) GetPreferences(_ context.Context, userID, tripID string) (domain.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.preferences[prefKey(tripID, userID)]; ok {
		return p, nil
	}
	return domain.DefaultPreferences(), nil
}

func (m *MockNotificationRepository) UpsertPreferences(_ context.Context, userID, tripID string, p domain.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[prefKey(tripID, userID)] = p
	return nil
}

func (m *MockNotificationRepository) store(notifications []*domain.Notification) {
	now := time.Now().UTC()
	for _, n := range notifications {
		clone := *n
		if clone.ID == "" {
			clone.ID = uuid.New().String()
		}
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		m.notifications = append(m.notifications, &clone)
	}
}

// compile-time check
var _ NotificationRepository = (*MockNotificationRepository)(nil)
