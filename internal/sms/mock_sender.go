package sms

import (
	"context"
	"sync"
)

// SentMessage is one captured Send call.
type SentMessage struct {
	Address string
	Message string
}

// MockSender records outbound messages in memory for assertions.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage

	// SendErr, when set, is returned from every Send call.
	SendErr error
	// SendFunc, when set, overrides Send entirely.
	SendFunc func(ctx context.Context, address, message string) error
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(ctx context.Context, address, message string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, address, message)
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{Address: address, Message: message})
	return nil
}

// Sent returns a copy of every recorded message.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ Sender = (*MockSender)(nil)
