package sms

import "context"

// Sender abstracts the outbound SMS gateway. Mocking this interface in
// tests gives full control over delivery behaviour without real HTTP calls.
type Sender interface {
	Send(ctx context.Context, address, message string) error
}

// SendRequest is the JSON body posted to the gateway.
type SendRequest struct {
	Address string `json:"address"`
	Message string `json:"message"`
}
