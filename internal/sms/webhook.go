package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender delivers messages by POSTing to an SMS gateway endpoint.
// The base URL is injected from config so tests can point to a local mock.
type WebhookSender struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookSender(baseURL string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the message to the gateway and treats any 2xx status as
// accepted. Non-2xx responses surface as errors so the job is retried.
func (s *WebhookSender) Send(ctx context.Context, address, message string) error {
	body, err := json.Marshal(SendRequest{
		Address: address,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected gateway status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check that WebhookSender implements Sender
var _ Sender = (*WebhookSender)(nil)
