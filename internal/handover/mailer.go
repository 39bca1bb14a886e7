package handover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Mail is one outbound handover notification.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer dispatches handover notifications to a human agent.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LogMailer logs outbound mail instead of sending it. Used in development
// and as the fallback when no mail API is configured.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(_ context.Context, mail Mail) error {
	slog.Info("handover mail (not sent, no mail API configured)",
		"to", mail.To,
		"subject", mail.Subject)
	return nil
}

// HTTPMailer posts mail to a transactional mail API as JSON.
type HTTPMailer struct {
	Endpoint string
	APIKey   string
	From     string
	Client   *http.Client
}

// NewHTTPMailer creates a mailer against a transactional mail endpoint.
func NewHTTPMailer(endpoint, apiKey, from string) *HTTPMailer {
	return &HTTPMailer{
		Endpoint: endpoint,
		APIKey:   apiKey,
		From:     from,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send implements Mailer.
func (m *HTTPMailer) Send(ctx context.Context, mail Mail) error {
	payload, err := json.Marshal(map[string]string{
		"from":    m.From,
		"to":      mail.To,
		"subject": mail.Subject,
		"text":    mail.Body,
	})
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail API returned status %d", resp.StatusCode)
	}
	return nil
}
