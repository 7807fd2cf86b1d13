package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const headerEvent = "X-Energy-Gauge-Event"

// Alert is a severity band change of one card.
type Alert struct {
	Event     string    `json:"event"`
	CardID    string    `json:"card_id"`
	Card      string    `json:"card"`
	Gauge     string    `json:"gauge"`
	Previous  string    `json:"previous_band"`
	Current   string    `json:"current_band"`
	Value     float64   `json:"value"`
	Formatted string    `json:"formatted"`
	Unit      string    `json:"unit,omitempty"`
	Window    string    `json:"window,omitempty"`
	At        time.Time `json:"at"`
	Message   string    `json:"message"`
}

// Channel delivers alerts.
type Channel interface {
	Send(ctx context.Context, alert Alert) error
}

// WebhookChannel posts alerts as JSON to an HTTP endpoint.
type WebhookChannel struct {
	endpoint string
	client   *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewWebhookChannel posts to endpoint with a 10s timeout by default.
func NewWebhookChannel(endpoint string, opts ...WebhookOption) (*WebhookChannel, error) {
	if endpoint == "" {
		return nil, errors.New("webhook: empty endpoint")
	}
	channel := &WebhookChannel{endpoint: endpoint, client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the alert and treats any non-2xx status as a failure.
func (w *WebhookChannel) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("webhook: encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, alert.Event)
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s alert for %s: %w", alert.Event, alert.CardID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s alert for %s rejected with status %d", alert.Event, alert.CardID, resp.StatusCode)
	}
	return nil
}
