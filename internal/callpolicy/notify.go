package callpolicy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EventStopActivated is the event name of the trip notification.
const EventStopActivated = "global_call_stop_activated"

// WebhookTimeout bounds a single notification.
const WebhookTimeout = 5 * time.Second

// Alert is the payload sent when the stop trips.
type Alert struct {
	Event              string `json:"event"`
	Reason             string `json:"reason"`
	CallID             string `json:"call_id,omitempty"`
	ClientType         string `json:"client_type,omitempty"`
	ErrorCountInWindow int    `json:"error_count_in_window"`
}

// Notifier delivers trip alerts to an administrator.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// WebhookNotifier POSTs alerts as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier returns a notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: WebhookTimeout}}
}

// Notify implements [Notifier]. A response status of 400 or above is an
// error.
func (w *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("callpolicy: marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("callpolicy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("callpolicy: post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callpolicy: webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
