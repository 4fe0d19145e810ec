package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookSender delivers events to remote URLs with HMAC signing and
// bounded retries.
type WebhookSender struct {
	client  *http.Client
	logger  zerolog.Logger
	backoff []time.Duration
}

// NewWebhookSender creates a sender with the default retry schedule.
func NewWebhookSender(logger zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With().Str("component", "webhooks").Logger(),
		backoff: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}
}

// webhookPayload is the wire format POSTed to subscribers.
type webhookPayload struct {
	EventName string         `json:"event_name"`
	Version   int            `json:"version"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// SignBody computes the hex HMAC-SHA256 of body under secret, as carried
// in the X-Sublarr-Signature header.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send delivers one event to the webhook. Failed deliveries are retried
// on network errors, 429 and 5xx responses; 4xx responses other than 429
// fail immediately.
func (w *WebhookSender) Send(ctx context.Context, webhook *Webhook, event Event) error {
	payload := webhookPayload{
		EventName: event.Name,
		Version:   event.Version,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(w.backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := w.deliver(ctx, webhook, event.Name, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		w.logger.Debug().
			Err(err).
			Int64("webhook_id", webhook.ID).
			Int("attempt", attempt+1).
			Msg("webhook delivery failed, will retry")
	}
	return fmt.Errorf("webhook delivery exhausted retries: %w", lastErr)
}

func (w *WebhookSender) deliver(ctx context.Context, webhook *Webhook, eventName string, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sublarr-Event", eventName)
	if webhook.Secret != "" {
		req.Header.Set("X-Sublarr-Signature", "sha256="+SignBody(webhook.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook responded %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
}
