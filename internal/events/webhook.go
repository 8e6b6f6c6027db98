package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebhookConfig holds configuration for webhook delivery.
type WebhookConfig struct {
	// Name is a human-readable name for this webhook.
	Name string

	// URL is the webhook endpoint URL.
	URL string

	// Headers are additional HTTP headers to include.
	Headers map[string]string

	// Events specifies which event types trigger delivery. If empty, all
	// events are sent.
	Events []string

	// Timeout for the HTTP request.
	Timeout time.Duration
}

// WebhookChannel delivers events via HTTP POST.
type WebhookChannel struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a webhook delivery channel.
func NewWebhookChannel(config WebhookConfig) (*WebhookChannel, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(config.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", config.URL)
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookChannel{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Name returns the channel name.
func (c *WebhookChannel) Name() string {
	if c.config.Name != "" {
		return "webhook:" + c.config.Name
	}
	return "webhook"
}

// Supports reports whether this channel handles the given event type.
func (c *WebhookChannel) Supports(eventType Type) bool {
	if len(c.config.Events) == 0 {
		return true
	}
	for _, e := range c.config.Events {
		if strings.EqualFold(e, string(eventType)) {
			return true
		}
	}
	return false
}

// Send posts one event as JSON.
func (c *WebhookChannel) Send(ctx context.Context, event Event) error {
	payload, err := buildPayload(event)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildPayload serializes the event. Secret values never appear here, only
// keys and ids.
func buildPayload(event Event) ([]byte, error) {
	payload := map[string]interface{}{
		"event":     string(event.Type),
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}
	if event.SecretKey != "" {
		payload["secret_key"] = event.SecretKey
	}
	if event.ScheduleID != "" {
		payload["schedule_id"] = event.ScheduleID
	}
	if event.ProjectID != "" {
		payload["project_id"] = event.ProjectID
	}
	if event.Environment != "" {
		payload["environment"] = event.Environment
	}
	if event.Actor != "" {
		payload["actor"] = event.Actor
	}
	if event.Duration > 0 {
		payload["duration_seconds"] = event.Duration.Seconds()
	}
	if event.Error != nil {
		payload["error"] = event.Error.Error()
	}
	if len(event.Metadata) > 0 {
		payload["metadata"] = event.Metadata
	}
	return json.Marshal(payload)
}
