package rotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

// DefaultWebhookTimeout bounds the outbound call so an unresponsive
// endpoint cannot starve the dispatch loop.
const DefaultWebhookTimeout = 5 * time.Second

// WebhookClient fetches new secret values from rotation webhooks.
type WebhookClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhookClient creates a webhook client with the given hard timeout.
// A zero timeout selects DefaultWebhookTimeout.
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookClient{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// webhookRequest is the payload posted to the rotation endpoint.
type webhookRequest struct {
	SecretKey   string `json:"secret_key"`
	Environment string `json:"environment"`
	ProjectID   string `json:"project_id"`
}

// webhookResponse is the expected reply.
type webhookResponse struct {
	Value string `json:"value"`
}

// Fetch posts the secret's identity to the webhook and returns the new
// value from the response. Timeouts and non-2xx responses fail with
// ExternalCallError.
func (c *WebhookClient) Fetch(ctx context.Context, url, secretKey, environment, projectID string) (string, error) {
	payload, err := json.Marshal(webhookRequest{
		SecretKey:   secretKey,
		Environment: environment,
		ProjectID:   projectID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", kferrors.ExternalCallError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", kferrors.ExternalCallError{URL: url, StatusCode: resp.StatusCode}
	}

	var body webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", kferrors.ExternalCallError{URL: url, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if body.Value == "" {
		return "", kferrors.ExternalCallError{URL: url, Err: fmt.Errorf("response did not include a value")}
	}
	return body.Value, nil
}
