package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/provider/resilience"
)

// WebhookProviderName identifies the relay in the resilience registry.
const WebhookProviderName = "alert-webhook"

// NewWebhookClient returns the HTTP client for the alert relay. It keeps the
// circuit breaker but never retries: a failed alert is not sent again within
// the same refresh pass, and a relay that fails after sending must not mail
// the user twice.
func NewWebhookClient(registry *resilience.Registry, logger zerolog.Logger) *resilience.Client {
	cfg := resilience.DefaultClientConfig(WebhookProviderName)
	cfg.MaxRetries = 0
	cfg.Registry = registry
	cfg.Logger = logger
	return resilience.NewClient(cfg)
}

// WebhookConfig holds configuration for a WebhookDispatcher.
type WebhookConfig struct {
	// URL receives a POST with the alert event as JSON.
	URL string

	// Token, when set, is sent as a bearer token.
	Token string

	HTTPClient resilience.Doer
}

// WebhookDispatcher relays alerts to an HTTP endpoint that sends them on.
type WebhookDispatcher struct {
	url    string
	token  string
	client resilience.Doer
}

// NewWebhookDispatcher creates a webhook dispatcher.
func NewWebhookDispatcher(cfg WebhookConfig) *WebhookDispatcher {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookDispatcher{url: cfg.URL, token: cfg.Token, client: client}
}

// Dispatch implements Dispatcher.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a.Event())
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &resilience.StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

var _ Dispatcher = (*WebhookDispatcher)(nil)
