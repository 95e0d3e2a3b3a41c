package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vigilohq/agent/pkg/types"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookConfig holds the static configuration for a webhook sink.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookDependencies allow test overrides for the HTTP client and clock.
type WebhookDependencies struct {
	HTTPClient *http.Client
	Now        func() time.Time
}

// WebhookSink posts alerts as JSON envelopes to an HTTP endpoint.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
}

// webhookEnvelope is the wire form of one delivered alert.
type webhookEnvelope struct {
	SentAt time.Time   `json:"sent_at"`
	Alert  types.Alert `json:"alert"`
}

// NewWebhookSink builds a webhook sink from configuration and dependencies.
func NewWebhookSink(cfg WebhookConfig, deps WebhookDependencies) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultWebhookTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &WebhookSink{
		url:        cfg.URL,
		httpClient: httpClient,
		now:        now,
	}, nil
}

func (s *WebhookSink) Send(ctx context.Context, alert types.Alert) error {
	payload, err := json.Marshal(webhookEnvelope{
		SentAt: s.now().UTC(),
		Alert:  alert,
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
