package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WebhookConfig holds custom webhook configuration.
type WebhookConfig struct {
	URL     string            // Endpoint receiving the rendered message
	Method  string            // POST (default), PUT or PATCH
	Headers map[string]string // Extra request headers
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid webhook URL %q", c.URL)
	}
	switch strings.ToUpper(c.Method) {
	case "", http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fmt.Errorf("unsupported webhook method %q", c.Method)
	}
	return nil
}

// WebhookNotifier sends the rendered message body as is to a custom endpoint.
type WebhookNotifier struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookNotifier creates a new custom webhook notifier.
func NewWebhookNotifier(config WebhookConfig) (*WebhookNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	config.Method = strings.ToUpper(config.Method)

	return &WebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Type returns "webhook".
func (w *WebhookNotifier) Type() string {
	return "webhook"
}

// Send delivers msg.Body. The message id is taken from an "id" field of a JSON
// response when present.
func (w *WebhookNotifier) Send(ctx context.Context, msg Message) (string, error) {
	req, err := http.NewRequestWithContext(ctx, w.config.Method, w.config.URL, strings.NewReader(msg.Body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, truncate(string(bytes.TrimSpace(body)), 1024))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.ID != "" {
		return parsed.ID, nil
	}
	return uuid.New().String(), nil
}

// Close is a no-op for webhook notifier.
func (w *WebhookNotifier) Close() error {
	return nil
}
