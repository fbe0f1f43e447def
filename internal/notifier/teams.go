package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TeamsConfig holds Microsoft Teams webhook configuration.
type TeamsConfig struct {
	WebhookURL string // Teams incoming webhook URL
}

// Validate validates the Teams configuration.
func (c *TeamsConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// TeamsNotifier posts messages to Microsoft Teams as Adaptive Cards.
type TeamsNotifier struct {
	config     TeamsConfig
	httpClient *http.Client
}

// NewTeamsNotifier creates a new Teams notifier.
func NewTeamsNotifier(config TeamsConfig) (*TeamsNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid teams config: %w", err)
	}

	return &TeamsNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Type returns "teams".
func (t *TeamsNotifier) Type() string {
	return "teams"
}

// Send posts msg to Microsoft Teams. Workflow webhooks answer 202 Accepted.
func (t *TeamsNotifier) Send(ctx context.Context, msg Message) (string, error) {
	jsonData, err := json.Marshal(buildTeamsPayload(msg))
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("teams API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return uuid.New().String(), nil
}

// Close is a no-op for Teams notifier.
func (t *TeamsNotifier) Close() error {
	return nil
}

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

// teamsAttachment represents an attachment in the Teams message.
type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

// adaptiveCard represents a Microsoft Adaptive Card.
type adaptiveCard struct {
	Schema  string      `json:"$schema"`
	Type    string      `json:"type"`
	Version string      `json:"version"`
	Body    []textBlock `json:"body"`
}

type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

func buildTeamsPayload(msg Message) teamsMessage {
	var body []textBlock
	if msg.Subject != "" {
		body = append(body, textBlock{
			Type:   "TextBlock",
			Text:   msg.Subject,
			Size:   "Large",
			Weight: "Bolder",
			Wrap:   true,
		})
	}
	body = append(body,
		textBlock{Type: "TextBlock", Text: msg.Body, Wrap: true},
		textBlock{Type: "TextBlock", Text: "_Sent by BlazeWatch_", Color: "light", Wrap: true},
	)

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}
