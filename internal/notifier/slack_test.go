package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSlackConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  SlackConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  SlackConfig{},
			wantErr: true,
			errMsg:  "webhook URL is required",
		},
		{
			name:    "http URL rejected",
			config:  SlackConfig{WebhookURL: "http://hooks.slack.com/services/xxx"},
			wantErr: true,
			errMsg:  "webhook URL must use HTTPS",
		},
		{
			name:   "valid config",
			config: SlackConfig{WebhookURL: "https://hooks.slack.com/services/T00/B00/xxx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSlackNotifierType(t *testing.T) {
	n := &SlackNotifier{}
	if got := n.Type(); got != "slack" {
		t.Errorf("Type() = %q, want %q", got, "slack")
	}
	if err := n.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestSlackNotifierSend(t *testing.T) {
	var received slackMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	n := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	id, err := n.Send(context.Background(), Message{Subject: "Checkout errors", Body: "*42* errors in 5m"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id == "" {
		t.Error("Send() returned empty message id")
	}

	if received.Text != "Checkout errors" {
		t.Errorf("fallback text = %q, want subject", received.Text)
	}
	if len(received.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(received.Blocks))
	}
	if received.Blocks[0].Type != "header" || received.Blocks[0].Text.Text != "Checkout errors" {
		t.Errorf("header block = %+v", received.Blocks[0])
	}
	if received.Blocks[1].Text.Type != "mrkdwn" || received.Blocks[1].Text.Text != "*42* errors in 5m" {
		t.Errorf("section block = %+v", received.Blocks[1].Text)
	}
	if received.Blocks[2].Type != "context" {
		t.Errorf("last block type = %q, want context", received.Blocks[2].Type)
	}
}

func TestBuildSlackPayload_NoSubject(t *testing.T) {
	payload := buildSlackPayload(Message{Body: strings.Repeat("x", slackSectionLimit+100)})

	if len(payload.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(payload.Blocks))
	}
	if payload.Blocks[0].Type != "section" {
		t.Errorf("first block = %q, want section", payload.Blocks[0].Type)
	}
	if got := len(payload.Blocks[0].Text.Text); got != slackSectionLimit {
		t.Errorf("section length = %d, want %d", got, slackSectionLimit)
	}
	if !strings.HasSuffix(payload.Text, "...") {
		t.Error("fallback text was not truncated")
	}
}

func TestSlackNotifierHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	n := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	_, err := n.Send(context.Background(), Message{Body: "x"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status 403") || !strings.Contains(err.Error(), "invalid_token") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestSlackNotifierContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := n.Send(ctx, Message{Body: "x"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is longer", 10, "this is..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}
