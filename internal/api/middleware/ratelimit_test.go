package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_AllowBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("client") {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if rl.Allow("client") {
		t.Error("request after burst allowed, want denied")
	}
	if !rl.Allow("other") {
		t.Error("other client denied, want its own bucket")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	if rl.size() != 2 {
		t.Fatalf("size = %d, want 2", rl.size())
	}

	rl.cleanup(time.Now().Add(limiterIdleTTL + time.Second))
	if rl.size() != 0 {
		t.Errorf("size after cleanup = %d, want 0", rl.size())
	}
}

func TestRateLimitByClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	handler := RateLimitByClient(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(subject, remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if subject != "" {
			req = req.WithContext(context.WithValue(req.Context(), subjectKey, subject))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := do("ci", "10.0.0.1:1234"); got != http.StatusOK {
		t.Fatalf("first request status = %d", got)
	}
	if got := do("ci", "10.0.0.2:1234"); got != http.StatusTooManyRequests {
		t.Errorf("same subject from other IP status = %d, want 429", got)
	}
	if got := do("", "10.0.0.1:1234"); got != http.StatusOK {
		t.Errorf("anonymous request status = %d, want 200", got)
	}
	if got := do("", "10.0.0.1:5678"); got != http.StatusTooManyRequests {
		t.Errorf("anonymous repeat status = %d, want 429", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		xri    string
		remote string
		want   string
	}{
		{"remote addr", "", "", "192.0.2.1:4000", "192.0.2.1"},
		{"forwarded chain", "203.0.113.5, 10.0.0.1", "", "10.0.0.1:80", "203.0.113.5"},
		{"forwarded with port", "203.0.113.5:999", "", "10.0.0.1:80", "203.0.113.5"},
		{"real ip", "", "198.51.100.7", "10.0.0.1:80", "198.51.100.7"},
		{"remote without port", "", "", "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
