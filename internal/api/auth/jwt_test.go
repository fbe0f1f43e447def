package auth

import (
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!")

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateToken("watchctl", ScopeWrite, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "watchctl" {
		t.Errorf("Subject = %q, want watchctl", claims.Subject)
	}
	if claims.Scope != ScopeWrite {
		t.Errorf("Scope = %q, want write", claims.Scope)
	}
	if claims.ExpiresAt == nil {
		t.Error("ExpiresAt not set for token with ttl")
	}
}

func TestJWTService_NoExpiry(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateToken("grafana", ScopeRead, 0)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(10 * 365 * 24 * time.Hour) }
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", claims.ExpiresAt)
	}
}

func TestJWTService_GenerateErrors(t *testing.T) {
	svc := NewJWTService(testSecret)

	tests := []struct {
		name    string
		subject string
		scope   Scope
		errMsg  string
	}{
		{"missing subject", "", ScopeRead, "subject is required"},
		{"unknown scope", "ci", Scope("admin"), "scope must be"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GenerateToken(tc.subject, tc.scope, time.Hour)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tc.errMsg)
			}
		})
	}
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt-token"},
		{"wrong-segments", "a.b"},
		{"invalid-signature", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJ0ZXN0In0.invalid"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tc.token); err == nil {
				t.Error("expected error for invalid token")
			}
		})
	}
}

func TestJWTService_DifferentSecret(t *testing.T) {
	svc1 := NewJWTService([]byte("secret-one-32-bytes-long!!!!!!!"))
	svc2 := NewJWTService([]byte("secret-two-32-bytes-long!!!!!!!"))

	token, err := svc1.GenerateToken("ci", ScopeRead, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := svc2.ValidateToken(token); err == nil {
		t.Error("expected error validating token with different secret")
	}
}

func TestJWTService_WrongIssuer(t *testing.T) {
	other := NewJWTService(testSecret)
	other.issuer = "someone-else"

	token, err := other.GenerateToken("ci", ScopeRead, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := NewJWTService(testSecret).ValidateToken(token); err == nil {
		t.Error("expected error for foreign issuer")
	}
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc := NewJWTService(testSecret)
	issued := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	token, err := svc.GenerateToken("ci", ScopeRead, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestScope_Allows(t *testing.T) {
	tests := []struct {
		have, need Scope
		want       bool
	}{
		{ScopeWrite, ScopeWrite, true},
		{ScopeWrite, ScopeRead, true},
		{ScopeRead, ScopeRead, true},
		{ScopeRead, ScopeWrite, false},
		{Scope(""), ScopeRead, false},
	}

	for _, tc := range tests {
		if got := tc.have.Allows(tc.need); got != tc.want {
			t.Errorf("%q.Allows(%q) = %v, want %v", tc.have, tc.need, got, tc.want)
		}
	}
}
