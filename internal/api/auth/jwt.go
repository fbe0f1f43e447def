// Package auth issues and validates the service tokens that guard the API.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
)

// Scope is the permission carried by a token.
type Scope string

const (
	// ScopeRead allows listing and reading monitors and alerts.
	ScopeRead Scope = "read"
	// ScopeWrite additionally allows changing monitors, executing them and acknowledging alerts.
	ScopeWrite Scope = "write"
)

// ParseScope converts a string to a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeRead, ScopeWrite:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("scope must be %q or %q", ScopeRead, ScopeWrite)
	}
}

// Allows reports whether s grants required.
func (s Scope) Allows(required Scope) bool {
	switch s {
	case ScopeWrite:
		return true
	case ScopeRead:
		return required == ScopeRead
	default:
		return false
	}
}

// Claims represents the JWT claims of a service token.
type Claims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope"`
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(secret []byte) *JWTService {
	return &JWTService{
		secret: secret,
		issuer: "blazewatch",
		now:    time.Now,
	}
}

// GenerateToken creates a signed token for subject. A zero ttl issues a token that
// does not expire.
func (s *JWTService) GenerateToken(subject string, scope Scope, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if _, err := ParseScope(string(scope)); err != nil {
		return "", err
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Scope: scope,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	metrics.AuthTokensIssued.Inc()
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	if _, err := ParseScope(string(claims.Scope)); err != nil {
		return nil, fmt.Errorf("invalid token scope: %w", err)
	}
	return claims, nil
}
