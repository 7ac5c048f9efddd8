package services

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndValidateToken(t *testing.T) {
	auth := NewAuthService(testSecret)
	token, err := auth.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	p, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("Expected token to validate, got %v", err)
	}
	if p.Subject != "alice" {
		t.Errorf("Expected subject alice, got %s", p.Subject)
	}
	if time.Until(p.ExpiresAt) <= 0 {
		t.Errorf("Expected expiry in the future, got %v", p.ExpiresAt)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	auth := NewAuthService(testSecret)
	now := time.Now()

	sign := func(method jwt.SigningMethod, claims jwt.RegisteredClaims, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("Failed to sign: %v", err)
		}
		return s
	}

	tests := []struct {
		name  string
		token string
	}{
		{"expired", sign(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		}, []byte(testSecret))},
		{"wrong audience", sign(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{"someone-else"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, []byte(testSecret))},
		{"no expiry", sign(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:  "alice",
			Audience: jwt.ClaimStrings{TokenAudience},
		}, []byte(testSecret))},
		{"wrong secret", sign(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, []byte(strings.Repeat("y", 32)))},
		{"unsigned", sign(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, jwt.UnsafeAllowNoneSignatureType)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tt.token); err == nil {
				t.Error("Expected token to be rejected")
			}
		})
	}
}

func TestIssueTokenWithoutSecret(t *testing.T) {
	auth := NewAuthService("")
	if auth.Enabled() {
		t.Error("Expected auth to be disabled without a secret")
	}
	if _, err := auth.IssueToken("alice", time.Hour); err == nil {
		t.Error("Expected an error without a secret")
	}
}
