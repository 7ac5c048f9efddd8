package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/quatton/qpaper/pkg/qlog"
)

// TokenAudience is the audience every accepted token must carry.
const TokenAudience = "qpaper"

type ctxKey string

const principalKey ctxKey = "qpaper.principal"

// Principal is the verified caller of a request.
type Principal struct {
	Subject   string
	ExpiresAt time.Time
}

// AuthService verifies HS256 bearer tokens. With an empty secret every
// request is let through.
type AuthService struct {
	secret []byte
	log    *qlog.Logger
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret), log: qlog.NewDefault()}
}

// Enabled reports whether requests must carry a token.
func (s *AuthService) Enabled() bool {
	return len(s.secret) > 0
}

// IssueToken signs a token for subject that expires after ttl.
func (s *AuthService) IssueToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", errors.New("no auth secret configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{TokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken verifies the signature, expiry and audience of a token.
func (s *AuthService) ValidateToken(tokenString string) (*Principal, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithAudience(TokenAudience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	p := &Principal{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Middleware rejects unauthenticated calls to operations that declare a
// security requirement.
func (s *AuthService) Middleware(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !s.Enabled() || len(ctx.Operation().Security) == 0 {
			next(ctx)
			return
		}

		token, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
		if !ok || token == "" {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		p, err := s.ValidateToken(token)
		if err != nil {
			s.log.Warn("invalid token", "error", err)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Invalid token")
			return
		}

		s.log.Debug("authenticated request", "subject", p.Subject)
		next(huma.WithValue(ctx, principalKey, p))
	}
}

// PrincipalFrom returns the caller stored by the middleware.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
