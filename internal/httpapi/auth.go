package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates the bearer tokens that gate every
// route except /healthz and /metrics. Grounded on
// _examples/haasonsaas-nexus/internal/auth/jwt.go's sign/validate
// pair, scoped down to a single fixed subject since this server is
// local-first and single-user rather than multi-tenant.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// ErrAuthDisabled is returned when no secret is configured; callers
// should treat this as "auth not required" rather than a failure.
var ErrAuthDisabled = errors.New("httpapi: token auth disabled (no secret configured)")

// ErrInvalidToken is returned for a missing, malformed, or expired token.
var ErrInvalidToken = errors.New("httpapi: invalid or expired token")

const tokenSubject = "companion-local"

// NewTokenService builds a token service. An empty secret disables
// auth entirely (Middleware becomes a no-op), matching local
// single-user deployments that don't run behind a shared network.
func NewTokenService(secret string, expiry time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), expiry: expiry}
}

// Issue signs a new bearer token.
func (t *TokenService) Issue() (string, error) {
	if len(t.secret) == 0 {
		return "", ErrAuthDisabled
	}
	claims := jwt.RegisteredClaims{
		Subject:  tokenSubject,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if t.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(t.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *TokenService) validate(raw string) error {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != tokenSubject {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects requests lacking a valid "Authorization: Bearer
// <token>" header. It is a no-op when auth is disabled (zero-value
// secret), so a local single-user deployment need not configure one.
func (t *TokenService) Middleware(next http.Handler) http.Handler {
	if len(t.secret) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || t.validate(raw) != nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authedContextKey{}, true)))
	})
}

type authedContextKey struct{}
