package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/chefsplan/backend/internal/models"
)

type contextKey string

const ctxAddressKey contextKey = "address"

// TokenValidator resolves a bearer token to the address it was issued for.
type TokenValidator interface {
	Validate(token string) (models.Address, error)
}

// AddressAuth authenticates requests by validating the Bearer token and
// putting the subject address into the request context.
func AddressAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			addr, err := tokens.Validate(raw)
			if err != nil || addr.IsZero() {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAddress(r.Context(), addr)))
		})
	}
}

// AdminAuth admits only requests whose Bearer token matches the configured
// bcrypt hash, and runs them as the admin address.
func AdminAuth(tokenHash string, admin models.Address) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			if tokenHash == "" || bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(raw)) != nil {
				http.Error(w, `{"error":"invalid admin token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAddress(r.Context(), admin)))
		})
	}
}

// AddressFromCtx returns the authenticated address, or the zero address.
func AddressFromCtx(ctx context.Context) models.Address {
	addr, _ := ctx.Value(ctxAddressKey).(models.Address)
	return addr
}

// WithAddress returns a context carrying the given address.
func WithAddress(ctx context.Context, addr models.Address) context.Context {
	return context.WithValue(ctx, ctxAddressKey, addr)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
