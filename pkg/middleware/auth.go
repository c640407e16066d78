package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tickethub/tickethub/pkg/auth"
	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/response"
)

// ErrUnauthenticated means the request carried no usable bearer token.
var ErrUnauthenticated = errors.New("unauthenticated")

type claimsKey struct{}

// Verifier checks a bearer token. *auth.Codec satisfies it.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// errMissingBearer is wrapped in ErrUnauthenticated when the header is
// absent or not a bearer credential.
var errMissingBearer = errors.New("missing bearer token")

// Authenticate verifies the request's bearer token. Every failure wraps
// ErrUnauthenticated; a verifier failure also wraps the verifier's error.
func Authenticate(v Verifier, r *http.Request) (*auth.Claims, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, errMissingBearer)
	}
	claims, err := v.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return claims, nil
}

// Auth rejects requests without a valid "Authorization: Bearer <token>"
// header with 401 and stores the verified claims in the request context.
// It never mutates anything.
func Auth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Authenticate(v, r)
			switch {
			case errors.Is(err, errMissingBearer):
				response.Unauthorized(w, "Unauthorized")
				return
			case err != nil:
				logger.WithCtx(r.Context()).Debug("bearer token rejected", "error", err)
				response.Unauthorized(w, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromCtx returns the claims stored by Auth.
func ClaimsFromCtx(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok && c != nil
}

func UserIDFromCtx(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromCtx(ctx)
	if !ok {
		return "", false
	}
	return c.UserID, true
}

func RoleFromCtx(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromCtx(ctx)
	if !ok {
		return "", false
	}
	return c.Role, true
}
