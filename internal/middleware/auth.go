// Package middleware provides HTTP middlewares for authentication,
// request logging and metrics.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/atinyakov/NikahPrep/internal/auth"
)

type ctxKey string

const (
	userKey   ctxKey = "user"
	emailKey  ctxKey = "email"
	holderKey ctxKey = "user-holder"
)

// userHolder lets outer middlewares see the user authenticated further in.
type userHolder struct {
	userID string
}

func withHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

// TokenValidator checks access tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// BearerAuth is a middleware that requires a valid access token.
//
// The token is read from the "Authorization: Bearer <token>" header. GET
// requests may pass it as the access_token query parameter instead, since
// browser EventSource connections cannot set headers.
//
// On success the user id and email from the token are stored in the
// request context. Missing or invalid tokens get 401 Unauthorized.
func BearerAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, auth.ErrMissingToken.Error(), http.StatusUnauthorized)
				return
			}
			claims, err := v.Validate(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
				return
			}
			if h, ok := r.Context().Value(holderKey).(*userHolder); ok {
				h.userID = claims.UserID
			}
			ctx := context.WithValue(r.Context(), userKey, claims.UserID)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// WithUserID returns a copy of ctx carrying userID, as BearerAuth does.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// GetUserIDFromContext extracts the authenticated user ID from the request
// context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// GetEmailFromContext extracts the authenticated user's email.
func GetEmailFromContext(ctx context.Context) string {
	s, _ := ctx.Value(emailKey).(string)
	return s
}
