// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

// TokenVerifier checks a bearer token and returns the user it belongs to.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// UserSource resolves a verified user ID to an account.
type UserSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// Auth returns middleware that requires a valid bearer token belonging
// to an existing account. The token is read from the Authorization
// header, or from a `token` query parameter for clients that cannot set
// headers (EventSource). A token whose user has since been deleted is
// rejected the same as a bad signature.
func Auth(tokens TokenVerifier, users UserSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing token")
				return
			}

			userID, err := tokens.Verify(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			if _, err := users.GetByID(r.Context(), userID); err != nil {
				unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user from the request context, or
// uuid.Nil outside an authenticated route.
func UserID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
