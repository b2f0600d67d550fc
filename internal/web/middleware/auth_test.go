package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
)

type staticVerifier struct {
	token string
	user  uuid.UUID
}

func (v staticVerifier) Verify(token string) (uuid.UUID, error) {
	if token != v.token {
		return uuid.Nil, errors.New("bad token")
	}
	return v.user, nil
}

type staticUsers struct {
	known map[uuid.UUID]bool
}

func (u staticUsers) GetByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	if !u.known[id] {
		return nil, store.ErrNotFound
	}
	return &store.User{ID: id}, nil
}

func TestAuth(t *testing.T) {
	user := uuid.New()
	verifier := staticVerifier{token: "good-token", user: user}
	users := staticUsers{known: map[uuid.UUID]bool{user: true}}

	var gotUser uuid.UUID
	handler := Auth(verifier, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{name: "bearer header", header: "Bearer good-token", wantStatus: http.StatusOK},
		{name: "query token", query: "good-token", wantStatus: http.StatusOK},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: "good-token", wantStatus: http.StatusUnauthorized},
		{name: "header wins over query", header: "Bearer nope", query: "good-token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = uuid.Nil

			url := "/protected"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotUser != user {
				t.Errorf("UserID = %s, want %s", gotUser, user)
			}
		})
	}
}

// A valid token must stop working once its account is gone.
func TestAuthRejectsDeletedUser(t *testing.T) {
	user := uuid.New()
	verifier := staticVerifier{token: "good-token", user: user}
	users := staticUsers{known: map[uuid.UUID]bool{}}

	called := false
	handler := Auth(verifier, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler ran for a token with no backing user")
	}
}

func TestUserIDOutsideAuthedRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := UserID(req.Context()); got != uuid.Nil {
		t.Errorf("UserID = %s, want Nil", got)
	}
}
