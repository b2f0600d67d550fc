package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Every product, document, webhook endpoint
// and import job is scoped to the user that created it.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore persists users.
type UserStore struct {
	db DBTX
}

// NewUserStore creates a UserStore backed by db.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user. Returns ErrDuplicateEmail if the email is
// already registered (case-insensitive).
func (s *UserStore) Create(ctx context.Context, name, email, passwordHash string) (*User, error) {
	u := &User{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, password_hash, created_at`,
		name, email, passwordHash,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetByEmail looks a user up by email, case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)`,
		email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err, "get user by email")
	}
	return u, nil
}

// GetByID looks a user up by id.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u := &User{}
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err, "get user by id")
	}
	return u, nil
}
