// Package store provides pgx-backed repositories for users, products,
// webhook endpoints, documents and import jobs.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// ErrNotFound is returned when a row does not exist or belongs to another owner.
var ErrNotFound = errors.New("not found")

// ErrDuplicateSKU is returned when a product insert or update collides with
// an existing SKU for the same owner (case-insensitive).
var ErrDuplicateSKU = errors.New("product with this SKU already exists")

// ErrDuplicateEmail is returned when a user registration reuses an email.
var ErrDuplicateEmail = errors.New("email already registered")

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapNoRows converts pgx.ErrNoRows into ErrNotFound and wraps anything else.
func mapNoRows(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
