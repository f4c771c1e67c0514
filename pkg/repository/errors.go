package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-key conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// MapError replaces sql.ErrNoRows with notFound and unique violations with
// conflict. Other errors pass through.
func MapError(err, notFound, conflict error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case conflict != nil && IsUniqueViolation(err):
		return conflict
	}
	return err
}
