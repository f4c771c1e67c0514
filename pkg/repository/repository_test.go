package repository_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/emissary/pkg/repository"
)

var (
	errNotFound = errors.New("not found")
	errConflict = errors.New("conflict")
)

func TestMapError(t *testing.T) {
	other := errors.New("connection reset")
	fk := &pgconn.PgError{Code: "23503"}

	tests := []struct {
		name     string
		err      error
		conflict error
		want     error
	}{
		{"nil", nil, errConflict, nil},
		{"no rows", sql.ErrNoRows, errConflict, errNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errConflict, errConflict},
		{"unique violation without conflict sentinel", &pgconn.PgError{Code: "23505"}, nil, nil},
		{"foreign key passes through", fk, errConflict, fk},
		{"other passes through", other, errConflict, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repository.MapError(tt.err, errNotFound, tt.conflict)
			if tt.name == "unique violation without conflict sentinel" {
				var pgErr *pgconn.PgError
				if !errors.As(got, &pgErr) {
					t.Errorf("MapError = %v, want the original PgError", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("MapError = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !repository.IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("23505 should be a unique violation")
	}
	if repository.IsUniqueViolation(sql.ErrNoRows) {
		t.Error("ErrNoRows is not a unique violation")
	}
}
