package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSlotConflict means a concurrent commit reserved an overlapping span
// between generation and commit. Retryable: the caller regenerates slots and
// picks again.
var ErrSlotConflict = errors.New("slot conflict")

// ErrNotFound is the repository-boundary mapping of pgx.ErrNoRows.
var ErrNotFound = errors.New("not found")

// exclusionViolation is SQLSTATE 23P01, raised when an insert collides with
// the gist exclusion constraint over a host's reserved spans.
func exclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
