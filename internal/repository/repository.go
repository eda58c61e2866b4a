package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a unique constraint. The
	// unique keys in this schema are the idempotency guards, so callers treat
	// this as "already exists / already in flight", not as a fault.
	ErrDuplicate = errors.New("duplicate")
	// ErrAlreadyProcessed is returned when a delivery's processed_at was set
	// by an earlier attempt. processed_at is write-once.
	ErrAlreadyProcessed = errors.New("delivery already processed")
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
