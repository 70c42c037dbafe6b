package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports a unique-constraint failure from either driver.
// A non-empty constraint must also match: the constraint name on postgres,
// the "table.column" list on sqlite.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
	}

	msg := err.Error()
	var liteErr sqlite3.Error
	unique := errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	if !unique {
		unique = strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
	}
	return unique && (constraint == "" || strings.Contains(msg, constraint))
}
