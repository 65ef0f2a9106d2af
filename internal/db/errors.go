package db

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// pgUniqueViolation is the SQLSTATE postgres reports for a unique index collision.
const pgUniqueViolation = pq.ErrorCode("23505")

// DuplicateKeyError represents a database unique constraint violation.
// Field is for logging only and must not be surfaced to clients.
type DuplicateKeyError struct {
	Field string // The column (sqlite) or constraint (postgres) that caused the violation
	err   error  // The underlying database error
}

func (e *DuplicateKeyError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("duplicate key violation: %s already exists", e.Field)
	}
	return "duplicate key violation"
}

// Unwrap returns the underlying error for error chain support
func (e *DuplicateKeyError) Unwrap() error {
	return e.err
}

// NewDuplicateKeyError creates a new DuplicateKeyError
func NewDuplicateKeyError(field string, err error) error {
	return &DuplicateKeyError{
		Field: field,
		err:   err,
	}
}

// WrapErrorIfDuplicateConstraint reports whether err is a unique constraint
// violation from sqlite or postgres. When it is, the returned error is a
// *DuplicateKeyError wrapping err, otherwise err is returned unchanged.
func WrapErrorIfDuplicateConstraint(err error) (bool, error) {
	var sqliteErr sqlite3.Error
	var pqErr *pq.Error
	switch {
	case errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return true, NewDuplicateKeyError(extractViolatedFieldFromSQLite(err), err)
	case errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation:
		return true, NewDuplicateKeyError(pqErr.Constraint, err)
	default:
		return false, err
	}
}

// A pre-compiled regex to find the column name from a SQLite unique constraint error.
// It looks for the pattern "table.column" at the end of the error string.
var sqliteUniqueConstraintRegex = regexp.MustCompile(`UNIQUE constraint failed: \w+\.(\w+)`)

func extractViolatedFieldFromSQLite(err error) string {
	// e.g., ["UNIQUE constraint failed: accounts.email", "email"]
	matches := sqliteUniqueConstraintRegex.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		return matches[1]
	}
	return "unknown"
}
