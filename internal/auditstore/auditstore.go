// Package auditstore persists the append-only login history.
package auditstore

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/Ryan-Har/authgate/pkg/models"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// Store records login events. Events are never updated or deleted.
type Store interface {
	// Record appends one login event. LoggedAt defaults to now when zero.
	Record(ctx context.Context, event models.LoginEvent) error

	// List returns the most recent events, newest first, with Username populated.
	List(ctx context.Context, limit int) ([]*models.LoginEvent, error)
}

func NewWithSqliteStore(db *sql.DB, logger *slog.Logger) *sqliteAuditStore {
	return &sqliteAuditStore{db: db, log: logger}
}

func NewWithPostgresStore(db *sql.DB, logger *slog.Logger) *postgresAuditStore {
	return &postgresAuditStore{db: db, log: logger}
}

func normaliseLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}
