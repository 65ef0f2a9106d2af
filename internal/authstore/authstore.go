package authstore

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/google/uuid"
)

func NewWithSqliteStore(db *sql.DB, logger *slog.Logger) *sqliteAuthStore {
	return &sqliteAuthStore{
		db:  db,
		log: logger,
	}
}

func NewWithPostgresStore(db *sql.DB, logger *slog.Logger) *postgresAuthStore {
	return &postgresAuthStore{
		db:  db,
		log: logger,
	}
}

// Store defines a unified interface for interacting with the account datastore.
// It abstracts storage-specific implementations (SQLite, Postgres) behind consistent
// operations used by services.
//
// All methods must return meaningful error types as defined in the models package:
// DuplicateError on unique violations, ErrNotFound on empty lookups and
// TransientStoreError for everything else.
type Store interface {
	// Ping checks the datastore is reachable.
	Ping(ctx context.Context) error

	// CreateAccount inserts a new account. Uniqueness of username and email is
	// enforced by the database, a collision on either yields a DuplicateError
	// that does not say which one.
	CreateAccount(ctx context.Context, args models.CreateAccountParams) (*models.Account, error)

	// GetAccountByUsername retrieves an account by exact, case-sensitive username.
	// Returns ErrNotFound if no account matches.
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)

	// GetAccountByID retrieves an account by its UUID.
	// Returns ErrNotFound if no account matches.
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)

	// UpdateLastLogin records the ip and resolved location of the most recent login.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, ip, location string) error

	// ListAccounts returns all accounts ordered by username.
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}
