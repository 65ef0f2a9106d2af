package authstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/internal/db"
	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/google/uuid"
)

const sqliteAccountColumns = `id, username, email, password_hash, created_at, last_login_ip, last_location`

type sqliteAuthStore struct {
	db  *sql.DB
	log *slog.Logger
}

func (s *sqliteAuthStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteAuthStore) CreateAccount(ctx context.Context, args models.CreateAccountParams) (*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "CreateAccount")()
	errMsg := "failed to create account"

	acct := &models.Account{
		//generate UUID manually for sqlite
		ID:           uuid.New(),
		Username:     args.Username,
		PasswordHash: args.PasswordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	email := db.NullString(args.Email)
	acct.Email = db.StringPtr(email)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		acct.ID.String(), acct.Username, email, acct.PasswordHash, db.ToUnixMilli(acct.CreatedAt),
	)
	if err != nil {
		if dup, dupErr := db.WrapErrorIfDuplicateConstraint(err); dup {
			// the colliding field is logged but never surfaced
			s.log.Info("rejected duplicate account", "err", dupErr)
			return nil, models.NewDuplicateError()
		}
		return nil, logutil.LogAndWrapErr(s.log, errMsg,
			models.NewTransientStoreError(err))
	}
	return acct, nil
}

func (s *sqliteAuthStore) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "GetAccountByUsername")()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE username = ?`, username)
	return s.scanOne(row, "failed to get account by username")
}

func (s *sqliteAuthStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "GetAccountByID", "ID", id.String())()

	if id == uuid.Nil {
		return nil, models.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ?`, id.String())
	return s.scanOne(row, "failed to get account by id")
}

func (s *sqliteAuthStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, ip, location string) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "UpdateLastLogin", "ID", id.String())()
	errMsg := "failed to update last login"

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_login_ip = ?, last_location = ? WHERE id = ?`,
		ip, location, id.String())
	if err != nil {
		return logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return logutil.DebugAndWrapErr(s.log, errMsg, models.ErrNotFound)
	}
	return nil
}

func (s *sqliteAuthStore) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "ListAccounts")()
	errMsg := "failed to list accounts"

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acct, err := scanSqliteAccount(rows)
		if err != nil {
			return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	return accounts, nil
}

func (s *sqliteAuthStore) scanOne(row *sql.Row, errMsg string) (*models.Account, error) {
	acct, err := scanSqliteAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, logutil.DebugAndWrapErr(s.log, errMsg, models.ErrNotFound)
	}
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	return acct, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSqliteAccount(row rowScanner) (*models.Account, error) {
	var (
		acct      models.Account
		id        string
		email     sql.NullString
		createdAt int64
		lastIP    sql.NullString
		lastLoc   sql.NullString
	)
	if err := row.Scan(&id, &acct.Username, &email, &acct.PasswordHash, &createdAt, &lastIP, &lastLoc); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid account id %q: %w", id, err)
	}
	acct.ID = parsed
	acct.Email = db.StringPtr(email)
	acct.CreatedAt = db.FromUnixMilli(createdAt)
	acct.LastLoginIP = db.StringPtr(lastIP)
	acct.LastLocation = db.StringPtr(lastLoc)
	return &acct, nil
}
