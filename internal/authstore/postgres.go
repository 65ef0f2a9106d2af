package authstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/internal/db"
	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/google/uuid"
)

const postgresAccountColumns = `id, username, email, password_hash, created_at, last_login_ip, last_location`

type postgresAuthStore struct {
	db  *sql.DB
	log *slog.Logger
}

func (s *postgresAuthStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *postgresAuthStore) CreateAccount(ctx context.Context, args models.CreateAccountParams) (*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "CreateAccount")()
	errMsg := "failed to create account"

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+postgresAccountColumns,
		uuid.NewString(), args.Username, db.NullString(args.Email), args.PasswordHash,
	)

	acct, err := scanPostgresAccount(row)
	if err != nil {
		if dup, dupErr := db.WrapErrorIfDuplicateConstraint(err); dup {
			s.log.Info("rejected duplicate account", "err", dupErr)
			return nil, models.NewDuplicateError()
		}
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	return acct, nil
}

func (s *postgresAuthStore) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "GetAccountByUsername")()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+postgresAccountColumns+` FROM accounts WHERE username = $1`, username)
	return s.scanOne(row, "failed to get account by username")
}

func (s *postgresAuthStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "GetAccountByID", "ID", id.String())()

	if id == uuid.Nil {
		return nil, models.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+postgresAccountColumns+` FROM accounts WHERE id = $1`, id.String())
	return s.scanOne(row, "failed to get account by id")
}

func (s *postgresAuthStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, ip, location string) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "UpdateLastLogin", "ID", id.String())()
	errMsg := "failed to update last login"

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_login_ip = $1, last_location = $2 WHERE id = $3`,
		ip, location, id.String())
	if err != nil {
		return logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return logutil.DebugAndWrapErr(s.log, errMsg, models.ErrNotFound)
	}
	return nil
}

func (s *postgresAuthStore) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "ListAccounts")()
	errMsg := "failed to list accounts"

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postgresAccountColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acct, err := scanPostgresAccount(rows)
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

func (s *postgresAuthStore) scanOne(row *sql.Row, errMsg string) (*models.Account, error) {
	acct, err := scanPostgresAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, logutil.DebugAndWrapErr(s.log, errMsg, models.ErrNotFound)
	}
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, errMsg, models.NewTransientStoreError(err))
	}
	return acct, nil
}

func scanPostgresAccount(row rowScanner) (*models.Account, error) {
	var (
		acct    models.Account
		id      string
		email   sql.NullString
		lastIP  sql.NullString
		lastLoc sql.NullString
	)
	if err := row.Scan(&id, &acct.Username, &email, &acct.PasswordHash, &acct.CreatedAt, &lastIP, &lastLoc); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	acct.ID = parsed
	acct.Email = db.StringPtr(email)
	acct.LastLoginIP = db.StringPtr(lastIP)
	acct.LastLocation = db.StringPtr(lastLoc)
	return &acct, nil
}
