package sessionstore

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

type sqliteSessionStore struct {
	*baseSessionStore
	db *sql.DB
}

// NewWithSqliteStore returns a durable session store backed by the sessions table.
// The table must already exist, see database.RunSqliteMigrations.
func NewWithSqliteStore(sqlDB *sql.DB, logger *slog.Logger, opts ...Option) *sqliteSessionStore {
	s := &sqliteSessionStore{
		baseSessionStore: newBase(logger, opts...),
		db:               sqlDB,
	}
	s.startCleanupWorker(s)
	return s
}

func (s *sqliteSessionStore) Create(ctx context.Context, identity models.Identity, ipAddress, userAgent *string) (*models.Session, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "create session")()

	if err := s.checkCtx(ctx, "creation"); err != nil {
		return nil, err
	}

	session, err := s.newSession(identity, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, username, email, created_at, expires_at, ip_address, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		identity.ID.String(),
		identity.Username,
		db.NullString(identity.Email),
		db.ToUnixMilli(session.CreatedAt),
		db.ToUnixMilli(session.ExpiresAt),
		db.NullString(ipAddress),
		db.NullString(userAgent),
	)
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to create session",
			models.NewTransientStoreError(err))
	}

	// round-trip precision matches what Get will return
	session.CreatedAt = db.FromUnixMilli(db.ToUnixMilli(session.CreatedAt))
	session.ExpiresAt = db.FromUnixMilli(db.ToUnixMilli(session.ExpiresAt))
	return session, nil
}

func (s *sqliteSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, &SessionExpiredError{}
	}
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "get session", "session", logutil.SessionRef(sessionID))()

	if err := s.checkCtx(ctx, "get"); err != nil {
		return nil, err
	}

	var (
		session   models.Session
		accountID string
		email     sql.NullString
		createdAt int64
		expiresAt int64
		ip        sql.NullString
		ua        sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, username, email, created_at, expires_at, ip_address, user_agent
		 FROM sessions WHERE id = ?`, sessionID,
	).Scan(&session.ID, &accountID, &session.Identity.Username, &email, &createdAt, &expiresAt, &ip, &ua)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SessionExpiredError{ID: sessionID}
	}
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to get session",
			models.NewTransientStoreError(err))
	}

	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to get session",
			models.NewTransientStoreError(err))
	}
	session.Identity.ID = id
	session.Identity.Email = db.StringPtr(email)
	session.CreatedAt = db.FromUnixMilli(createdAt)
	session.ExpiresAt = db.FromUnixMilli(expiresAt)
	session.IPAddress = db.StringPtr(ip)
	session.UserAgent = db.StringPtr(ua)

	if session.IsExpired(s.now()) {
		if err := s.Delete(ctx, sessionID); err != nil {
			s.log.Warn("failed to remove expired session", "err", err)
		}
		return nil, &SessionExpiredError{ID: sessionID}
	}

	return &session, nil
}

func (s *sqliteSessionStore) Delete(ctx context.Context, sessionID string) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "delete session", "session", logutil.SessionRef(sessionID))()

	if err := s.checkCtx(ctx, "delete"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to delete session",
			models.NewTransientStoreError(err))
	}
	return nil
}

func (s *sqliteSessionStore) CleanupExpired(ctx context.Context) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed sql query", "method", "cleanup expired sessions")()

	if err := s.checkCtx(ctx, "cleanup"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, db.ToUnixMilli(s.now()))
	if err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to cleanup expired sessions",
			models.NewTransientStoreError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("deleted expired sessions", "count", n)
	}
	return nil
}

func (s *sqliteSessionStore) Close() error {
	s.stop()
	return nil
}
