package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/database"
	"github.com/Ryan-Har/authgate/internal/auditstore"
	"github.com/Ryan-Har/authgate/internal/authstore"
	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/internal/sessionstore"
	"github.com/Ryan-Har/authgate/internal/tokenstore"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// Services holds the stores behind the auth service, built for one database
// type and one session backend.
type Services struct {
	db       *sql.DB
	logger   *slog.Logger
	Accounts authstore.Store
	Audit    auditstore.Store
	Session  sessionstore.Store
	Token    tokenstore.TokenStore // nil unless a signing secret was configured
	dbType   DBType
}

type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

type SessionBackend string

const (
	SessionBackendMemory SessionBackend = "memory"
	SessionBackendSqlite SessionBackend = "sqlite"
	SessionBackendRedis  SessionBackend = "redis"
	SessionBackendBadger SessionBackend = "badger"
)

// Config selects the backends. Redis and Badger are only read for their
// matching session backend and are owned by the caller.
type Config struct {
	DBType         DBType
	SessionBackend SessionBackend
	SessionOptions []sessionstore.Option
	Redis          redis.UniversalClient
	Badger         *badger.DB
	TokenSecret    string
	TokenOptions   []tokenstore.Option
}

// New initializes and returns a Services struct with the appropriate
// subcomponents based on the provided configuration.
//
// Params:
//   - db: a live database connection
//   - logger: a slog.Logger pointer instance used for logging
//   - cfg: the database type, session backend and optional token secret
//
// Example:
//
//	svc, err := New(db, logger, Config{DBType: DBTypeSQLite, SessionBackend: SessionBackendMemory})
func New(db *sql.DB, logger *slog.Logger, cfg Config) (*Services, error) {
	if db == nil {
		return nil, errors.New("services: database is required")
	}

	svc := &Services{
		db:     db,
		logger: logger,
		dbType: cfg.DBType,
	}

	switch cfg.DBType {
	case DBTypeSQLite:
		svc.Accounts = authstore.NewWithSqliteStore(db, logger)
		svc.Audit = auditstore.NewWithSqliteStore(db, logger)
	case DBTypePostgres:
		svc.Accounts = authstore.NewWithPostgresStore(db, logger)
		svc.Audit = auditstore.NewWithPostgresStore(db, logger)
	default:
		return nil, fmt.Errorf("services: unknown database type %q", cfg.DBType)
	}

	session, err := svc.newSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	svc.Session = session

	if cfg.TokenSecret != "" {
		tokens, err := tokenstore.New(logger, cfg.TokenSecret, cfg.TokenOptions...)
		if err != nil {
			svc.Session.Close()
			return nil, logutil.LogAndWrapErr(logger, "unable to create token store", err)
		}
		svc.Token = tokens
	}

	logger.Debug("services loaded", "dbType", cfg.DBType, "sessionBackend", cfg.SessionBackend, "tokens", svc.Token != nil)
	return svc, nil
}

func (s *Services) newSessionStore(cfg Config) (sessionstore.Store, error) {
	switch cfg.SessionBackend {
	case SessionBackendMemory, "":
		return sessionstore.NewInMemory(s.logger, cfg.SessionOptions...), nil
	case SessionBackendSqlite:
		if cfg.DBType != DBTypeSQLite {
			return nil, errors.New("services: sqlite session backend requires a sqlite database")
		}
		return sessionstore.NewWithSqliteStore(s.db, s.logger, cfg.SessionOptions...), nil
	case SessionBackendRedis:
		if cfg.Redis == nil {
			return nil, errors.New("services: redis session backend requires a redis client")
		}
		return sessionstore.NewWithRedisStore(cfg.Redis, s.logger, cfg.SessionOptions...), nil
	case SessionBackendBadger:
		if cfg.Badger == nil {
			return nil, errors.New("services: badger session backend requires a badger database")
		}
		return sessionstore.NewWithBadgerStore(cfg.Badger, s.logger, cfg.SessionOptions...), nil
	default:
		return nil, fmt.Errorf("services: unknown session backend %q", cfg.SessionBackend)
	}
}

// RunMigrations applies the schema for the configured database type.
func (s *Services) RunMigrations() error {
	defer logutil.NewTimingLogger(s.logger, time.Now(), "ran database migrations", "dbType", s.dbType)()
	switch s.dbType {
	case DBTypeSQLite:
		return database.RunSqliteMigrations(s.db)
	case DBTypePostgres:
		return database.RunPostgresMigrations(s.db)
	default:
		return errors.New("unknown database type")
	}
}

// Close stops the session store's background work. The database and any
// redis or badger handles stay open, they belong to the caller.
func (s *Services) Close() error {
	return s.Session.Close()
}
