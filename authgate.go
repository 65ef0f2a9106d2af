// Package authgate wires the account, session and access gate services
// onto an http router.
package authgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/internal/geo"
	"github.com/Ryan-Har/authgate/internal/sessionstore"
	"github.com/Ryan-Har/authgate/internal/tokenstore"
	"github.com/Ryan-Har/authgate/pkg/auth"
	"github.com/Ryan-Har/authgate/pkg/builtins"
	"github.com/Ryan-Har/authgate/pkg/enforcer"
	"github.com/Ryan-Har/authgate/pkg/models/passwd"
	"github.com/Ryan-Har/authgate/pkg/services"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

const DefaultBcryptCost = 12

type AuthGate struct {
	logger   *slog.Logger
	Services *services.Services
	Auth     *auth.Service
	Enforcer *enforcer.Enforcer
	Builtins *builtins.Builtin

	// Hold information to initialize services after configuration
	db              *sql.DB
	services        services.Config
	router          enforcer.Router
	cookie          enforcer.Config
	adminUsername   string
	adminPassword   string
	requireEmail    bool
	bcryptCost      int
	audit           bool
	auditTimeout    time.Duration
	geo             geo.Resolver
	loginRateLimit  int
	trustForwarded  bool
	skipBuiltins    bool
	sessionsOptions []sessionstore.Option
}

type Option func(*AuthGate)

func WithLogger(l *slog.Logger) Option {
	return func(g *AuthGate) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithSqliteDB(db *sql.DB) Option {
	return func(g *AuthGate) {
		g.db = db
		g.services.DBType = services.DBTypeSQLite
	}
}

func WithPostgresDB(db *sql.DB) Option {
	return func(g *AuthGate) {
		g.db = db
		g.services.DBType = services.DBTypePostgres
	}
}

func WithRouter(r enforcer.Router) Option {
	return func(g *AuthGate) {
		g.router = r
	}
}

// WithInMemorySessionStore keeps sessions in process memory. This is the default.
func WithInMemorySessionStore() Option {
	return func(g *AuthGate) {
		g.services.SessionBackend = services.SessionBackendMemory
	}
}

// WithSqliteSessionStore keeps sessions in the sqlite database so they survive a restart.
func WithSqliteSessionStore() Option {
	return func(g *AuthGate) {
		g.services.SessionBackend = services.SessionBackendSqlite
	}
}

// WithRedisSessionStore keeps sessions in redis. The client is not closed by Close.
func WithRedisSessionStore(client redis.UniversalClient) Option {
	return func(g *AuthGate) {
		g.services.SessionBackend = services.SessionBackendRedis
		g.services.Redis = client
	}
}

// WithBadgerSessionStore keeps sessions in an embedded badger database. The
// database is not closed by Close.
func WithBadgerSessionStore(db *badger.DB) Option {
	return func(g *AuthGate) {
		g.services.SessionBackend = services.SessionBackendBadger
		g.services.Badger = db
	}
}

// WithSessionOptions passes options such as the TTL through to the session store.
func WithSessionOptions(opts ...sessionstore.Option) Option {
	return func(g *AuthGate) {
		g.sessionsOptions = append(g.sessionsOptions, opts...)
	}
}

// WithCookie overrides the session cookie settings.
func WithCookie(cfg enforcer.Config) Option {
	return func(g *AuthGate) {
		g.cookie = cfg
	}
}

// WithProduction marks the session cookie Secure.
func WithProduction(production bool) Option {
	return func(g *AuthGate) {
		g.cookie.CookieSecure = production
	}
}

// WithAdmin sets the admin username and, when password is non-empty, seeds
// the account on start.
func WithAdmin(username, password string) Option {
	return func(g *AuthGate) {
		if username != "" {
			g.adminUsername = username
		}
		g.adminPassword = password
	}
}

func WithRequireEmail(required bool) Option {
	return func(g *AuthGate) {
		g.requireEmail = required
	}
}

func WithBcryptCost(cost int) Option {
	return func(g *AuthGate) {
		g.bcryptCost = cost
	}
}

// WithTokens enables bearer API tokens signed with secret.
func WithTokens(secret string, ttl time.Duration) Option {
	return func(g *AuthGate) {
		g.services.TokenSecret = secret
		g.services.TokenOptions = append(g.services.TokenOptions, tokenstore.WithTokenDuration(ttl))
	}
}

// WithAudit toggles the login audit trail. It is on by default.
func WithAudit(enabled bool, timeout time.Duration) Option {
	return func(g *AuthGate) {
		g.audit = enabled
		g.auditTimeout = timeout
	}
}

// WithGeoResolver sets how login addresses are turned into a location.
// The default resolves nothing and records "Unknown, Unknown".
func WithGeoResolver(r geo.Resolver) Option {
	return func(g *AuthGate) {
		if r != nil {
			g.geo = r
		}
	}
}

// WithLoginRateLimit caps login and register attempts per client ip per minute.
func WithLoginRateLimit(perMinute int) Option {
	return func(g *AuthGate) {
		g.loginRateLimit = perMinute
	}
}

// WithTrustForwardedFor makes the login rate limit use X-Forwarded-For as
// the client address. Only set it when a trusted proxy overwrites the header.
func WithTrustForwardedFor(trust bool) Option {
	return func(g *AuthGate) {
		g.trustForwarded = trust
	}
}

// WithoutBuiltinRoutes leaves route registration entirely to the caller.
func WithoutBuiltinRoutes() Option {
	return func(g *AuthGate) {
		g.skipBuiltins = true
	}
}

// New builds the services, checks and migrates the database, seeds the admin
// account and registers the builtin routes on the router.
func New(ctx context.Context, opts ...Option) (*AuthGate, error) {
	ag := &AuthGate{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		services:      services.Config{SessionBackend: services.SessionBackendMemory},
		cookie:        *enforcer.DefaultConfig(),
		adminUsername: auth.DefaultAdminUsername,
		bcryptCost:    DefaultBcryptCost,
		audit:         true,
		auditTimeout:  auth.DefaultAuditTimeout,
		geo:           geo.NopResolver{},
	}

	for _, opt := range opts {
		opt(ag)
	}

	if ag.db == nil {
		return nil, errors.New("authgate: a database is required, use WithSqliteDB or WithPostgresDB")
	}
	if ag.router == nil && !ag.skipBuiltins {
		return nil, errors.New("authgate: a router is required, use WithRouter")
	}

	ag.logger.Info("starting authgate")

	// check if database is pingable
	if err := ag.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	ag.logger.Debug("successfully connected to database")

	ag.services.SessionOptions = ag.sessionsOptions
	svc, err := services.New(ag.db, ag.logger, ag.services)
	if err != nil {
		return nil, fmt.Errorf("unable to load services: %w", err)
	}
	ag.Services = svc

	if err := svc.RunMigrations(); err != nil {
		svc.Close()
		return nil, fmt.Errorf("unable to run migrations: %w", err)
	}
	ag.logger.Debug("successfully run migrations")

	authOpts := []auth.Option{
		auth.WithHasher(passwd.NewHasher(ag.bcryptCost)),
		auth.WithAdminUsername(ag.adminUsername),
		auth.WithRequireEmail(ag.requireEmail),
	}
	if ag.audit {
		authOpts = append(authOpts, auth.WithAudit(svc.Audit, ag.geo), auth.WithAuditTimeout(ag.auditTimeout))
	}
	if svc.Token != nil {
		authOpts = append(authOpts, auth.WithTokenStore(svc.Token))
	}
	ag.Auth = auth.New(ag.logger, svc.Accounts, svc.Session, authOpts...)

	if err := ag.Auth.EnsureAdmin(ctx, ag.adminPassword); err != nil {
		svc.Close()
		return nil, fmt.Errorf("unable to seed admin account: %w", err)
	}

	// load enforcer
	ag.Enforcer = enforcer.NewEnforcer(ag.logger, ag.router, ag.Auth, &ag.cookie)
	ag.logger.Info("authgate enforcer loaded", "secureCookie", ag.cookie.CookieSecure)

	if !ag.skipBuiltins {
		ag.Builtins = builtins.New(ag.logger, ag.Enforcer, ag.Auth,
			builtins.WithLoginRateLimit(ag.loginRateLimit),
			builtins.WithTrustForwardedFor(ag.trustForwarded),
		)
		ag.Builtins.LoadAllPolicies()
		if err := ag.Builtins.LoadAllRoutes(); err != nil {
			svc.Close()
			return nil, fmt.Errorf("unable to register routes: %w", err)
		}
		ag.logger.Debug("builtin routes loaded")
	}

	return ag, nil
}

// Close waits for pending audit writes and stops the session store's
// background work. The database and router remain the caller's.
func (ag *AuthGate) Close() error {
	ag.Auth.Wait()
	return ag.Services.Close()
}
