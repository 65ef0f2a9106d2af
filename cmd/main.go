package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ryan-Har/authgate"
	"github.com/Ryan-Har/authgate/internal/config"
	"github.com/Ryan-Har/authgate/internal/geo"
	"github.com/Ryan-Har/authgate/internal/sessionstore"
	"github.com/Ryan-Har/authgate/pkg/enforcer"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings() {
		logger.Warn("unsafe production setting", "detail", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []authgate.Option{
		authgate.WithLogger(logger),
		authgate.WithCookie(enforcer.Config{
			CookieName:              cfg.Session.CookieName,
			CookiePath:              "/",
			CookieSecure:            cfg.Server.Production,
			RedirectOnAuthErrorPath: "/",
		}),
		authgate.WithSessionOptions(
			sessionstore.WithTTL(cfg.Session.TTL),
			sessionstore.WithCleanupInterval(cfg.Session.CleanupInterval),
		),
		authgate.WithAdmin(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword),
		authgate.WithRequireEmail(cfg.Auth.RequireEmail),
		authgate.WithBcryptCost(cfg.Auth.BcryptCost),
		authgate.WithAudit(cfg.Audit.Enabled, cfg.Audit.Timeout),
		authgate.WithLoginRateLimit(cfg.RateLimit.LoginPerMinute),
		authgate.WithTrustForwardedFor(cfg.RateLimit.TrustForwarded),
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		opts = append(opts, authgate.WithPostgresDB(db))
	default:
		opts = append(opts, authgate.WithSqliteDB(db))
	}

	switch cfg.Session.Backend {
	case config.SessionBackendSqlite:
		opts = append(opts, authgate.WithSqliteSessionStore())
	case config.SessionBackendRedis:
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		opts = append(opts, authgate.WithRedisSessionStore(rdb))
	case config.SessionBackendBadger:
		bopts := badger.DefaultOptions(cfg.Badger.Path).WithLogger(nil)
		if cfg.Badger.Path == "" {
			bopts = bopts.WithInMemory(true)
		}
		bdb, err := badger.Open(bopts)
		if err != nil {
			return fmt.Errorf("opening badger: %w", err)
		}
		defer bdb.Close()
		opts = append(opts, authgate.WithBadgerSessionStore(bdb))
	default:
		opts = append(opts, authgate.WithInMemorySessionStore())
	}

	if cfg.Auth.TokenSecret != "" {
		opts = append(opts, authgate.WithTokens(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL))
	}

	if cfg.Geo.Enabled {
		opts = append(opts, authgate.WithGeoResolver(geo.New(logger,
			geo.WithEndpoint(cfg.Geo.Endpoint),
			geo.WithTimeout(cfg.Geo.Timeout),
			geo.WithCache(cfg.Geo.CacheSize, cfg.Geo.CacheTTL),
		)))
	}

	// create http mux for use with authgate
	mainMux := http.NewServeMux()
	opts = append(opts, authgate.WithRouter(mainMux))

	ag, err := authgate.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("starting authgate: %w", err)
	}
	defer ag.Close()

	mainMux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mainMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr, "production", cfg.Server.Production,
			"sessionBackend", cfg.Session.Backend, "database", cfg.Database.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := "sqlite3"
	if cfg.Driver == config.DriverPostgres {
		driver = "postgres"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == "sqlite3" {
		// one writer at a time avoids SQLITE_BUSY under concurrent logins
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}
