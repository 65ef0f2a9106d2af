// Package config holds the process configuration for the authgate server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"

	SessionBackendMemory = "memory"
	SessionBackendSqlite = "sqlite"
	SessionBackendRedis  = "redis"
	SessionBackendBadger = "badger"

	MinBcryptCost     = 10
	MinTokenSecretLen = 32
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Session   SessionConfig   `koanf:"session"`
	Redis     RedisConfig     `koanf:"redis"`
	Badger    BadgerConfig    `koanf:"badger"`
	Auth      AuthConfig      `koanf:"auth"`
	Audit     AuditConfig     `koanf:"audit"`
	Geo       GeoConfig       `koanf:"geo"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	Production      bool          `koanf:"production"` // marks the session cookie Secure
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite or postgres
	DSN    string `koanf:"dsn"`
}

type SessionConfig struct {
	Backend         string        `koanf:"backend"`
	TTL             time.Duration `koanf:"ttl"`
	CookieName      string        `koanf:"cookie_name"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

type RedisConfig struct {
	URL string `koanf:"url"`
}

type BadgerConfig struct {
	// Path of the badger directory. Empty runs badger in memory.
	Path string `koanf:"path"`
}

type AuthConfig struct {
	AdminUsername string `koanf:"admin_username"`
	// AdminPassword seeds the admin account on start. Empty skips the seed.
	AdminPassword string        `koanf:"admin_password"`
	RequireEmail  bool          `koanf:"require_email"`
	BcryptCost    int           `koanf:"bcrypt_cost"`
	TokenSecret   string        `koanf:"token_secret"` // empty disables API tokens
	TokenTTL      time.Duration `koanf:"token_ttl"`
}

type AuditConfig struct {
	Enabled bool          `koanf:"enabled"`
	Timeout time.Duration `koanf:"timeout"`
}

type GeoConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Endpoint  string        `koanf:"endpoint"`
	Timeout   time.Duration `koanf:"timeout"`
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

type RateLimitConfig struct {
	// LoginPerMinute caps login and register attempts per client ip. Zero disables the limit.
	LoginPerMinute int `koanf:"login_per_minute"`
	// TrustForwarded keys the limit on X-Forwarded-For. Enable only behind a proxy that sets it.
	TrustForwarded bool `koanf:"trust_forwarded"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or text
}

// Validate checks the configuration for values the server cannot start with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSqlite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be %q or %q", c.Database.Driver, DriverSqlite, DriverPostgres))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendBadger:
	case SessionBackendSqlite:
		if c.Database.Driver != DriverSqlite {
			errs = append(errs, errors.New("session.backend sqlite requires database.driver sqlite"))
		}
	case SessionBackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for session.backend redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q is not supported", c.Session.Backend))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.CleanupInterval < 0 {
		errs = append(errs, errors.New("session.cleanup_interval must not be negative"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}

	if c.Auth.AdminUsername == "" {
		errs = append(errs, errors.New("auth.admin_username is required"))
	}
	if c.Auth.BcryptCost < MinBcryptCost {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be at least %d", MinBcryptCost))
	}
	if c.Auth.TokenSecret != "" && len(c.Auth.TokenSecret) < MinTokenSecretLen {
		errs = append(errs, fmt.Errorf("auth.token_secret must be at least %d bytes", MinTokenSecretLen))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}

	if c.RateLimit.LoginPerMinute < 0 {
		errs = append(errs, errors.New("ratelimit.login_per_minute must not be negative"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Warnings lists settings the server accepts but that are unsafe in production.
func (c *Config) Warnings() []string {
	if !c.Server.Production {
		return nil
	}
	var warnings []string
	if c.Session.Backend == SessionBackendMemory {
		warnings = append(warnings, "session.backend memory loses every session on restart and cannot be shared between instances")
	}
	if c.RateLimit.LoginPerMinute == 0 {
		warnings = append(warnings, "ratelimit.login_per_minute is 0, login attempts are not limited")
	}
	return warnings
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
