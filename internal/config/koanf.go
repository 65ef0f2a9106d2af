package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// ConfigPathEnvVar overrides the config file location.
	ConfigPathEnvVar = "CONFIG_PATH"

	// EnvPrefix marks the environment variables read as configuration.
	// A double underscore separates sections: AUTHGATE_SESSION__BACKEND -> session.backend.
	EnvPrefix = "AUTHGATE_"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"authgate.yaml",
	"authgate.yml",
	"/etc/authgate/authgate.yaml",
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Production:      false,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverSqlite,
			DSN:    "authgate.db?_foreign_keys=on&_busy_timeout=5000",
		},
		Session: SessionConfig{
			Backend:         SessionBackendMemory,
			TTL:             time.Hour,
			CookieName:      "session_token",
			CleanupInterval: time.Minute,
		},
		Auth: AuthConfig{
			AdminUsername: "admin",
			BcryptCost:    12,
			TokenTTL:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled: true,
			Timeout: 2 * time.Second,
		},
		Geo: GeoConfig{
			Enabled:   true,
			Endpoint:  "http://ip-api.com/json/",
			Timeout:   900 * time.Millisecond,
			CacheSize: 1024,
			CacheTTL:  6 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from, in increasing priority, built in
// defaults, an optional YAML file and AUTHGATE_ environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps AUTHGATE_AUTH__TOKEN_SECRET to auth.token_secret.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}
