// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

// Package config loads doorman configuration.
//
// Sources, lowest precedence first: flag defaults, the YAML config file,
// environment variables (optionally seeded from a .env file), and flags set
// on the command line.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/doorman/internal/xdg"
)

// Durable backends.
const (
	DurableMemory   = "memory"
	DurableSQLite   = "sqlite"
	DurablePostgres = "postgres"
)

// Ephemeral backends.
const (
	EphemeralMemory = "memory"
	EphemeralRedis  = "redis"
)

// MinCookieSecretLength is the shortest accepted cookie signing secret.
const MinCookieSecretLength = 32

// Config is the full doorman configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Storage StorageConfig `koanf:"storage"`
	Session SessionConfig `koanf:"session"`
	Auth    AuthConfig    `koanf:"auth"`
}

// HTTPConfig configures the browser-facing server.
type HTTPConfig struct {
	Addr      string `koanf:"addr"`
	StaticDir string `koanf:"static_dir"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StorageConfig selects and configures the two storage tiers.
type StorageConfig struct {
	Durable     string        `koanf:"durable"`
	Ephemeral   string        `koanf:"ephemeral"`
	SQLitePath  string        `koanf:"sqlite_path"`
	DatabaseURL string        `koanf:"database_url"`
	RedisAddr   string        `koanf:"redis_addr"`
	RedisTTL    time.Duration `koanf:"redis_ttl"`
}

// SessionConfig configures the browser context cookies.
type SessionConfig struct {
	CookieSecret  string        `koanf:"cookie_secret"`
	RememberFor   time.Duration `koanf:"remember_for"`
	SecureCookies bool          `koanf:"secure_cookies"`
}

// AuthConfig configures the authentication flows.
type AuthConfig struct {
	SimulatedLatency time.Duration `koanf:"simulated_latency"`
	ProtectedPages   []string      `koanf:"protected_pages"`
	SeedDemoAccounts bool          `koanf:"seed_demo_accounts"`
	ResetTokenTTL    time.Duration `koanf:"reset_token_ttl"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":          "http.addr",
	"static-dir":         "http.static_dir",
	"metrics-addr":       "metrics.addr",
	"log-format":         "log.format",
	"log-level":          "log.level",
	"durable":            "storage.durable",
	"ephemeral":          "storage.ephemeral",
	"sqlite-path":        "storage.sqlite_path",
	"database-url":       "storage.database_url",
	"redis-addr":         "storage.redis_addr",
	"redis-ttl":          "storage.redis_ttl",
	"cookie-secret":      "session.cookie_secret",
	"remember-for":       "session.remember_for",
	"secure-cookies":     "session.secure_cookies",
	"simulated-latency":  "auth.simulated_latency",
	"protected-pages":    "auth.protected_pages",
	"seed-demo-accounts": "auth.seed_demo_accounts",
	"reset-token-ttl":    "auth.reset_token_ttl",
}

// envKeys maps environment variables to config keys.
var envKeys = map[string]string{
	"DATABASE_URL":          "storage.database_url",
	"REDIS_ADDR":            "storage.redis_addr",
	"DOORMAN_COOKIE_SECRET": "session.cookie_secret",
	"DOORMAN_DURABLE":       "storage.durable",
	"DOORMAN_EPHEMERAL":     "storage.ephemeral",
	"DOORMAN_LOG_FORMAT":    "log.format",
}

// RegisterFlags adds every config flag, with its default, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "127.0.0.1:8080", "browser HTTP listen address")
	fs.String("static-dir", "", "directory of static pages (empty = JSON stubs)")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("durable", DurableSQLite, "durable tier backend (memory, sqlite, postgres)")
	fs.String("ephemeral", EphemeralMemory, "ephemeral tier backend (memory, redis)")
	fs.String("sqlite-path", "", "SQLite database path (default: XDG_DATA_HOME/doorman/doorman.db)")
	fs.String("database-url", "", "PostgreSQL URL for the postgres durable backend")
	fs.String("redis-addr", "127.0.0.1:6379", "Redis address for the redis ephemeral backend")
	fs.Duration("redis-ttl", 12*time.Hour, "lifetime of ephemeral records in Redis")
	fs.String("cookie-secret", "", "cookie signing secret (empty = random per process)")
	fs.Duration("remember-for", 30*24*time.Hour, "lifetime of the durable browser cookie")
	fs.Bool("secure-cookies", false, "mark cookies Secure")
	fs.Duration("simulated-latency", 1500*time.Millisecond, "delay before credential checks")
	fs.StringSlice("protected-pages", []string{"dashboard.html", "profile.html"}, "glob patterns of pages that need a session")
	fs.Bool("seed-demo-accounts", true, "seed the demo accounts into an empty directory")
	fs.Duration("reset-token-ttl", time.Hour, "lifetime of password reset tokens")
}

// LoadDotEnv loads environment variables from the given .env files, or
// ./.env when none are given. Missing files are ignored. Variables already
// set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return oops.Code("CONFIG_DOTENV_FAILED").With("path", p).Wrap(err)
		}
	}
	return nil
}

// Load builds the configuration from path (or the XDG config file when path
// is empty and the file exists), the environment and flags. flags must have
// been registered with RegisterFlags.
func Load(flags *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	configPath, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", configPath).Wrap(err)
		}
	}

	for env, key := range envKeys {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		return path, nil
	}
	def, err := xdg.ConfigFile()
	if err != nil {
		return "", nil //nolint:nilerr // no home directory means no default file
	}
	if _, err := os.Stat(def); err != nil {
		return "", nil //nolint:nilerr // the default file is optional
	}
	return def, nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}

	switch c.Storage.Durable {
	case DurableMemory, DurableSQLite:
	case DurablePostgres:
		if c.Storage.DatabaseURL == "" {
			return invalid("storage.database_url", "storage.database_url is required for the postgres backend")
		}
	default:
		return invalid("storage.durable", "unknown durable backend %q", c.Storage.Durable)
	}

	switch c.Storage.Ephemeral {
	case EphemeralMemory:
	case EphemeralRedis:
		if c.Storage.RedisAddr == "" {
			return invalid("storage.redis_addr", "storage.redis_addr is required for the redis backend")
		}
		if c.Storage.RedisTTL <= 0 {
			return invalid("storage.redis_ttl", "storage.redis_ttl must be positive")
		}
	default:
		return invalid("storage.ephemeral", "unknown ephemeral backend %q", c.Storage.Ephemeral)
	}

	if s := c.Session.CookieSecret; s != "" && len(s) < MinCookieSecretLength {
		return invalid("session.cookie_secret", "session.cookie_secret must be at least %d bytes", MinCookieSecretLength)
	}
	if c.Session.RememberFor <= 0 {
		return invalid("session.remember_for", "session.remember_for must be positive")
	}
	if c.Auth.SimulatedLatency < 0 {
		return invalid("auth.simulated_latency", "auth.simulated_latency cannot be negative")
	}
	if c.Auth.ResetTokenTTL <= 0 {
		return invalid("auth.reset_token_ttl", "auth.reset_token_ttl must be positive")
	}
	return nil
}

// SQLitePath returns the configured SQLite path or the XDG default.
func (c *Config) SQLitePath() (string, error) {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath, nil
	}
	p, err := xdg.SQLitePath()
	if err != nil {
		return "", fmt.Errorf("resolve default sqlite path: %w", err)
	}
	return p, nil
}
