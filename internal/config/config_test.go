// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/doorman/pkg/errutil"
)

// isolate points XDG at an empty directory and clears config env vars.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for env := range envKeys {
		t.Setenv(env, "")
	}
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DurableSQLite, cfg.Storage.Durable)
	assert.Equal(t, EphemeralMemory, cfg.Storage.Ephemeral)
	assert.Equal(t, 12*time.Hour, cfg.Storage.RedisTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.RememberFor)
	assert.Equal(t, 1500*time.Millisecond, cfg.Auth.SimulatedLatency)
	assert.Equal(t, []string{"dashboard.html", "profile.html"}, cfg.Auth.ProtectedPages)
	assert.True(t, cfg.Auth.SeedDemoAccounts)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	path := writeFile(t, "config.yaml", `
http:
  addr: 0.0.0.0:9000
log:
  format: text
storage:
  durable: memory
  redis_ttl: 2h
auth:
  simulated_latency: 0s
  protected_pages:
    - "admin/*"
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load(newFlags(t), path)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9000", cfg.HTTP.Addr)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, DurableMemory, cfg.Storage.Durable)
		assert.Equal(t, 2*time.Hour, cfg.Storage.RedisTTL)
		assert.Zero(t, cfg.Auth.SimulatedLatency)
		assert.Equal(t, []string{"admin/*"}, cfg.Auth.ProtectedPages)
		assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr, "unset keys keep flag defaults")
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("DOORMAN_LOG_FORMAT", "json")
		cfg, err := Load(newFlags(t), path)
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.Log.Format)
	})

	t.Run("changed flags override everything", func(t *testing.T) {
		t.Setenv("DOORMAN_LOG_FORMAT", "json")
		cfg, err := Load(newFlags(t, "--http-addr", ":7000", "--log-format", "text", "--protected-pages", "a.html,b.html"), path)
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.HTTP.Addr)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, []string{"a.html", "b.html"}, cfg.Auth.ProtectedPages)
	})
}

func TestLoad_XDGConfigFile(t *testing.T) {
	isolate(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "doorman")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("http:\n  addr: ':6000'\n"), 0o600))

	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.HTTP.Addr)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(newFlags(t), filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(newFlags(t), writeFile(t, "bad.yaml", "http: [unclosed"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	})

	t.Run("postgres without url", func(t *testing.T) {
		_, err := Load(newFlags(t, "--durable", "postgres"), "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		errutil.AssertErrorContext(t, err, "key", "storage.database_url")
	})

	t.Run("postgres url from env", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/doorman")
		cfg, err := Load(newFlags(t, "--durable", "postgres"), "")
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/doorman", cfg.Storage.DatabaseURL)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			HTTP:    HTTPConfig{Addr: ":8080"},
			Log:     LogConfig{Format: "json"},
			Storage: StorageConfig{Durable: DurableMemory, Ephemeral: EphemeralMemory},
			Session: SessionConfig{RememberFor: time.Hour},
			Auth:    AuthConfig{ResetTokenTTL: time.Hour},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		key    string
	}{
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"unknown durable", func(c *Config) { c.Storage.Durable = "etcd" }, "storage.durable"},
		{"unknown ephemeral", func(c *Config) { c.Storage.Ephemeral = "memcached" }, "storage.ephemeral"},
		{"redis without addr", func(c *Config) {
			c.Storage.Ephemeral, c.Storage.RedisTTL = EphemeralRedis, time.Hour
		}, "storage.redis_addr"},
		{"redis without ttl", func(c *Config) {
			c.Storage.Ephemeral, c.Storage.RedisAddr = EphemeralRedis, "localhost:6379"
		}, "storage.redis_ttl"},
		{"short cookie secret", func(c *Config) { c.Session.CookieSecret = "short" }, "session.cookie_secret"},
		{"zero remember", func(c *Config) { c.Session.RememberFor = 0 }, "session.remember_for"},
		{"negative latency", func(c *Config) { c.Auth.SimulatedLatency = -time.Second }, "auth.simulated_latency"},
		{"zero reset ttl", func(c *Config) { c.Auth.ResetTokenTTL = 0 }, "auth.reset_token_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SQLitePath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := Config{}
	p, err := cfg.SQLitePath()
	require.NoError(t, err)
	assert.Equal(t, "/data/doorman/doorman.db", p)

	cfg.Storage.SQLitePath = "/tmp/x.db"
	p, err = cfg.SQLitePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", p)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "DOORMAN_TEST_ONLY=from-dotenv\nDOORMAN_TEST_SET=from-dotenv\n")
	t.Setenv("DOORMAN_TEST_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("DOORMAN_TEST_ONLY") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, "from-dotenv", os.Getenv("DOORMAN_TEST_ONLY"))
	assert.Equal(t, "from-env", os.Getenv("DOORMAN_TEST_SET"), "existing variables win")
}
