// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/doorman/internal/config"
	"github.com/holomush/doorman/internal/kv"
	kvpostgres "github.com/holomush/doorman/internal/kv/postgres"
	kvredis "github.com/holomush/doorman/internal/kv/redis"
	kvsqlite "github.com/holomush/doorman/internal/kv/sqlite"
	"github.com/holomush/doorman/internal/store"
	"github.com/holomush/doorman/internal/xdg"
)

// backends holds the opened storage tiers and how to release them.
type backends struct {
	durable   kv.Store
	ephemeral kv.Store
	closers   []func() error
}

// Close releases every opened backend.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openBackends opens the configured durable and ephemeral stores. SQL
// backends are migrated to the latest schema first.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	durable, err := openDurable(ctx, cfg, b)
	if err != nil {
		_ = b.Close() //nolint:errcheck // open error takes precedence
		return nil, err
	}
	b.durable = durable

	ephemeral, err := openEphemeral(ctx, cfg, b)
	if err != nil {
		_ = b.Close() //nolint:errcheck // open error takes precedence
		return nil, err
	}
	b.ephemeral = ephemeral

	slog.Info("storage ready", "durable", cfg.Storage.Durable, "ephemeral", cfg.Storage.Ephemeral)
	return b, nil
}

func openDurable(ctx context.Context, cfg *config.Config, b *backends) (kv.Store, error) {
	switch cfg.Storage.Durable {
	case config.DurableMemory:
		slog.Warn("durable tier is in memory; accounts and remembered sessions are lost on restart")
		return kv.NewMemory(), nil

	case config.DurableSQLite:
		db, err := openSQLite(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := migrateSQLite(db); err != nil {
			return nil, err
		}
		return kvsqlite.NewStore(db), nil

	case config.DurablePostgres:
		if err := migratePostgres(cfg.Storage.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := store.ConnectPostgres(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error {
			pool.Close()
			return nil
		})
		return kvpostgres.NewStore(pool), nil
	}
	return nil, oops.Code("CONFIG_INVALID").With("key", "storage.durable").Errorf("unknown durable backend %q", cfg.Storage.Durable)
}

func openEphemeral(ctx context.Context, cfg *config.Config, b *backends) (kv.Store, error) {
	switch cfg.Storage.Ephemeral {
	case config.EphemeralMemory:
		return kv.NewMemory(), nil

	case config.EphemeralRedis:
		var client *goredis.Client
		err := store.Retry(ctx, func(ctx context.Context) error {
			c, err := kvredis.Dial(ctx, cfg.Storage.RedisAddr)
			if err != nil {
				slog.WarnContext(ctx, "redis not ready, retrying", "error", err)
				return retry.RetryableError(err)
			}
			client = c
			return nil
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		return kvredis.NewStore(client, cfg.Storage.RedisTTL), nil
	}
	return nil, oops.Code("CONFIG_INVALID").With("key", "storage.ephemeral").Errorf("unknown ephemeral backend %q", cfg.Storage.Ephemeral)
}

func openSQLite(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	path, err := cfg.SQLitePath()
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("key", "storage.sqlite_path").Wrap(err)
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, oops.Code("KV_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return kvsqlite.Open(ctx, path)
}

func migrateSQLite(db *sql.DB) error {
	m, err := store.NewSQLiteMigrator(db)
	if err != nil {
		return err
	}
	// Closing the migrator would close db through the sqlite3 driver.
	return m.Up()
}

func migratePostgres(databaseURL string) error {
	m, err := store.NewPostgresMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}
