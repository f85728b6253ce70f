// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

// Package postgres implements kv.Store on a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/doorman/internal/kv"
)

// poolIface is the subset of pgxpool.Pool used by Store. pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements kv.Store using the kv_entries table.
type Store struct {
	pool poolIface
}

// NewStore creates a Store over an open pool.
func NewStore(pool poolIface) *Store {
	return &Store{pool: pool}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err, "get", key)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()`,
		key, value)
	if err != nil {
		return wrap(err, "set", key)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return wrap(err, "remove", key)
	}
	return nil
}

// wrap tags a driver error as kv.ErrUnavailable. Connection-class SQLSTATEs get
// their own code so operators can tell an outage from a bad query.
func wrap(err error, operation, key string) error {
	code := "KV_QUERY_FAILED"
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) &&
		(pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsInsufficientResources(pgErr.Code)) {
		code = "KV_CONNECTION_FAILED"
	}
	return oops.Code(code).
		With("operation", operation).
		With("key", key).
		Wrap(fmt.Errorf("%w: %w", kv.ErrUnavailable, err))
}
