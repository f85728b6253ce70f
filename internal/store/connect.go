// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connect retry policy. Containers often start the database after the service.
const (
	connectBaseDelay  = 250 * time.Millisecond
	connectMaxRetries = 6
)

// ConnectPostgres opens a pgx pool and pings it, retrying with exponential
// backoff while the database comes up.
func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(connectMaxRetries, retry.NewExponential(connectBaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").Wrap(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			slog.WarnContext(ctx, "database not ready, retrying", "error", err)
			return retry.RetryableError(oops.Code("DB_CONNECT_FAILED").Wrap(err))
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", connectMaxRetries+1).
			Wrap(err)
	}
	return pool, nil
}

// Retry runs fn under the same backoff policy as ConnectPostgres. fn marks
// transient failures with retry.RetryableError.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(connectMaxRetries, retry.NewExponential(connectBaseDelay))
	//nolint:wrapcheck // fn's errors are already oops-wrapped by callers
	return retry.Do(ctx, backoff, fn)
}
