// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

// Package redis implements kv.Store on Redis with a per-key TTL.
//
// It backs the ephemeral session tier when several doorman processes share
// tab-scoped state. Every write refreshes the key's TTL, so an idle tab's
// session evaporates the way sessionStorage does when the tab closes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/doorman/internal/kv"
)

// DefaultTTL bounds the lifetime of an ephemeral key.
const DefaultTTL = 12 * time.Hour

// client is the subset of goredis.Cmdable used by Store.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Store implements kv.Store on a Redis client.
type Store struct {
	client client
	ttl    time.Duration
}

// NewStore creates a Store. A non-positive ttl selects DefaultTTL.
func NewStore(c client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: c, ttl: ttl}
}

// Dial creates a go-redis client for addr and verifies it answers PING.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	c := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, oops.Code("KV_CONNECTION_FAILED").
			With("addr", addr).
			Wrap(fmt.Errorf("%w: %w", kv.ErrUnavailable, err))
	}
	return c, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err, "get", key)
	}
	return v, true, nil
}

// Set stores value under key with the store's TTL.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return wrap(err, "set", key)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return wrap(err, "remove", key)
	}
	return nil
}

func wrap(err error, operation, key string) error {
	return oops.Code("KV_REDIS_FAILED").
		With("operation", operation).
		With("key", key).
		Wrap(fmt.Errorf("%w: %w", kv.ErrUnavailable, err))
}
