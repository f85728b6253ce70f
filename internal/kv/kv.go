// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

// Package kv provides the key/value persistence used for accounts and sessions.
//
// A Store holds serialized text under string keys. Backends differ in lifetime:
// Memory and the Redis store back the ephemeral tier, while the SQLite and
// Postgres stores back the durable tier. Scope namespaces one backend so each
// browser context sees its own keys.
package kv

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a backend cannot serve a request.
// Backends wrap it so callers can fail closed with errors.Is.
var ErrUnavailable = errors.New("storage unavailable")

// Store is a text key/value store.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
