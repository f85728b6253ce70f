// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package kv

import "context"

// scoped prefixes every key before delegating to the backing store.
type scoped struct {
	prefix string
	store  Store
}

// Scope returns a Store that namespaces all keys under prefix.
// Two scopes with different prefixes never observe each other's keys.
func Scope(store Store, prefix string) Store {
	if s, ok := store.(*scoped); ok {
		return &scoped{prefix: s.prefix + prefix, store: s.store}
	}
	return &scoped{prefix: prefix, store: store}
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, s.prefix+key)
}
