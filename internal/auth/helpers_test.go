// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/doorman/internal/auth"
	"github.com/holomush/doorman/internal/kv"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// fastHasher keeps argon2 cheap in tests.
func fastHasher() auth.PasswordHasher {
	return auth.NewArgon2idHasherWithParams(1, 8, 1)
}

// flakyStore wraps a store and fails the operations whose error is set.
type flakyStore struct {
	kv.Store
	getErr    error
	setErr    error
	removeErr error

	mu   sync.Mutex
	sets int
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	return s.Store.Set(ctx, key, value)
}

func (s *flakyStore) Remove(ctx context.Context, key string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.Store.Remove(ctx, key)
}

func (s *flakyStore) setCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func unavailable(op string) error {
	return fmt.Errorf("%w: %s refused", kv.ErrUnavailable, op)
}

// recorder captures notices and navigation.
type recorder struct {
	mu      sync.Mutex
	notices []auth.Notice
	moves   []auth.Destination
}

func (r *recorder) Notify(_ context.Context, n auth.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) Navigate(_ context.Context, to auth.Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves = append(r.moves, to)
}

func (r *recorder) lastNotice() auth.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return auth.Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func (r *recorder) navigations() []auth.Destination {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.Destination(nil), r.moves...)
}

// mockResetDelivery is a mock for auth.ResetDelivery.
type mockResetDelivery struct {
	mock.Mock
}

func (m *mockResetDelivery) DeliverReset(ctx context.Context, email, token string) error {
	args := m.Called(ctx, email, token)
	return args.Error(0)
}

// fixture is one browser context over a shared users backend.
type fixture struct {
	shared    *kv.Memory
	durable   *kv.Memory
	ephemeral *kv.Memory
	dir       *auth.Directory
	mgr       *auth.SessionManager
	rec       *recorder
}

func newDirectory(t *testing.T, store kv.Store, opts ...auth.DirectoryOption) *auth.Directory {
	t.Helper()
	opts = append([]auth.DirectoryOption{auth.WithHasher(fastHasher()), auth.WithDirectoryClock(clock)}, opts...)
	dir, err := auth.NewDirectory(store, opts...)
	require.NoError(t, err)
	return dir
}

func newFixture(t *testing.T, opts ...auth.SessionManagerOption) *fixture {
	t.Helper()
	f := &fixture{
		shared:    kv.NewMemory(),
		durable:   kv.NewMemory(),
		ephemeral: kv.NewMemory(),
		rec:       &recorder{},
	}
	f.dir = newDirectory(t, f.shared)
	f.mgr = f.manager(t, auth.Tiers{Durable: f.durable, Ephemeral: f.ephemeral}, opts...)
	return f
}

func (f *fixture) manager(t *testing.T, tiers auth.Tiers, opts ...auth.SessionManagerOption) *auth.SessionManager {
	t.Helper()
	opts = append([]auth.SessionManagerOption{
		auth.WithNotifier(f.rec),
		auth.WithNavigator(f.rec),
		auth.WithClock(clock),
	}, opts...)
	mgr, err := auth.NewSessionManager(f.dir, tiers, opts...)
	require.NoError(t, err)
	return mgr
}

func hasSession(t *testing.T, store kv.Store) bool {
	t.Helper()
	_, ok, err := store.Get(context.Background(), auth.CurrentUserKey)
	require.NoError(t, err)
	return ok
}

func rawSession(t *testing.T, store kv.Store) string {
	t.Helper()
	raw, ok, err := store.Get(context.Background(), auth.CurrentUserKey)
	require.NoError(t, err)
	require.True(t, ok, "expected a session record")
	return raw
}
