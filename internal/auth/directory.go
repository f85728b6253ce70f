// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/doorman/internal/kv"
)

// UsersKey is the durable-tier record holding the account list.
const UsersKey = "users"

// Demo account credentials seeded on first load.
const (
	DemoFreeEmail = "free@demo.com"
	DemoProEmail  = "pro@demo.com"
	DemoPassword  = "demo123"
)

// Directory is the in-memory account list mirrored to a kv.Store.
//
// The list is hydrated on first use. When the store has no users record the
// two demo accounts are seeded and persisted; an existing record, even an
// empty list, is never overwritten. Every mutation persists the full list
// while holding the write lock and rolls back on failure.
type Directory struct {
	mu       sync.RWMutex
	store    kv.Store
	hasher   PasswordHasher
	now      func() time.Time
	logger   *slog.Logger
	seed     bool
	loaded   bool
	accounts []Account

	decoyOnce sync.Once
	decoy     string
}

// DirectoryOption configures a Directory during construction.
type DirectoryOption func(*Directory)

// WithHasher sets the password hasher. Defaults to NewArgon2idHasher.
func WithHasher(h PasswordHasher) DirectoryOption {
	return func(d *Directory) {
		d.hasher = h
	}
}

// WithDirectoryClock overrides the clock used for CreatedAt stamps.
func WithDirectoryClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) {
		d.now = now
	}
}

// WithDirectoryLogger sets the logger.
func WithDirectoryLogger(l *slog.Logger) DirectoryOption {
	return func(d *Directory) {
		d.logger = l
	}
}

// WithoutDemoSeed disables seeding. An absent users record then loads as an
// empty list and is not written until the first signup.
func WithoutDemoSeed() DirectoryOption {
	return func(d *Directory) {
		d.seed = false
	}
}

// NewDirectory creates a Directory backed by store.
func NewDirectory(store kv.Store, opts ...DirectoryOption) (*Directory, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DIRECTORY").Errorf("store cannot be nil")
	}
	d := &Directory{
		store:  store,
		hasher: NewArgon2idHasher(),
		now:    time.Now,
		logger: slog.Default(),
		seed:   true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Hasher returns the password hasher used for stored accounts.
func (d *Directory) Hasher() PasswordHasher {
	return d.hasher
}

// Load hydrates the directory from the store. It is idempotent.
// A failed read or an unparseable record returns ErrStorageUnavailable and
// leaves the directory unloaded; it never reseeds over stored data.
func (d *Directory) Load(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if loaded {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked(ctx)
}

func (d *Directory) loadLocked(ctx context.Context) error {
	if d.loaded {
		return nil
	}

	raw, ok, err := d.store.Get(ctx, UsersKey)
	if err != nil {
		return storageFailed("STORAGE_UNAVAILABLE", "load_users", err)
	}

	if !ok {
		if !d.seed {
			d.accounts = nil
			d.loaded = true
			return nil
		}
		seeds, err := d.demoAccounts()
		if err != nil {
			return err
		}
		if err := d.persist(ctx, seeds); err != nil {
			return err
		}
		d.accounts = seeds
		d.loaded = true
		d.logger.InfoContext(ctx, "seeded demo accounts", "count", len(seeds))
		return nil
	}

	if err := ValidateUsersRecord([]byte(raw)); err != nil {
		return storageFailed("STORAGE_CORRUPT", "load_users", err)
	}
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return storageFailed("STORAGE_CORRUPT", "load_users", err)
	}
	d.accounts = accounts
	d.loaded = true
	return nil
}

func (d *Directory) demoAccounts() ([]Account, error) {
	hash := func() (string, error) {
		h, err := d.hasher.Hash(DemoPassword)
		if err != nil {
			return "", oops.Code("AUTH_SEED_FAILED").Wrap(err)
		}
		return h, nil
	}
	freeHash, err := hash()
	if err != nil {
		return nil, err
	}
	proHash, err := hash()
	if err != nil {
		return nil, err
	}
	now := d.now().UTC()
	return []Account{
		{ID: "1", FullName: "Free User", Email: DemoFreeEmail, PasswordHash: freeHash, CreatedAt: now},
		{ID: "2", FullName: "Pro User", Email: DemoProEmail, PasswordHash: proHash, Pro: true, ProExpiry: Lifetime(), CreatedAt: now},
	}, nil
}

// persist writes accounts as the users record. Caller holds the write lock.
func (d *Directory) persist(ctx context.Context, accounts []Account) error {
	if accounts == nil {
		accounts = []Account{}
	}
	data, err := json.Marshal(accounts)
	if err != nil {
		return oops.Code("STORAGE_CORRUPT").Wrap(err)
	}
	if err := d.store.Set(ctx, UsersKey, string(data)); err != nil {
		return storageFailed("STORAGE_UNAVAILABLE", "persist_users", err)
	}
	return nil
}

// FindByCredentials returns the first account whose email matches exactly and
// whose password hash verifies password. ErrNotFound otherwise.
func (d *Directory) FindByCredentials(ctx context.Context, email, password string) (*Account, error) {
	if err := d.Load(ctx); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	matchedEmail := false
	for i := range d.accounts {
		acct := &d.accounts[i]
		if acct.Email != email {
			continue
		}
		matchedEmail = true
		ok, err := d.hasher.Verify(password, acct.PasswordHash)
		if err != nil {
			d.logger.WarnContext(ctx, "stored password hash is unreadable",
				"account_id", acct.ID, "error", err)
			continue
		}
		if ok {
			found := *acct
			return &found, nil
		}
	}
	if !matchedEmail {
		// Same cost as a real check so unknown emails are not distinguishable by timing.
		_, _ = d.hasher.Verify(password, d.decoyHash()) //nolint:errcheck // result intentionally unused
	}
	return nil, oops.Code("AUTH_ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
}

// decoyHash is a hash of a random password, made with the directory's hasher.
func (d *Directory) decoyHash() string {
	d.decoyOnce.Do(func() {
		token, _, err := GenerateResetToken()
		if err == nil {
			d.decoy, _ = d.hasher.Hash(token) //nolint:errcheck // empty decoy only skips the timing pad
		}
	})
	return d.decoy
}

// EmailExists reports whether any account has exactly this email.
func (d *Directory) EmailExists(ctx context.Context, email string) (bool, error) {
	if err := d.Load(ctx); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.indexByEmail(email) >= 0, nil
}

// ByEmail returns the first account with exactly this email.
func (d *Directory) ByEmail(ctx context.Context, email string) (*Account, error) {
	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	i := d.indexByEmail(email)
	if i < 0 {
		return nil, oops.Code("AUTH_EMAIL_NOT_FOUND").With("email", email).Wrap(ErrNotFound)
	}
	found := d.accounts[i]
	return &found, nil
}

func (d *Directory) indexByEmail(email string) int {
	return slices.IndexFunc(d.accounts, func(a Account) bool { return a.Email == email })
}

// Create appends account and persists the list. It does not check email
// uniqueness; use Register for signup.
func (d *Directory) Create(ctx context.Context, account *Account) error {
	if account == nil {
		return oops.Code("AUTH_INVALID_ACCOUNT").Errorf("account cannot be nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return err
	}
	return d.appendLocked(ctx, *account)
}

// Register checks that the email is free and appends account under one lock.
// A taken email returns a ValidationError with ReasonEmailTaken.
func (d *Directory) Register(ctx context.Context, account *Account) error {
	if account == nil {
		return oops.Code("AUTH_INVALID_ACCOUNT").Errorf("account cannot be nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return err
	}
	if d.indexByEmail(account.Email) >= 0 {
		return validationFailed(ReasonEmailTaken)
	}
	return d.appendLocked(ctx, *account)
}

func (d *Directory) appendLocked(ctx context.Context, account Account) error {
	next := append(slices.Clone(d.accounts), account)
	if err := d.persist(ctx, next); err != nil {
		return err
	}
	d.accounts = next
	return nil
}

// UpdatePassword replaces the password hash of the account with id.
func (d *Directory) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if passwordHash == "" {
		return oops.Code("AUTH_INVALID_ACCOUNT").Errorf("password hash cannot be empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return err
	}
	i := slices.IndexFunc(d.accounts, func(a Account) bool { return a.ID == id })
	if i < 0 {
		return oops.Code("AUTH_ACCOUNT_NOT_FOUND").With("account_id", id).Wrap(ErrNotFound)
	}
	next := slices.Clone(d.accounts)
	next[i].PasswordHash = passwordHash
	if err := d.persist(ctx, next); err != nil {
		return err
	}
	d.accounts = next
	return nil
}

// Accounts returns a snapshot of all accounts in insertion order.
func (d *Directory) Accounts(ctx context.Context) ([]Account, error) {
	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.accounts), nil
}

// IsStorageError reports whether err means persisted state was unreachable or unreadable.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, kv.ErrUnavailable)
}
