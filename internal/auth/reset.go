// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/doorman/internal/kv"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32        // 32 bytes = 64 hex chars
	ResetTokenExpiry = time.Hour // default lifetime
)

// PasswordResetsKey is the durable record holding issued reset tickets.
const PasswordResetsKey = "passwordResets"

// PasswordReset is an issued reset ticket. Only the token hash is stored.
type PasswordReset struct {
	AccountID string    `json:"accountId"`
	TokenHash string    `json:"tokenHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExpiredAt reports whether the ticket has expired at t.
func (r *PasswordReset) ExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// GenerateResetToken creates a random token and its hash.
// The plaintext token goes to the user; only the hash is persisted.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = hashResetToken(token)

	return token, hash, nil
}

// VerifyResetToken checks a plaintext token against a stored hash in constant time.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := hashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

func hashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResetLedger keeps issued reset tickets in a kv.Store.
type ResetLedger struct {
	mu    sync.Mutex
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewResetLedger creates a ledger whose tickets live for ttl.
// A non-positive ttl uses ResetTokenExpiry.
func NewResetLedger(store kv.Store, ttl time.Duration) *ResetLedger {
	if ttl <= 0 {
		ttl = ResetTokenExpiry
	}
	return &ResetLedger{store: store, ttl: ttl, now: time.Now}
}

// Issue replaces any ticket for accountID with a fresh one and returns its
// plaintext token. Expired tickets are purged.
func (l *ResetLedger) Issue(ctx context.Context, accountID string) (string, error) {
	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tickets, err := l.read(ctx)
	if err != nil {
		return "", err
	}
	now := l.now().UTC()
	tickets = slices.DeleteFunc(tickets, func(r PasswordReset) bool {
		return r.AccountID == accountID || r.ExpiredAt(now)
	})
	tickets = append(tickets, PasswordReset{
		AccountID: accountID,
		TokenHash: hash,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	})
	if err := l.write(ctx, tickets); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup returns the ticket for token without consuming it.
func (l *ResetLedger) Lookup(ctx context.Context, token string) (*PasswordReset, error) {
	if token == "" {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tickets, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if !VerifyResetToken(token, tickets[i].TokenHash) {
			continue
		}
		if tickets[i].ExpiredAt(l.now()) {
			return nil, oops.Code("RESET_TOKEN_EXPIRED").
				With("account_id", tickets[i].AccountID).
				Wrap(ErrResetTokenExpired)
		}
		found := tickets[i]
		return &found, nil
	}
	return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
}

// DeleteByAccount removes every ticket for accountID.
func (l *ResetLedger) DeleteByAccount(ctx context.Context, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tickets, err := l.read(ctx)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(tickets, func(r PasswordReset) bool { return r.AccountID == accountID })
	return l.write(ctx, kept)
}

func (l *ResetLedger) read(ctx context.Context) ([]PasswordReset, error) {
	raw, ok, err := l.store.Get(ctx, PasswordResetsKey)
	if err != nil {
		return nil, storageFailed("STORAGE_UNAVAILABLE", "read_resets", err)
	}
	if !ok {
		return nil, nil
	}
	var tickets []PasswordReset
	if err := json.Unmarshal([]byte(raw), &tickets); err != nil {
		return nil, storageFailed("STORAGE_CORRUPT", "read_resets", err)
	}
	return tickets, nil
}

func (l *ResetLedger) write(ctx context.Context, tickets []PasswordReset) error {
	if tickets == nil {
		tickets = []PasswordReset{}
	}
	data, err := json.Marshal(tickets)
	if err != nil {
		return oops.Code("STORAGE_CORRUPT").Wrap(err)
	}
	if err := l.store.Set(ctx, PasswordResetsKey, string(data)); err != nil {
		return storageFailed("STORAGE_UNAVAILABLE", "write_resets", err)
	}
	return nil
}
