// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/doorman/internal/kv"
)

// CurrentUserKey is the per-tier record holding the active Session.
const CurrentUserKey = "currentUser"

// Tier names the storage tier a Session lives in.
type Tier int

// Tiers. The zero value means no session.
const (
	TierNone Tier = iota
	TierDurable
	TierEphemeral
)

func (t Tier) String() string {
	switch t {
	case TierDurable:
		return "durable"
	case TierEphemeral:
		return "ephemeral"
	default:
		return "none"
	}
}

// Tiers holds the two stores of one browser context. Durable survives a
// browser restart; Ephemeral lives only as long as the tab or browser session.
type Tiers struct {
	Durable   kv.Store
	Ephemeral kv.Store
}

func (t Tiers) store(tier Tier) kv.Store {
	if tier == TierDurable {
		return t.Durable
	}
	return t.Ephemeral
}

func (t Tiers) other(tier Tier) kv.Store {
	if tier == TierDurable {
		return t.Ephemeral
	}
	return t.Durable
}

// Session is a snapshot of an Account taken when the user authenticated.
// It is not refreshed when the account changes.
type Session struct {
	UserID    string           `json:"userId"`
	Email     string           `json:"email"`
	FullName  string           `json:"fullname"`
	Pro       bool             `json:"isPro"`
	ProExpiry *PrivilegeExpiry `json:"proExpiry"`
	LoggedIn  bool             `json:"loggedIn"`
	LoginTime *time.Time       `json:"loginTime,omitempty"`
}

// NewSession snapshots account. loginTime is nil for signup sessions.
func NewSession(account *Account, loginTime *time.Time) *Session {
	s := &Session{
		UserID:    account.ID,
		Email:     account.Email,
		FullName:  account.FullName,
		Pro:       account.Pro,
		ProExpiry: account.ProExpiry,
		LoggedIn:  true,
	}
	if loginTime != nil {
		t := loginTime.UTC()
		s.LoginTime = &t
	}
	return s
}

// State is the authentication state of a browser context.
type State int

// States.
const (
	StateAnonymous State = iota
	StateAuthenticatedDurable
	StateAuthenticatedEphemeral
)

func (s State) String() string {
	switch s {
	case StateAuthenticatedDurable:
		return "authenticated(durable)"
	case StateAuthenticatedEphemeral:
		return "authenticated(ephemeral)"
	default:
		return "anonymous"
	}
}

// StateOf maps the tier holding a session to the authentication state.
func StateOf(tier Tier) State {
	switch tier {
	case TierDurable:
		return StateAuthenticatedDurable
	case TierEphemeral:
		return StateAuthenticatedEphemeral
	default:
		return StateAnonymous
	}
}

func readSession(ctx context.Context, store kv.Store, tier Tier) (*Session, error) {
	raw, ok, err := store.Get(ctx, CurrentUserKey)
	if err != nil {
		return nil, storageFailed("STORAGE_UNAVAILABLE", "read_session_"+tier.String(), err)
	}
	if !ok {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, storageFailed("STORAGE_CORRUPT", "read_session_"+tier.String(), err)
	}
	return &s, nil
}

// writeSession stores s in tier and clears the other tier so a context never
// holds two sessions.
func writeSession(ctx context.Context, tiers Tiers, tier Tier, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return oops.Code("STORAGE_CORRUPT").Wrap(err)
	}
	if err := tiers.store(tier).Set(ctx, CurrentUserKey, string(data)); err != nil {
		return storageFailed("STORAGE_UNAVAILABLE", "write_session_"+tier.String(), err)
	}
	if err := tiers.other(tier).Remove(ctx, CurrentUserKey); err != nil {
		return storageFailed("STORAGE_UNAVAILABLE", "clear_session", err)
	}
	return nil
}
