// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/invopop/jsonschema"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinPasswordLength is the shortest password signup and reset accept,
// counted in UTF-16 code units as browsers count input length.
const MinPasswordLength = 6

// passwordLength returns the length of pw in UTF-16 code units.
func passwordLength(pw string) int {
	return len(utf16.Encode([]rune(pw)))
}

// lifetimeMarker is the persisted form of a privilege that never expires.
const lifetimeMarker = "lifetime"

// PrivilegeExpiry marks when an account's pro privilege ends.
// It persists as the string "lifetime" or an RFC 3339 timestamp.
type PrivilegeExpiry struct {
	Lifetime bool
	Until    time.Time
}

// Lifetime returns a marker for a privilege that never expires.
func Lifetime() *PrivilegeExpiry {
	return &PrivilegeExpiry{Lifetime: true}
}

// ExpiresAt returns a marker for a privilege ending at t.
func ExpiresAt(t time.Time) *PrivilegeExpiry {
	return &PrivilegeExpiry{Until: t.UTC()}
}

func (e PrivilegeExpiry) String() string {
	if e.Lifetime {
		return lifetimeMarker
	}
	return e.Until.Format(time.RFC3339)
}

// MarshalJSON encodes the marker as a JSON string.
func (e PrivilegeExpiry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON decodes "lifetime" or an RFC 3339 timestamp.
func (e *PrivilegeExpiry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("privilege expiry: %w", err)
	}
	if s == lifetimeMarker {
		*e = PrivilegeExpiry{Lifetime: true}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("privilege expiry %q: %w", s, err)
	}
	*e = PrivilegeExpiry{Until: t}
	return nil
}

// JSONSchema describes the persisted string form.
func (PrivilegeExpiry) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: `"lifetime" or an RFC 3339 timestamp`,
	}
}

// Account is a registered user.
type Account struct {
	ID           string           `json:"id" jsonschema:"minLength=1"`
	FullName     string           `json:"fullname"`
	Email        string           `json:"email" jsonschema:"minLength=1"`
	PasswordHash string           `json:"passwordHash" jsonschema:"minLength=1"`
	Pro          bool             `json:"isPro"`
	ProExpiry    *PrivilegeExpiry `json:"proExpiry,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`

	// Usage counters are written at signup and never read.
	ChecksToday *int `json:"checksToday,omitempty"`
	TotalChecks *int `json:"totalChecks,omitempty"`
}

// NewAccount creates an unprivileged account with a fresh ULID and zeroed
// usage counters.
func NewAccount(fullName, email, passwordHash string, now time.Time) (*Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, oops.Code("AUTH_INVALID_ACCOUNT").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_ACCOUNT").Errorf("password hash cannot be empty")
	}
	zero, zeroTotal := 0, 0
	return &Account{
		ID:           ulid.Make().String(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
		ChecksToday:  &zero,
		TotalChecks:  &zeroTotal,
	}, nil
}
