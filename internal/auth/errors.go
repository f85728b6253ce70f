// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Sentinel errors. Returned errors wrap these; match with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned when no account matches an email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrStorageUnavailable is returned when persisted state cannot be read,
	// written or parsed. Callers fail closed.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidResetToken is returned for unknown or empty reset tokens.
	ErrInvalidResetToken = errors.New("invalid reset token")

	// ErrResetTokenExpired is returned when a reset token is past its expiry.
	ErrResetTokenExpired = errors.New("reset token expired")

	// ErrNotImplemented is returned by flows the demo only announces.
	ErrNotImplemented = errors.New("not implemented")
)

// Reason identifies which validation check rejected a request.
type Reason string

// Validation reasons, in the order signup checks them.
const (
	ReasonPasswordMismatch Reason = "password-mismatch"
	ReasonPasswordTooShort Reason = "password-too-short"
	ReasonTermsNotAccepted Reason = "terms-not-accepted"
	ReasonEmailTaken       Reason = "email-already-registered"
)

// Message returns the user-facing text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonPasswordMismatch:
		return "Passwords do not match!"
	case ReasonPasswordTooShort:
		return fmt.Sprintf("Password must be at least %d characters!", MinPasswordLength)
	case ReasonTermsNotAccepted:
		return "Please accept Terms of Service!"
	case ReasonEmailTaken:
		return "Email already registered!"
	default:
		return "Invalid input!"
	}
}

// ValidationError reports the first failed validation check.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "validation failed: " + string(e.Reason)
}

// ReasonOf extracts the validation reason from err.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

func validationFailed(r Reason) error {
	return oops.Code("AUTH_VALIDATION_FAILED").
		With("reason", string(r)).
		Wrap(&ValidationError{Reason: r})
}

// storageFailed tags a backend failure as ErrStorageUnavailable.
func storageFailed(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
}
