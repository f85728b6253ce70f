// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import "time"

// SetLedgerClock overrides the ledger clock in tests.
func SetLedgerClock(l *ResetLedger, now func() time.Time) {
	l.now = now
}
