// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

// Package auth implements doorman's credential and session state machine.
//
// # Domain Types
//
//   - Account - a registered user, persisted as part of the "users" record
//   - Session - a snapshot of an Account taken at login or signup
//   - Tier - which storage tier (durable or ephemeral) holds a Session
//
// # Services
//
//   - Directory - the account list, hydrated from and mirrored to a kv.Store
//   - SessionManager - login, signup, logout, session lookup and password reset
//     for one browser context
//   - ResetLedger - issued password reset tokens
//   - PageGuard - the set of destinations that require a session
//
// A browser context owns two kv.Store values (see Tiers). A Session lives in
// exactly one of them: the durable tier when the user asked to be remembered
// (and always after signup), the ephemeral tier otherwise.
//
// Expected outcomes such as wrong credentials or a failed signup check are
// returned as errors carrying an oops code and a sentinel for errors.Is; they
// are not logged as failures.
package auth
