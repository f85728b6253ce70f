// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"context"
	"log/slog"
	"net/url"
	"time"
)

// Severity classifies a Notice.
type Severity string

// Notice severities.
const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notice is a transient message shown to the user.
type Notice struct {
	Message  string
	Severity Severity
}

// Notifier displays notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Destination is a page the user can be sent to.
type Destination string

// Destinations.
const (
	DestinationLanding   Destination = "index.html"
	DestinationLogin     Destination = "login.html"
	DestinationDashboard Destination = "dashboard.html"
	DestinationProfile   Destination = "profile.html"
)

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(ctx context.Context, to Destination)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, to Destination)

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, to Destination) { f(ctx, to) }

// ResetDelivery sends an issued password reset token to its owner.
type ResetDelivery interface {
	DeliverReset(ctx context.Context, email, token string) error
}

// LogResetDelivery writes the reset link to the log instead of sending mail.
type LogResetDelivery struct {
	Logger  *slog.Logger
	BaseURL string
}

// DeliverReset logs the reset link for email.
func (d LogResetDelivery) DeliverReset(ctx context.Context, email, token string) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	link := d.BaseURL + "/reset-password.html?token=" + url.QueryEscape(token)
	logger.InfoContext(ctx, "password reset issued", "email", email, "link", link)
	return nil
}

// Delay is a latency hook run before credential checks. It has no effect on
// outcomes; a cancelled ctx aborts the wait.
type Delay func(ctx context.Context) error

// NoDelay returns immediately.
func NoDelay(context.Context) error { return nil }

// FixedDelay waits d before continuing.
func FixedDelay(d time.Duration) Delay {
	if d <= 0 {
		return NoDelay
	}
	return func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Notice) {}

type discardNavigator struct{}

func (discardNavigator) Navigate(context.Context, Destination) {}
