// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/doorman/internal/observability"
	"github.com/holomush/doorman/pkg/errutil"
)

var tracer = otel.Tracer("doorman/auth")

// User-facing messages.
const (
	MsgLoginSuccess   = "Login successful! Redirecting..."
	MsgLoginFailed    = "Invalid email or password!"
	MsgSignupSuccess  = "Account created successfully!"
	MsgEmailNotFound  = "Email not found!"
	MsgResetSent      = "Password reset link sent to your email!"
	MsgResetSuccess   = "Password reset successful!"
	MsgResetLinkError = "Reset link is invalid or has expired!"
	MsgStorageFailure = "Something went wrong. Please try again."
)

// SignupRequest carries the signup form.
type SignupRequest struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
	AcceptedTerms   bool
}

// DemoKind selects a seeded demo account.
type DemoKind string

// Demo accounts.
const (
	DemoFree DemoKind = "free"
	DemoPro  DemoKind = "pro"
)

// SessionManager runs the authentication flows of one browser context.
type SessionManager struct {
	dir       *Directory
	tiers     Tiers
	notifier  Notifier
	navigator Navigator
	delay     Delay
	now       func() time.Time
	logger    *slog.Logger
	resets    *ResetLedger  // optional, can be nil
	delivery  ResetDelivery // used only with resets
	guard     *PageGuard
}

// SessionManagerOption configures a SessionManager during construction.
type SessionManagerOption func(*SessionManager)

// WithNotifier sets where notices go. Defaults to discarding them.
func WithNotifier(n Notifier) SessionManagerOption {
	return func(m *SessionManager) {
		m.notifier = n
	}
}

// WithNavigator sets where navigation requests go. Defaults to discarding them.
func WithNavigator(n Navigator) SessionManagerOption {
	return func(m *SessionManager) {
		m.navigator = n
	}
}

// WithDelay sets the latency hook run before login, signup and reset work.
func WithDelay(d Delay) SessionManagerOption {
	return func(m *SessionManager) {
		m.delay = d
	}
}

// WithClock overrides the clock used for login times.
func WithClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		m.logger = l
	}
}

// WithResetLedger enables token-bound password resets. Without a ledger
// ForgotPassword only checks the email and ResetPassword only validates input.
func WithResetLedger(l *ResetLedger, d ResetDelivery) SessionManagerOption {
	return func(m *SessionManager) {
		m.resets = l
		m.delivery = d
	}
}

// WithPageGuard replaces the default protected page set.
func WithPageGuard(g *PageGuard) SessionManagerOption {
	return func(m *SessionManager) {
		m.guard = g
	}
}

// NewSessionManager creates a SessionManager for the browser context owning tiers.
func NewSessionManager(dir *Directory, tiers Tiers, opts ...SessionManagerOption) (*SessionManager, error) {
	if dir == nil {
		return nil, oops.Code("AUTH_INVALID_MANAGER").Errorf("directory cannot be nil")
	}
	if tiers.Durable == nil || tiers.Ephemeral == nil {
		return nil, oops.Code("AUTH_INVALID_MANAGER").Errorf("both storage tiers are required")
	}
	guard, err := NewPageGuard(DefaultProtectedPages...)
	if err != nil {
		return nil, err
	}
	m := &SessionManager{
		dir:       dir,
		tiers:     tiers,
		notifier:  discardNotifier{},
		navigator: discardNavigator{},
		delay:     NoDelay,
		now:       time.Now,
		logger:    slog.Default(),
		guard:     guard,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.delivery == nil {
		m.delivery = LogResetDelivery{Logger: m.logger}
	}
	return m, nil
}

func (m *SessionManager) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "auth."+operation, trace.WithAttributes(attrs...))
}

// finish records the outcome of operation. Rejections are expected results
// and are not logged as failures.
func (m *SessionManager) finish(ctx context.Context, span trace.Span, operation string, err error) {
	outcome := outcomeOf(err)
	observability.RecordAuthOperation(operation, outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == observability.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		errutil.LogErrorContext(ctx, m.logger, "auth operation failed", err, "operation", operation)
	}
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case IsStorageError(err):
		return observability.OutcomeError
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidResetToken),
		errors.Is(err, ErrResetTokenExpired),
		errors.Is(err, ErrNotImplemented):
		return observability.OutcomeRejected
	default:
		if _, ok := ReasonOf(err); ok {
			return observability.OutcomeRejected
		}
		return observability.OutcomeError
	}
}

func (m *SessionManager) notify(ctx context.Context, msg string, sev Severity) {
	m.notifier.Notify(ctx, Notice{Message: msg, Severity: sev})
}

func (m *SessionManager) reject(ctx context.Context, r Reason) error {
	m.notify(ctx, r.Message(), SeverityError)
	return validationFailed(r)
}

func (m *SessionManager) storageFailure(ctx context.Context, err error) error {
	m.notify(ctx, MsgStorageFailure, SeverityError)
	return err
}

func (m *SessionManager) save(ctx context.Context, tier Tier, s *Session) error {
	if err := writeSession(ctx, m.tiers, tier, s); err != nil {
		return err
	}
	observability.RecordSessionWrite(tier.String())
	return nil
}

// Login authenticates email/password. On success the session goes to the
// durable tier when remember is set and to the ephemeral tier otherwise.
// Wrong credentials return ErrInvalidCredentials.
func (m *SessionManager) Login(ctx context.Context, email, password string, remember bool) (s *Session, err error) {
	ctx, span := m.start(ctx, "login", attribute.Bool("auth.remember", remember))
	defer func() { m.finish(ctx, span, "login", err) }()

	if err := m.delay(ctx); err != nil {
		return nil, oops.Code("AUTH_CANCELLED").Wrap(err)
	}

	account, err := m.dir.FindByCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.notify(ctx, MsgLoginFailed, SeverityError)
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		return nil, m.storageFailure(ctx, err)
	}

	tier := TierEphemeral
	if remember {
		tier = TierDurable
	}
	return m.establish(ctx, account, tier, MsgLoginSuccess)
}

func (m *SessionManager) establish(ctx context.Context, account *Account, tier Tier, msg string) (*Session, error) {
	now := m.now()
	s := NewSession(account, &now)
	if err := m.save(ctx, tier, s); err != nil {
		return nil, m.storageFailure(ctx, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("auth.tier", tier.String()))
	m.notify(ctx, msg, SeveritySuccess)
	m.navigator.Navigate(ctx, DestinationDashboard)
	return s, nil
}

// Signup validates req, creates an unprivileged account and signs it in
// through the durable tier. Checks run in order and stop at the first
// failure: password confirmation, password length, terms, email uniqueness.
func (m *SessionManager) Signup(ctx context.Context, req SignupRequest) (s *Session, err error) {
	ctx, span := m.start(ctx, "signup")
	defer func() { m.finish(ctx, span, "signup", err) }()

	switch {
	case req.Password != req.ConfirmPassword:
		return nil, m.reject(ctx, ReasonPasswordMismatch)
	case passwordLength(req.Password) < MinPasswordLength:
		return nil, m.reject(ctx, ReasonPasswordTooShort)
	case !req.AcceptedTerms:
		return nil, m.reject(ctx, ReasonTermsNotAccepted)
	}
	taken, err := m.dir.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, m.storageFailure(ctx, err)
	}
	if taken {
		return nil, m.reject(ctx, ReasonEmailTaken)
	}

	if err := m.delay(ctx); err != nil {
		return nil, oops.Code("AUTH_CANCELLED").Wrap(err)
	}

	hash, err := m.dir.Hasher().Hash(req.Password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	account, err := NewAccount(req.FullName, req.Email, hash, m.now())
	if err != nil {
		return nil, err
	}
	if err := m.dir.Register(ctx, account); err != nil {
		if r, ok := ReasonOf(err); ok {
			m.notify(ctx, r.Message(), SeverityError)
			return nil, err
		}
		return nil, m.storageFailure(ctx, err)
	}

	s = NewSession(account, nil)
	if err := m.save(ctx, TierDurable, s); err != nil {
		return nil, m.storageFailure(ctx, err)
	}
	m.notify(ctx, MsgSignupSuccess, SeveritySuccess)
	m.navigator.Navigate(ctx, DestinationDashboard)
	return s, nil
}

// CurrentSession returns the active session, preferring the durable tier.
// It returns (nil, TierNone, nil) when the context is anonymous.
func (m *SessionManager) CurrentSession(ctx context.Context) (*Session, Tier, error) {
	for _, tier := range []Tier{TierDurable, TierEphemeral} {
		s, err := readSession(ctx, m.tiers.store(tier), tier)
		if err != nil {
			return nil, TierNone, err
		}
		if s != nil {
			return s, tier, nil
		}
	}
	return nil, TierNone, nil
}

// State reports the authentication state of the context.
func (m *SessionManager) State(ctx context.Context) (State, error) {
	_, tier, err := m.CurrentSession(ctx)
	if err != nil {
		return StateAnonymous, err
	}
	return StateOf(tier), nil
}

// Guard decides whether dest may be shown. Unprotected destinations are
// allowed without touching storage. A protected destination without a
// session redirects to the login page.
func (m *SessionManager) Guard(ctx context.Context, dest Destination) (Destination, bool, error) {
	if !m.guard.Protects(dest) {
		return dest, true, nil
	}
	s, _, err := m.CurrentSession(ctx)
	if err != nil {
		return DestinationLogin, false, err
	}
	if s == nil {
		return DestinationLogin, false, nil
	}
	return dest, true, nil
}

// Logout removes the session from both tiers and returns to the landing page.
func (m *SessionManager) Logout(ctx context.Context) (err error) {
	ctx, span := m.start(ctx, "logout")
	defer func() { m.finish(ctx, span, "logout", err) }()

	var errs []error
	for _, tier := range []Tier{TierDurable, TierEphemeral} {
		if rmErr := m.tiers.store(tier).Remove(ctx, CurrentUserKey); rmErr != nil {
			errs = append(errs, storageFailed("STORAGE_UNAVAILABLE", "clear_session_"+tier.String(), rmErr))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.navigator.Navigate(ctx, DestinationLanding)
	return nil
}

// ForgotPassword starts a reset for email. An unknown email returns
// ErrNotFound. With a ResetLedger configured a token is issued and handed to
// the ResetDelivery; no account is changed.
func (m *SessionManager) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := m.start(ctx, "forgot_password")
	defer func() { m.finish(ctx, span, "forgot_password", err) }()

	account, err := m.dir.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.notify(ctx, MsgEmailNotFound, SeverityError)
			return err
		}
		return m.storageFailure(ctx, err)
	}
	if m.resets == nil {
		m.notify(ctx, MsgResetSent, SeveritySuccess)
		return nil
	}

	token, err := m.resets.Issue(ctx, account.ID)
	if err != nil {
		return m.storageFailure(ctx, err)
	}
	if err := m.delivery.DeliverReset(ctx, account.Email, token); err != nil {
		return oops.Code("RESET_DELIVERY_FAILED").With("account_id", account.ID).Wrap(err)
	}
	m.notify(ctx, MsgResetSent, SeveritySuccess)
	return nil
}

// ResetPassword sets a new password for the account bound to token.
// Without a ResetLedger only the confirmation is checked and no account is
// changed. With one, the length is checked too before the token is redeemed.
func (m *SessionManager) ResetPassword(ctx context.Context, token, password, confirm string) (err error) {
	ctx, span := m.start(ctx, "reset_password")
	defer func() { m.finish(ctx, span, "reset_password", err) }()

	switch {
	case password != confirm:
		return m.reject(ctx, ReasonPasswordMismatch)
	case m.resets != nil && passwordLength(password) < MinPasswordLength:
		return m.reject(ctx, ReasonPasswordTooShort)
	}

	if err := m.delay(ctx); err != nil {
		return oops.Code("AUTH_CANCELLED").Wrap(err)
	}

	if m.resets != nil {
		ticket, err := m.resets.Lookup(ctx, token)
		if err != nil {
			if IsStorageError(err) {
				return m.storageFailure(ctx, err)
			}
			m.notify(ctx, MsgResetLinkError, SeverityError)
			return err
		}
		hash, err := m.dir.Hasher().Hash(password)
		if err != nil {
			return oops.Code("AUTH_HASH_FAILED").Wrap(err)
		}
		if err := m.dir.UpdatePassword(ctx, ticket.AccountID, hash); err != nil {
			if errors.Is(err, ErrNotFound) {
				m.notify(ctx, MsgResetLinkError, SeverityError)
				return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
			}
			return m.storageFailure(ctx, err)
		}
		if err := m.resets.DeleteByAccount(ctx, ticket.AccountID); err != nil {
			m.logger.WarnContext(ctx, "failed to drop redeemed reset tickets",
				"account_id", ticket.AccountID, "error", err)
		}
	}

	m.notify(ctx, MsgResetSuccess, SeveritySuccess)
	m.navigator.Navigate(ctx, DestinationLogin)
	return nil
}

// DemoLogin signs in as a seeded demo account without remembering it.
func (m *SessionManager) DemoLogin(ctx context.Context, kind DemoKind) (*Session, error) {
	switch kind {
	case DemoFree:
		return m.Login(ctx, DemoFreeEmail, DemoPassword, false)
	case DemoPro:
		return m.Login(ctx, DemoProEmail, DemoPassword, false)
	default:
		return nil, oops.Code("AUTH_UNKNOWN_DEMO").With("kind", string(kind)).Errorf("unknown demo account %q", kind)
	}
}

// SocialLogin announces that third-party sign-in is not available.
func (m *SessionManager) SocialLogin(ctx context.Context, provider string) (err error) {
	ctx, span := m.start(ctx, "social_login", attribute.String("auth.provider", provider))
	defer func() { m.finish(ctx, span, "social_login", err) }()

	m.notify(ctx, fmt.Sprintf("Login with %s coming soon!", provider), SeverityInfo)
	return oops.Code("AUTH_SOCIAL_UNAVAILABLE").With("provider", provider).Wrap(ErrNotImplemented)
}
