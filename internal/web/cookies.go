// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/samber/oops"
)

// Cookie names. The durable cookie outlives the browser session; the tab
// cookie carries no Max-Age and dies with it.
const (
	DurableCookie = "doorman_durable"
	TabCookie     = "doorman_tab"
)

const idValue = "id"

// BrowserContext identifies the two storage namespaces of one browser.
type BrowserContext struct {
	DurableID string
	TabID     string
}

// Cookies issues and reads the signed browser context cookies.
type Cookies struct {
	store       *sessions.CookieStore
	rememberFor time.Duration
	secure      bool
}

// NewCookies creates a cookie codec signing with secret.
func NewCookies(secret []byte, rememberFor time.Duration, secure bool) (*Cookies, error) {
	if len(secret) == 0 {
		return nil, oops.Code("WEB_INVALID_COOKIES").Errorf("cookie secret cannot be empty")
	}
	store := sessions.NewCookieStore(secret)
	// The codec rejects values older than its max age, 30 days by default.
	store.MaxAge(int(rememberFor / time.Second))
	return &Cookies{
		store:       store,
		rememberFor: rememberFor,
		secure:      secure,
	}, nil
}

func (c *Cookies) options(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Bind returns the browser context of r, issuing a fresh id for any cookie
// that is missing or fails verification.
func (c *Cookies) Bind(w http.ResponseWriter, r *http.Request) (BrowserContext, error) {
	durable, err := c.bind(w, r, DurableCookie, int(c.rememberFor/time.Second))
	if err != nil {
		return BrowserContext{}, err
	}
	tab, err := c.bind(w, r, TabCookie, 0)
	if err != nil {
		return BrowserContext{}, err
	}
	return BrowserContext{DurableID: durable, TabID: tab}, nil
}

func (c *Cookies) bind(w http.ResponseWriter, r *http.Request, name string, maxAge int) (string, error) {
	// A decode error still yields a usable new session.
	sess, _ := c.store.Get(r, name) //nolint:errcheck // tampered cookies are replaced
	if id, ok := sess.Values[idValue].(string); ok {
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
	}
	id := uuid.NewString()
	sess.Values[idValue] = id
	sess.Options = c.options(maxAge)
	if err := sess.Save(r, w); err != nil {
		return "", oops.Code("WEB_COOKIE_FAILED").With("cookie", name).Wrap(err)
	}
	return id, nil
}
