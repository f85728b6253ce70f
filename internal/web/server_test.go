// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/doorman/internal/auth"
	"github.com/holomush/doorman/internal/kv"
	"github.com/holomush/doorman/internal/observability"
	"github.com/holomush/doorman/internal/web"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type harness struct {
	srv       *httptest.Server
	shared    *kv.Memory
	durable   *kv.Memory
	ephemeral *kv.Memory
	metrics   *observability.Metrics
}

func newHarness(t *testing.T, opts ...web.Option) *harness {
	t.Helper()
	h := &harness{
		shared:    kv.NewMemory(),
		durable:   kv.NewMemory(),
		ephemeral: kv.NewMemory(),
		metrics:   observability.NewMetrics(prometheus.NewRegistry()),
	}
	dir, err := auth.NewDirectory(h.shared, auth.WithHasher(auth.NewArgon2idHasherWithParams(1, 8, 1)))
	require.NoError(t, err)
	cookies, err := web.NewCookies(testSecret, 24*time.Hour, false)
	require.NoError(t, err)

	opts = append([]web.Option{web.WithMetrics(h.metrics)}, opts...)
	server, err := web.NewServer("127.0.0.1:0", dir, web.Backends{Durable: h.durable, Ephemeral: h.ephemeral}, cookies, opts...)
	require.NoError(t, err)

	h.srv = httptest.NewServer(server.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

// browser returns a client with its own cookie jar that does not follow
// redirects.
func (h *harness) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type apiBody struct {
	OK       bool          `json:"ok"`
	Message  string        `json:"message"`
	Severity string        `json:"severity"`
	Redirect string        `json:"redirect"`
	Session  *auth.Session `json:"session"`
	Tier     string        `json:"tier"`
	State    string        `json:"state"`
	Error    string        `json:"error"`
	Reason   string        `json:"reason"`
}

func (h *harness) post(t *testing.T, c *http.Client, path string, body any) (int, apiBody) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.Post(h.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return decode(t, resp)
}

func (h *harness) get(t *testing.T, c *http.Client, path string) (int, apiBody) {
	t.Helper()
	resp, err := c.Get(h.srv.URL + path)
	require.NoError(t, err)
	return decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) (int, apiBody) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out apiBody
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

// dropTabCookie simulates closing the browser: cookies without Max-Age go.
func (h *harness) dropTabCookie(t *testing.T, c *http.Client) {
	t.Helper()
	u, err := url.Parse(h.srv.URL)
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	var keep []*http.Cookie
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name != web.TabCookie {
			keep = append(keep, ck)
		}
	}
	jar.SetCookies(u, keep)
	c.Jar = jar
}

func credentials(email, password string, remember bool) map[string]any {
	return map[string]any{"email": email, "password": password, "remember": remember}
}

func TestLogin_RememberedSessionSurvivesBrowserRestart(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, body := h.post(t, c, "/api/login", credentials(auth.DemoFreeEmail, auth.DemoPassword, true))
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.OK)
	assert.Equal(t, auth.MsgLoginSuccess, body.Message)
	assert.Equal(t, "success", body.Severity)
	assert.Equal(t, "/dashboard.html", body.Redirect)
	require.NotNil(t, body.Session)
	assert.Equal(t, auth.DemoFreeEmail, body.Session.Email)

	h.dropTabCookie(t, c)

	status, body = h.get(t, c, "/api/session")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "durable", body.Tier)
	assert.Equal(t, auth.StateAuthenticatedDurable.String(), body.State)
}

func TestLogin_TabSessionEndsWithBrowser(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, _ := h.post(t, c, "/api/login", credentials(auth.DemoProEmail, auth.DemoPassword, false))
	require.Equal(t, http.StatusOK, status)

	_, body := h.get(t, c, "/api/session")
	assert.Equal(t, "ephemeral", body.Tier)
	require.NotNil(t, body.Session)
	assert.True(t, body.Session.Pro)

	h.dropTabCookie(t, c)

	_, body = h.get(t, c, "/api/session")
	assert.Nil(t, body.Session)
	assert.Empty(t, body.Tier)
	assert.Equal(t, auth.StateAnonymous.String(), body.State)
}

// vanishingStore forgets the current user after the first read that found
// it, as if another tab logged out between two reads.
type vanishingStore struct {
	kv.Store
	mu    sync.Mutex
	armed bool
	gone  bool
}

func (v *vanishingStore) arm() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.armed = true
}

func (v *vanishingStore) Get(ctx context.Context, key string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.armed && strings.HasSuffix(key, auth.CurrentUserKey) {
		if v.gone {
			return "", false, nil
		}
		value, ok, err := v.Store.Get(ctx, key)
		v.gone = ok
		return value, ok, err
	}
	return v.Store.Get(ctx, key)
}

func TestSession_StateMatchesReportedTier(t *testing.T) {
	dir, err := auth.NewDirectory(kv.NewMemory(), auth.WithHasher(auth.NewArgon2idHasherWithParams(1, 8, 1)))
	require.NoError(t, err)
	cookies, err := web.NewCookies(testSecret, 24*time.Hour, false)
	require.NoError(t, err)
	durable := &vanishingStore{Store: kv.NewMemory()}
	server, err := web.NewServer("127.0.0.1:0", dir, web.Backends{Durable: durable, Ephemeral: kv.NewMemory()}, cookies)
	require.NoError(t, err)
	h := &harness{srv: httptest.NewServer(server.Handler())}
	t.Cleanup(h.srv.Close)
	c := h.browser(t)

	status, _ := h.post(t, c, "/api/login", credentials(auth.DemoFreeEmail, auth.DemoPassword, true))
	require.Equal(t, http.StatusOK, status)

	durable.arm()
	status, body := h.get(t, c, "/api/session")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, body.Session)
	assert.Equal(t, "durable", body.Tier)
	assert.Equal(t, auth.StateAuthenticatedDurable.String(), body.State)
}

func TestLogin_BrowsersAreIsolated(t *testing.T) {
	h := newHarness(t)
	alice := h.browser(t)
	bob := h.browser(t)

	status, _ := h.post(t, alice, "/api/login", credentials(auth.DemoFreeEmail, auth.DemoPassword, true))
	require.Equal(t, http.StatusOK, status)

	_, body := h.get(t, bob, "/api/session")
	assert.Nil(t, body.Session)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, body := h.post(t, c, "/api/login", credentials(auth.DemoFreeEmail, "wrong", false))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, body.OK)
	assert.Equal(t, auth.MsgLoginFailed, body.Message)
	assert.Equal(t, "error", body.Severity)
	assert.Empty(t, body.Redirect)
	assert.Equal(t, 0, h.durable.Len()+h.ephemeral.Len())
}

func TestSignup_ValidationReason(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, body := h.post(t, c, "/api/signup", map[string]any{
		"fullname":        "Ada",
		"email":           "ada@example.com",
		"password":        "secret1",
		"confirmPassword": "secret2",
		"terms":           true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, string(auth.ReasonPasswordMismatch), body.Reason)
	assert.Equal(t, auth.ReasonPasswordMismatch.Message(), body.Message)
}

func TestSignup_CreatesDurableSession(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, body := h.post(t, c, "/api/signup", map[string]any{
		"fullname":        "Ada Lovelace",
		"email":           "ada@example.com",
		"password":        "engine1",
		"confirmPassword": "engine1",
		"terms":           true,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, auth.MsgSignupSuccess, body.Message)

	h.dropTabCookie(t, c)
	_, body = h.get(t, c, "/api/session")
	require.NotNil(t, body.Session)
	assert.Equal(t, "Ada Lovelace", body.Session.FullName)
	assert.Equal(t, "durable", body.Tier)
}

func TestLogout_ClearsSession(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, _ := h.post(t, c, "/api/demo-login", map[string]any{"kind": "pro"})
	require.Equal(t, http.StatusOK, status)

	status, body := h.post(t, c, "/api/logout", map[string]any{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/index.html", body.Redirect)

	_, body = h.get(t, c, "/api/session")
	assert.Nil(t, body.Session)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, body := h.post(t, c, "/api/forgot-password", map[string]any{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, auth.MsgEmailNotFound, body.Message)

	status, body = h.post(t, c, "/api/forgot-password", map[string]any{"email": auth.DemoFreeEmail})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, auth.MsgResetSent, body.Message)
}

func TestSocialLogin_NotImplemented(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, body := h.post(t, c, "/api/social-login/google", map[string]any{})
	assert.Equal(t, http.StatusNotImplemented, status)
	assert.Equal(t, "Login with google coming soon!", body.Message)
	assert.Equal(t, "info", body.Severity)
}

func TestPasswordStrength(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	payload, err := json.Marshal(map[string]any{"password": "Abcdef1!"})
	require.NoError(t, err)
	resp, err := c.Post(h.srv.URL+"/api/password-strength", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Score    int    `json:"score"`
		Strength string `json:"strength"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 5, out.Score)
	assert.Equal(t, auth.StrengthStrong.String(), out.Strength)
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	resp, err := c.Post(h.srv.URL+"/api/login", "application/json", bytes.NewReader([]byte(`{"email":`)))
	require.NoError(t, err)
	status, body := decode(t, resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_REQUEST", body.Error)
}

func TestGuard_RedirectsAnonymousFromProtectedPages(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	for _, page := range []string{"/dashboard.html", "/profile.html"} {
		resp, err := c.Get(h.srv.URL + page)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, page)
		assert.Equal(t, "/login.html", resp.Header.Get("Location"), page)
	}

	status, _ := h.get(t, c, "/login.html")
	assert.Equal(t, http.StatusOK, status)
}

func TestGuard_AllowsAuthenticated(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	status, _ := h.post(t, c, "/api/demo-login", map[string]any{"kind": "free"})
	require.Equal(t, http.StatusOK, status)

	status, _ = h.get(t, c, "/dashboard.html")
	assert.Equal(t, http.StatusOK, status)
}

func TestGuard_DotSegmentsCannotReachProtectedPages(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "dashboard.html"), []byte("members only"), 0o600))
	h := newHarness(t, web.WithStaticDir(static))
	c := h.browser(t)

	for _, page := range []string{
		"/./dashboard.html",
		"/x/../dashboard.html",
		"/%2e/dashboard.html",
		"//dashboard.html",
		"/dashboard.html/",
	} {
		resp, err := c.Get(h.srv.URL + page)
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, page)
		assert.Equal(t, "/dashboard.html", resp.Header.Get("Location"), page)
		assert.NotContains(t, string(data), "members only", page)
	}

	resp, err := c.Get(h.srv.URL + "/dashboard.html")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login.html", resp.Header.Get("Location"))
}

func TestGuard_CleanedPathServesAfterLogin(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "dashboard.html"), []byte("members only"), 0o600))
	h := newHarness(t, web.WithStaticDir(static))
	c := h.browser(t)
	c.CheckRedirect = nil

	status, _ := h.post(t, c, "/api/demo-login", map[string]any{"kind": "free"})
	require.Equal(t, http.StatusOK, status)

	resp, err := c.Get(h.srv.URL + "/x/../dashboard.html?tab=1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/dashboard.html", resp.Request.URL.Path)
	assert.Equal(t, "tab=1", resp.Request.URL.RawQuery)
	assert.Contains(t, string(data), "members only")
}

func TestStaticPages(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>doorman</h1>"), 0o600))
	h := newHarness(t, web.WithStaticDir(static))
	c := h.browser(t)

	resp, err := c.Get(h.srv.URL + "/index.html")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "doorman")

	resp, err = c.Get(h.srv.URL + "/missing.html")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = c.Get(h.srv.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/index.html", resp.Header.Get("Location"))
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)
	require.NoError(t, h.shared.Set(context.Background(), auth.UsersKey, "{not json"))

	status, body := h.post(t, c, "/api/login", credentials(auth.DemoFreeEmail, auth.DemoPassword, false))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "STORAGE_CORRUPT", body.Error)
}

func TestRequestsAreCounted(t *testing.T) {
	h := newHarness(t)
	c := h.browser(t)

	h.post(t, c, "/api/login", credentials(auth.DemoFreeEmail, "wrong", false))

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RequestsTotal.WithLabelValues("/api/login", "401")), 0)
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	cookies, err := web.NewCookies(testSecret, time.Hour, false)
	require.NoError(t, err)
	_, err = web.NewServer(":0", nil, web.Backends{}, cookies)
	assert.Error(t, err)

	_, err = web.NewCookies(nil, time.Hour, false)
	assert.Error(t, err)
}

func TestServer_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir, err := auth.NewDirectory(kv.NewMemory())
	require.NoError(t, err)
	cookies, err := web.NewCookies(testSecret, time.Hour, false)
	require.NoError(t, err)
	server, err := web.NewServer("127.0.0.1:0", dir, web.Backends{Durable: kv.NewMemory(), Ephemeral: kv.NewMemory()}, cookies)
	require.NoError(t, err)

	errCh, err := server.Start()
	require.NoError(t, err)
	_, err = server.Start()
	assert.Error(t, err, "second start must fail")

	resp, err := http.Get("http://" + server.Addr() + "/index.html")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx))

	for range errCh {
	}
}
