// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

// Package web serves the doorman pages and JSON API to browsers.
//
// Each browser is identified by two signed cookies (see Cookies). Their ids
// namespace the durable and ephemeral backends into the two storage tiers of
// an auth.SessionManager built for the request.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/holomush/doorman/internal/auth"
	"github.com/holomush/doorman/internal/kv"
	"github.com/holomush/doorman/internal/observability"
	"github.com/holomush/doorman/pkg/errutil"
)

// Backends are the shared stores the per-browser tiers are carved from.
type Backends struct {
	Durable   kv.Store
	Ephemeral kv.Store
}

// Tiers returns the storage tiers of bc.
func (b Backends) Tiers(bc BrowserContext) auth.Tiers {
	return auth.Tiers{
		Durable:   kv.Scope(b.Durable, "ctx:"+bc.DurableID+":"),
		Ephemeral: kv.Scope(b.Ephemeral, "tab:"+bc.TabID+":"),
	}
}

// Server is the browser-facing HTTP server.
type Server struct {
	addr        string
	staticDir   string
	dir         *auth.Directory
	backends    Backends
	cookies     *Cookies
	managerOpts []auth.SessionManagerOption
	metrics     *observability.Metrics // optional, can be nil
	logger      *slog.Logger

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// Option configures a Server during construction.
type Option func(*Server)

// WithStaticDir serves pages from dir. Without it pages are JSON stubs.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithMetrics counts requests on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithManagerOptions adds options to every per-request SessionManager.
func WithManagerOptions(opts ...auth.SessionManagerOption) Option {
	return func(s *Server) {
		s.managerOpts = append(s.managerOpts, opts...)
	}
}

// NewServer creates a server listening on addr.
func NewServer(addr string, dir *auth.Directory, backends Backends, cookies *Cookies, opts ...Option) (*Server, error) {
	if dir == nil || cookies == nil || backends.Durable == nil || backends.Ephemeral == nil {
		return nil, oops.Code("WEB_INVALID_SERVER").Errorf("directory, cookies and both backends are required")
	}
	s := &Server{
		addr:     addr,
		dir:      dir,
		backends: backends,
		cookies:  cookies,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Post("/login", s.handleLogin)
		r.Post("/signup", s.handleSignup)
		r.Post("/logout", s.handleLogout)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)
		r.Post("/demo-login", s.handleDemoLogin)
		r.Post("/social-login/{provider}", s.handleSocialLogin)
		r.Post("/password-strength", s.handlePasswordStrength)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+string(auth.DestinationLanding), http.StatusSeeOther)
	})
	r.Get("/*", s.handlePage)

	return r
}

// countRequests records each request against its route pattern.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// manager builds the SessionManager for the browser making r.
func (s *Server) manager(w http.ResponseWriter, r *http.Request) (*auth.SessionManager, *outcome, error) {
	bc, err := s.cookies.Bind(w, r)
	if err != nil {
		return nil, nil, err
	}
	out := &outcome{}
	opts := append([]auth.SessionManagerOption{
		auth.WithLogger(s.logger),
	}, s.managerOpts...)
	opts = append(opts, auth.WithNotifier(out), auth.WithNavigator(out))
	mgr, err := auth.NewSessionManager(s.dir, s.backends.Tiers(bc), opts...)
	if err != nil {
		return nil, nil, err
	}
	return mgr, out, nil
}

// serve runs op with a request-scoped manager and writes the JSON result.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error)) {
	mgr, out, err := s.manager(w, r)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	sess, err := op(r.Context(), mgr)
	resp := out.response(err)
	resp.Session = sess
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.LogErrorContext(r.Context(), s.logger, "request failed", err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, apiResponse{Error: "INTERNAL"})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, apiResponse{Error: "INVALID_REQUEST", Message: err.Error()})
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_web_server").Wrap(err)
		}
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// pageName cleans the request path. The guard and the file lookup both use
// the returned name; canonical is false when the cleaned path differs from
// the one requested.
func pageName(r *http.Request) (dest auth.Destination, clean string, canonical bool) {
	clean = path.Clean("/" + r.URL.Path)
	return auth.Destination(strings.TrimPrefix(clean, "/")), clean, clean == r.URL.Path
}
