// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/holomush/doorman/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type signupRequest struct {
	FullName        string `json:"fullname"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Terms           bool   `json:"terms"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type demoLoginRequest struct {
	Kind string `json:"kind"`
}

type passwordStrengthRequest struct {
	Password string `json:"password"`
}

type passwordStrengthResponse struct {
	Score    int    `json:"score"`
	Strength string `json:"strength"`
	Label    string `json:"label"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.serve(w, r, func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error) {
		return mgr.Login(ctx, req.Email, req.Password, req.Remember)
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.serve(w, r, func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error) {
		return mgr.Signup(ctx, auth.SignupRequest{
			FullName:        req.FullName,
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
			AcceptedTerms:   req.Terms,
		})
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error) {
		return nil, mgr.Logout(ctx)
	})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.serve(w, r, func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error) {
		return nil, mgr.ForgotPassword(ctx, req.Email)
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.serve(w, r, func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error) {
		return nil, mgr.ResetPassword(ctx, req.Token, req.Password, req.ConfirmPassword)
	})
}

func (s *Server) handleDemoLogin(w http.ResponseWriter, r *http.Request) {
	var req demoLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.serve(w, r, func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error) {
		return mgr.DemoLogin(ctx, auth.DemoKind(req.Kind))
	})
}

func (s *Server) handleSocialLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	s.serve(w, r, func(ctx context.Context, mgr *auth.SessionManager) (*auth.Session, error) {
		return nil, mgr.SocialLogin(ctx, provider)
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	mgr, _, err := s.manager(w, r)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	sess, tier, err := mgr.CurrentSession(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), (&outcome{}).response(err))
		return
	}
	resp := apiResponse{OK: true, Session: sess, State: auth.StateOf(tier).String()}
	if sess != nil {
		resp.Tier = tier.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req passwordStrengthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	strength := auth.PasswordStrength(req.Password)
	writeJSON(w, http.StatusOK, passwordStrengthResponse{
		Score:    auth.PasswordScore(req.Password),
		Strength: strength.String(),
		Label:    strength.Label(),
	})
}

// handlePage runs the page guard, then serves the page.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name, clean, canonical := pageName(r)
	if !canonical {
		target := clean
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	mgr, _, err := s.manager(w, r)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	dest, ok, err := mgr.Guard(r.Context(), name)
	if err != nil {
		writeJSON(w, statusFor(err), (&outcome{}).response(err))
		return
	}
	if !ok {
		http.Redirect(w, r, "/"+string(dest), http.StatusSeeOther)
		return
	}

	if s.staticDir != "" {
		s.serveStatic(w, r, name)
		return
	}
	sess, _, err := mgr.CurrentSession(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), (&outcome{}).response(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": string(name), "session": sess})
}

// serveStatic writes one file from the static directory. http.FileServer
// is avoided because it redirects index.html to the directory.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, dest auth.Destination) {
	f, err := http.Dir(s.staticDir).Open("/" + string(dest))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
