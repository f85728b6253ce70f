// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/holomush/doorman/internal/auth"
	"github.com/holomush/doorman/pkg/errutil"
)

// outcome collects what a SessionManager told the user during one request.
type outcome struct {
	mu       sync.Mutex
	notice   *auth.Notice
	redirect auth.Destination
}

func (o *outcome) Notify(_ context.Context, n auth.Notice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notice = &n
}

func (o *outcome) Navigate(_ context.Context, to auth.Destination) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.redirect = to
}

// apiResponse is the body of every /api response.
type apiResponse struct {
	OK       bool          `json:"ok"`
	Message  string        `json:"message,omitempty"`
	Severity string        `json:"severity,omitempty"`
	Redirect string        `json:"redirect,omitempty"`
	Session  *auth.Session `json:"session,omitempty"`
	Tier     string        `json:"tier,omitempty"`
	State    string        `json:"state,omitempty"`
	Error    string        `json:"error,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

func (o *outcome) response(err error) apiResponse {
	o.mu.Lock()
	defer o.mu.Unlock()
	resp := apiResponse{OK: err == nil}
	if o.notice != nil {
		resp.Message = o.notice.Message
		resp.Severity = string(o.notice.Severity)
	}
	if o.redirect != "" {
		resp.Redirect = "/" + string(o.redirect)
	}
	if err != nil {
		resp.Error = errutil.Code(err)
		if resp.Error == "" {
			resp.Error = "INTERNAL"
		}
		if r, ok := auth.ReasonOf(err); ok {
			resp.Reason = string(r)
		}
	}
	return resp
}

// statusFor maps an auth error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case auth.IsStorageError(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidResetToken), errors.Is(err, auth.ErrResetTokenExpired):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotImplemented):
		return http.StatusNotImplemented
	}
	if _, ok := auth.ReasonOf(err); ok {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client may have gone away
}
