// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mywallet/ingestion/internal/backend"
	"github.com/mywallet/ingestion/internal/otp"
	"github.com/mywallet/ingestion/internal/session"
)

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// beginSession records the user the companion app signed in as.
func (h *Handler) beginSession(w http.ResponseWriter, r *http.Request) {
	var s session.Session
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.sessions.Begin(s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.End()
	w.WriteHeader(http.StatusNoContent)
}

type verifyRequest struct {
	UserID string `json:"userId"`
	OTP    string `json:"otp"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type verifyResponse struct {
	Verified   bool   `json:"verified"`
	HasBalance bool   `json:"hasBalance"`
	Message    string `json:"message,omitempty"`
}

// verifyOTP checks the code with the backend and starts a session on
// success. HasBalance tells the app whether to ask for an opening balance.
func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	if h.accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "backend not configured")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "userId and otp are required")
		return
	}

	if err := h.accounts.VerifyOTP(r.Context(), req.UserID, req.OTP); err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			writeJSON(w, http.StatusOK, verifyResponse{Verified: false, Message: apiErr.Message})
			return
		}
		slog.Error("otp verification failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "verification unavailable")
		return
	}

	if err := h.sessions.Begin(session.Session{UserID: req.UserID, Name: req.Name, Email: req.Email}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Verified:   true,
		HasBalance: h.accounts.HasBalance(r.Context(), req.UserID),
	})
}

type resendRequest struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	Kind   string `json:"kind"` // "otp" (default) or "link"
}

type resendResponse struct {
	State    string `json:"state"`
	Status   string `json:"status"`
	TimeLeft int    `json:"timeLeft"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) resendSnapshot() resendResponse {
	return resendResponse{
		State:    h.resend.State().String(),
		Status:   h.resend.Status(),
		TimeLeft: int(h.resend.TimeLeft().Seconds()),
	}
}

func (h *Handler) resendState(w http.ResponseWriter, r *http.Request) {
	if h.resend == nil {
		writeError(w, http.StatusServiceUnavailable, "resend not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.resendSnapshot())
}

// resendCode re-sends the verification code or link, subject to the
// cooldown timer.
func (h *Handler) resendCode(w http.ResponseWriter, r *http.Request) {
	if h.accounts == nil || h.resend == nil {
		writeError(w, http.StatusServiceUnavailable, "resend not configured")
		return
	}

	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "email and userId are required")
		return
	}

	send := h.accounts.ResendOTP
	if req.Kind == "link" {
		send = h.accounts.ResendVerificationLink
	}

	err := h.resend.Resend(r.Context(), func(ctx context.Context) error {
		return send(ctx, req.Email, req.UserID)
	})
	resp := h.resendSnapshot()

	switch {
	case errors.Is(err, otp.ErrNotReady):
		writeJSON(w, http.StatusTooManyRequests, resp)
	case err != nil:
		slog.Warn("resend failed", "user_id", req.UserID, "kind", req.Kind, "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}
