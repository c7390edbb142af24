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

// Package server exposes the service's HTTP surface: health, the last
// ingestion report, and the session endpoints the companion app calls on
// sign-in and sign-out.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/mywallet/ingestion/internal/ingest"
	"github.com/mywallet/ingestion/internal/otp"
	"github.com/mywallet/ingestion/internal/session"
)

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to a Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Reporter yields the latest ingestion report.
type Reporter interface {
	Report() ingest.RunReport
}

// Accounts is the backend surface used by the session endpoints.
type Accounts interface {
	VerifyOTP(ctx context.Context, userID, code string) error
	HasBalance(ctx context.Context, userID string) bool
	ResendOTP(ctx context.Context, email, userID string) error
	ResendVerificationLink(ctx context.Context, email, userID string) error
}

// Config holds the handler's collaborators. Accounts and Resend are
// optional; without them the verification endpoints return 503.
type Config struct {
	Checks   map[string]Pinger
	Reporter Reporter
	Sessions *session.Manager
	Accounts Accounts
	Resend   *otp.Timer
}

// Handler serves the HTTP API.
type Handler struct {
	checks   map[string]Pinger
	reporter Reporter
	sessions *session.Manager
	accounts Accounts
	resend   *otp.Timer
	mux      *http.ServeMux
}

// NewHandler builds the routes.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		checks:   cfg.Checks,
		reporter: cfg.Reporter,
		sessions: cfg.Sessions,
		accounts: cfg.Accounts,
		resend:   cfg.Resend,
		mux:      http.NewServeMux(),
	}
	if h.sessions == nil {
		h.sessions = session.NewManager()
	}

	h.mux.HandleFunc("GET /health", h.ServeHealth)
	h.mux.HandleFunc("GET /ingest/status", h.ServeStatus)
	h.mux.HandleFunc("GET /session", h.getSession)
	h.mux.HandleFunc("POST /session", h.beginSession)
	h.mux.HandleFunc("DELETE /session", h.endSession)
	h.mux.HandleFunc("POST /session/verify", h.verifyOTP)
	h.mux.HandleFunc("POST /session/resend", h.resendCode)
	h.mux.HandleFunc("GET /session/resend", h.resendState)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeHealth pings every dependency. Any failure returns 503.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "healthy", Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			slog.Warn("health check failed", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, code, resp)
}

// ServeStatus returns the latest ingestion report.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		writeError(w, http.StatusNotFound, "no ingestion pass configured")
		return
	}
	writeJSON(w, http.StatusOK, h.reporter.Report())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Serve starts the HTTP server on the given port. It returns a channel that
// is closed once the listener is bound. The server shuts down when ctx is
// cancelled.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, nil
}
