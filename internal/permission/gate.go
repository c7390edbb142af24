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

// Package permission negotiates access to the device SMS inbox.
//
// Only platforms with a runtime SMS permission model (Android) are prompted.
// Every other platform is treated as "nothing to read": the gate reports
// success and the retriever simply finds no messages.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ReadSMS is the Android permission identifier for reading the inbox.
const ReadSMS = "android.permission.READ_SMS"

// Status values reported by the device bridge.
const (
	StatusGranted       = "granted"
	StatusDenied        = "denied"
	StatusNeverAskAgain = "never_ask_again"
	StatusUnsupported   = "unsupported"
)

var (
	// ErrDenied means the user declined the prompt. Callers skip ingestion.
	ErrDenied = errors.New("sms permission denied")

	// ErrPlatformUnsupported means the platform has no SMS inbox access.
	// It is reported as success with nothing to read.
	ErrPlatformUnsupported = errors.New("sms reading unsupported on this platform")
)

// State is the process-wide knowledge about the SMS permission.
type State int

const (
	StateUnknown State = iota
	StateGranted
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Rationale is the text shown alongside the OS prompt.
type Rationale struct {
	Title          string `json:"title"`
	Message        string `json:"message"`
	ButtonNeutral  string `json:"buttonNeutral,omitempty"`
	ButtonNegative string `json:"buttonNegative,omitempty"`
	ButtonPositive string `json:"buttonPositive,omitempty"`
}

// DefaultRationale is shown when asking for ReadSMS.
var DefaultRationale = Rationale{
	Title:          "SMS Permission",
	Message:        "This app needs access to your SMS to read transaction messages.",
	ButtonNeutral:  "Ask Me Later",
	ButtonNegative: "Cancel",
	ButtonPositive: "OK",
}

// Acknowledgement dialog shown once after a denial.
const (
	deniedTitle   = "Permission required"
	deniedMessage = "You need to enable SMS permissions in your settings to read transaction messages."
	deniedButton  = "OK"
)

// Prompter talks to the platform permission API.
type Prompter interface {
	PermissionStatus(ctx context.Context, permission string) (string, error)
	RequestPermission(ctx context.Context, permission string, rationale Rationale) (string, error)
}

// Notifier displays an informational dialog on the device.
type Notifier interface {
	Alert(ctx context.Context, title, message string, buttons []string) error
}

// Gate decides whether the ingestion pass may read the inbox.
type Gate struct {
	platform  string
	prompter  Prompter
	notifier  Notifier
	rationale Rationale

	mu      sync.Mutex
	state   State
	alerted bool
}

// GateConfig holds the dependencies for a Gate.
type GateConfig struct {
	Platform  string // "android", "ios", ...
	Prompter  Prompter
	Notifier  Notifier // optional
	Rationale *Rationale
}

// NewGate creates a permission gate for the given platform.
func NewGate(cfg GateConfig) *Gate {
	rationale := DefaultRationale
	if cfg.Rationale != nil {
		rationale = *cfg.Rationale
	}
	return &Gate{
		platform:  strings.ToLower(strings.TrimSpace(cfg.Platform)),
		prompter:  cfg.Prompter,
		notifier:  cfg.Notifier,
		rationale: rationale,
	}
}

// SupportsRuntimePermission reports whether a platform prompts for SMS access.
func SupportsRuntimePermission(platform string) bool {
	return strings.EqualFold(strings.TrimSpace(platform), "android")
}

// State returns what is currently known about the permission.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Request returns true when the inbox may be read. Denials and prompt
// failures return false and are never surfaced as errors.
func (g *Gate) Request(ctx context.Context) bool {
	err := g.Check(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrPlatformUnsupported):
		slog.Debug("sms permission not applicable", "platform", g.platform)
		return true
	case errors.Is(err, ErrDenied):
		slog.Info("sms permission denied, skipping ingestion", "platform", g.platform)
		return false
	default:
		slog.Warn("sms permission request failed", "platform", g.platform, "error", err)
		return false
	}
}

// Check performs the permission negotiation and reports the outcome as an
// error value: nil, ErrDenied, ErrPlatformUnsupported, or a prompt failure.
func (g *Gate) Check(ctx context.Context) error {
	if !SupportsRuntimePermission(g.platform) {
		return ErrPlatformUnsupported
	}
	if g.prompter == nil {
		return fmt.Errorf("no permission prompter configured")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateGranted:
		return nil
	case StateDenied:
		return ErrDenied
	}

	status, err := g.prompter.PermissionStatus(ctx, ReadSMS)
	if err != nil {
		return fmt.Errorf("query permission status: %w", err)
	}

	if status != StatusGranted && status != StatusUnsupported {
		slog.Info("requesting sms permission", "permission", ReadSMS, "status", status)
		status, err = g.prompter.RequestPermission(ctx, ReadSMS, g.rationale)
		if err != nil {
			return fmt.Errorf("request permission: %w", err)
		}
	}

	switch status {
	case StatusGranted:
		g.state = StateGranted
		slog.Info("sms permission granted")
		return nil
	case StatusUnsupported:
		return ErrPlatformUnsupported
	default:
		g.state = StateDenied
		g.explainDenial(ctx)
		return ErrDenied
	}
}

// explainDenial shows the acknowledgement dialog once per process.
// Caller holds g.mu.
func (g *Gate) explainDenial(ctx context.Context) {
	if g.alerted || g.notifier == nil {
		return
	}
	g.alerted = true
	if err := g.notifier.Alert(ctx, deniedTitle, deniedMessage, []string{deniedButton}); err != nil {
		slog.Warn("failed to show permission rationale", "error", err)
	}
}
