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

// Package otp implements the resend cooldown used for one-time codes and
// verification links. The timer is driven by an injected clock and starts
// no goroutines; callers poll it.
package otp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Defaults for the resend cycle.
const (
	DefaultCooldown   = 30 * time.Second
	DefaultStatusHold = 5 * time.Second
)

// Status labels shown next to the resend action.
const (
	StatusResend = "Resend"
	StatusSent   = "Sent!"
	StatusFailed = "Failed!"
)

// ErrNotReady is returned by Resend while the cooldown is running.
var ErrNotReady = errors.New("resend not available yet")

// State is the phase of the resend cycle.
type State int

const (
	StateCountdown State = iota
	StateActive
	StateResending
	StateShowingStatus
)

func (s State) String() string {
	switch s {
	case StateCountdown:
		return "countdown"
	case StateActive:
		return "active"
	case StateResending:
		return "resending"
	case StateShowingStatus:
		return "showing_status"
	default:
		return "unknown"
	}
}

// Config holds the timer settings.
type Config struct {
	Cooldown   time.Duration
	StatusHold time.Duration
	Now        func() time.Time
}

// Timer gates how often a code can be resent.
type Timer struct {
	cooldown   time.Duration
	statusHold time.Duration
	now        func() time.Time

	mu          sync.Mutex
	deadline    time.Time
	resending   bool
	status      string
	statusUntil time.Time
}

// NewTimer creates a timer whose first countdown starts immediately.
func NewTimer(cfg Config) *Timer {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.StatusHold <= 0 {
		cfg.StatusHold = DefaultStatusHold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Timer{
		cooldown:   cfg.Cooldown,
		statusHold: cfg.StatusHold,
		now:        cfg.Now,
	}
	t.deadline = t.now().Add(t.cooldown)
	return t
}

// settle clears an expired status and restarts the countdown from the
// moment it expired. Caller holds t.mu.
func (t *Timer) settle(now time.Time) {
	if t.status != "" && !now.Before(t.statusUntil) {
		t.deadline = t.statusUntil.Add(t.cooldown)
		t.status = ""
	}
}

// State returns the current phase.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(t.now())
}

func (t *Timer) stateLocked(now time.Time) State {
	t.settle(now)
	switch {
	case t.resending:
		return StateResending
	case t.status != "":
		return StateShowingStatus
	case now.Before(t.deadline):
		return StateCountdown
	default:
		return StateActive
	}
}

// TimeLeft returns the remaining countdown, rounded up to whole seconds.
func (t *Timer) TimeLeft() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.stateLocked(now) != StateCountdown {
		return 0
	}
	left := t.deadline.Sub(now)
	if rem := left % time.Second; rem != 0 {
		left += time.Second - rem
	}
	return left
}

// CanResend reports whether Resend would run now.
func (t *Timer) CanResend() bool {
	return t.State() == StateActive
}

// Status returns the label for the resend action.
func (t *Timer) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settle(t.now())
	if t.status == "" {
		return StatusResend
	}
	return t.status
}

// Resend runs send if the cooldown has elapsed and records the outcome.
// The outcome label is held for the status period, then the countdown
// starts again.
func (t *Timer) Resend(ctx context.Context, send func(ctx context.Context) error) error {
	t.mu.Lock()
	if t.stateLocked(t.now()) != StateActive {
		t.mu.Unlock()
		return ErrNotReady
	}
	t.resending = true
	t.mu.Unlock()

	err := send(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.resending = false
	t.status = StatusSent
	if err != nil {
		t.status = StatusFailed
	}
	t.statusUntil = t.now().Add(t.statusHold)
	return err
}
