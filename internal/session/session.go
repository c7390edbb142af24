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

// Package session holds the signed-in wallet user for the lifetime of the
// process. Nothing is persisted.
package session

import (
	"errors"
	"log/slog"
	"sync"
)

// Session identifies the signed-in user.
type Session struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Token  string `json:"-"`
}

// ErrMissingUserID is returned by Begin for an anonymous session.
var ErrMissingUserID = errors.New("session requires a user id")

// Manager owns the current session. It is passed by reference to every
// component that needs the user.
type Manager struct {
	mu      sync.RWMutex
	current *Session
}

// NewManager returns a manager with no active session.
func NewManager() *Manager {
	return &Manager{}
}

// Begin replaces the current session.
func (m *Manager) Begin(s Session) error {
	if s.UserID == "" {
		return ErrMissingUserID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &s
	slog.Info("session started", "user_id", s.UserID)
	return nil
}

// End clears the current session. It is a no-op when signed out.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		slog.Info("session ended", "user_id", m.current.UserID)
	}
	m.current = nil
}

// Current returns a copy of the active session.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// UserID returns the active user id, or "" when signed out.
func (m *Manager) UserID() string {
	s, _ := m.Current()
	return s.UserID
}
