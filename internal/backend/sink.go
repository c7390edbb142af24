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

package backend

import (
	"context"
	"errors"

	"github.com/mywallet/ingestion/internal/models"
	"github.com/mywallet/ingestion/internal/session"
)

// ErrNoSession is returned when no user is signed in.
var ErrNoSession = errors.New("no active session")

// Sink posts delivered transactions to the backend for the current user.
type Sink struct {
	client   *Client
	sessions *session.Manager
}

// NewSink creates a backend delivery sink.
func NewSink(client *Client, sessions *session.Manager) *Sink {
	return &Sink{client: client, sessions: sessions}
}

// Deliver creates the transaction under the signed-in user.
func (s *Sink) Deliver(ctx context.Context, tx models.ParsedTransaction) error {
	sess, ok := s.sessions.Current()
	if !ok || sess.UserID == "" {
		return ErrNoSession
	}
	return s.client.CreateTransaction(ctx, NewTransactionRequest(sess.UserID, tx))
}
