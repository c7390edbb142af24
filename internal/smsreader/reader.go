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

// Package smsreader retrieves unread messages from a single sender through
// the device SMS bridge.
package smsreader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mywallet/ingestion/internal/device"
	"github.com/mywallet/ingestion/internal/models"
)

// DefaultSender is the short code M-Pesa confirmations are sent from.
const DefaultSender = "MPESA"

// Store is the slice of the bridge API the reader needs.
type Store interface {
	ListSMS(ctx context.Context, filter device.Filter) ([]device.SMS, error)
	MarkRead(ctx context.Context, ids []string) error
}

// NoStore stands in for the bridge on platforms without an SMS inbox.
// It never returns messages.
type NoStore struct{}

// ListSMS returns no messages.
func (NoStore) ListSMS(context.Context, device.Filter) ([]device.SMS, error) { return nil, nil }

// MarkRead does nothing.
func (NoStore) MarkRead(context.Context, []string) error { return nil }

// RetrievalError wraps any failure to query the SMS store.
type RetrievalError struct {
	Mailbox models.Mailbox
	Address string
	Err     error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s messages from %q: %v", e.Mailbox, e.Address, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Reader lists unread messages from the SMS store.
type Reader struct {
	store Store
}

// New creates a reader over the given store.
func New(store Store) *Reader {
	return &Reader{store: store}
}

// ListMessages returns the unread messages in mailbox whose sender is
// exactly address. The bridge filter is re-applied locally, so a bridge
// that ignores part of the query cannot leak read or foreign messages.
func (r *Reader) ListMessages(ctx context.Context, mailbox models.Mailbox, address string) ([]models.RawMessage, error) {
	records, err := r.store.ListSMS(ctx, device.Unread(mailbox, address))
	if errors.Is(err, device.ErrUnsupported) {
		slog.Debug("device has no sms store, nothing to read",
			"mailbox", mailbox,
			"sender", address,
		)
		return []models.RawMessage{}, nil
	}
	if err != nil {
		return nil, &RetrievalError{Mailbox: mailbox, Address: address, Err: err}
	}

	msgs := make([]models.RawMessage, 0, len(records))
	dropped := 0
	for _, rec := range records {
		msg := rec.RawMessage()
		if msg.Address != address || msg.Read || msg.Mailbox != mailbox {
			dropped++
			continue
		}
		msgs = append(msgs, msg)
	}

	if dropped > 0 {
		slog.Debug("dropped messages outside filter",
			"mailbox", mailbox,
			"sender", address,
			"dropped", dropped,
		)
	}

	slog.Info("retrieved sms messages",
		"mailbox", mailbox,
		"sender", address,
		"count", len(msgs),
	)

	return msgs, nil
}

// MarkRead flags the given messages as read on the device.
func (r *Reader) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.store.MarkRead(ctx, ids); err != nil {
		return fmt.Errorf("mark %d messages read: %w", len(ids), err)
	}
	return nil
}
