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

// Package models defines the data structures shared across the ingestion service.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Mailbox selects which SMS folder is queried on the device.
type Mailbox string

const (
	MailboxInbox Mailbox = "inbox"
	MailboxSent  Mailbox = "sent"
)

// TransactionType is the direction of money movement.
type TransactionType string

const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
)

// Fixed labels attached to every transaction recovered from an M-Pesa SMS.
const (
	CategoryMpesa      = "MPESA"
	PaymentMethodMpesa = "M-Pesa"
)

// RawMessage is a single SMS as returned by the device inbox query.
// It lives for one ingestion pass and is never modified.
type RawMessage struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id,omitempty"`
	Address  string    `json:"address"`
	Body     string    `json:"body"`
	Date     time.Time `json:"date"`
	Read     bool      `json:"read"`
	Mailbox  Mailbox   `json:"mailbox"`
}

// ParsedTransaction is a transaction recovered from an M-Pesa notification.
//
// Values are built only by the parser and are treated as immutable once
// handed to a delivery sink. Amount is always strictly positive.
type ParsedTransaction struct {
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"payment_method"`
	Counterparty  string          `json:"counterparty,omitempty"`
	SourceID      string          `json:"source_id,omitempty"`
}

// Fingerprint returns a stable identifier for the transaction. Two parses of
// the same notification always produce the same fingerprint, which makes it
// usable as an idempotency key by downstream stores. The SMS id is part of
// the key when known, so two identical payments in the same minute stay
// distinct.
func (t ParsedTransaction) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s",
		t.Type,
		t.Amount.StringFixed(2),
		t.OccurredAt.Unix(),
		t.Counterparty,
		t.SourceID,
	)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
