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

// Package ledger durably records every transaction handed off by the
// ingestion pass. The fingerprint column is unique, so recording the same
// transaction twice is a no-op.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mywallet/ingestion/internal/models"
)

// Entry is a recorded transaction.
type Entry struct {
	ID            int64
	Fingerprint   string
	Type          models.TransactionType
	Amount        decimal.Decimal
	OccurredAt    time.Time
	Category      string
	PaymentMethod string
	Counterparty  string
	SourceID      string
	RecordedAt    time.Time
}

// Transaction converts the entry back to the pipeline type.
func (e Entry) Transaction() models.ParsedTransaction {
	return models.ParsedTransaction{
		Type:          e.Type,
		Amount:        e.Amount,
		OccurredAt:    e.OccurredAt,
		Category:      e.Category,
		PaymentMethod: e.PaymentMethod,
		Counterparty:  e.Counterparty,
		SourceID:      e.SourceID,
	}
}

// Store is implemented by the Postgres and SQLite ledgers.
type Store interface {
	// Record inserts tx. It reports false when the fingerprint already exists.
	Record(ctx context.Context, tx models.ParsedTransaction) (bool, error)
	// List returns the most recent entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Sink records delivered transactions in a Store.
type Sink struct {
	store Store
}

// NewSink wraps a store as a delivery sink.
func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

// Deliver records tx. Duplicates are not an error.
func (s *Sink) Deliver(ctx context.Context, tx models.ParsedTransaction) error {
	inserted, err := s.store.Record(ctx, tx)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	if !inserted {
		slog.Debug("transaction already in ledger",
			"fingerprint", tx.Fingerprint(),
			"source_id", tx.SourceID,
		)
	}
	return nil
}

// Open selects a ledger backend by driver name ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn)
	case "sqlite", "sqlite3":
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", driver)
	}
}
