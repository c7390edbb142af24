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

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mywallet/ingestion/internal/models"
)

// PostgresStore keeps the ledger in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates a ledger on an existing pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("ledger store initialised", "driver", "postgres")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sms_transactions (
			id             BIGSERIAL PRIMARY KEY,
			fingerprint    TEXT NOT NULL UNIQUE,
			type           TEXT NOT NULL,
			amount         NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
			occurred_at    TIMESTAMPTZ NOT NULL,
			category       TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			counterparty   TEXT DEFAULT '',
			source_id      TEXT DEFAULT '',
			recorded_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sms_tx_occurred ON sms_transactions(occurred_at);
	`)
	return err
}

// Record inserts tx keyed on its fingerprint.
func (s *PostgresStore) Record(ctx context.Context, tx models.ParsedTransaction) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sms_transactions
			(fingerprint, type, amount, occurred_at, category, payment_method, counterparty, source_id)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
		ON CONFLICT (fingerprint) DO NOTHING
	`, tx.Fingerprint(), string(tx.Type), tx.Amount.String(), tx.OccurredAt,
		tx.Category, tx.PaymentMethod, tx.Counterparty, tx.SourceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// List returns up to limit entries, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fingerprint, type, amount::text, occurred_at, category,
		       payment_method, counterparty, source_id, recorded_at
		FROM sms_transactions
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPostgres(rows)
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func collectPostgres(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			typ    string
			amount string
		)
		if err := rows.Scan(
			&e.ID, &e.Fingerprint, &typ, &amount, &e.OccurredAt, &e.Category,
			&e.PaymentMethod, &e.Counterparty, &e.SourceID, &e.RecordedAt,
		); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("entry %d: bad amount %q: %w", e.ID, amount, err)
		}
		e.Type = models.TransactionType(typ)
		e.Amount = d
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
