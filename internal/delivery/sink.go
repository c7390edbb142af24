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

// Package delivery defines where parsed transactions go once the ingestion
// pass has produced them.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mywallet/ingestion/internal/models"
)

// Sink receives parsed transactions one at a time.
type Sink interface {
	Deliver(ctx context.Context, tx models.ParsedTransaction) error
}

// Func adapts a plain function to a Sink.
type Func func(ctx context.Context, tx models.ParsedTransaction) error

// Deliver calls f.
func (f Func) Deliver(ctx context.Context, tx models.ParsedTransaction) error {
	return f(ctx, tx)
}

// Discard drops every transaction.
var Discard Sink = Func(func(context.Context, models.ParsedTransaction) error { return nil })

// Multi fans a transaction out to every sink in order. All sinks are
// attempted; their errors are joined.
type Multi []Sink

// Deliver hands tx to each sink.
func (m Multi) Deliver(ctx context.Context, tx models.ParsedTransaction) error {
	var errs []error
	for i, s := range m {
		if err := s.Deliver(ctx, tx); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ErrDuplicate is returned by Dedup for a transaction that was already
// delivered. Callers treat it as a skip, not a failure.
var ErrDuplicate = errors.New("duplicate transaction")

// Filter reports whether an idempotency key is seen for the first time.
// IsNew marks the key; Forget releases it again.
type Filter interface {
	IsNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Dedup forwards only transactions whose fingerprint has not been seen.
type Dedup struct {
	filter Filter
	next   Sink
}

// NewDedup wraps next with a fingerprint filter.
func NewDedup(filter Filter, next Sink) *Dedup {
	return &Dedup{filter: filter, next: next}
}

// Deliver returns ErrDuplicate for a fingerprint that was already delivered.
// A filter failure is logged and the transaction is forwarded anyway;
// downstream stores are idempotent on the fingerprint. When the downstream
// sink fails the fingerprint is released so a later pass retries it.
func (d *Dedup) Deliver(ctx context.Context, tx models.ParsedTransaction) error {
	fp := tx.Fingerprint()

	isNew, err := d.filter.IsNew(ctx, fp)
	if err != nil {
		slog.Warn("dedup check failed, delivering anyway",
			"fingerprint", fp,
			"error", err,
		)
		return d.next.Deliver(ctx, tx)
	}

	if !isNew {
		slog.Debug("skipping duplicate transaction",
			"fingerprint", fp,
			"source_id", tx.SourceID,
		)
		return ErrDuplicate
	}

	if err := d.next.Deliver(ctx, tx); err != nil {
		if ferr := d.filter.Forget(context.WithoutCancel(ctx), fp); ferr != nil {
			slog.Warn("failed to release dedup key after delivery failure",
				"fingerprint", fp,
				"error", ferr,
			)
		}
		return err
	}
	return nil
}
