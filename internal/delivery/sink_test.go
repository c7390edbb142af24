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

package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywallet/ingestion/internal/models"
)

type recordingSink struct {
	mu  sync.Mutex
	got []models.ParsedTransaction
	err error
}

func (r *recordingSink) Deliver(_ context.Context, tx models.ParsedTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, tx)
	return r.err
}

type memFilter struct {
	seen      map[string]bool
	err       error
	forgotten []string
}

func (m *memFilter) IsNew(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memFilter) Forget(_ context.Context, key string) error {
	m.forgotten = append(m.forgotten, key)
	delete(m.seen, key)
	return nil
}

func sampleTx(amount string) models.ParsedTransaction {
	return models.ParsedTransaction{
		Type:          models.TypeExpense,
		Amount:        decimal.RequireFromString(amount),
		OccurredAt:    time.Date(2024, 11, 3, 14, 15, 0, 0, time.UTC),
		Category:      models.CategoryMpesa,
		PaymentMethod: models.PaymentMethodMpesa,
		Counterparty:  "Jane Doe",
	}
}

func TestFunc(t *testing.T) {
	var got models.ParsedTransaction
	s := Func(func(_ context.Context, tx models.ParsedTransaction) error {
		got = tx
		return nil
	})

	require.NoError(t, s.Deliver(context.Background(), sampleTx("10")))
	assert.Equal(t, "Jane Doe", got.Counterparty)
	assert.NoError(t, Discard.Deliver(context.Background(), sampleTx("10")))
}

func TestMulti_AttemptsAllSinks(t *testing.T) {
	a := &recordingSink{err: errors.New("ledger down")}
	b := &recordingSink{}
	c := &recordingSink{err: errors.New("queue down")}

	err := Multi{a, b, c}.Deliver(context.Background(), sampleTx("10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink 0: ledger down")
	assert.Contains(t, err.Error(), "sink 2: queue down")

	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Len(t, c.got, 1)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Deliver(context.Background(), sampleTx("10")))
}

func TestDedup_SkipsSeen(t *testing.T) {
	next := &recordingSink{}
	d := NewDedup(&memFilter{seen: map[string]bool{}}, next)

	require.NoError(t, d.Deliver(context.Background(), sampleTx("10")))
	assert.ErrorIs(t, d.Deliver(context.Background(), sampleTx("10.00")), ErrDuplicate)
	require.NoError(t, d.Deliver(context.Background(), sampleTx("11")))

	require.Len(t, next.got, 2)
	assert.Equal(t, "11", next.got[1].Amount.String())
}

func TestDedup_FilterErrorForwards(t *testing.T) {
	next := &recordingSink{}
	d := NewDedup(&memFilter{err: errors.New("redis: connection refused")}, next)

	require.NoError(t, d.Deliver(context.Background(), sampleTx("10")))
	assert.Len(t, next.got, 1)
}

func TestDedup_PropagatesSinkError(t *testing.T) {
	next := &recordingSink{err: errors.New("boom")}
	filter := &memFilter{seen: map[string]bool{}}
	d := NewDedup(filter, next)

	assert.EqualError(t, d.Deliver(context.Background(), sampleTx("10")), "boom")
	assert.Equal(t, []string{sampleTx("10").Fingerprint()}, filter.forgotten)
}

func TestDedup_RetriesAfterSinkFailure(t *testing.T) {
	filter := &memFilter{seen: map[string]bool{}}
	tx := sampleTx("10")

	failing := NewDedup(filter, Func(func(context.Context, models.ParsedTransaction) error {
		return errors.New("no active session")
	}))
	require.Error(t, failing.Deliver(context.Background(), tx))

	healthy := &recordingSink{}
	require.NoError(t, NewDedup(filter, healthy).Deliver(context.Background(), tx))
	assert.Len(t, healthy.got, 1, "a failed hand-off is retried on the next pass")

	assert.ErrorIs(t, NewDedup(filter, healthy).Deliver(context.Background(), tx), ErrDuplicate)
	assert.Len(t, healthy.got, 1)
}

func TestDedup_FilterErrorDoesNotForget(t *testing.T) {
	filter := &memFilter{err: errors.New("redis down")}
	d := NewDedup(filter, &recordingSink{err: errors.New("boom")})

	assert.EqualError(t, d.Deliver(context.Background(), sampleTx("10")), "boom")
	assert.Empty(t, filter.forgotten)
}
