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

package smsreader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywallet/ingestion/internal/device"
	"github.com/mywallet/ingestion/internal/models"
)

type mockStore struct {
	records []device.SMS
	err     error
	markErr error
	filters []device.Filter
	marked  [][]string
}

func (m *mockStore) ListSMS(_ context.Context, f device.Filter) ([]device.SMS, error) {
	m.filters = append(m.filters, f)
	return m.records, m.err
}

func (m *mockStore) MarkRead(_ context.Context, ids []string) error {
	m.marked = append(m.marked, ids)
	return m.markErr
}

func TestListMessages_FiltersLocally(t *testing.T) {
	store := &mockStore{records: []device.SMS{
		{ID: "1", Address: "MPESA", Body: "Ksh10 paid to A", Type: 1},
		{ID: "2", Address: "MPESA", Body: "already read", Read: 1, Type: 1},
		{ID: "3", Address: "mpesa", Body: "case differs", Type: 1},
		{ID: "4", Address: "MPESA ", Body: "trailing space", Type: 1},
		{ID: "5", Address: "MPESA", Body: "sent box", Type: 2},
		{ID: "6", Address: "MPESA", Body: "You have received Ksh5 from B", Type: 1},
	}}
	r := New(store)

	msgs, err := r.ListMessages(context.Background(), models.MailboxInbox, DefaultSender)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "6", msgs[1].ID)

	require.Len(t, store.filters, 1)
	f := store.filters[0]
	assert.Equal(t, "inbox", f.Box)
	assert.Equal(t, "MPESA", f.Address)
	require.NotNil(t, f.Read)
	assert.Equal(t, 0, *f.Read)
}

func TestListMessages_Empty(t *testing.T) {
	r := New(&mockStore{})

	msgs, err := r.ListMessages(context.Background(), models.MailboxInbox, DefaultSender)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestListMessages_RetrievalError(t *testing.T) {
	bridgeErr := errors.New("bridge returned HTTP 500")
	r := New(&mockStore{err: bridgeErr})

	msgs, err := r.ListMessages(context.Background(), models.MailboxInbox, DefaultSender)
	assert.Nil(t, msgs)

	var rerr *RetrievalError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, models.MailboxInbox, rerr.Mailbox)
	assert.Equal(t, "MPESA", rerr.Address)
	assert.ErrorIs(t, err, bridgeErr)
	assert.Contains(t, err.Error(), `"MPESA"`)
}

func TestListMessages_UnsupportedStoreIsEmpty(t *testing.T) {
	r := New(&mockStore{err: fmt.Errorf("list sms: %w", device.ErrUnsupported)})

	msgs, err := r.ListMessages(context.Background(), models.MailboxInbox, DefaultSender)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestMarkRead(t *testing.T) {
	store := &mockStore{}
	r := New(store)

	require.NoError(t, r.MarkRead(context.Background(), nil))
	assert.Empty(t, store.marked)

	require.NoError(t, r.MarkRead(context.Background(), []string{"1", "6"}))
	assert.Equal(t, [][]string{{"1", "6"}}, store.marked)

	store.markErr = errors.New("bridge offline")
	err := r.MarkRead(context.Background(), []string{"7"})
	assert.ErrorContains(t, err, "mark 1 messages read")
}

func TestNoStore(t *testing.T) {
	r := New(NoStore{})

	msgs, err := r.ListMessages(context.Background(), models.MailboxInbox, DefaultSender)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NoError(t, r.MarkRead(context.Background(), []string{"1"}))
}
