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

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywallet/ingestion/internal/delivery"
	"github.com/mywallet/ingestion/internal/models"
	"github.com/mywallet/ingestion/internal/parser"
)

// --- Mocks ---

type mockGate struct {
	granted bool
	calls   int
}

func (m *mockGate) Request(context.Context) bool {
	m.calls++
	return m.granted
}

type mockRetriever struct {
	msgs    []models.RawMessage
	err     error
	calls   int
	mailbox models.Mailbox
	sender  string
}

func (m *mockRetriever) ListMessages(_ context.Context, mailbox models.Mailbox, sender string) ([]models.RawMessage, error) {
	m.calls++
	m.mailbox = mailbox
	m.sender = sender
	return m.msgs, m.err
}

type mockSink struct {
	mu     sync.Mutex
	got    []models.ParsedTransaction
	failOn string
}

func (m *mockSink) Deliver(_ context.Context, tx models.ParsedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, tx)
	if tx.SourceID == m.failOn {
		return errors.New("store rejected transaction")
	}
	return nil
}

type mockMarker struct {
	ids []string
	err error
}

func (m *mockMarker) MarkRead(_ context.Context, ids []string) error {
	m.ids = append(m.ids, ids...)
	return m.err
}

func inbox() []models.RawMessage {
	return []models.RawMessage{
		{ID: "1", Address: "MPESA", Body: "Ksh1,234.50 paid to Jane Doe on 03/11/2024 at 2:15 PM"},
		{ID: "2", Address: "MPESA", Body: "Your M-PESA OTP is 123456"},
		{ID: "3", Address: "MPESA", Body: "You have received Ksh500 from John Smith on 01/01/2024 at 9:00 AM"},
	}
}

func newOrchestrator(g Gate, r Retriever, s delivery.Sink) *Orchestrator {
	return New(Config{
		Gate:      g,
		Retriever: r,
		Parser:    parser.Default(),
		Sink:      s,
		Sender:    "MPESA",
	})
}

// --- Tests ---

func TestRun_HappyPath(t *testing.T) {
	gate := &mockGate{granted: true}
	ret := &mockRetriever{msgs: inbox()}
	sink := &mockSink{}
	o := newOrchestrator(gate, ret, sink)

	txs := o.Run(context.Background())
	require.Len(t, txs, 2)
	assert.Equal(t, models.TypeExpense, txs[0].Type)
	assert.Equal(t, "1234.5", txs[0].Amount.String())
	assert.Equal(t, models.TypeIncome, txs[1].Type)
	assert.Equal(t, "500", txs[1].Amount.String())

	assert.Equal(t, models.MailboxInbox, ret.mailbox)
	assert.Equal(t, "MPESA", ret.sender)
	assert.Len(t, sink.got, 2)

	rep := o.Report()
	assert.Equal(t, StageDone, rep.Stage)
	assert.True(t, rep.Granted)
	assert.Equal(t, 3, rep.Retrieved)
	assert.Equal(t, 2, rep.Parsed)
	assert.Equal(t, 2, rep.Delivered)
	assert.Zero(t, rep.Failed)
	assert.Empty(t, rep.Err)
	assert.NotEmpty(t, rep.ID)
}

func TestRun_PermissionDeniedNeverRetrieves(t *testing.T) {
	gate := &mockGate{granted: false}
	ret := &mockRetriever{msgs: inbox()}
	sink := &mockSink{}
	o := newOrchestrator(gate, ret, sink)

	txs := o.Run(context.Background())
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
	assert.Equal(t, 1, gate.calls)
	assert.Zero(t, ret.calls)
	assert.Empty(t, sink.got)

	rep := o.Report()
	assert.Equal(t, StageDone, rep.Stage)
	assert.False(t, rep.Granted)
}

func TestRun_RetrievalFailureIsContained(t *testing.T) {
	ret := &mockRetriever{err: errors.New("content provider crashed")}
	sink := &mockSink{}
	o := newOrchestrator(&mockGate{granted: true}, ret, sink)

	txs := o.Run(context.Background())
	assert.Empty(t, txs)
	assert.Empty(t, sink.got)

	rep := o.Report()
	assert.Equal(t, StageDone, rep.Stage)
	assert.Contains(t, rep.Err, "content provider crashed")
}

func TestRun_SinkErrorDoesNotAbort(t *testing.T) {
	sink := &mockSink{failOn: "1"}
	marker := &mockMarker{}
	o := New(Config{
		Gate:      &mockGate{granted: true},
		Retriever: &mockRetriever{msgs: inbox()},
		Parser:    parser.Default(),
		Sink:      sink,
		Sender:    "MPESA",
		Marker:    marker,
	})

	txs := o.Run(context.Background())
	assert.Len(t, txs, 2)
	assert.Len(t, sink.got, 2)

	rep := o.Report()
	assert.Equal(t, 1, rep.Delivered)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []string{"3"}, marker.ids, "only delivered messages are marked read")
}

func TestRun_MarkReadFailureIsLogged(t *testing.T) {
	marker := &mockMarker{err: errors.New("bridge offline")}
	o := New(Config{
		Gate:      &mockGate{granted: true},
		Retriever: &mockRetriever{msgs: inbox()},
		Parser:    parser.Default(),
		Sink:      &mockSink{},
		Sender:    "MPESA",
		Marker:    marker,
	})

	assert.Len(t, o.Run(context.Background()), 2)
	assert.Equal(t, []string{"1", "3"}, marker.ids)
}

func TestRun_OnlyOnce(t *testing.T) {
	gate := &mockGate{granted: true}
	ret := &mockRetriever{msgs: inbox()}
	sink := &mockSink{}
	o := newOrchestrator(gate, ret, sink)

	first := o.Run(context.Background())
	second := o.Run(context.Background())

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gate.calls)
	assert.Equal(t, 1, ret.calls)
	assert.Len(t, sink.got, 2)
}

func TestRun_ConcurrentCallsShareOnePass(t *testing.T) {
	ret := &mockRetriever{msgs: inbox()}
	o := newOrchestrator(&mockGate{granted: true}, ret, &mockSink{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, o.Run(context.Background()), 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ret.calls)
}

func TestRun_CancelledBeforeDeliver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &mockSink{}
	ret := &mockRetriever{msgs: inbox()}
	o := New(Config{
		Gate:      &mockGate{granted: true},
		Retriever: ret,
		Parser: parserFunc(func(msgs []models.RawMessage) []models.ParsedTransaction {
			defer cancel()
			return parser.Default().ParseAll(msgs)
		}),
		Sink:   sink,
		Sender: "MPESA",
	})

	txs := o.Run(ctx)
	assert.Empty(t, txs)
	assert.Empty(t, sink.got)

	rep := o.Report()
	assert.Equal(t, 2, rep.Parsed)
	assert.Equal(t, StageDone, rep.Stage)
	assert.Equal(t, context.Canceled.Error(), rep.Err)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ret := &mockRetriever{msgs: inbox()}
	o := newOrchestrator(&mockGate{granted: true}, ret, &mockSink{})

	assert.Empty(t, o.Run(ctx))
	assert.Zero(t, ret.calls)
}

func TestRun_NoMessages(t *testing.T) {
	o := newOrchestrator(&mockGate{granted: true}, &mockRetriever{}, &mockSink{})

	txs := o.Run(context.Background())
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
	assert.Equal(t, StageDone, o.Report().Stage)
}

func TestRun_NilGateAndSink(t *testing.T) {
	o := New(Config{
		Retriever: &mockRetriever{msgs: inbox()},
		Parser:    parser.Default(),
		Sender:    "MPESA",
	})
	assert.Len(t, o.Run(context.Background()), 2)
}

func TestReport_BeforeRun(t *testing.T) {
	o := newOrchestrator(&mockGate{}, &mockRetriever{}, &mockSink{})
	rep := o.Report()
	assert.Equal(t, StageStart, rep.Stage)
	assert.Zero(t, rep.Elapsed)
}

func TestReport_JSON(t *testing.T) {
	now := time.Date(2024, 11, 3, 12, 0, 0, 0, time.UTC)
	o := New(Config{
		Gate:      &mockGate{granted: true},
		Retriever: &mockRetriever{msgs: inbox()},
		Parser:    parser.Default(),
		Sender:    "MPESA",
		Now:       func() time.Time { return now },
	})
	o.Run(context.Background())

	data, err := json.Marshal(o.Report())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "DONE", decoded["stage"])
	assert.Equal(t, float64(2), decoded["delivered"])
	assert.NotContains(t, decoded, "error")
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "START", StageStart.String())
	assert.Equal(t, "PERMISSION_CHECK", StagePermissionCheck.String())
	assert.Equal(t, "RETRIEVE", StageRetrieve.String())
	assert.Equal(t, "PARSE", StageParse.String())
	assert.Equal(t, "DELIVER", StageDeliver.String())
	assert.Equal(t, "DONE", StageDone.String())
	assert.Equal(t, "UNKNOWN", Stage(42).String())
}

type parserFunc func([]models.RawMessage) []models.ParsedTransaction

func (f parserFunc) ParseAll(msgs []models.RawMessage) []models.ParsedTransaction { return f(msgs) }

type seenFilter map[string]bool

func (f seenFilter) IsNew(_ context.Context, key string) (bool, error) {
	if f[key] {
		return false, nil
	}
	f[key] = true
	return true, nil
}

func (f seenFilter) Forget(_ context.Context, key string) error {
	delete(f, key)
	return nil
}

func TestRun_IdenticalPaymentsFromSeparateMessages(t *testing.T) {
	body := " Confirmed. Ksh100.00 paid to Matatu on 4/11/24 at 7:05 AM."
	ret := &mockRetriever{msgs: []models.RawMessage{
		{ID: "101", Address: "MPESA", Body: "QA1" + body},
		{ID: "102", Address: "MPESA", Body: "QA2" + body},
	}}
	sink := &mockSink{}
	o := newOrchestrator(&mockGate{granted: true}, ret, delivery.NewDedup(seenFilter{}, sink))

	txs := o.Run(context.Background())
	require.Len(t, txs, 2)
	assert.NotEqual(t, txs[0].Fingerprint(), txs[1].Fingerprint())
	assert.Len(t, sink.got, 2)
	assert.Equal(t, 2, o.Report().Delivered)
}

func TestRun_DuplicatesCountedAsSkipped(t *testing.T) {
	filter := seenFilter{}
	sink := &mockSink{}
	marker := &mockMarker{}

	first := newOrchestrator(&mockGate{granted: true}, &mockRetriever{msgs: inbox()}, delivery.NewDedup(filter, sink))
	first.Run(context.Background())
	require.Equal(t, 2, first.Report().Delivered)

	second := New(Config{
		Gate:      &mockGate{granted: true},
		Retriever: &mockRetriever{msgs: inbox()},
		Parser:    parser.Default(),
		Sink:      delivery.NewDedup(filter, sink),
		Sender:    "MPESA",
		Marker:    marker,
	})
	txs := second.Run(context.Background())
	assert.Len(t, txs, 2)

	rep := second.Report()
	assert.Zero(t, rep.Delivered)
	assert.Equal(t, 2, rep.Skipped)
	assert.Zero(t, rep.Failed)
	assert.Len(t, sink.got, 2, "sink saw only the first pass")
	assert.Equal(t, []string{"1", "3"}, marker.ids, "already delivered messages are still marked read")
}

func TestRun_MissingCollaborators(t *testing.T) {
	o := New(Config{Gate: &mockGate{granted: true}, Sender: "MPESA"})

	var txs []models.ParsedTransaction
	require.NotPanics(t, func() { txs = o.Run(context.Background()) })
	assert.NotNil(t, txs)
	assert.Empty(t, txs)

	rep := o.Report()
	assert.Equal(t, StageDone, rep.Stage)
	assert.Equal(t, ErrIncomplete.Error(), rep.Err)

	ret := &mockRetriever{msgs: inbox()}
	o = New(Config{Retriever: ret, Sender: "MPESA"})
	assert.Empty(t, o.Run(context.Background()))
	assert.Zero(t, ret.calls)
}
