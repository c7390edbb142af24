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

// Package ingest runs the one-shot SMS ingestion pass: permission check,
// inbox retrieval, parsing and hand-off to the delivery sink.
//
// Every failure path resolves to "zero transactions ingested this run".
// Nothing here returns an error to the host.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mywallet/ingestion/internal/delivery"
	"github.com/mywallet/ingestion/internal/models"
)

// Stage is a step of the ingestion pass.
type Stage int

const (
	StageStart Stage = iota
	StagePermissionCheck
	StageRetrieve
	StageParse
	StageDeliver
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "START"
	case StagePermissionCheck:
		return "PERMISSION_CHECK"
	case StageRetrieve:
		return "RETRIEVE"
	case StageParse:
		return "PARSE"
	case StageDeliver:
		return "DELIVER"
	case StageDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the stage name in JSON reports.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrIncomplete is recorded when the orchestrator lacks a retriever or a
// parser.
var ErrIncomplete = errors.New("ingestion pass needs a retriever and a parser")

// Gate decides whether the inbox may be read.
type Gate interface {
	Request(ctx context.Context) bool
}

// Retriever lists unread messages from a sender.
type Retriever interface {
	ListMessages(ctx context.Context, mailbox models.Mailbox, address string) ([]models.RawMessage, error)
}

// Parser turns raw messages into transactions.
type Parser interface {
	ParseAll(messages []models.RawMessage) []models.ParsedTransaction
}

// ReadMarker flags delivered messages as read on the device.
type ReadMarker interface {
	MarkRead(ctx context.Context, ids []string) error
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Gate      Gate
	Retriever Retriever
	Parser    Parser
	Sink      delivery.Sink

	Sender  string         // sender address to read, e.g. "MPESA"
	Mailbox models.Mailbox // defaults to inbox

	// Marker is optional. When set, messages whose transaction was
	// delivered are marked read after the pass.
	Marker ReadMarker

	Now func() time.Time
}

// RunReport summarises a pass for the status endpoint.
type RunReport struct {
	ID        string        `json:"id"`
	Stage     Stage         `json:"stage"`
	Granted   bool          `json:"granted"`
	Retrieved int           `json:"retrieved"`
	Parsed    int           `json:"parsed"`
	Delivered int           `json:"delivered"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Err       string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Orchestrator runs a single ingestion pass.
type Orchestrator struct {
	cfg Config

	once   sync.Once
	result []models.ParsedTransaction

	mu     sync.Mutex
	report RunReport
}

// New creates an orchestrator. Sink defaults to delivery.Discard.
func New(cfg Config) *Orchestrator {
	if cfg.Mailbox == "" {
		cfg.Mailbox = models.MailboxInbox
	}
	if cfg.Sink == nil {
		cfg.Sink = delivery.Discard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		cfg:    cfg,
		report: RunReport{Stage: StageStart},
	}
}

// Run performs the pass and returns the transactions handed to the sink.
// Only the first call does any work; later calls return the same result.
func (o *Orchestrator) Run(ctx context.Context) []models.ParsedTransaction {
	o.once.Do(func() {
		o.result = o.run(ctx)
	})
	return o.result
}

// Report returns a snapshot of the pass progress.
func (o *Orchestrator) Report() RunReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.report
	if r.Stage != StageDone && !r.StartedAt.IsZero() {
		r.Elapsed = o.cfg.Now().Sub(r.StartedAt)
	}
	return r
}

func (o *Orchestrator) update(fn func(r *RunReport)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.report)
}

func (o *Orchestrator) enter(stage Stage) {
	o.update(func(r *RunReport) { r.Stage = stage })
}

// finish moves to DONE and records the outcome.
func (o *Orchestrator) finish(err error) []models.ParsedTransaction {
	o.update(func(r *RunReport) {
		r.Stage = StageDone
		r.Elapsed = o.cfg.Now().Sub(r.StartedAt)
		if err != nil {
			r.Err = err.Error()
		}
	})
	return []models.ParsedTransaction{}
}

func (o *Orchestrator) run(ctx context.Context) []models.ParsedTransaction {
	runID := uuid.New().String()
	log := slog.With("run_id", runID, "sender", o.cfg.Sender)
	o.update(func(r *RunReport) {
		r.ID = runID
		r.StartedAt = o.cfg.Now()
	})

	log.Info("sms ingestion started")

	if o.cfg.Retriever == nil || o.cfg.Parser == nil {
		log.Error("sms ingestion not configured", "error", ErrIncomplete)
		return o.finish(ErrIncomplete)
	}

	o.enter(StagePermissionCheck)
	if o.cfg.Gate != nil && !o.cfg.Gate.Request(ctx) {
		log.Info("sms ingestion skipped, permission not granted")
		return o.finish(nil)
	}
	o.update(func(r *RunReport) { r.Granted = true })

	if err := ctx.Err(); err != nil {
		log.Info("sms ingestion cancelled", "stage", StagePermissionCheck.String())
		return o.finish(err)
	}

	o.enter(StageRetrieve)
	msgs, err := o.cfg.Retriever.ListMessages(ctx, o.cfg.Mailbox, o.cfg.Sender)
	if err != nil {
		log.Error("sms retrieval failed", "error", err)
		return o.finish(err)
	}
	o.update(func(r *RunReport) { r.Retrieved = len(msgs) })

	o.enter(StageParse)
	txs := o.cfg.Parser.ParseAll(msgs)
	o.update(func(r *RunReport) { r.Parsed = len(txs) })
	log.Debug("parsed sms messages", "messages", len(msgs), "transactions", len(txs))

	if err := ctx.Err(); err != nil {
		log.Info("sms ingestion cancelled, discarding results",
			"stage", StageParse.String(),
			"parsed", len(txs),
		)
		return o.finish(err)
	}

	o.enter(StageDeliver)
	handed, readIDs := o.deliver(ctx, log, txs)

	if o.cfg.Marker != nil && len(readIDs) > 0 {
		if err := o.cfg.Marker.MarkRead(ctx, readIDs); err != nil {
			log.Warn("failed to mark messages read", "count", len(readIDs), "error", err)
		}
	}

	o.update(func(r *RunReport) {
		r.Stage = StageDone
		r.Elapsed = o.cfg.Now().Sub(r.StartedAt)
	})

	rep := o.Report()
	log.Info("sms ingestion finished",
		"retrieved", rep.Retrieved,
		"parsed", rep.Parsed,
		"delivered", rep.Delivered,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"elapsed", rep.Elapsed,
	)

	return handed
}

// deliver hands each transaction to the sink. A sink error is logged and
// counted; the pass continues. Duplicates reported by the sink count as
// skipped and their messages are still marked read. Cancellation stops the
// hand-off.
func (o *Orchestrator) deliver(ctx context.Context, log *slog.Logger, txs []models.ParsedTransaction) ([]models.ParsedTransaction, []string) {
	handed := make([]models.ParsedTransaction, 0, len(txs))
	var readIDs []string

	for _, tx := range txs {
		if ctx.Err() != nil {
			log.Warn("delivery interrupted", "remaining", len(txs)-len(handed))
			o.update(func(r *RunReport) { r.Err = ctx.Err().Error() })
			break
		}

		handed = append(handed, tx)
		err := o.cfg.Sink.Deliver(ctx, tx)
		if errors.Is(err, delivery.ErrDuplicate) {
			o.update(func(r *RunReport) { r.Skipped++ })
			if tx.SourceID != "" {
				readIDs = append(readIDs, tx.SourceID)
			}
			continue
		}
		if err != nil {
			o.update(func(r *RunReport) { r.Failed++ })
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Warn("transaction delivery cancelled", "source_id", tx.SourceID, "error", err)
				continue
			}
			log.Error("transaction delivery failed",
				"source_id", tx.SourceID,
				"fingerprint", tx.Fingerprint(),
				"error", err,
			)
			continue
		}

		o.update(func(r *RunReport) { r.Delivered++ })
		if tx.SourceID != "" {
			readIDs = append(readIDs, tx.SourceID)
		}
	}

	return handed, readIDs
}
