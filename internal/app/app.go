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

// Package app wires configuration into the ingestion pipeline. Both the
// service and the operator CLI build their components here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mywallet/ingestion/internal/auth"
	"github.com/mywallet/ingestion/internal/backend"
	"github.com/mywallet/ingestion/internal/budget"
	"github.com/mywallet/ingestion/internal/config"
	"github.com/mywallet/ingestion/internal/dedup"
	"github.com/mywallet/ingestion/internal/delivery"
	"github.com/mywallet/ingestion/internal/device"
	"github.com/mywallet/ingestion/internal/ingest"
	"github.com/mywallet/ingestion/internal/ledger"
	"github.com/mywallet/ingestion/internal/models"
	"github.com/mywallet/ingestion/internal/parser"
	"github.com/mywallet/ingestion/internal/permission"
	"github.com/mywallet/ingestion/internal/queue"
	"github.com/mywallet/ingestion/internal/server"
	"github.com/mywallet/ingestion/internal/session"
	"github.com/mywallet/ingestion/internal/smsreader"
)

// SetupLogging installs a JSON slog handler on w as the default logger.
// LOG_LEVEL selects the level (debug, info, warn, error; default info).
func SetupLogging(w io.Writer) {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// Pipeline holds the wired components. Optional collaborators are nil
// when not configured.
type Pipeline struct {
	Config   *config.Config
	Sessions *session.Manager

	Device  *device.Client
	Gate    *permission.Gate
	Reader  *smsreader.Reader
	Parser  *parser.Parser
	Backend *backend.Client
	Ledger  ledger.Store
	Redis   *redis.Client
	Queue   *queue.Publisher

	Sink     delivery.Sink
	Notifier budget.Notifier

	closers []func() error
}

// Build connects to every configured collaborator.
func Build(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{
		Config:   cfg,
		Sessions: session.NewManager(),
		Notifier: budget.LogNotifier{},
	}

	if cfg.Session.UserID != "" {
		if err := p.Sessions.Begin(session.Session{
			UserID: cfg.Session.UserID,
			Name:   cfg.Session.Name,
			Email:  cfg.Session.Email,
		}); err != nil {
			return nil, fmt.Errorf("seed session: %w", err)
		}
	}

	var err error
	if p.Parser, err = parser.New(parser.Config{Location: cfg.SMS.Location}); err != nil {
		return nil, fmt.Errorf("build parser: %w", err)
	}

	if err := p.buildDevice(ctx); err != nil {
		return nil, err
	}

	if cfg.Backend.BaseURL != "" {
		httpClient := auth.HTTPClient(ctx, cfg.Backend.Auth, cfg.Backend.Timeout)
		p.Backend = backend.NewClient(httpClient, cfg.Backend.BaseURL)
		slog.Info("backend configured",
			"base_url", cfg.Backend.BaseURL,
			"auth", auth.Mode(cfg.Backend.Auth),
		)
	}

	if err := p.buildLedger(ctx); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.buildRedis(ctx); err != nil {
		p.Close()
		return nil, err
	}

	p.Sink = p.buildSink()
	return p, nil
}

func (p *Pipeline) buildDevice(ctx context.Context) error {
	cfg := p.Config.Device

	if !permission.SupportsRuntimePermission(cfg.Platform) {
		slog.Info("platform has no sms inbox access, ingestion is a no-op", "platform", cfg.Platform)
		p.Gate = permission.NewGate(permission.GateConfig{Platform: cfg.Platform})
		p.Reader = smsreader.New(smsreader.NoStore{})
		return nil
	}

	httpClient := auth.HTTPClient(ctx, cfg.Auth, p.Config.Backend.Timeout)
	p.Device = device.NewClient(httpClient, cfg.BaseURL)
	p.Gate = permission.NewGate(permission.GateConfig{
		Platform: cfg.Platform,
		Prompter: p.Device,
		Notifier: p.Device,
	})
	p.Reader = smsreader.New(p.Device)
	p.Notifier = p.Device

	slog.Info("sms bridge configured",
		"base_url", cfg.BaseURL,
		"platform", cfg.Platform,
		"auth", auth.Mode(cfg.Auth),
	)
	return nil
}

func (p *Pipeline) buildLedger(ctx context.Context) error {
	cfg := p.Config.Ledger
	if cfg.Driver == "none" {
		return nil
	}

	store, err := ledger.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	p.Ledger = store
	p.closers = append(p.closers, store.Close)
	return nil
}

func (p *Pipeline) buildRedis(ctx context.Context) error {
	if p.Config.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(p.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	p.closers = append(p.closers, rdb.Close)

	pub := queue.NewPublisher(rdb, p.Config.TransactionsQueue)
	if err := pub.Ping(ctx); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	slog.Info("connected to Redis", "queue", p.Config.TransactionsQueue)

	p.Redis = rdb
	p.Queue = pub
	return nil
}

// buildSink fans out to every configured receiver, behind the Redis
// fingerprint filter when Redis is available.
func (p *Pipeline) buildSink() delivery.Sink {
	var sinks delivery.Multi
	if p.Ledger != nil {
		sinks = append(sinks, ledger.NewSink(p.Ledger))
	}
	if p.Queue != nil {
		sinks = append(sinks, p.Queue)
	}
	if p.Backend != nil {
		sinks = append(sinks, backend.NewSink(p.Backend, p.Sessions))
	}

	var sink delivery.Sink = sinks
	if len(sinks) == 0 {
		slog.Warn("no delivery sinks configured, parsed transactions will only be logged")
		sink = delivery.Func(func(_ context.Context, tx models.ParsedTransaction) error {
			slog.Info("parsed transaction",
				"type", tx.Type,
				"amount", tx.Amount.String(),
				"occurred_at", tx.OccurredAt,
				"counterparty", tx.Counterparty,
			)
			return nil
		})
	}

	if p.Redis != nil {
		filter := dedup.NewFilter(p.Redis, dedup.FilterConfig{
			TTL:    p.Config.DedupTTL,
			Prefix: p.Config.DedupPrefix,
		})
		sink = delivery.NewDedup(filter, sink)
	}
	return sink
}

// Orchestrator returns a fresh one-shot ingestion pass.
func (p *Pipeline) Orchestrator() *ingest.Orchestrator {
	cfg := ingest.Config{
		Gate:      p.Gate,
		Retriever: p.Reader,
		Parser:    p.Parser,
		Sink:      p.Sink,
		Sender:    p.Config.SMS.Sender,
		Mailbox:   models.Mailbox(p.Config.SMS.Mailbox),
	}
	if p.Config.SMS.MarkRead {
		cfg.Marker = p.Reader
	}
	return ingest.New(cfg)
}

// BudgetChecker returns the checker, or nil when the backend is not
// configured or the checker is disabled.
func (p *Pipeline) BudgetChecker() *budget.Checker {
	if p.Backend == nil || !p.Config.Budget.Enabled {
		return nil
	}
	return budget.NewChecker(budget.CheckerConfig{
		Budgets:      p.Backend,
		Users:        p.Sessions,
		Notifier:     p.Notifier,
		Interval:     p.Config.Budget.Interval,
		ReminderHour: p.Config.Budget.ReminderHour,
		Location:     p.Config.SMS.Location,
	})
}

// Checks returns the dependencies checked by /health.
func (p *Pipeline) Checks() map[string]server.Pinger {
	checks := make(map[string]server.Pinger)
	if p.Queue != nil {
		checks["redis"] = p.Queue
	}
	if p.Ledger != nil {
		checks["ledger"] = p.Ledger
	}
	return checks
}

// Close releases every connection opened by Build.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
