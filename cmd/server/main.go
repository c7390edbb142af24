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

// MyWallet SMS ingestion service
//
// Entry point for the ingestion service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to the SMS bridge, the ledger, Redis and the wallet backend
//  3. Serves health, ingestion status and session endpoints
//  4. Runs one SMS ingestion pass at startup
//  5. Runs the budget checker until shutdown
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mywallet/ingestion/internal/app"
	"github.com/mywallet/ingestion/internal/config"
	"github.com/mywallet/ingestion/internal/otp"
	"github.com/mywallet/ingestion/internal/server"
)

func main() {
	app.SetupLogging(os.Stdout)

	slog.Info("starting MyWallet SMS ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"platform", cfg.Device.Platform,
		"sender", cfg.SMS.Sender,
		"ledger", cfg.Ledger.Driver,
		"redis", cfg.RedisURL != "",
		"backend", cfg.Backend.BaseURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Wire pipeline ---
	pipeline, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	orchestrator := pipeline.Orchestrator()

	// --- HTTP server ---
	handler := server.NewHandler(server.Config{
		Checks:   pipeline.Checks(),
		Reporter: orchestrator,
		Sessions: pipeline.Sessions,
		Accounts: accountsOrNil(pipeline),
		Resend:   otp.NewTimer(otp.Config{}),
	})
	ready, err := server.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Ingestion pass (once per process) ---
	go func() {
		txs := orchestrator.Run(ctx)
		slog.Info("startup ingestion complete", "transactions", len(txs))
	}()

	// --- Budget checker ---
	checker := pipeline.BudgetChecker()
	if checker != nil {
		checker.Start(ctx)
	} else {
		slog.Info("budget checker disabled")
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	if checker != nil {
		checker.Stop()
	}

	slog.Info("ingestion service stopped")
}

// accountsOrNil keeps a nil *backend.Client from becoming a non-nil
// interface value.
func accountsOrNil(p *app.Pipeline) server.Accounts {
	if p.Backend == nil {
		return nil
	}
	return p.Backend
}
