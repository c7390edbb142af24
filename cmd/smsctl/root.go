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

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mywallet/ingestion/internal/app"
	"github.com/mywallet/ingestion/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "smsctl",
		Short:         "Inspect and drive M-Pesa SMS ingestion",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var w io.Writer = io.Discard
			if opts.verbose {
				w = os.Stderr
			}
			app.SetupLogging(w)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (default $CONFIG_PATH or /app/config/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "write service logs to stderr")

	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newBudgetCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))

	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load()
}

// buildPipeline loads config and wires the pipeline. The caller closes it.
func (o *rootOptions) buildPipeline(ctx context.Context) (*app.Pipeline, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	p, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise pipeline: %w", err)
	}
	return p, nil
}
