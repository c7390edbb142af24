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
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mywallet/ingestion/internal/ingest"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion pass against the SMS bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := opts.buildPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			o := p.Orchestrator()
			txs := o.Run(ctx)
			report := o.Report()

			pterm.DefaultSection.Println("Ingestion report")
			if err := pterm.DefaultTable.WithData(reportRows(report)).Render(); err != nil {
				return err
			}

			if len(txs) > 0 {
				pterm.DefaultSection.Println("Transactions")
				if err := pterm.DefaultTable.WithHasHeader().WithData(transactionRows(txs)).Render(); err != nil {
					return err
				}
			}

			switch {
			case report.Err != "":
				pterm.Warning.Println(report.Err)
			case !report.Granted:
				pterm.Warning.Println("SMS permission not granted, nothing was read")
			default:
				pterm.Success.Printf("Delivered %d of %d transactions\n", report.Delivered, report.Parsed)
			}
			return nil
		},
	}
}

func reportRows(r ingest.RunReport) pterm.TableData {
	return pterm.TableData{
		{"Run", r.ID},
		{"Stage", r.Stage.String()},
		{"Permission granted", strconv.FormatBool(r.Granted)},
		{"Messages retrieved", strconv.Itoa(r.Retrieved)},
		{"Transactions parsed", strconv.Itoa(r.Parsed)},
		{"Delivered", strconv.Itoa(r.Delivered)},
		{"Failed", strconv.Itoa(r.Failed)},
		{"Skipped (already delivered)", strconv.Itoa(r.Skipped)},
		{"Elapsed", r.Elapsed.String()},
	}
}
