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
	"errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mywallet/ingestion/internal/ledger"
	"github.com/mywallet/ingestion/internal/models"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List transactions recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := opts.buildPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			if p.Ledger == nil {
				return errors.New("ledger is disabled (ledger.driver: none)")
			}

			entries, err := p.Ledger.List(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				pterm.Info.Println("Ledger is empty")
				return nil
			}

			return pterm.DefaultTable.WithHasHeader().WithData(transactionRows(entryTransactions(entries))).Render()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func entryTransactions(entries []ledger.Entry) []models.ParsedTransaction {
	txs := make([]models.ParsedTransaction, len(entries))
	for i, e := range entries {
		txs[i] = e.Transaction()
	}
	return txs
}
