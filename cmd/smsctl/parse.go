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
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mywallet/ingestion/internal/device"
	"github.com/mywallet/ingestion/internal/models"
	"github.com/mywallet/ingestion/internal/parser"
)

func newParseCmd() *cobra.Command {
	var (
		timezone string
		sender   string
	)

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse an exported SMS JSON dump and print the transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if timezone != "" {
				var err error
				if loc, err = time.LoadLocation(timezone); err != nil {
					return fmt.Errorf("invalid timezone: %w", err)
				}
			}

			txs, total, err := parseDump(args[0], sender, loc)
			if err != nil {
				return err
			}

			if len(txs) == 0 {
				pterm.Info.Printf("No transactions found in %d messages\n", total)
				return nil
			}

			pterm.DefaultSection.Println("Transactions")
			if err := pterm.DefaultTable.WithHasHeader().WithData(transactionRows(txs)).Render(); err != nil {
				return err
			}
			pterm.Success.Printf("Parsed %d transactions from %d messages\n", len(txs), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA zone for message timestamps (default local)")
	cmd.Flags().StringVar(&sender, "sender", "", "only parse messages from this sender address")

	return cmd
}

// parseDump reads and parses a dump file. It returns the transactions and
// the number of messages considered.
func parseDump(path, sender string, loc *time.Location) ([]models.ParsedTransaction, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	msgs, err := device.DecodeDump(f)
	if err != nil {
		return nil, 0, err
	}

	if sender != "" {
		filtered := msgs[:0]
		for _, m := range msgs {
			if m.Address == sender {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}

	p, err := parser.New(parser.Config{Location: loc})
	if err != nil {
		return nil, 0, err
	}
	return p.ParseAll(msgs), len(msgs), nil
}

func transactionRows(txs []models.ParsedTransaction) pterm.TableData {
	rows := pterm.TableData{{"#", "Type", "Amount", "Occurred", "Counterparty", "SMS"}}
	for i, tx := range txs {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(tx.Type),
			tx.Amount.StringFixed(2),
			tx.OccurredAt.Format("2006-01-02 15:04"),
			tx.Counterparty,
			tx.SourceID,
		})
	}
	return rows
}
