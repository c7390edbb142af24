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
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mywallet/ingestion/internal/budget"
	"github.com/mywallet/ingestion/internal/session"
)

func newBudgetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Budget alerts",
	}
	cmd.AddCommand(newBudgetCheckCmd(opts))
	return cmd
}

func newBudgetCheckCmd(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate the user's budgets once and send alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := opts.buildPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			if userID != "" {
				if err := p.Sessions.Begin(session.Session{UserID: userID}); err != nil {
					return err
				}
			}
			if p.Sessions.UserID() == "" {
				return errors.New("no user: pass --user or set session.user_id")
			}

			checker := p.BudgetChecker()
			if checker == nil {
				return errors.New("budget checks need backend.base_url and budget.enabled")
			}

			alerts, err := checker.Check(ctx)
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				pterm.Info.Println("All budgets are below the alert threshold")
				return nil
			}

			return pterm.DefaultTable.WithHasHeader().WithData(alertRows(alerts)).Render()
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "wallet user id (overrides session.user_id)")
	return cmd
}

func alertRows(alerts []budget.Alert) pterm.TableData {
	rows := pterm.TableData{{"Category", "Spent", "Message"}}
	for _, a := range alerts {
		rows = append(rows, []string{a.Category, strconv.FormatInt(a.Percent, 10) + "%", a.Body})
	}
	return rows
}
