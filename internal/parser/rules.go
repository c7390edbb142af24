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

package parser

import (
	"fmt"
	"regexp"

	"github.com/mywallet/ingestion/internal/models"
)

// Capture group names every rule pattern must define.
const (
	groupAmount = "amount"
	groupParty  = "party"
	groupDate   = "date"
	groupTime   = "time"
)

// Rule pairs a notification template with the transaction type it yields.
// Rules are tried in order and the first match wins.
type Rule struct {
	Name    string
	Type    models.TransactionType
	Pattern *regexp.Regexp
}

// Shared fragments of the M-Pesa templates.
const (
	amountExpr = `Ksh(?P<amount>[\d,]+(?:\.\d{2})?)`
	whenExpr   = ` on (?P<date>\d+/\d+/\d+) at (?P<time>\d+:\d+ (?:AM|PM))`
)

var (
	// "Ksh1,234.50 paid to Jane Doe on 03/11/2024 at 2:15 PM"
	expensePattern = regexp.MustCompile(amountExpr + ` paid to (?P<party>.*?)` + whenExpr)

	// "You have received Ksh500 from John Smith on 01/01/2024 at 9:00 AM"
	incomePattern = regexp.MustCompile(`You have received ` + amountExpr + ` from (?P<party>.*?)` + whenExpr)
)

// DefaultRules returns the M-Pesa expense and income templates in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "mpesa-expense", Type: models.TypeExpense, Pattern: expensePattern},
		{Name: "mpesa-income", Type: models.TypeIncome, Pattern: incomePattern},
	}
}

// validate checks that a rule carries every capture group the extractor needs.
func (r Rule) validate() error {
	if r.Pattern == nil {
		return fmt.Errorf("rule %q: nil pattern", r.Name)
	}
	for _, g := range []string{groupAmount, groupDate, groupTime} {
		if r.Pattern.SubexpIndex(g) < 0 {
			return fmt.Errorf("rule %q: missing capture group %q", r.Name, g)
		}
	}
	return nil
}
