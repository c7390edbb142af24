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

// Package parser turns M-Pesa SMS notification text into structured
// transactions. It performs no I/O: the same input always yields the same
// output, so it can be tested without a device.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mywallet/ingestion/internal/models"
)

// Timestamp layouts tried in order. M-Pesa writes the date day first and the
// time on a 12-hour clock; older handsets abbreviate the year.
var timestampLayouts = []string{
	"2/1/2006 3:04 PM",
	"2/1/06 3:04 PM",
}

// Parser applies an ordered rule list to SMS bodies.
type Parser struct {
	rules []Rule
	loc   *time.Location
}

// Config holds the optional parser settings.
type Config struct {
	// Rules defaults to DefaultRules().
	Rules []Rule
	// Location is the zone the notification timestamps are written in.
	// Defaults to time.Local.
	Location *time.Location
}

// New creates a parser. It fails only when a custom rule is malformed.
func New(cfg Config) (*Parser, error) {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Parser{rules: rules, loc: loc}, nil
}

// Default returns a parser with the built-in M-Pesa rules in the local zone.
func Default() *Parser {
	p, err := New(Config{})
	if err != nil {
		panic(err) // built-in rules are always valid
	}
	return p
}

// ParseAll converts messages to transactions, dropping every message that is
// not an M-Pesa transaction notification. Input order is preserved.
func (p *Parser) ParseAll(messages []models.RawMessage) []models.ParsedTransaction {
	out := make([]models.ParsedTransaction, 0, len(messages))
	for _, msg := range messages {
		tx, ok := p.ParseMessage(msg)
		if !ok {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// ParseMessage parses a single message, recording its ID on the result.
func (p *Parser) ParseMessage(msg models.RawMessage) (models.ParsedTransaction, bool) {
	tx, ok := p.ParseBody(msg.Body)
	if !ok {
		return models.ParsedTransaction{}, false
	}
	tx.SourceID = msg.ID
	return tx, true
}

// ParseBody parses raw notification text. The boolean is false when no rule
// matches or the matched fields are unusable.
func (p *Parser) ParseBody(body string) (models.ParsedTransaction, bool) {
	for _, rule := range p.rules {
		m := rule.Pattern.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		// First matching rule decides; a bad extraction does not fall through.
		tx, err := p.extract(rule, m)
		if err != nil {
			return models.ParsedTransaction{}, false
		}
		return tx, true
	}
	return models.ParsedTransaction{}, false
}

func (p *Parser) extract(rule Rule, m []string) (models.ParsedTransaction, error) {
	group := func(name string) string {
		if i := rule.Pattern.SubexpIndex(name); i >= 0 && i < len(m) {
			return m[i]
		}
		return ""
	}

	amount, err := ParseAmount(group(groupAmount))
	if err != nil {
		return models.ParsedTransaction{}, err
	}

	when, err := p.ParseTimestamp(group(groupDate), group(groupTime))
	if err != nil {
		return models.ParsedTransaction{}, err
	}

	return models.ParsedTransaction{
		Type:          rule.Type,
		Amount:        amount,
		OccurredAt:    when,
		Category:      models.CategoryMpesa,
		PaymentMethod: models.PaymentMethodMpesa,
		Counterparty:  cleanParty(group(groupParty)),
	}, nil
}

// ParseAmount strips thousands separators and returns the exact decimal value.
// Zero and negative amounts are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount %q is not positive", s)
	}
	return d, nil
}

// ParseTimestamp combines a day/month/year date with a 12-hour clock time in
// the parser's location.
func (p *Parser) ParseTimestamp(date, clock string) (time.Time, error) {
	value := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, value, p.loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, lastErr)
}

// cleanParty trims whitespace and the trailing period M-Pesa puts after names.
func cleanParty(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "."))
}
