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

package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleTransaction() ParsedTransaction {
	return ParsedTransaction{
		Type:          TypeExpense,
		Amount:        decimal.RequireFromString("1234.50"),
		OccurredAt:    time.Date(2024, time.November, 3, 14, 15, 0, 0, time.UTC),
		Category:      CategoryMpesa,
		PaymentMethod: PaymentMethodMpesa,
		Counterparty:  "Jane Doe",
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a := sampleTransaction()
	b := sampleTransaction()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 32)
}

func TestFingerprint_IgnoresTrailingZeros(t *testing.T) {
	a := sampleTransaction()
	b := sampleTransaction()
	b.Amount = decimal.RequireFromString("1234.5")

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprint_DiffersByField(t *testing.T) {
	base := sampleTransaction()

	income := base
	income.Type = TypeIncome

	later := base
	later.OccurredAt = base.OccurredAt.Add(time.Minute)

	other := base
	other.Counterparty = "John Smith"

	assert.NotEqual(t, base.Fingerprint(), income.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), later.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
}

func TestFingerprint_DistinguishesMessages(t *testing.T) {
	a := sampleTransaction()
	b := sampleTransaction()
	a.SourceID = "101"
	b.SourceID = "102"

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint(), "identical payments from separate SMS")

	again := sampleTransaction()
	again.SourceID = "101"
	assert.Equal(t, a.Fingerprint(), again.Fingerprint(), "same SMS re-read")
}
