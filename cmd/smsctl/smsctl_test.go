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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywallet/ingestion/internal/budget"
	"github.com/mywallet/ingestion/internal/ingest"
)

const dump = `{"count": 3, "messages": [
	{"_id": 1, "address": "MPESA", "body": "QK12ABC3DE Confirmed. Ksh2,500.00 paid to NAIVAS SUPERMARKET. on 3/11/24 at 2:15 PM.New M-PESA balance is Ksh10,000.00.", "type": 1},
	{"_id": 2, "address": "MPESA", "body": "Your OTP is 1234", "type": 1},
	{"_id": 3, "address": "SAFARICOM", "body": "Ksh10 paid to A on 1/1/2024 at 1:00 PM", "type": 1}
]}`

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sms.json")
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o600))
	return path
}

func TestParseDump(t *testing.T) {
	path := writeDump(t)

	txs, total, err := parseDump(path, "", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, txs, 2)

	txs, total, err = parseDump(path, "MPESA", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, txs, 1)
	assert.Equal(t, "NAIVAS SUPERMARKET", txs[0].Counterparty)
	assert.Equal(t, "1", txs[0].SourceID)
}

func TestParseDump_MissingFile(t *testing.T) {
	_, _, err := parseDump(filepath.Join(t.TempDir(), "nope.json"), "", time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open dump")
}

func TestTransactionRows(t *testing.T) {
	txs, _, err := parseDump(writeDump(t), "MPESA", time.UTC)
	require.NoError(t, err)

	rows := transactionRows(txs)
	require.Len(t, rows, 2)
	assert.Equal(t, "Amount", rows[0][2])
	assert.Equal(t, []string{"1", "expense", "2500.00", "2024-11-03 14:15", "NAIVAS SUPERMARKET", "1"}, rows[1])
}

func TestReportRows(t *testing.T) {
	rows := reportRows(ingest.RunReport{ID: "run-1", Stage: ingest.StageDone, Granted: true, Parsed: 4, Delivered: 2, Skipped: 1, Failed: 1})
	assert.Equal(t, []string{"Run", "run-1"}, rows[0])
	assert.Equal(t, []string{"Permission granted", "true"}, rows[2])
	assert.Equal(t, []string{"Failed", "1"}, rows[6])
	assert.Equal(t, []string{"Skipped (already delivered)", "1"}, rows[7])
}

func TestAlertRows(t *testing.T) {
	rows := alertRows([]budget.Alert{{Category: "Food", Percent: 85, Body: "You have spent 85% of your budget for Food."}})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Food", "85%", "You have spent 85% of your budget for Food."}, rows[1])
}

func TestParseCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"parse", writeDump(t), "--timezone", "Africa/Nairobi"})
	assert.NoError(t, cmd.Execute())
}

func TestParseCommand_BadTimezone(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"parse", writeDump(t), "--timezone", "Mars/Olympus"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

func TestParseCommand_RequiresFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"parse"})
	assert.Error(t, cmd.Execute())
}
