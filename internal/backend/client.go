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

// Package backend is a client for the wallet backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mywallet/ingestion/internal/models"
)

// Envelope statuses returned by the backend.
const (
	StatusSuccess  = "SUCCESS"
	StatusFailed   = "FAILED"
	StatusVerified = "VERIFIED"
)

// APIError is returned for non-2xx responses and FAILED envelopes.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("backend %s (HTTP %d): %s", e.Status, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// envelope is the common response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client calls the wallet backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a backend client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// TransactionRequest is the body of POST /transaction/create.
type TransactionRequest struct {
	UserID        string      `json:"userId"`
	Category      string      `json:"category"`
	Amount        json.Number `json:"amount"`
	PaymentMethod string      `json:"paymentMethod"`
	Date          time.Time   `json:"date"`
	Note          *string     `json:"note"`
	Type          string      `json:"type"`
}

// NewTransactionRequest builds the create body for a parsed transaction.
func NewTransactionRequest(userID string, tx models.ParsedTransaction) TransactionRequest {
	var note *string
	if tx.Counterparty != "" {
		n := tx.Counterparty
		note = &n
	}
	return TransactionRequest{
		UserID:        userID,
		Category:      tx.Category,
		Amount:        json.Number(tx.Amount.String()),
		PaymentMethod: tx.PaymentMethod,
		Date:          tx.OccurredAt,
		Note:          note,
		Type:          string(tx.Type),
	}
}

// CreateTransaction records a transaction for the user.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) error {
	if _, err := c.do(ctx, http.MethodPost, "/transaction/create", req); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// Budget is a spending limit for a category over a date range.
type Budget struct {
	ID          string          `json:"_id"`
	UserID      string          `json:"userId,omitempty"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	SpentAmount decimal.Decimal `json:"spentAmount"`
	StartDate   time.Time       `json:"startDate"`
	EndDate     time.Time       `json:"endDate"`
}

// ListBudgets returns the user's budgets. A non-array payload yields none.
func (c *Client) ListBudgets(ctx context.Context, userID string) ([]Budget, error) {
	data, err := c.do(ctx, http.MethodGet, "/budget/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	var budgets []Budget
	if err := json.Unmarshal(data, &budgets); err != nil {
		slog.Debug("budget payload is not a list", "user_id", userID, "error", err)
		return []Budget{}, nil
	}
	return budgets, nil
}

// HasBalance reports whether the user has recorded an opening balance.
// Any failure is reported as false.
func (c *Client) HasBalance(ctx context.Context, userID string) bool {
	env, err := c.get(ctx, "/balance/"+url.PathEscape(userID))
	if err != nil {
		slog.Debug("balance check failed", "user_id", userID, "error", err)
		return false
	}
	if env.Status != StatusSuccess {
		return false
	}

	var payload struct {
		Balance *json.Number `json:"balance"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return false
	}
	return payload.Balance != nil
}

// VerifyOTP submits a one-time code. It returns an *APIError carrying the
// backend message when the code is rejected.
func (c *Client) VerifyOTP(ctx context.Context, userID, code string) error {
	body := map[string]string{"userId": userID, "otp": code}
	env, err := c.send(ctx, http.MethodPost, "/user/verifyOTP", body)
	if err != nil {
		return fmt.Errorf("verify otp: %w", err)
	}
	if env.Status != StatusVerified {
		return &APIError{StatusCode: http.StatusOK, Status: env.Status, Message: env.Message}
	}
	return nil
}

// ResendOTP asks the backend to email a new verification code.
func (c *Client) ResendOTP(ctx context.Context, email, userID string) error {
	body := map[string]string{"email": email, "userId": userID}
	if _, err := c.do(ctx, http.MethodPost, "/user/resendOTPVerificationCode", body); err != nil {
		return fmt.Errorf("resend otp: %w", err)
	}
	return nil
}

// ResendVerificationLink asks the backend to email a new verification link.
func (c *Client) ResendVerificationLink(ctx context.Context, email, userID string) error {
	body := map[string]string{"email": email, "userId": userID}
	if _, err := c.do(ctx, http.MethodPost, "/user/resendVerificationLink", body); err != nil {
		return fmt.Errorf("resend verification link: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*envelope, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

// do sends a request and returns the envelope data. FAILED envelopes
// become *APIError.
func (c *Client) do(ctx context.Context, method, path string, in any) (json.RawMessage, error) {
	env, err := c.send(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	if env.Status == StatusFailed {
		return nil, &APIError{StatusCode: http.StatusOK, Status: env.Status, Message: env.Message}
	}
	return env.Data, nil
}

// send performs the HTTP exchange and decodes the envelope.
func (c *Client) send(ctx context.Context, method, path string, in any) (*envelope, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Status: env.Status, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &env, nil
}
