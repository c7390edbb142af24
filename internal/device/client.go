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

// Package device implements a client for the SMS bridge running on the
// user's phone. The bridge exposes the platform permission API, the SMS
// content store and the dialog/notification surfaces over HTTP.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mywallet/ingestion/internal/permission"
)

// ErrUnsupported is returned when the bridge has no SMS store (HTTP 501).
var ErrUnsupported = errors.New("sms store not available on device")

// Client talks to the device SMS bridge.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a bridge client. The httpClient must already handle
// authentication (e.g. via an oauth2 token source).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// permissionResponse is the body of both permission endpoints.
type permissionResponse struct {
	Permission string `json:"permission"`
	Status     string `json:"status"`
}

// PermissionStatus returns the current grant status without prompting.
func (c *Client) PermissionStatus(ctx context.Context, perm string) (string, error) {
	u := fmt.Sprintf("%s/permissions/%s", c.baseURL, url.PathEscape(perm))

	var out permissionResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return "", fmt.Errorf("permission status: %w", err)
	}
	return out.Status, nil
}

// RequestPermission shows the OS prompt with the given rationale and waits
// for the user's answer.
func (c *Client) RequestPermission(ctx context.Context, perm string, rationale permission.Rationale) (string, error) {
	u := fmt.Sprintf("%s/permissions/%s/request", c.baseURL, url.PathEscape(perm))

	var out permissionResponse
	if err := c.do(ctx, http.MethodPost, u, rationale, &out); err != nil {
		return "", fmt.Errorf("request permission: %w", err)
	}
	return out.Status, nil
}

type alertRequest struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Buttons []string `json:"buttons"`
}

// Alert shows an informational dialog.
func (c *Client) Alert(ctx context.Context, title, message string, buttons []string) error {
	body := alertRequest{Title: title, Message: message, Buttons: buttons}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/dialogs/alert", body, nil); err != nil {
		return fmt.Errorf("show alert: %w", err)
	}
	return nil
}

type notificationRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notify posts a local notification on the device.
func (c *Client) Notify(ctx context.Context, title, body string) error {
	req := notificationRequest{Title: title, Body: body}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/notifications", req, nil); err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return ErrUnsupported
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Debug("bridge error response",
			"method", method,
			"url", u,
			"status", resp.StatusCode,
			"body", string(msg),
		)
		return fmt.Errorf("bridge returned HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
