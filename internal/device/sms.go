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

package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mywallet/ingestion/internal/models"
)

// Filter selects messages from the SMS content store. It is sent verbatim
// as the "filter" query parameter.
type Filter struct {
	Box     string `json:"box"`
	Address string `json:"address,omitempty"`
	Read    *int   `json:"read,omitempty"`
}

// Unread returns a filter for unread messages from address in box.
func Unread(box models.Mailbox, address string) Filter {
	zero := 0
	return Filter{Box: string(box), Address: address, Read: &zero}
}

// SMS is a message record as stored on the device.
type SMS struct {
	ID       json.Number `json:"_id"`
	ThreadID json.Number `json:"thread_id"`
	Address  string      `json:"address"`
	Body     string      `json:"body"`
	Date     int64       `json:"date"` // milliseconds since epoch
	Read     int         `json:"read"`
	Type     int         `json:"type"` // 1 = inbox, 2 = sent
}

// listResponse is the body returned by GET /sms/list.
type listResponse struct {
	Count    int   `json:"count"`
	Messages []SMS `json:"messages"`
}

// ListSMS queries the device SMS store.
func (c *Client) ListSMS(ctx context.Context, filter Filter) ([]SMS, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}

	params := url.Values{}
	params.Set("filter", string(raw))
	u := fmt.Sprintf("%s/sms/list?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return nil, ErrUnsupported
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("list sms failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode sms list: %w", err)
	}

	slog.Debug("sms list fetched",
		"box", filter.Box,
		"address", filter.Address,
		"count", page.Count,
		"returned", len(page.Messages),
	)

	return page.Messages, nil
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

// MarkRead flips the read flag on the given messages.
func (c *Client) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/sms/read", markReadRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// RawMessage converts a device record into the pipeline's message type.
func (s SMS) RawMessage() models.RawMessage {
	mailbox := models.MailboxInbox
	if s.Type == 2 {
		mailbox = models.MailboxSent
	}

	var date time.Time
	if s.Date > 0 {
		date = time.UnixMilli(s.Date)
	}

	return models.RawMessage{
		ID:       s.ID.String(),
		ThreadID: s.ThreadID.String(),
		Address:  s.Address,
		Body:     s.Body,
		Date:     date,
		Read:     s.Read != 0,
		Mailbox:  mailbox,
	}
}

// DecodeDump reads an exported SMS list (either a bare JSON array or the
// {count, messages} envelope) and converts it to raw messages.
func DecodeDump(r io.Reader) ([]models.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dump: %w", err)
	}

	var list []SMS
	if err := json.Unmarshal(data, &list); err != nil {
		var page listResponse
		if err2 := json.Unmarshal(data, &page); err2 != nil {
			return nil, fmt.Errorf("decode dump: %w", err)
		}
		list = page.Messages
	}

	out := make([]models.RawMessage, 0, len(list))
	for _, s := range list {
		out = append(out, s.RawMessage())
	}
	return out, nil
}
