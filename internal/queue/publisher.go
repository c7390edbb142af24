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

// Package queue publishes parsed transactions to a Redis list so other
// wallet services can consume them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mywallet/ingestion/internal/models"
)

// EventType identifies the envelope payload.
const EventType = "transaction.parsed"

// Client is the subset of the Redis client the publisher uses.
type Client interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Publisher pushes transaction events onto a Redis list.
type Publisher struct {
	rdb       Client
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified list.
func NewPublisher(rdb Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// Envelope is the JSON document pushed for every transaction.
type Envelope struct {
	ID          string                   `json:"id"`
	Type        string                   `json:"type"`
	Fingerprint string                   `json:"fingerprint"`
	PublishedAt time.Time                `json:"published_at"`
	Transaction models.ParsedTransaction `json:"transaction"`
}

// PublishTransaction serialises tx and LPUSHes it to the queue. Consumers
// BRPOP from the other end and use Fingerprint as the idempotency key.
func (p *Publisher) PublishTransaction(ctx context.Context, tx models.ParsedTransaction) (string, error) {
	env := Envelope{
		ID:          uuid.New().String(),
		Type:        EventType,
		Fingerprint: tx.Fingerprint(),
		PublishedAt: p.now().UTC(),
		Transaction: tx,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal transaction event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(data)).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published transaction to queue",
		"event_id", env.ID,
		"fingerprint", env.Fingerprint,
		"source_id", tx.SourceID,
		"queue", p.queueName,
	)

	return env.ID, nil
}

// Deliver implements delivery.Sink.
func (p *Publisher) Deliver(ctx context.Context, tx models.ParsedTransaction) error {
	_, err := p.PublishTransaction(ctx, tx)
	return err
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
