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

// Package dedup remembers which transaction fingerprints have already been
// handed off, using Redis keys with a TTL. A cold start that re-reads the
// same unread notifications does not deliver them twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a fingerprint is remembered. M-Pesa
	// confirmations older than this are not expected to reappear unread.
	DefaultTTL = 30 * 24 * time.Hour

	// DefaultPrefix namespaces dedup keys in Redis.
	DefaultPrefix = "mywallet:sms:seen:"
)

// Commands is the subset of the Redis client the filter needs.
type Commands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Filter tracks which fingerprints have already been delivered.
type Filter struct {
	rdb    Commands
	ttl    time.Duration
	prefix string
}

// FilterConfig holds optional overrides for NewFilter.
type FilterConfig struct {
	TTL    time.Duration
	Prefix string
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb Commands, cfg FilterConfig) *Filter {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Filter{
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
	}
}

// Key returns the Redis key used for a fingerprint.
func (f *Filter) Key(fingerprint string) string {
	return f.prefix + fingerprint
}

// IsNew returns true if the fingerprint has NOT been seen before.
// If true, it is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, fingerprint string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, f.Key(fingerprint), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget releases a fingerprint so the next IsNew reports it as new again.
// It is called when the hand-off after a successful IsNew failed.
func (f *Filter) Forget(ctx context.Context, fingerprint string) error {
	if err := f.rdb.Del(ctx, f.Key(fingerprint)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
