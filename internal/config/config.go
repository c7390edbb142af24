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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// AuthConfig describes how to authenticate to an HTTP collaborator. When
// TokenURL is set the OAuth2 client-credentials flow is used; otherwise a
// non-empty Token is sent as a static bearer token.
type AuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Token        string
}

// DeviceConfig locates the SMS bridge on the phone.
type DeviceConfig struct {
	Platform string // "android", "ios", ...
	BaseURL  string
	Auth     AuthConfig
}

// SMSConfig controls the ingestion pass.
type SMSConfig struct {
	Sender   string
	Mailbox  string
	MarkRead bool
	Location *time.Location
}

// BackendConfig locates the wallet backend.
type BackendConfig struct {
	BaseURL string
	Auth    AuthConfig
	Timeout time.Duration
}

// LedgerConfig selects the durable transaction ledger.
type LedgerConfig struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
}

// BudgetConfig schedules the budget checker.
type BudgetConfig struct {
	Enabled      bool
	Interval     time.Duration
	ReminderHour int
}

// SessionConfig seeds the signed-in user at boot.
type SessionConfig struct {
	UserID string
	Name   string
	Email  string
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Device  DeviceConfig
	SMS     SMSConfig
	Backend BackendConfig
	Ledger  LedgerConfig
	Budget  BudgetConfig
	Session SessionConfig

	// Redis (empty URL disables dedup and publishing)
	RedisURL          string
	TransactionsQueue string
	DedupTTL          time.Duration
	DedupPrefix       string

	// Server (health and status)
	Port int
}

type rawAuth struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	Token        string   `yaml:"token"`
}

func (r rawAuth) config() AuthConfig {
	return AuthConfig{
		TokenURL:     r.TokenURL,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Scopes:       r.Scopes,
		Token:        r.Token,
	}
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Device struct {
		Platform string  `yaml:"platform"`
		BaseURL  string  `yaml:"base_url"`
		Auth     rawAuth `yaml:"auth"`
	} `yaml:"device"`
	SMS struct {
		Sender   string `yaml:"sender"`
		Mailbox  string `yaml:"mailbox"`
		MarkRead *bool  `yaml:"mark_read"`
		Timezone string `yaml:"timezone"`
	} `yaml:"sms"`
	Backend struct {
		BaseURL string  `yaml:"base_url"`
		Auth    rawAuth `yaml:"auth"`
		Timeout string  `yaml:"timeout"`
	} `yaml:"backend"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Transactions string `yaml:"transactions"`
		} `yaml:"queues"`
		Dedup struct {
			TTL    string `yaml:"ttl"`
			Prefix string `yaml:"prefix"`
		} `yaml:"dedup"`
	} `yaml:"redis"`
	Ledger struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"ledger"`
	Budget struct {
		Enabled      *bool  `yaml:"enabled"`
		Interval     string `yaml:"interval"`
		ReminderHour *int   `yaml:"reminder_hour"`
	} `yaml:"budget"`
	Session struct {
		UserID string `yaml:"user_id"`
		Name   string `yaml:"name"`
		Email  string `yaml:"email"`
	} `yaml:"session"`
	Port int `yaml:"port"`
}

// Load reads configuration from CONFIG_PATH (default /app/config/config.yaml).
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile reads configuration from path, with ${VAR} expansion, and fills
// unset values from the environment and defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	var err error
	cfg := &Config{
		Device: DeviceConfig{
			Platform: strings.ToLower(firstNonEmpty(raw.Device.Platform, envOrDefault("DEVICE_PLATFORM", "android"))),
			BaseURL:  strings.TrimRight(firstNonEmpty(raw.Device.BaseURL, os.Getenv("DEVICE_BASE_URL")), "/"),
			Auth:     raw.Device.Auth.config(),
		},
		SMS: SMSConfig{
			Sender:   firstNonEmpty(raw.SMS.Sender, envOrDefault("SMS_SENDER", "MPESA")),
			Mailbox:  firstNonEmpty(raw.SMS.Mailbox, "inbox"),
			MarkRead: boolOr(raw.SMS.MarkRead, envOrDefaultBool("SMS_MARK_READ", false)),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(firstNonEmpty(raw.Backend.BaseURL, os.Getenv("BACKEND_BASE_URL")), "/"),
			Auth:    raw.Backend.Auth.config(),
		},
		Ledger: LedgerConfig{
			Driver: strings.ToLower(firstNonEmpty(raw.Ledger.Driver, envOrDefault("LEDGER_DRIVER", "sqlite"))),
			DSN:    firstNonEmpty(raw.Ledger.DSN, envOrDefault("LEDGER_DSN", "/app/data/ledger.db")),
		},
		Budget: BudgetConfig{
			Enabled:      boolOr(raw.Budget.Enabled, true),
			ReminderHour: 21,
		},
		Session: SessionConfig{
			UserID: firstNonEmpty(raw.Session.UserID, os.Getenv("SESSION_USER_ID")),
			Name:   raw.Session.Name,
			Email:  raw.Session.Email,
		},
		RedisURL:          firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		TransactionsQueue: firstNonEmpty(raw.Redis.Queues.Transactions, envOrDefault("TRANSACTIONS_QUEUE", "transactions")),
		DedupPrefix:       firstNonEmpty(raw.Redis.Dedup.Prefix, "mywallet:sms:seen:"),
		Port:              envOrDefaultInt("PORT", 8080),
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if raw.Budget.ReminderHour != nil {
		cfg.Budget.ReminderHour = *raw.Budget.ReminderHour
	}

	if cfg.Backend.Timeout, err = durationOr(raw.Backend.Timeout, envOrDefaultDuration("BACKEND_TIMEOUT", 30*time.Second)); err != nil {
		return nil, fmt.Errorf("backend.timeout: %w", err)
	}
	if cfg.DedupTTL, err = durationOr(raw.Redis.Dedup.TTL, envOrDefaultDuration("DEDUP_TTL", 30*24*time.Hour)); err != nil {
		return nil, fmt.Errorf("redis.dedup.ttl: %w", err)
	}
	if cfg.Budget.Interval, err = durationOr(raw.Budget.Interval, envOrDefaultDuration("BUDGET_INTERVAL", time.Hour)); err != nil {
		return nil, fmt.Errorf("budget.interval: %w", err)
	}

	tz := firstNonEmpty(raw.SMS.Timezone, os.Getenv("SMS_TIMEZONE"))
	if tz == "" {
		cfg.SMS.Location = time.Local
	} else if cfg.SMS.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("sms.timezone: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Device.Platform == "android" && c.Device.BaseURL == "" {
		return fmt.Errorf("device.base_url is required for platform android")
	}
	if c.SMS.Mailbox != "inbox" && c.SMS.Mailbox != "sent" {
		return fmt.Errorf("sms.mailbox must be inbox or sent, got %q", c.SMS.Mailbox)
	}
	switch c.Ledger.Driver {
	case "sqlite", "sqlite3", "postgres", "pgx", "none":
	default:
		return fmt.Errorf("ledger.driver %q is not supported", c.Ledger.Driver)
	}
	if c.Budget.ReminderHour < -1 || c.Budget.ReminderHour > 23 {
		return fmt.Errorf("budget.reminder_hour must be between 0 and 23 (or -1), got %d", c.Budget.ReminderHour)
	}
	return nil
}

func durationOr(s string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
