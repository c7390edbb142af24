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

// Package budget runs the background budget checker: it evaluates the
// signed-in user's budgets on an interval, raises spending alerts and posts
// the daily logging reminder.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mywallet/ingestion/internal/backend"
)

// Notification texts.
const (
	AlertTitle    = "Budget Alert"
	ReminderTitle = "Reminder"
	ReminderBody  = "Don't forget to log your transactions for the day!"
)

// Defaults for CheckerConfig.
const (
	DefaultInterval     = time.Hour
	DefaultReminderHour = 21
	warnPercent         = 80
	limitPercent        = 100
)

var hundred = decimal.NewFromInt(100)

// Source lists a user's budgets.
type Source interface {
	ListBudgets(ctx context.Context, userID string) ([]backend.Budget, error)
}

// Users yields the signed-in user id, or "" when signed out.
type Users interface {
	UserID() string
}

// Notifier delivers a notification to the user.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(_ context.Context, title, body string) error {
	slog.Info("notification", "title", title, "body", body)
	return nil
}

// Alert is a budget notification.
type Alert struct {
	BudgetID string
	Category string
	Percent  int64
	Title    string
	Body     string
}

// Evaluate returns the alert for a budget, if any. Budgets with a zero or
// negative amount never alert.
func Evaluate(b backend.Budget) (Alert, bool) {
	if !b.Amount.IsPositive() {
		return Alert{}, false
	}

	pct := b.SpentAmount.Div(b.Amount).Mul(hundred).Round(0).IntPart()

	alert := Alert{
		BudgetID: b.ID,
		Category: b.Category,
		Percent:  pct,
		Title:    AlertTitle,
	}
	switch {
	case pct >= limitPercent:
		alert.Body = fmt.Sprintf("You have exceeded your budget for %s!", b.Category)
	case pct >= warnPercent:
		alert.Body = fmt.Sprintf("You have spent %d%% of your budget for %s.", pct, b.Category)
	default:
		return Alert{}, false
	}
	return alert, true
}

// CheckerConfig holds the checker's collaborators and schedule.
type CheckerConfig struct {
	Budgets      Source
	Users        Users
	Notifier     Notifier
	Interval     time.Duration
	ReminderHour int // hour of day 0-23 (0 is midnight); -1 disables the reminder
	Location     *time.Location
	Now          func() time.Time
}

// Checker periodically evaluates budgets.
type Checker struct {
	budgets      Source
	users        Users
	notifier     Notifier
	interval     time.Duration
	reminderHour int
	loc          *time.Location
	now          func() time.Time

	mu           sync.Mutex
	sent         map[string]string // budget id -> last alert body
	lastReminder string            // yyyy-mm-dd
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewChecker creates a budget checker.
func NewChecker(cfg CheckerConfig) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ReminderHour > 23 {
		cfg.ReminderHour = -1
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{}
	}
	return &Checker{
		budgets:      cfg.Budgets,
		users:        cfg.Users,
		notifier:     cfg.Notifier,
		interval:     cfg.Interval,
		reminderHour: cfg.ReminderHour,
		loc:          cfg.Location,
		now:          cfg.Now,
		sent:         make(map[string]string),
	}
}

// Start launches the background loop. It returns immediately.
func (c *Checker) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx)
	}()
}

// Stop cancels the loop and waits for it to exit.
func (c *Checker) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Checker) run(ctx context.Context) {
	slog.Info("budget checker starting",
		"interval", c.interval,
		"reminder_hour", c.reminderHour,
	)

	c.tick(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("budget checker stopping")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Checker) tick(ctx context.Context) {
	if _, err := c.Check(ctx); err != nil {
		slog.Error("budget check failed", "error", err)
	}
	c.Remind(ctx)
}

// Check evaluates the signed-in user's budgets once and notifies on new
// alerts. An alert already sent for a budget is not repeated until its
// text changes. It returns the alerts sent.
func (c *Checker) Check(ctx context.Context) ([]Alert, error) {
	userID := c.users.UserID()
	if userID == "" {
		slog.Debug("budget check skipped, no session")
		return nil, nil
	}

	budgets, err := c.budgets.ListBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sent []Alert
	for _, b := range budgets {
		alert, ok := Evaluate(b)
		if !ok {
			continue
		}

		c.mu.Lock()
		repeat := b.ID != "" && c.sent[b.ID] == alert.Body
		c.mu.Unlock()
		if repeat {
			continue
		}

		if err := c.notifier.Notify(ctx, alert.Title, alert.Body); err != nil {
			slog.Error("failed to send budget alert",
				"budget_id", b.ID,
				"category", b.Category,
				"error", err,
			)
			continue
		}

		c.mu.Lock()
		if b.ID != "" {
			c.sent[b.ID] = alert.Body
		}
		c.mu.Unlock()

		slog.Info("budget alert sent",
			"budget_id", b.ID,
			"category", b.Category,
			"percent", alert.Percent,
		)
		sent = append(sent, alert)
	}

	return sent, nil
}

// Remind posts the daily logging reminder once per calendar day, on the
// first check at or after the reminder hour. It reports whether it fired.
func (c *Checker) Remind(ctx context.Context) bool {
	if c.reminderHour < 0 {
		return false
	}

	now := c.now().In(c.loc)
	if now.Hour() < c.reminderHour {
		return false
	}
	today := now.Format(time.DateOnly)

	c.mu.Lock()
	if c.lastReminder == today {
		c.mu.Unlock()
		return false
	}
	c.lastReminder = today
	c.mu.Unlock()

	if err := c.notifier.Notify(ctx, ReminderTitle, ReminderBody); err != nil {
		slog.Error("failed to send daily reminder", "error", err)
		return false
	}
	return true
}
