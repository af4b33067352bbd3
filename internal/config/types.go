package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Reminder  ReminderConfig  `json:"reminder"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound sends (Telegram flood control).
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// Admins may use the diagnostic commands (/triggers).
	Admins []int64 `json:"admins,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the trigger store.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
//
// Defaults (when fields are omitted/zero):
//   - workers: 10
//   - queue_size: 256
//   - misfire_grace: "1h"
//   - default_timeout: "30s"
type SchedulerConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	MisfireGrace   string `json:"misfire_grace,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	// Timezone is the fallback IANA zone for policies that don't carry one.
	Timezone string `json:"timezone,omitempty"`
}

// ReminderConfig holds per-recipient policy defaults used during onboarding.
type ReminderConfig struct {
	Message         string `json:"message,omitempty"`
	StartHour       *int   `json:"start_hour,omitempty"`
	EndHour         *int   `json:"end_hour,omitempty"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
}

const (
	DefaultStartHour       = 8
	DefaultEndHour         = 23
	DefaultIntervalMinutes = 60
	DefaultTimezone        = "Etc/GMT-3"
	DefaultMessage         = "Time to drink water! 💧"
)

// Validate rejects configs the services cannot safely run with. It is also
// installed as the Watch validator so a bad edit never reaches Commit.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if c.Reminder.StartHour != nil {
		if h := *c.Reminder.StartHour; h < 0 || h > 23 {
			return fmt.Errorf("reminder.start_hour %d out of range 0..23", h)
		}
	}
	if c.Reminder.EndHour != nil {
		if h := *c.Reminder.EndHour; h < 0 || h > 23 {
			return fmt.Errorf("reminder.end_hour %d out of range 0..23", h)
		}
	}
	if c.Reminder.StartHour != nil && c.Reminder.EndHour != nil && *c.Reminder.EndHour < *c.Reminder.StartHour {
		return fmt.Errorf("reminder.end_hour %d before start_hour %d", *c.Reminder.EndHour, *c.Reminder.StartHour)
	}
	if c.Reminder.IntervalMinutes < 0 {
		return errors.New("reminder.interval_minutes must be positive")
	}
	for _, d := range []struct{ name, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.misfire_grace", c.Scheduler.MisfireGrace},
		{"scheduler.default_timeout", c.Scheduler.DefaultTimeout},
	} {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		if _, err := time.ParseDuration(d.raw); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// Duration parses a Go duration string field, returning def when the field
// is empty or malformed. Validate() reports malformed values up front, so
// the fallback here only matters for hand-built configs in tests.
func Duration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// ReminderDefaults resolves the onboarding policy defaults.
func (c *Config) ReminderDefaults() (message string, startHour, endHour, intervalMinutes int, timezone string) {
	message = strings.TrimSpace(c.Reminder.Message)
	if message == "" {
		message = DefaultMessage
	}
	startHour = DefaultStartHour
	if c.Reminder.StartHour != nil {
		startHour = *c.Reminder.StartHour
	}
	endHour = DefaultEndHour
	if c.Reminder.EndHour != nil {
		endHour = *c.Reminder.EndHour
	}
	intervalMinutes = c.Reminder.IntervalMinutes
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	timezone = strings.TrimSpace(c.Scheduler.Timezone)
	if timezone == "" {
		timezone = DefaultTimezone
	}
	return message, startHour, endHour, intervalMinutes, timezone
}
