// Package storage is the durable record of per-recipient reminder state.
//
// The database is the single source of truth for policies; in-memory
// triggers are a derived cache rebuilt from here on every boot.
package storage

import (
	"context"
	"time"
)

// Policy is one recipient's reminder configuration, keyed by chat id.
// It is never hard-deleted: stopping a reminder flips Active off.
type Policy struct {
	ChatID          int64
	Message         string
	IntervalMinutes int
	StartHour       int
	EndHour         int
	Active          bool
	OnboardingDone  bool
	Timezone        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Frequency string

const (
	FreqOnce   Frequency = "once"
	FreqDaily  Frequency = "daily"
	FreqWeekly Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FreqOnce, FreqDaily, FreqWeekly:
		return true
	}
	return false
}

// CustomReminder is a user-authored one-off or repeating reminder.
// At carries the (first) occurrence; for weekly reminders the weekday is
// derived from it.
type CustomReminder struct {
	ID        int64
	ChatID    int64
	Message   string
	At        time.Time
	Frequency Frequency
	Timezone  string
	CreatedAt time.Time
}

type Store interface {
	GetPolicy(ctx context.Context, chatID int64) (Policy, bool, error)
	PutPolicy(ctx context.Context, p Policy) error
	// SetActive flips the active flag; reports whether a policy existed.
	SetActive(ctx context.Context, chatID int64, active bool) (bool, error)
	ListActivePolicies(ctx context.Context) ([]Policy, error)

	AddCustomReminder(ctx context.Context, r CustomReminder) (int64, error)
	GetCustomReminder(ctx context.Context, id int64) (CustomReminder, bool, error)
	ListCustomReminders(ctx context.Context, chatID int64) ([]CustomReminder, error)
	ListAllCustomReminders(ctx context.Context) ([]CustomReminder, error)
	DeleteCustomReminder(ctx context.Context, id int64) (bool, error)

	RecordDelivery(ctx context.Context, chatID int64, at time.Time) error
	LastDelivery(ctx context.Context, chatID int64) (time.Time, bool, error)

	Close() error
}

// Config configures the sqlite backend.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}
