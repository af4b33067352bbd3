package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aquabot/internal/storage"
	"aquabot/internal/transport"
	"aquabot/internal/triggers"
	logx "aquabot/pkg/logx"
)

// AddCustom persists a user-authored reminder and schedules its trigger.
// A one-off whose instant already passed is not an error: it comes back as
// OutcomeMissedOnce and leaves no trace.
func (c *Coordinator) AddCustom(ctx context.Context, chatID int64, message string, at time.Time, freq storage.Frequency) (ScheduleResult, error) {
	if !freq.Valid() {
		return ScheduleResult{}, fmt.Errorf("unknown frequency %q", freq)
	}
	if strings.TrimSpace(message) == "" {
		return ScheduleResult{}, fmt.Errorf("reminder message required")
	}
	if at.IsZero() {
		return ScheduleResult{}, fmt.Errorf("reminder time required")
	}

	r := storage.CustomReminder{
		ChatID:    chatID,
		Message:   message,
		At:        at,
		Frequency: freq,
		Timezone:  c.defaults.Timezone,
	}
	if freq == storage.FreqOnce && !at.After(c.now()) {
		// never persisted; nothing will fire
		return ScheduleResult{Outcome: OutcomeMissedOnce}, nil
	}

	id, err := c.store.AddCustomReminder(ctx, r)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("persist reminder: %w", err)
	}
	r.ID = id

	res := c.scheduleCustom(ctx, r)
	if res.Outcome == OutcomeFailed {
		if _, derr := c.store.DeleteCustomReminder(ctx, id); derr != nil {
			c.log.Warn("cleaning up unschedulable reminder failed",
				logx.Int64("id", id), logx.Err(derr))
		}
	}
	return res, nil
}

// RemoveCustom deletes a reminder owned by chatID. Ownership is checked so
// one recipient cannot cancel another's reminder by guessing ids.
func (c *Coordinator) RemoveCustom(ctx context.Context, chatID, id int64) (bool, error) {
	r, ok, err := c.store.GetCustomReminder(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok || r.ChatID != chatID {
		return false, nil
	}
	if _, err := c.store.DeleteCustomReminder(ctx, id); err != nil {
		return false, err
	}
	c.triggers.Remove(customName(id))
	return true, nil
}

func (c *Coordinator) ListCustom(ctx context.Context, chatID int64) ([]storage.CustomReminder, error) {
	return c.store.ListCustomReminders(ctx, chatID)
}

// scheduleCustom registers the trigger for a persisted reminder. Shared by
// AddCustom and recovery; recovery can encounter one-offs whose instant
// passed while the process was down, which are discarded as missed.
func (c *Coordinator) scheduleCustom(ctx context.Context, r storage.CustomReminder) ScheduleResult {
	name := customName(r.ID)
	job := c.customJob(r.ID)

	switch r.Frequency {
	case storage.FreqOnce:
		if !r.At.After(c.now()) {
			if _, err := c.store.DeleteCustomReminder(ctx, r.ID); err != nil {
				c.log.Warn("discarding missed reminder failed", logx.Int64("id", r.ID), logx.Err(err))
			}
			return ScheduleResult{Outcome: OutcomeMissedOnce}
		}
		if err := c.triggers.RegisterOnce(name, r.At, 0, job); err != nil {
			return ScheduleResult{Outcome: OutcomeFailed, Err: err}
		}
		return ScheduleResult{Outcome: OutcomeScheduled, NextFire: r.At}

	case storage.FreqDaily:
		if err := c.triggers.RegisterRecurring(name, r.At.Hour(), r.At.Minute(), r.Timezone, 0, job); err != nil {
			return ScheduleResult{Outcome: OutcomeFailed, Err: err}
		}
		return ScheduleResult{Outcome: OutcomeScheduled, NextFire: c.nextDaily(r)}

	case storage.FreqWeekly:
		if err := c.triggers.RegisterWeekly(name, r.At.Weekday(), r.At.Hour(), r.At.Minute(), r.Timezone, 0, job); err != nil {
			return ScheduleResult{Outcome: OutcomeFailed, Err: err}
		}
		return ScheduleResult{Outcome: OutcomeScheduled, NextFire: c.nextWeekly(r)}
	}
	return ScheduleResult{Outcome: OutcomeFailed, Err: fmt.Errorf("unknown frequency %q", r.Frequency)}
}

// customJob resolves the reminder row at fire time; editing or deleting a
// reminder between registration and fire wins over the registered trigger.
func (c *Coordinator) customJob(id int64) triggers.Job {
	return func(ctx context.Context) error {
		r, ok, err := c.store.GetCustomReminder(ctx, id)
		if err != nil {
			return fmt.Errorf("load reminder %d: %w", id, err)
		}
		name := customName(id)
		if !ok {
			c.triggers.Remove(name)
			c.log.Warn("stale custom fire; trigger removed", logx.Int64("id", id))
			return nil
		}

		if err := c.deliver.SendText(ctx, r.ChatID, r.Message); err != nil {
			if transport.IsUnreachable(err) {
				if _, derr := c.store.DeleteCustomReminder(ctx, id); derr != nil {
					c.log.Warn("deleting unreachable reminder failed", logx.Int64("id", id), logx.Err(derr))
				}
				c.triggers.Remove(name)
				c.log.Info("recipient unreachable; custom reminder retired",
					logx.Int64("chat", r.ChatID), logx.Int64("id", id))
				return nil
			}
			return fmt.Errorf("deliver reminder %d: %w", id, err)
		}

		if r.Frequency == storage.FreqOnce {
			// delivered; the row and trigger are spent
			if _, err := c.store.DeleteCustomReminder(ctx, id); err != nil {
				c.log.Warn("deleting delivered reminder failed", logx.Int64("id", id), logx.Err(err))
			}
		}
		return nil
	}
}

func (c *Coordinator) nextDaily(r storage.CustomReminder) time.Time {
	now := c.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), r.At.Hour(), r.At.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (c *Coordinator) nextWeekly(r storage.CustomReminder) time.Time {
	next := c.nextDaily(r)
	for next.Weekday() != r.At.Weekday() {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
