// Package reminder is the scheduling coordinator: it owns the mapping from
// durable reminder policies to live triggers and runs the delivery jobs the
// triggers fire.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aquabot/internal/planner"
	"aquabot/internal/storage"
	"aquabot/internal/transport"
	"aquabot/internal/triggers"
	logx "aquabot/pkg/logx"
)

// Triggers is the slice of the trigger store the coordinator drives.
type Triggers interface {
	RegisterRecurring(name string, hour, minute int, tz string, timeout time.Duration, job triggers.Job) error
	RegisterWeekly(name string, weekday time.Weekday, hour, minute int, tz string, timeout time.Duration, job triggers.Job) error
	RegisterOnce(name string, at time.Time, timeout time.Duration, job triggers.Job) error
	Remove(name string) bool
	RemoveByPrefix(prefix string) int
	List() []triggers.Info
}

// Defaults seed a recipient's policy on first contact.
type Defaults struct {
	Message         string
	StartHour       int
	EndHour         int
	IntervalMinutes int
	Timezone        string
}

type Coordinator struct {
	log      logx.Logger
	store    storage.Store
	triggers Triggers
	deliver  transport.Deliverer
	defaults Defaults

	// now is swapped by tests.
	now func() time.Time
}

func New(store storage.Store, trig Triggers, deliver transport.Deliverer, defaults Defaults, log logx.Logger) *Coordinator {
	return &Coordinator{
		log:      log,
		store:    store,
		triggers: trig,
		deliver:  deliver,
		defaults: defaults,
		now:      time.Now,
	}
}

// Trigger names carry the recipient id and slot index; teardown goes by the
// "water_<chat>_" prefix. The trailing underscore keeps chat 12 and chat 123
// disjoint.
func waterName(chatID int64, idx int) string {
	return fmt.Sprintf("water_%d_%d", chatID, idx)
}

func waterPrefix(chatID int64) string {
	return fmt.Sprintf("water_%d_", chatID)
}

func customName(id int64) string {
	return fmt.Sprintf("custom_%d", id)
}

// Activate turns the recipient's reminders on. First contact gets a policy
// from the defaults; a returning recipient keeps their stored window. Safe
// to call twice: triggers register with replace semantics, so the resulting
// name set is identical.
func (c *Coordinator) Activate(ctx context.Context, chatID int64) error {
	p, ok, err := c.store.GetPolicy(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if !ok {
		p = c.defaultPolicy(chatID)
	}
	p.Active = true
	if err := c.validatePolicy(&p); err != nil {
		return err
	}
	if err := c.store.PutPolicy(ctx, p); err != nil {
		return fmt.Errorf("persist policy: %w", err)
	}
	if err := c.registerPolicyTriggers(p); err != nil {
		return &SchedulingError{ChatID: chatID, Err: err}
	}
	return nil
}

// Deactivate turns the recipient's reminders off. The active flag is
// persisted before trigger removal: if removal races with an in-flight fire,
// the fire's own policy check sees inactive and refuses to deliver.
func (c *Coordinator) Deactivate(ctx context.Context, chatID int64) error {
	existed, err := c.store.SetActive(ctx, chatID, false)
	if err != nil {
		return fmt.Errorf("persist policy: %w", err)
	}
	removed := c.triggers.RemoveByPrefix(waterPrefix(chatID))
	if !existed {
		return &PolicyError{ChatID: chatID, Reason: "unknown recipient"}
	}
	c.log.Info("reminders deactivated", logx.Int64("chat", chatID), logx.Int("triggers_removed", removed))
	return nil
}

// Rebuild replaces the recipient's policy and rebuilds its triggers as one
// logical operation. Used when the window or interval changes.
func (c *Coordinator) Rebuild(ctx context.Context, p storage.Policy) error {
	p.Active = true
	if err := c.validatePolicy(&p); err != nil {
		return err
	}
	if err := c.store.PutPolicy(ctx, p); err != nil {
		return fmt.Errorf("persist policy: %w", err)
	}
	c.triggers.RemoveByPrefix(waterPrefix(p.ChatID))
	if err := c.registerPolicyTriggers(p); err != nil {
		return &SchedulingError{ChatID: p.ChatID, Err: err}
	}
	return nil
}

// Report aggregates a recovery pass.
type Report struct {
	Policies        int
	PolicyFailures  int
	Customs         int
	CustomsMissed   int
	CustomsFailures int
}

// RecoverAll rebuilds the in-memory schedule from the durable store at boot.
// Call it exactly once, after the trigger store is started. Failures are
// isolated per recipient: one bad policy is logged and skipped, never
// aborting the rest.
func (c *Coordinator) RecoverAll(ctx context.Context) (Report, error) {
	var rep Report

	policies, err := c.store.ListActivePolicies(ctx)
	if err != nil {
		return rep, fmt.Errorf("list active policies: %w", err)
	}
	for _, p := range policies {
		if err := c.validatePolicy(&p); err != nil {
			rep.PolicyFailures++
			c.log.Warn("skipping unrecoverable policy", logx.Int64("chat", p.ChatID), logx.Err(err))
			continue
		}
		if err := c.registerPolicyTriggers(p); err != nil {
			rep.PolicyFailures++
			c.log.Warn("policy recovery failed", logx.Int64("chat", p.ChatID), logx.Err(err))
			continue
		}
		rep.Policies++
	}

	customs, err := c.store.ListAllCustomReminders(ctx)
	if err != nil {
		// policies are already live; a broken custom table degrades, not aborts
		c.log.Warn("listing custom reminders failed", logx.Err(err))
		return rep, nil
	}
	for _, r := range customs {
		res := c.scheduleCustom(ctx, r)
		switch res.Outcome {
		case OutcomeScheduled:
			rep.Customs++
		case OutcomeMissedOnce:
			rep.CustomsMissed++
		case OutcomeFailed:
			rep.CustomsFailures++
			c.log.Warn("custom reminder recovery failed",
				logx.Int64("chat", r.ChatID), logx.Int64("id", r.ID), logx.Err(res.Err))
		}
	}

	c.log.Info("recovery complete",
		logx.Int("policies", rep.Policies),
		logx.Int("policy_failures", rep.PolicyFailures),
		logx.Int("customs", rep.Customs),
		logx.Int("customs_missed", rep.CustomsMissed),
		logx.Int("customs_failures", rep.CustomsFailures))
	return rep, nil
}

// ListTriggers exposes the live trigger set for diagnostics.
func (c *Coordinator) ListTriggers() []triggers.Info {
	return c.triggers.List()
}

// registerPolicyTriggers computes the policy's fire instants and registers
// one daily trigger per upcoming slot. Slots already passed today in the
// recipient's zone are skipped so mid-window activation does not double-fire
// a past slot; past the whole window, everything registers and the schedule
// begins next calendar day.
func (c *Coordinator) registerPolicyTriggers(p storage.Policy) error {
	times, err := planner.Interval(p.StartHour, p.EndHour, p.IntervalMinutes)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", p.Timezone, err)
	}
	upcoming := planner.Upcoming(times, c.now().In(loc))
	if len(upcoming) == 0 {
		upcoming = times
	}

	// Index into the full slot list keeps names stable across re-activation.
	idx := map[planner.ClockTime]int{}
	for i, t := range times {
		idx[t] = i
	}

	job := c.waterJob(p)
	for _, t := range upcoming {
		name := waterName(p.ChatID, idx[t])
		if err := c.triggers.RegisterRecurring(name, t.Hour, t.Minute, p.Timezone, 0, job); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	c.log.Debug("policy triggers registered",
		logx.Int64("chat", p.ChatID),
		logx.Int("count", len(upcoming)),
		logx.String("window", fmt.Sprintf("%02d-%02d", p.StartHour, p.EndHour)))
	return nil
}

func (c *Coordinator) defaultPolicy(chatID int64) storage.Policy {
	return storage.Policy{
		ChatID:          chatID,
		Message:         c.defaults.Message,
		IntervalMinutes: c.defaults.IntervalMinutes,
		StartHour:       c.defaults.StartHour,
		EndHour:         c.defaults.EndHour,
		Timezone:        c.defaults.Timezone,
	}
}

func (c *Coordinator) validatePolicy(p *storage.Policy) error {
	if p.StartHour < 0 || p.StartHour > 23 || p.EndHour < 0 || p.EndHour > 23 {
		return &PolicyError{ChatID: p.ChatID, Reason: fmt.Sprintf("window %d-%d out of range", p.StartHour, p.EndHour)}
	}
	if p.EndHour < p.StartHour {
		return &PolicyError{ChatID: p.ChatID, Reason: fmt.Sprintf("window end %d before start %d", p.EndHour, p.StartHour)}
	}
	if p.IntervalMinutes <= 0 {
		p.IntervalMinutes = c.defaults.IntervalMinutes
	}
	if strings.TrimSpace(p.Timezone) == "" {
		p.Timezone = c.defaults.Timezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return &PolicyError{ChatID: p.ChatID, Reason: fmt.Sprintf("timezone %q: %v", p.Timezone, err)}
	}
	if strings.TrimSpace(p.Message) == "" {
		p.Message = c.defaults.Message
	}
	return nil
}
