// Package bot maps Telegram commands onto the scheduling coordinator.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"aquabot/internal/reminder"
	"aquabot/internal/storage"
	"aquabot/internal/triggers"
	logx "aquabot/pkg/logx"
)

// handlerTimeout bounds the store and scheduling work done per command.
const handlerTimeout = 10 * time.Second

type Config struct {
	// Admins may call /triggers.
	Admins []int64
	// Timezone interprets clock times in /remind arguments.
	Timezone string
	// Default schedule, used for welcome texts and /reset.
	StartHour       int
	EndHour         int
	IntervalMinutes int
}

type Router struct {
	log   logx.Logger
	coord *reminder.Coordinator
	store storage.Store
	// snapshot reads engine counters for /status.
	snapshot func() triggers.Snapshot

	cfg    Config
	loc    *time.Location
	admins map[int64]struct{}

	now func() time.Time
}

func New(coord *reminder.Coordinator, store storage.Store, snapshot func() triggers.Snapshot, cfg Config, log logx.Logger) *Router {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("invalid bot timezone; using UTC", logx.String("tz", cfg.Timezone), logx.Err(err))
		loc = time.UTC
	}
	admins := make(map[int64]struct{}, len(cfg.Admins))
	for _, id := range cfg.Admins {
		admins[id] = struct{}{}
	}
	return &Router{
		log:      log,
		coord:    coord,
		store:    store,
		snapshot: snapshot,
		cfg:      cfg,
		loc:      loc,
		admins:   admins,
		now:      time.Now,
	}
}

// Register binds all command handlers.
func (r *Router) Register(b *tele.Bot) {
	b.Handle("/start", r.handleStart)
	b.Handle("/stop", r.handleStop)
	b.Handle("/resume", r.handleResume)
	b.Handle("/status", r.handleStatus)
	b.Handle("/setup", r.handleSetup)
	b.Handle("/reset", r.handleReset)
	b.Handle("/remind", r.handleRemind)
	b.Handle("/reminders", r.handleReminders)
	b.Handle("/cancel", r.handleCancel)
	b.Handle("/triggers", r.handleTriggers)
	b.Handle("/help", func(c tele.Context) error { return c.Send(textHelp) })
}

func (r *Router) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

func (r *Router) handleStart(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	p, ok, err := r.store.GetPolicy(ctx, chatID)
	if err != nil {
		r.log.Error("loading policy failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	firstContact := !ok || !p.OnboardingDone

	if err := r.coord.Activate(ctx, chatID); err != nil {
		r.log.Error("activation failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}

	if !firstContact {
		return c.Send(textResumed)
	}
	// Default window for the welcome text; the re-read below may fail and
	// must not leave us formatting a zero policy.
	startHour, endHour := r.cfg.StartHour, r.cfg.EndHour
	p, _, err = r.store.GetPolicy(ctx, chatID)
	if err != nil {
		r.log.Warn("re-reading policy failed", logx.Int64("chat", chatID), logx.Err(err))
	} else {
		startHour, endHour = p.StartHour, p.EndHour
		p.OnboardingDone = true
		if err := r.store.PutPolicy(ctx, p); err != nil {
			r.log.Warn("marking onboarding failed", logx.Int64("chat", chatID), logx.Err(err))
		}
	}
	return c.Send(fmt.Sprintf(textWelcome, startHour, endHour))
}

// handleSetup changes the caller's reminder window (and optionally the
// interval) and rebuilds their schedule in one step.
func (r *Router) handleSetup(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	req, err := parseSetup(c.Args())
	if err != nil {
		return c.Send(textSetupUsage)
	}
	p, ok, err := r.store.GetPolicy(ctx, chatID)
	if err != nil {
		r.log.Error("loading policy failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	if !ok {
		return c.Send(textNotSetUp)
	}
	p.StartHour = req.StartHour
	p.EndHour = req.EndHour
	if req.Interval > 0 {
		p.IntervalMinutes = req.Interval
	}

	err = r.coord.Rebuild(ctx, p)
	var perr *reminder.PolicyError
	if errors.As(err, &perr) {
		return c.Send(textSetupBadWindow)
	}
	if err != nil {
		r.log.Error("rebuilding schedule failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	return c.Send(fmt.Sprintf(textSetupDone, p.StartHour, p.EndHour, p.IntervalMinutes))
}

// handleReset puts the caller back on the default schedule.
func (r *Router) handleReset(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	p, ok, err := r.store.GetPolicy(ctx, chatID)
	if err != nil {
		r.log.Error("loading policy failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	if !ok {
		return c.Send(textNotSetUp)
	}
	p.StartHour = r.cfg.StartHour
	p.EndHour = r.cfg.EndHour
	p.IntervalMinutes = r.cfg.IntervalMinutes
	p.Message = "" // Rebuild restores the default text

	if err := r.coord.Rebuild(ctx, p); err != nil {
		r.log.Error("rebuilding schedule failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	return c.Send(fmt.Sprintf(textResetDone, p.StartHour, p.EndHour, p.IntervalMinutes))
}

func (r *Router) handleStop(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	err := r.coord.Deactivate(ctx, chatID)
	var perr *reminder.PolicyError
	if errors.As(err, &perr) {
		return c.Send(textNotSetUp)
	}
	if err != nil {
		r.log.Error("deactivation failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	return c.Send(textStopped)
}

func (r *Router) handleResume(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	if _, ok, err := r.store.GetPolicy(ctx, chatID); err != nil || !ok {
		if err != nil {
			r.log.Error("loading policy failed", logx.Int64("chat", chatID), logx.Err(err))
			return c.Send(textInternalError)
		}
		return c.Send(textNotSetUp)
	}
	if err := r.coord.Activate(ctx, chatID); err != nil {
		r.log.Error("activation failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	return c.Send(textResumed)
}

func (r *Router) handleStatus(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	p, ok, err := r.store.GetPolicy(ctx, chatID)
	if err != nil {
		r.log.Error("loading policy failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	if !ok {
		return c.Send(textNotSetUp)
	}

	var b strings.Builder
	if p.Active {
		b.WriteString("Reminders: on\n")
	} else {
		b.WriteString("Reminders: off\n")
	}
	fmt.Fprintf(&b, "Window: %02d:00-%02d:00 every %d min (%s)\n",
		p.StartHour, p.EndHour, p.IntervalMinutes, p.Timezone)
	if last, ok, _ := r.store.LastDelivery(ctx, chatID); ok {
		fmt.Fprintf(&b, "Last reminder: %s\n", last.In(r.loc).Format("2006-01-02 15:04"))
	}
	snap := r.snapshot()
	fmt.Fprintf(&b, "Engine: %d triggers, fired %d, failed %d, skipped %d, dropped %d",
		len(snap.Triggers), snap.Fired, snap.Failed, snap.Skipped, snap.Dropped)
	return c.Send(b.String())
}

func (r *Router) handleRemind(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	req, err := parseRemind(c.Args(), r.now(), r.loc)
	if err != nil {
		return c.Send(textRemindUsage)
	}

	res, err := r.coord.AddCustom(ctx, chatID, req.Message, req.At, req.Freq)
	if err != nil {
		r.log.Error("adding reminder failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	switch res.Outcome {
	case reminder.OutcomeScheduled:
		return c.Send(fmt.Sprintf("Scheduled! First reminder %s.",
			res.NextFire.In(r.loc).Format("Mon, 2 Jan 15:04")))
	case reminder.OutcomeMissedOnce:
		return c.Send(textRemindMissed)
	default:
		r.log.Warn("reminder not scheduled", logx.Int64("chat", chatID), logx.Err(res.Err))
		return c.Send(textInternalError)
	}
}

func (r *Router) handleReminders(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	rs, err := r.coord.ListCustom(ctx, chatID)
	if err != nil {
		r.log.Error("listing reminders failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	if len(rs) == 0 {
		return c.Send(textNoReminders)
	}
	var b strings.Builder
	for _, x := range rs {
		fmt.Fprintf(&b, "#%d %s - %s\n", x.ID, describeReminder(x, r.loc), x.Message)
	}
	return c.Send(strings.TrimRight(b.String(), "\n"))
}

func (r *Router) handleCancel(c tele.Context) error {
	ctx, cancel := r.ctx()
	defer cancel()
	chatID := c.Chat().ID

	args := c.Args()
	if len(args) != 1 {
		return c.Send(textCancelUsage)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return c.Send(textCancelUsage)
	}
	ok, err := r.coord.RemoveCustom(ctx, chatID, id)
	if err != nil {
		r.log.Error("cancelling reminder failed", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(textInternalError)
	}
	if !ok {
		return c.Send(textCancelMissing)
	}
	return c.Send(textCancelDone)
}

func (r *Router) handleTriggers(c tele.Context) error {
	if _, ok := r.admins[c.Sender().ID]; !ok {
		// non-admins see nothing, not even a refusal
		return nil
	}
	infos := r.coord.ListTriggers()
	if len(infos) == 0 {
		return c.Send("No triggers registered.")
	}
	var b strings.Builder
	for _, it := range infos {
		if it.Once {
			fmt.Fprintf(&b, "%s once at %s\n", it.Name, it.Next.In(r.loc).Format("2006-01-02 15:04"))
			continue
		}
		next := "-"
		if !it.Next.IsZero() {
			next = it.Next.In(r.loc).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%s [%s] next %s\n", it.Name, it.Spec, next)
	}
	return c.Send(strings.TrimRight(b.String(), "\n"))
}

func describeReminder(x storage.CustomReminder, loc *time.Location) string {
	switch x.Frequency {
	case storage.FreqDaily:
		return "daily " + x.At.In(loc).Format("15:04")
	case storage.FreqWeekly:
		return "weekly " + x.At.In(loc).Format("Mon 15:04")
	default:
		return "once " + x.At.In(loc).Format("2006-01-02 15:04")
	}
}
