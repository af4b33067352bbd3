// Package app wires the service together: config, logging, storage, the
// trigger engine, the coordinator and the Telegram surface.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"aquabot/internal/bot"
	"aquabot/internal/config"
	"aquabot/internal/eventbus"
	"aquabot/internal/reminder"
	"aquabot/internal/storage"
	"aquabot/internal/transport/telegram"
	"aquabot/internal/triggers"
	logx "aquabot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	bus     *eventbus.Bus
	store   storage.Store
	trig    *triggers.Store
	coord   *reminder.Coordinator
	adapter *telegram.Adapter
	router  *bot.Router

	cfgUpdates chan *config.Config
	stop       context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: config.Duration(cfg.Storage.BusyTimeout, 0),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	trig := triggers.New(triggers.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		MisfireGrace:   config.Duration(cfg.Scheduler.MisfireGrace, 0),
		DefaultTimeout: config.Duration(cfg.Scheduler.DefaultTimeout, 0),
		Timezone:       cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "triggers")), bus)

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.Duration(cfg.Telegram.PollTimeout, 10*time.Second),
		RatePerSec:  float64(cfg.Telegram.RatePerSec),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		store.Close()
		logs.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	message, startHour, endHour, interval, tz := cfg.ReminderDefaults()
	coord := reminder.New(store, trig, adapter, reminder.Defaults{
		Message:         message,
		StartHour:       startHour,
		EndHour:         endHour,
		IntervalMinutes: interval,
		Timezone:        tz,
	}, log.With(logx.String("comp", "coordinator")))

	router := bot.New(coord, store, trig.Snapshot, bot.Config{
		Admins:          cfg.Telegram.Admins,
		Timezone:        tz,
		StartHour:       startHour,
		EndHour:         endHour,
		IntervalMinutes: interval,
	}, log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log.With(logx.String("comp", "app")),
		bus:     bus,
		store:   store,
		trig:    trig,
		coord:   coord,
		adapter: adapter,
		router:  router,
	}, nil
}

// Start brings everything up in dependency order: the trigger engine first,
// then recovery of persisted schedules, then Telegram traffic. Recovery must
// land between those two or triggers would register into a stopped engine
// and fires could race the rebuild.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.stop = cancel

	a.trig.Start(runCtx)

	rep, err := a.coord.RecoverAll(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("recovery: %w", err)
	}
	a.log.Info("schedules recovered",
		logx.Int("policies", rep.Policies),
		logx.Int("customs", rep.Customs))

	a.router.Register(a.adapter.Bot())
	a.adapter.Start(runCtx)

	a.watchConfig(runCtx)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("started")
	return nil
}

// watchConfig hot-applies the reloadable subset: log level/sinks. Scheduler
// and storage settings need a restart and are only logged.
func (a *App) watchConfig(ctx context.Context) {
	a.cfgUpdates = a.cfgm.Subscribe(4)
	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-a.cfgUpdates:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded", logx.String("level", cfg.Logging.Level))
			}
		}
	}()
}

func (a *App) Stop(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.stop != nil {
		a.stop()
	}
	a.adapter.Stop()
	a.trig.Stop(ctx, true)
	if a.cfgUpdates != nil {
		a.cfgm.Unsubscribe(a.cfgUpdates)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage failed", logx.Err(err))
	}
	a.log.Info("stopped")
	a.logs.Close()
}
