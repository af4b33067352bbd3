package triggers

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"aquabot/internal/eventbus"
	logx "aquabot/pkg/logx"
)

type Store struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus *eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []triggerDef

	queue     chan fire
	stopCh    chan struct{}
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// one-shot triggers (timers are runtime state, onces are definitions)
	tmu    sync.Mutex
	timers map[string]*time.Timer
	onces  map[string]*onceDef

	fired   atomic.Uint64
	failed  atomic.Uint64
	skipped atomic.Uint64
	dropped atomic.Uint64

	// now is swapped by tests to stage misfires.
	now func() time.Time
}

func New(cfg Config, log logx.Logger, bus *eventbus.Bus) *Store {
	return &Store{
		cfg:    cfg.withDefaults(),
		log:    log,
		bus:    bus,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		timers: map[string]*time.Timer{},
		onces:  map[string]*onceDef{},
		now:    time.Now,
	}
}

// Start brings up the cron engine and the worker pool. Calling Start on a
// running store is a no-op.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	// Fresh queue per run so stale fires never outlive a stop/start cycle.
	s.queue = make(chan fire, s.cfg.QueueSize)

	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// Re-register definitions surviving from a previous run.
	for i := range s.defs {
		s.addEntryLocked(&s.defs[i])
	}

	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in trigger worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.rebuildOnceTimersLocked()
	s.log.Info("trigger store started",
		logx.Int("workers", s.cfg.Workers),
		logx.String("tz", loc.String()),
		logx.Int("triggers", len(s.defs)))
}

// Stop shuts the engine down. In-flight fires are not interrupted beyond
// context cancellation; with wait true, Stop blocks for the workers until
// ctx expires. Stopping a stopped store is a no-op.
func (s *Store) Stop(ctx context.Context, wait bool) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.stopCh = nil
	s.runCancel = nil
	s.c = nil
	s.queue = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	if !wait {
		s.log.Info("trigger store stopping (not waiting for running fires)")
		return
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("trigger store stopped")
	case <-ctx.Done():
		s.log.Warn("trigger store stop timed out; fires finish in background")
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil
	workers := s.cfg.Workers
	ql, qc := 0, 0
	if s.queue != nil {
		ql, qc = len(s.queue), cap(s.queue)
	}
	infos := s.listLocked()
	s.mu.Unlock()

	return Snapshot{
		Running:  running,
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Fired:    s.fired.Load(),
		Failed:   s.failed.Load(),
		Skipped:  s.skipped.Load(),
		Dropped:  s.dropped.Load(),
		Triggers: infos,
	}
}

func (s *Store) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Store) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}
