package triggers

import (
	"context"
	"time"

	"aquabot/internal/eventbus"
	logx "aquabot/pkg/logx"
)

// enqueue hands a fire to the worker pool. It never blocks the scheduling
// goroutine: a full queue or a fire already waiting for the same name turns
// into a skip/drop event instead.
func (s *Store) enqueue(f fire) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("trigger store not running; dropping fire", logx.String("trigger", f.name))
		s.drop(f, "engine stopped")
		return
	}

	if f.state != nil {
		f.state.mu.Lock()
		if f.state.queued {
			// a fire for this name is already waiting: coalesce
			f.state.mu.Unlock()
			s.skip(f, "coalesced")
			return
		}
		f.state.queued = true
		f.state.mu.Unlock()
	}

	select {
	case q <- f:
	default:
		if f.state != nil {
			f.state.mu.Lock()
			f.state.queued = false
			f.state.mu.Unlock()
		}
		s.log.Warn("trigger queue full; dropping fire",
			logx.String("trigger", f.name), logx.Int("queue_cap", cap(q)))
		s.drop(f, "queue full")
	}
}

func (s *Store) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan fire) {
	for {
		// fast-exit check so a closed stopCh wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case f := <-queue:
			s.execOne(ctx, f)
		}
	}
}

func (s *Store) execOne(ctx context.Context, f fire) {
	if f.state != nil {
		f.state.mu.Lock()
		f.state.queued = false
		if f.state.running {
			// the previous fire of this name is still executing
			f.state.mu.Unlock()
			s.skip(f, "previous run still running")
			return
		}
		f.state.running = true
		f.state.mu.Unlock()
		defer func() {
			f.state.mu.Lock()
			f.state.running = false
			f.state.mu.Unlock()
		}()
	}

	// Misfire policy: a fire delayed past the grace period is dropped, not
	// executed. Within the grace it runs once as a catch-up.
	if age := s.now().Sub(f.scheduledAt); age > s.cfg.MisfireGrace {
		s.log.Warn("stale fire dropped",
			logx.String("trigger", f.name),
			logx.Duration("age", age),
			logx.Duration("grace", s.cfg.MisfireGrace))
		s.drop(f, "misfire grace exceeded")
		return
	}

	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if f.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
	}
	err := f.run(runCtx)
	if cancel != nil {
		cancel()
	}
	took := time.Since(start)

	if err != nil {
		s.failed.Add(1)
		s.log.Warn("fire failed", logx.String("trigger", f.name), logx.Err(err), logx.Duration("took", took))
		s.publish(EventFireFailed, f, took, err)
		return
	}
	s.fired.Add(1)
	s.log.Debug("fire completed", logx.String("trigger", f.name), logx.Duration("took", took))
	s.publish(EventFireOK, f, took, nil)
}

func (s *Store) skip(f fire, reason string) {
	s.skipped.Add(1)
	s.log.Debug("fire skipped", logx.String("trigger", f.name), logx.String("reason", reason))
	s.publishReason(EventFireSkipped, f, reason)
}

func (s *Store) drop(f fire, reason string) {
	s.dropped.Add(1)
	s.publishReason(EventFireDropped, f, reason)
}

func (s *Store) publish(typ string, f fire, took time.Duration, err error) {
	if s.bus == nil {
		return
	}
	ev := FireEvent{Name: f.name, ScheduledAt: f.scheduledAt, Took: took}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (s *Store) publishReason(typ string, f fire, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: FireEvent{
		Name:        f.name,
		ScheduledAt: f.scheduledAt,
		Error:       reason,
	}})
}
