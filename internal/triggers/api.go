package triggers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	logx "aquabot/pkg/logx"
)

// RegisterRecurring registers a trigger that fires every day at hour:minute
// in the given IANA zone. An existing trigger with the same name is replaced
// atomically: the swap happens under one lock, so the old and new rule can
// never both fire.
func (s *Store) RegisterRecurring(name string, hour, minute int, tz string, timeout time.Duration, job Job) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid fire time %02d:%02d", hour, minute)
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	return s.registerSpec(name, spec, tz, timeout, job)
}

// RegisterWeekly is RegisterRecurring restricted to one weekday.
func (s *Store) RegisterWeekly(name string, weekday time.Weekday, hour, minute int, tz string, timeout time.Duration, job Job) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid fire time %02d:%02d", hour, minute)
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", weekday)
	}
	spec := fmt.Sprintf("%d %d * * %d", minute, hour, int(weekday))
	return s.registerSpec(name, spec, tz, timeout, job)
}

func (s *Store) registerSpec(name, spec, tz string, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("trigger name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if tz = strings.TrimSpace(tz); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone %q: %w", tz, err)
		}
		spec = "CRON_TZ=" + tz + " " + spec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return ErrNotStarted
	}

	s.removeRecurringLocked(name)
	s.removeOnce(name)

	s.defs = append(s.defs, triggerDef{
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		job:     job,
		state:   &runState{},
	})
	d := &s.defs[len(s.defs)-1]
	if err := s.addEntryLocked(d); err != nil {
		// unparseable spec: drop the half-registered definition
		s.defs = s.defs[:len(s.defs)-1]
		return fmt.Errorf("register %q: %w", name, err)
	}
	s.log.Debug("trigger registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// RegisterOnce registers a trigger that fires exactly once at the given
// instant and then removes itself. A past instant fires immediately; the
// misfire grace still applies at execution time. Replaces any trigger with
// the same name.
func (s *Store) RegisterOnce(name string, at time.Time, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("trigger name required")
	}
	if at.IsZero() {
		return errors.New("fire instant required")
	}
	if job == nil {
		return errors.New("job required")
	}

	// Hold s.mu across the whole swap: releasing it before taking s.tmu
	// would let a concurrent recurring registration of the same name slip
	// between the locks and leave two definitions under one name.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return ErrNotStarted
	}
	s.removeRecurringLocked(name)
	resolved := s.resolveTimeout(timeout)

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if t, ok := s.timers[name]; ok {
		_ = t.Stop()
		delete(s.timers, name)
	}
	var ver uint64 = 1
	if old, ok := s.onces[name]; ok {
		ver = old.ver + 1
	}
	def := &onceDef{at: at, timeout: resolved, job: job, ver: ver}
	s.onces[name] = def
	s.armOnceTimerLocked(name, def)
	s.log.Debug("one-shot trigger registered", logx.String("name", name))
	return nil
}

// Remove unregisters the named trigger. It reports whether one existed.
// Safe on a stopped store: persisted definitions are still removed.
func (s *Store) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeRecurringLocked(name)
	s.mu.Unlock()

	removed = s.removeOnce(name) || removed
	if removed {
		s.log.Debug("trigger removed", logx.String("name", name))
	}
	return removed
}

// RemoveByPrefix removes every trigger whose name starts with prefix and
// returns how many were removed. Callers include the trailing separator
// (e.g. "water_12_") so "water_123_..." is untouched.
func (s *Store) RemoveByPrefix(prefix string) int {
	if prefix == "" {
		return 0
	}
	n := 0

	s.mu.Lock()
	kept := s.defs[:0]
	for i := range s.defs {
		d := s.defs[i]
		if strings.HasPrefix(d.name, prefix) {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			n++
			continue
		}
		kept = append(kept, d)
	}
	s.defs = kept
	s.mu.Unlock()

	s.tmu.Lock()
	for name := range s.onces {
		if strings.HasPrefix(name, prefix) {
			if t, ok := s.timers[name]; ok {
				_ = t.Stop()
				delete(s.timers, name)
			}
			delete(s.onces, name)
			n++
		}
	}
	s.tmu.Unlock()

	if n > 0 {
		s.log.Debug("triggers removed by prefix", logx.String("prefix", prefix), logx.Int("count", n))
	}
	return n
}

// List returns descriptors for all registered triggers, sorted by name.
func (s *Store) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() []Info {
	out := make([]Info, 0, len(s.defs))
	for i := range s.defs {
		d := &s.defs[i]
		it := Info{Name: d.name, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out = append(out, it)
	}

	s.tmu.Lock()
	for name, def := range s.onces {
		out = append(out, Info{Name: name, Next: def.at, Once: true})
	}
	s.tmu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// removeRecurringLocked removes the named cron definition. Call with s.mu held.
func (s *Store) removeRecurringLocked(name string) bool {
	removed := false
	kept := s.defs[:0]
	for i := range s.defs {
		d := s.defs[i]
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	s.defs = kept
	return removed
}

func (s *Store) removeOnce(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	removed := false
	if t, ok := s.timers[name]; ok {
		_ = t.Stop()
		delete(s.timers, name)
		removed = true
	}
	if _, ok := s.onces[name]; ok {
		delete(s.onces, name)
		removed = true
	}
	return removed
}

// addEntryLocked binds a definition to the running cron. Call with s.mu held.
func (s *Store) addEntryLocked(d *triggerDef) error {
	name, timeout, job, state := d.name, d.timeout, d.job, d.state
	eid, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(fire{
			name:        name,
			timeout:     timeout,
			run:         job,
			scheduledAt: s.now(),
			state:       state,
		})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

// armOnceTimerLocked starts the runtime timer for a one-shot definition.
// Call with s.tmu held.
func (s *Store) armOnceTimerLocked(name string, def *onceDef) {
	delay := def.at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	ver := def.ver
	s.timers[name] = time.AfterFunc(delay, func() {
		s.tmu.Lock()
		cur, ok := s.onces[name]
		if !ok || cur.ver != ver {
			// replaced or removed since this timer was armed
			s.tmu.Unlock()
			return
		}
		// one-shot: definition goes away before the work runs, so a
		// concurrent restart can't double-fire it
		delete(s.timers, name)
		delete(s.onces, name)
		s.tmu.Unlock()

		s.enqueue(fire{
			name:        name,
			timeout:     cur.timeout,
			run:         cur.job,
			scheduledAt: cur.at,
			state:       &runState{},
		})
	})
}

// rebuildOnceTimersLocked re-arms timers for surviving one-shot definitions
// after a stop/start cycle. Call with s.mu held.
func (s *Store) rebuildOnceTimersLocked() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	for name, def := range s.onces {
		s.armOnceTimerLocked(name, def)
	}
}
