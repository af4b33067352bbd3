package triggers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNotStarted is returned when a trigger is registered into a stopped
// engine. Boot order matters: Start the store, then recover schedules.
var ErrNotStarted = errors.New("trigger store not started")

// Config controls the trigger store.
//
// Defaults (when fields are zero):
//   - Workers: 10
//   - QueueSize: 256
//   - MisfireGrace: 1h
//   - DefaultTimeout: 30s
type Config struct {
	Workers        int
	QueueSize      int
	MisfireGrace   time.Duration
	DefaultTimeout time.Duration
	// Timezone is the cron default zone; recurring triggers normally carry
	// their own IANA zone and override it.
	Timezone string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MisfireGrace <= 0 {
		c.MisfireGrace = time.Hour
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	return c
}

// Job is one unit of work bound to a trigger.
type Job func(ctx context.Context) error

// runState is shared between a trigger's registrations and its in-flight
// fires: running guards overlap, queued coalesces delayed fires.
type runState struct {
	mu      sync.Mutex
	running bool
	queued  bool
}

type triggerDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *runState
}

// onceDef is a one-shot trigger backed by a timer. ver guards against stale
// timer callbacks after a replace.
type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
}

type fire struct {
	name        string
	timeout     time.Duration
	run         Job
	scheduledAt time.Time
	state       *runState
}

// Info describes a registered trigger for diagnostics.
type Info struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
	Once bool
}

// Snapshot reports engine state and outcome counters.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	Fired    uint64
	Failed   uint64
	Skipped  uint64
	Dropped  uint64
	Triggers []Info
}

// FireEvent is the payload of fire.* events on the bus.
type FireEvent struct {
	Name        string
	ScheduledAt time.Time
	Took        time.Duration
	Error       string
}

const (
	EventFireOK      = "fire.ok"
	EventFireFailed  = "fire.failed"
	EventFireSkipped = "fire.skipped"
	EventFireDropped = "fire.dropped"
)
