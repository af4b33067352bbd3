// Package eventbus is a small in-memory fanout used to observe trigger
// fire outcomes (ok/failed/skipped/dropped) without coupling the scheduling
// core to the delivery or diagnostics layers.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight in-memory signal.
//
// Contract:
//   - Publish never blocks.
//   - Slow subscribers lose events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow; drop
		}
	}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// func detaches it. The channel is intentionally never closed, so a Publish
// racing with cancel stays safe; callers just stop reading after cancel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
