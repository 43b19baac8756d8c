// Package events provides the in-process event surface: an emitter that
// stamps execution events with contiguous per-task/per-run sequences and a
// ring-buffered bus the HTTP polling API and the monitor read from.
package events

import (
	"sync"

	"github.com/agentswarm/swarmd/pkg/models"
)

// busCapacity bounds the ring buffer backing the polling API.
const busCapacity = 1024

// Envelope pairs an event with its bus cursor for resumable polling.
type Envelope struct {
	Cursor int64                      `json:"cursor"`
	Event  *models.TaskExecutionEvent `json:"event"`
}

// Bus is a bounded in-process pub/sub. Publishing never blocks: slow
// subscribers lose events rather than stalling the engine, and the ring
// buffer keeps a window for poll-based consumers.
type Bus struct {
	mu     sync.RWMutex
	buf    []Envelope
	cursor int64
	subs   map[int]chan Envelope
	nextID int
}

// NewBus builds an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Envelope)}
}

// Publish appends the event to the ring and fans it out to subscribers.
// Nil events are ignored so callers can publish unconditionally.
func (b *Bus) Publish(event *models.TaskExecutionEvent) {
	if event == nil {
		return
	}
	b.mu.Lock()
	b.cursor++
	env := Envelope{Cursor: b.cursor, Event: event}
	b.buf = append(b.buf, env)
	if len(b.buf) > busCapacity {
		b.buf = b.buf[len(b.buf)-busCapacity:]
	}
	subs := make([]chan Envelope, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
		}
	}
}

// Since returns buffered envelopes with cursor > after, optionally filtered
// by task id, up to limit.
func (b *Bus) Since(after int64, taskID string, limit int) []Envelope {
	if limit <= 0 {
		limit = 100
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Envelope
	for _, env := range b.buf {
		if env.Cursor <= after {
			continue
		}
		if taskID != "" && env.Event.TaskID != taskID {
			continue
		}
		out = append(out, env)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Subscribe registers a live listener. The returned cancel func must be
// called to release the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Envelope, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Cursor returns the latest published cursor.
func (b *Bus) Cursor() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor
}
