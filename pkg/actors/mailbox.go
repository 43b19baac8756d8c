// Package actors is the concurrency substrate: mailbox-isolated actors that
// process one message at a time and communicate only by sending immutable
// messages. Parallelism comes from pools of actors, never from shared state.
package actors

import (
	"log/slog"
	"sync"
)

// mailboxCapacity is the per-actor queue depth.
const mailboxCapacity = 256

// Mailbox serializes message handling for one actor. The handler runs on a
// single goroutine, so actor state needs no locking.
type Mailbox struct {
	name   string
	ch     chan any
	quit   chan struct{}
	handle func(msg any)

	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewMailbox builds a stopped mailbox; Start launches its loop.
func NewMailbox(name string, handle func(msg any), logger *slog.Logger) *Mailbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailbox{
		name:   name,
		ch:     make(chan any, mailboxCapacity),
		quit:   make(chan struct{}),
		handle: handle,
		logger: logger.With("actor", name),
	}
}

// Start launches the message loop.
func (m *Mailbox) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case msg := <-m.ch:
				m.handle(msg)
			case <-m.quit:
				m.drain()
				return
			}
		}
	}()
}

// drain handles whatever is already queued, then returns.
func (m *Mailbox) drain() {
	for {
		select {
		case msg := <-m.ch:
			m.handle(msg)
		default:
			return
		}
	}
}

// Send enqueues a message. Returns false once the actor is stopping; blocks
// while the mailbox is full, which is the backpressure contract between
// actors.
func (m *Mailbox) Send(msg any) bool {
	select {
	case <-m.quit:
		return false
	default:
	}
	select {
	case m.ch <- msg:
		return true
	case <-m.quit:
		return false
	}
}

// Len reports the queued message count, used by smallest-mailbox routing.
func (m *Mailbox) Len() int { return len(m.ch) }

// Name returns the actor name.
func (m *Mailbox) Name() string { return m.name }

// Stop signals the loop to drain and exit, then waits for it.
func (m *Mailbox) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		m.wg.Wait()
	})
}
