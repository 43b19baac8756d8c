package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agentswarm/swarmd/pkg/models"
)

// HandoffCapacity bounds the snapshot queue toward persistence.
const HandoffCapacity = 50

// Handoff is the bounded channel between registry mutations and the
// persistence pipeline. When the queue is full the oldest entry is dropped;
// the mutator never blocks.
type Handoff struct {
	mu        sync.RWMutex
	ch        chan *models.TaskSnapshot
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64
	logger    *slog.Logger
}

// NewHandoff builds a handoff with the standard capacity.
func NewHandoff(logger *slog.Logger) *Handoff {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handoff{
		ch:     make(chan *models.TaskSnapshot, HandoffCapacity),
		logger: logger.With("component", "persistence_handoff"),
	}
}

// Publish enqueues a snapshot, dropping the oldest queued entry on overflow.
// Safe for concurrent producers and safe against a concurrent Close: a
// publish racing Close is dropped silently. Never blocks.
func (h *Handoff) Publish(snap *models.TaskSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for {
		select {
		case h.ch <- snap:
			return
		default:
		}
		select {
		case old := <-h.ch:
			n := h.dropped.Add(1)
			h.logger.Debug("Dropped oldest queued snapshot",
				"task_id", old.TaskID, "total_dropped", n)
		default:
		}
	}
}

// Snapshots is the single reader's end of the queue.
func (h *Handoff) Snapshots() <-chan *models.TaskSnapshot { return h.ch }

// Dropped reports how many snapshots were discarded under backpressure.
func (h *Handoff) Dropped() int64 { return h.dropped.Load() }

// Close completes the channel; the drain loop terminates once it consumes
// the remaining entries. Close waits out in-flight publishes, so the send
// side can never hit a closed channel even when producers are still running.
func (h *Handoff) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.ch)
		h.mu.Unlock()
	})
}
