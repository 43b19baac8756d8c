package arcade

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Counter map bounds: above maxCounters entries, the oldest evictBatch
// entries (by insertion order) are evicted.
const (
	maxCounters = 10_000
	evictBatch  = 1_000
)

// SeedFunc returns the highest sequence already persisted for a key, so a
// restarted process continues instead of colliding. Zero means fresh.
type SeedFunc func(ctx context.Context, key string) (int64, error)

// SequenceAllocator hands out strictly increasing, contiguous sequence
// numbers per key. One shared lock protects first-seed and eviction only;
// steady-state increments are lock-free. Cross-process concurrent writers
// are not supported.
type SequenceAllocator struct {
	counters sync.Map // key → *atomic.Int64
	mu       sync.Mutex
	order    []string
	seed     SeedFunc
	logger   *slog.Logger
}

// NewSequenceAllocator builds an allocator. seed may be nil, in which case
// every key starts at 1.
func NewSequenceAllocator(seed SeedFunc, logger *slog.Logger) *SequenceAllocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SequenceAllocator{
		seed:   seed,
		logger: logger.With("component", "sequence_allocator"),
	}
}

// Next allocates the next sequence number for key.
func (s *SequenceAllocator) Next(ctx context.Context, key string) int64 {
	if v, ok := s.counters.Load(key); ok {
		return v.(*atomic.Int64).Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have seeded while we waited for the lock.
	if v, ok := s.counters.Load(key); ok {
		return v.(*atomic.Int64).Add(1)
	}

	var start int64
	if s.seed != nil {
		max, err := s.seed(ctx, key)
		if err != nil {
			s.logger.Debug("Sequence seed query failed, starting fresh", "key", key, "error", err)
		} else {
			start = max
		}
	}

	ctr := &atomic.Int64{}
	ctr.Store(start)
	s.counters.Store(key, ctr)
	s.order = append(s.order, key)
	s.evictLocked()

	return ctr.Add(1)
}

// evictLocked drops the oldest counters once the map grows past the bound.
// An evicted key that reappears is re-seeded from the backend, so
// monotonicity per key survives eviction.
func (s *SequenceAllocator) evictLocked() {
	if len(s.order) <= maxCounters {
		return
	}
	victims := s.order[:evictBatch]
	s.order = s.order[evictBatch:]
	for _, key := range victims {
		s.counters.Delete(key)
	}
	s.logger.Debug("Evicted oldest sequence counters", "evicted", len(victims), "remaining", len(s.order))
}
