package arcade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceAllocator_StartsAtOne(t *testing.T) {
	s := NewSequenceAllocator(nil, nil)

	assert.Equal(t, int64(1), s.Next(context.Background(), "t1"))
	assert.Equal(t, int64(2), s.Next(context.Background(), "t1"))
	assert.Equal(t, int64(1), s.Next(context.Background(), "t2"))
}

func TestSequenceAllocator_SeededFromBackend(t *testing.T) {
	seeds := 0
	s := NewSequenceAllocator(func(_ context.Context, key string) (int64, error) {
		seeds++
		if key == "restarted" {
			return 41, nil
		}
		return 0, nil
	}, nil)

	assert.Equal(t, int64(42), s.Next(context.Background(), "restarted"))
	assert.Equal(t, int64(43), s.Next(context.Background(), "restarted"))
	assert.Equal(t, int64(1), s.Next(context.Background(), "fresh"))
	// Seed runs once per key.
	assert.Equal(t, 2, seeds)
}

func TestSequenceAllocator_SeedFailureStartsFresh(t *testing.T) {
	s := NewSequenceAllocator(func(context.Context, string) (int64, error) {
		return 0, errors.New("backend down")
	}, nil)

	assert.Equal(t, int64(1), s.Next(context.Background(), "t1"))
}

func TestSequenceAllocator_MonotonicUnderConcurrency(t *testing.T) {
	s := NewSequenceAllocator(nil, nil)

	const n = 500
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Next(context.Background(), "t1")
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, n)
	for v := range results {
		require.False(t, seen[v], "duplicate sequence %d", v)
		seen[v] = true
	}
	// Contiguous 1..n with no gaps.
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
}

func TestSequenceAllocator_EvictsOldest(t *testing.T) {
	reseeded := make(map[string]bool)
	s := NewSequenceAllocator(func(_ context.Context, key string) (int64, error) {
		reseeded[key] = true
		return 0, nil
	}, nil)

	for i := 0; i <= maxCounters; i++ {
		s.Next(context.Background(), fmt.Sprintf("key-%d", i))
	}

	// The overflow insertion evicted the oldest batch.
	assert.Len(t, s.order, maxCounters+1-evictBatch)
	_, stillThere := s.counters.Load("key-0")
	assert.False(t, stillThere)
	_, kept := s.counters.Load(fmt.Sprintf("key-%d", maxCounters))
	assert.True(t, kept)

	// An evicted key is re-seeded on reappearance.
	delete(reseeded, "key-0")
	s.Next(context.Background(), "key-0")
	assert.True(t, reseeded["key-0"])
}
