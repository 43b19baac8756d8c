package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentswarm/swarmd/pkg/models"
)

func TestHandoff_PublishAndDrain(t *testing.T) {
	h := NewHandoff(nil)

	h.Publish(&models.TaskSnapshot{TaskID: "t1"})
	h.Publish(&models.TaskSnapshot{TaskID: "t2"})
	h.Close()

	var ids []string
	for snap := range h.Snapshots() {
		ids = append(ids, snap.TaskID)
	}
	assert.Equal(t, []string{"t1", "t2"}, ids)
	assert.Zero(t, h.Dropped())
}

func TestHandoff_DropOldestOnOverflow(t *testing.T) {
	h := NewHandoff(nil)

	// Stalled backend: no reader while 200 rapid updates arrive.
	for i := 0; i < 200; i++ {
		h.Publish(&models.TaskSnapshot{TaskID: fmt.Sprintf("t%d", i)})
	}

	assert.Equal(t, int64(150), h.Dropped())
	assert.Len(t, h.ch, HandoffCapacity)

	h.Close()
	var last string
	count := 0
	for snap := range h.Snapshots() {
		last = snap.TaskID
		count++
	}
	// The stall cleared; the most recent snapshot survived the queue.
	assert.Equal(t, HandoffCapacity, count)
	assert.Equal(t, "t199", last)
}

func TestHandoff_PublishNeverBlocks(t *testing.T) {
	h := NewHandoff(nil)

	start := time.Now()
	for i := 0; i < 10_000; i++ {
		h.Publish(&models.TaskSnapshot{TaskID: "t"})
	}
	elapsed := time.Since(start)
	assert.Less(t, elapsed, time.Second)
}

func TestHandoff_PublishAfterCloseIsNoop(t *testing.T) {
	h := NewHandoff(nil)
	h.Close()
	require.NotPanics(t, func() {
		h.Publish(&models.TaskSnapshot{TaskID: "late"})
	})
	h.Close() // idempotent
}

func TestRegistry_OverflowDropsOldestAndNeverBlocks(t *testing.T) {
	h := NewHandoff(nil)
	r := New(h, nil)

	_, err := r.Register(assigned("t1"), "run-1")
	require.NoError(t, err)

	// Nothing reads the queue: the backend is stalled while 200 rapid
	// mutations arrive. Every mutation must still return promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, err := r.SetRoleOutput("t1", models.RoleBuilder, fmt.Sprintf("build %d", i))
			assert.NoError(t, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation blocked on a stalled persistence queue")
	}

	assert.Greater(t, h.Dropped(), int64(0))
	assert.Len(t, h.ch, HandoffCapacity)

	// The stall clears: the newest snapshot is still queued.
	h.Close()
	var last *models.TaskSnapshot
	for snap := range h.Snapshots() {
		last = snap
	}
	require.NotNil(t, last)
	assert.Equal(t, "build 199", last.BuildOutput)
}

func TestHandoff_CloseRacesPublish(t *testing.T) {
	h := NewHandoff(nil)

	// Start from a full queue so racing publishes exercise the drop path.
	for i := 0; i < HandoffCapacity; i++ {
		h.Publish(&models.TaskSnapshot{TaskID: "seed"})
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 1000; j++ {
				h.Publish(&models.TaskSnapshot{TaskID: "racer"})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		h.Close()
	}()
	close(start)
	wg.Wait()

	// Publishes that lost the race were dropped, not sent on the closed
	// channel; draining terminates and no late publish landed.
	h.Publish(&models.TaskSnapshot{TaskID: "late"})
	for snap := range h.Snapshots() {
		assert.NotEqual(t, "late", snap.TaskID)
	}
}

func TestRegistry_MutationsFlowToHandoff(t *testing.T) {
	h := NewHandoff(nil)
	r := New(h, nil)

	_, err := r.Register(assigned("t1"), "run-1")
	require.NoError(t, err)
	_, err = r.MarkDone("t1", "ok")
	require.NoError(t, err)
	h.Close()

	var statuses []models.TaskStatus
	for snap := range h.Snapshots() {
		statuses = append(statuses, snap.Status)
	}
	assert.Equal(t, []models.TaskStatus{models.StatusQueued, models.StatusDone}, statuses)
}
