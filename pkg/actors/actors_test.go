package actors

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agentswarm/swarmd/pkg/config"
	"github.com/agentswarm/swarmd/pkg/events"
	"github.com/agentswarm/swarmd/pkg/executor"
	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
	"github.com/agentswarm/swarmd/pkg/sandbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMailbox_ProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	mb := NewMailbox("test", func(msg any) {
		mu.Lock()
		got = append(got, msg.(int))
		mu.Unlock()
	}, nil)
	mb.Start()

	for i := 0; i < 100; i++ {
		require.True(t, mb.Send(i))
	}
	mb.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestMailbox_StopDrainsQueued(t *testing.T) {
	var handled atomic.Int32
	mb := NewMailbox("test", func(any) {
		handled.Add(1)
	}, nil)
	mb.Start()

	for i := 0; i < 50; i++ {
		mb.Send(i)
	}
	mb.Stop()
	assert.EqualValues(t, 50, handled.Load())

	// Sends after stop are refused.
	assert.False(t, mb.Send(1))
}

func TestMailbox_SingleThreadedHandler(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	mb := NewMailbox("test", func(any) {
		cur := inFlight.Add(1)
		for {
			max := maxInFlight.Load()
			if cur <= max || maxInFlight.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	}, nil)
	mb.Start()

	for i := 0; i < 20; i++ {
		mb.Send(i)
	}
	mb.Stop()
	assert.EqualValues(t, 1, maxInFlight.Load())
}

func newEchoRouter(t *testing.T) *Router {
	t.Helper()
	opts := &config.RuntimeOptions{
		SandboxLevel:                config.SandboxBareCli,
		MaxCliConcurrency:           4,
		RoleExecutionTimeoutSeconds: 30,
		WorkspacePath:               t.TempDir(),
	}
	box, err := sandbox.New(opts, nil)
	require.NoError(t, err)
	exec := executor.New(opts, box, nil, nil)

	workers := NewPool("worker", 2, exec, nil)
	reviewers := NewPool("reviewer", 1, exec, nil)
	workers.Start()
	reviewers.Start()
	t.Cleanup(func() {
		workers.Stop()
		reviewers.Stop()
	})
	return NewRouter(workers, reviewers)
}

func TestRouter_RunRole(t *testing.T) {
	router := newEchoRouter(t)

	res, err := router.RunRole(context.Background(), executor.RoleTask{
		TaskID: "t1",
		Role:   models.RoleBuilder,
	})
	require.NoError(t, err)
	assert.Equal(t, executor.EchoAdapterID, res.AdapterID)
	assert.NotEmpty(t, res.Output)
}

func TestRouter_ParallelRequests(t *testing.T) {
	router := newEchoRouter(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := router.RunRole(context.Background(), executor.RoleTask{
				TaskID: "t1",
				Role:   models.RoleReviewer,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestSupervisor_CountersAndSnapshot(t *testing.T) {
	s := NewSupervisor(nil)
	s.Start()
	defer s.Stop()

	s.TaskStarted()
	s.TaskStarted()
	s.TaskCompleted()
	s.TaskFailed()
	s.Escalation()

	require.Eventually(t, func() bool {
		stats, err := s.Snapshot()
		return err == nil && stats == Stats{Started: 2, Completed: 1, Failed: 1, Escalations: 1}
	}, time.Second, 10*time.Millisecond)
}

func TestBlackboard_PostAndSnapshot(t *testing.T) {
	b := NewBlackboard(nil)
	b.Start()
	defer b.Stop()

	b.Post("worker-0/status", "building t1", "worker-0")
	b.Post("worker-0/status", "idle", "worker-0")

	require.Eventually(t, func() bool {
		board := b.Snapshot()
		entry, ok := board["worker-0/status"]
		return ok && entry.Value == "idle"
	}, time.Second, 10*time.Millisecond)
}

type recordingRunner struct {
	mu    sync.Mutex
	tasks []string
	done  chan struct{}
}

func (r *recordingRunner) Run(_ context.Context, taskID string) {
	r.mu.Lock()
	r.tasks = append(r.tasks, taskID)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func TestDispatcher_RegistersAndRuns(t *testing.T) {
	reg := registry.New(nil, nil)
	bus := events.NewBus()
	emitter := events.NewEmitter(nil, bus, nil)
	runner := &recordingRunner{done: make(chan struct{}, 4)}

	d := NewDispatcher(context.Background(), reg, emitter, runner, "run-1", nil)
	d.Start()

	require.True(t, d.Submit(models.TaskAssigned{TaskID: "t1", Title: "first"}))
	<-runner.done
	d.Stop()

	snap, err := reg.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", snap.RunID)

	envs := bus.Since(0, "t1", 10)
	require.Len(t, envs, 1)
	assert.Equal(t, models.EventTaskSubmitted, envs[0].Event.EventType)

	runner.mu.Lock()
	assert.Equal(t, []string{"t1"}, runner.tasks)
	runner.mu.Unlock()
}

func TestDispatcher_DuplicateIgnored(t *testing.T) {
	reg := registry.New(nil, nil)
	emitter := events.NewEmitter(nil, nil, nil)
	runner := &recordingRunner{done: make(chan struct{}, 4)}

	d := NewDispatcher(context.Background(), reg, emitter, runner, "run-1", nil)
	d.Start()

	d.Submit(models.TaskAssigned{TaskID: "t1"})
	<-runner.done
	d.Submit(models.TaskAssigned{TaskID: "t1"})
	d.Stop()

	runner.mu.Lock()
	assert.Len(t, runner.tasks, 1)
	runner.mu.Unlock()
}
