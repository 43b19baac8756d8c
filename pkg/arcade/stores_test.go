package arcade

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
)

func TestSnapshotStore_SaveUpserts(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend, "swarm")
	store := NewSnapshotStore(client, false, nil)

	snap := &models.TaskSnapshot{
		TaskID:    "t1",
		Title:     "add flag",
		Status:    models.StatusInProgress,
		RunID:     "run-1",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Save(context.Background(), snap))

	req := backend.lastCommand()
	assert.Contains(t, req.Command, "UPDATE SwarmTask SET")
	assert.Contains(t, req.Command, "UPSERT WHERE taskId = :taskId")
	assert.Equal(t, "t1", req.Params["taskId"])
	assert.Equal(t, "in_progress", req.Params["status"])
}

func TestSnapshotStore_SchemaBootstrapRunsOnce(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend, "swarm")
	store := NewSnapshotStore(client, true, nil)

	snap := &models.TaskSnapshot{TaskID: "t1", RunID: "run-1"}
	require.NoError(t, store.Save(context.Background(), snap))
	first := backend.commandCount()
	require.NoError(t, store.Save(context.Background(), snap))

	// Second save adds exactly one command: the upsert.
	assert.Equal(t, first+1, backend.commandCount())
	assert.Greater(t, first, len(schemaStatements))
}

func TestSnapshotStore_GetParsesRecord(t *testing.T) {
	backend := newFakeBackend()
	backend.results["SELECT FROM SwarmTask"] = []map[string]any{
		{
			"taskId":       "t1",
			"title":        "add flag",
			"status":       "done",
			"runId":        "run-1",
			"childTaskIds": []any{"c1", "c2"},
			"updatedAt":    time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	client := newTestClient(t, backend, "swarm")
	store := NewSnapshotStore(client, false, nil)

	snap := store.Get(context.Background(), "t1")
	require.NotNil(t, snap)
	assert.Equal(t, models.StatusDone, snap.Status)
	assert.Equal(t, []string{"c1", "c2"}, snap.ChildTaskIDs)
}

func TestSnapshotStore_LegacyRunIDSynthesized(t *testing.T) {
	backend := newFakeBackend()
	backend.results["SELECT FROM SwarmTask"] = []map[string]any{
		{"taskId": "old-task"},
	}
	client := newTestClient(t, backend, "swarm")
	store := NewSnapshotStore(client, false, nil)

	snap := store.Get(context.Background(), "old-task")
	require.NotNil(t, snap)
	assert.Equal(t, "legacy-old-task", snap.RunID)
}

func TestSnapshotStore_ReadsEmptyOnTransportFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.status = 503
	client := newTestClient(t, backend, "swarm")
	store := NewSnapshotStore(client, false, nil)

	assert.Nil(t, store.Get(context.Background(), "t1"))
	assert.Empty(t, store.List(context.Background(), 10, ""))
	assert.Empty(t, store.ListByRunID(context.Background(), "run-1", 10))
}

func TestEventStore_AppendAndSeeds(t *testing.T) {
	backend := newFakeBackend()
	backend.results["SELECT max(taskSequence)"] = []map[string]any{{"maxSeq": "17"}}
	client := newTestClient(t, backend, "swarm")
	store := NewEventStore(client, false, nil)

	event := &models.TaskExecutionEvent{
		EventID:      "e1",
		TaskID:       "t1",
		RunID:        "run-1",
		EventType:    models.EventRoleCompleted,
		Role:         models.RoleBuilder,
		Payload:      map[string]any{"adapter": "local-echo"},
		OccurredAt:   time.Now().UTC(),
		TaskSequence: 4,
		RunSequence:  9,
	}
	require.NoError(t, store.Append(context.Background(), event))

	req := backend.lastCommand()
	assert.Contains(t, req.Command, "INSERT INTO TaskExecutionEvent")
	assert.Equal(t, "e1", req.Params["eventId"])
	assert.EqualValues(t, 4, req.Params["taskSequence"])
	assert.Contains(t, req.Params["payload"], "local-echo")

	// Numbers-as-strings from the backend still seed correctly.
	max, err := store.TaskSequenceSeed()(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(17), max)
}

func TestPipeline_DrainsAndWritesOutcomes(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend, "swarm")
	snapshots := NewSnapshotStore(client, false, nil)
	runs := NewRunStore(client, false, nil)
	handoff := registry.NewHandoff(nil)

	p := NewPipeline(snapshots, runs, handoff, nil)
	p.Start()

	now := time.Now().UTC()
	handoff.Publish(&models.TaskSnapshot{TaskID: "t1", RunID: "run-1", Status: models.StatusQueued, CreatedAt: now, UpdatedAt: now})
	handoff.Publish(&models.TaskSnapshot{TaskID: "t1", RunID: "run-1", Status: models.StatusDone, CreatedAt: now, UpdatedAt: now.Add(time.Second)})
	p.Stop()

	var sawRunInsert, sawOutcome, sawCounts bool
	backend.mu.Lock()
	for _, cmd := range backend.commands {
		switch {
		case strings.Contains(cmd.Command, "INSERT INTO SwarmRun"):
			sawRunInsert = true
		case strings.Contains(cmd.Command, "INSERT INTO TaskOutcome"):
			sawOutcome = true
			assert.Equal(t, true, cmd.Params["succeeded"])
		case strings.Contains(cmd.Command, "UPDATE SwarmRun"):
			sawCounts = true
			assert.EqualValues(t, 1, cmd.Params["completed"])
		}
	}
	backend.mu.Unlock()

	assert.True(t, sawRunInsert, "run record written on first sight of run")
	assert.True(t, sawOutcome, "outcome written at terminal status")
	assert.True(t, sawCounts, "run counters refreshed")
}
