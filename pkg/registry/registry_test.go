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

func assigned(id string) models.TaskAssigned {
	return models.TaskAssigned{
		TaskID:     id,
		Title:      "title-" + id,
		AssignedAt: time.Now(),
	}
}

func TestRegister_AndGet(t *testing.T) {
	r := New(nil, nil)

	snap, err := r.Register(assigned("t1"), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, snap.Status)
	assert.Equal(t, "run-1", snap.RunID)

	got, err := r.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, "title-t1", got.Title)

	_, err = r.Register(assigned("t1"), "run-1")
	assert.ErrorIs(t, err, ErrTaskExists)

	_, err = r.GetTask("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRegister_EmptyRunIDSynthesized(t *testing.T) {
	r := New(nil, nil)
	snap, err := r.Register(assigned("t9"), "")
	require.NoError(t, err)
	assert.Equal(t, "legacy-t9", snap.RunID)
}

func TestMarkDoneAndFailed(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Register(assigned("t1"), "run-1")
	require.NoError(t, err)

	snap, err := r.MarkDone("t1", "all good")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, snap.Status)
	assert.Equal(t, "all good", snap.Summary)
	assert.Empty(t, snap.Error)

	// Terminal status rejects further transitions.
	_, err = r.MarkFailed("t1", "nope")
	assert.ErrorIs(t, err, ErrTaskTerminal)
	_, err = r.Transition("t1", models.StatusInProgress)
	assert.ErrorIs(t, err, ErrTaskTerminal)

	_, err = r.Register(assigned("t2"), "run-1")
	require.NoError(t, err)
	snap, err = r.MarkFailed("t2", "exploded")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBlocked, snap.Status)
	assert.Equal(t, "exploded", snap.Error)
}

func TestSetRoleOutput(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Register(assigned("t1"), "run-1")
	require.NoError(t, err)

	snap, err := r.SetRoleOutput("t1", models.RoleBuilder, "built it")
	require.NoError(t, err)
	assert.Equal(t, "built it", snap.BuildOutput)
}

func TestAddArtifacts_DedupesAndSorts(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Register(assigned("t1"), "run-1")
	require.NoError(t, err)

	a := models.NewArtifact("run-1", "t1", "w1", models.ArtifactFile, "a.txt", []byte("aaa"), nil)
	b := models.NewArtifact("run-1", "t1", "w1", models.ArtifactFile, "b.txt", []byte("bbb"), nil)
	b.CreatedAt = a.CreatedAt.Add(-time.Minute)

	snap, err := r.AddArtifacts("t1", []models.TaskArtifact{a, b, a})
	require.NoError(t, err)
	require.Len(t, snap.Artifacts, 2)
	// Sorted by creation time: b predates a.
	assert.Equal(t, b.ArtifactID, snap.Artifacts[0].ArtifactID)
	assert.Equal(t, a.ArtifactID, snap.Artifacts[1].ArtifactID)

	// Re-adding the same content is a no-op.
	snap, err = r.AddArtifacts("t1", []models.TaskArtifact{a})
	require.NoError(t, err)
	assert.Len(t, snap.Artifacts, 2)
}

func TestRegisterSubTask_InheritsRunID(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Register(assigned("parent"), "run-7")
	require.NoError(t, err)

	child, err := r.RegisterSubTask("child-1", "sub", "desc", "parent")
	require.NoError(t, err)
	assert.Equal(t, "run-7", child.RunID)
	assert.Equal(t, "parent", child.ParentTaskID)

	parent, err := r.GetTask("parent")
	require.NoError(t, err)
	assert.Equal(t, []string{"child-1"}, parent.ChildTaskIDs)

	_, err = r.RegisterSubTask("orphan", "x", "y", "missing")
	assert.ErrorIs(t, err, ErrParentUnknown)
}

func TestRegisterSubTask_ConcurrentSiblings(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Register(assigned("parent"), "run-1")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.RegisterSubTask(fmt.Sprintf("child-%d", i), "sub", "", "parent")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	parent, err := r.GetTask("parent")
	require.NoError(t, err)
	require.Len(t, parent.ChildTaskIDs, n)
	seen := make(map[string]int)
	for _, id := range parent.ChildTaskIDs {
		seen[id]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "child %s appears %d times", id, count)
	}
}

func TestGetTasks_LimitAndOrder(t *testing.T) {
	r := New(nil, nil)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		i := i
		r.nowFn = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		_, err := r.Register(assigned(fmt.Sprintf("t%d", i)), "run-1")
		require.NoError(t, err)
	}

	tasks := r.GetTasks(3)
	require.Len(t, tasks, 3)
	// Most recently updated first.
	assert.Equal(t, "t4", tasks[0].TaskID)
	assert.Equal(t, "t3", tasks[1].TaskID)
	assert.Equal(t, "t2", tasks[2].TaskID)

	assert.Len(t, r.GetTasks(0), 5)
}

func TestImportSnapshots(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Register(assigned("existing"), "run-1")
	require.NoError(t, err)

	imported := r.ImportSnapshots([]*models.TaskSnapshot{
		{TaskID: "existing", Title: "overwritten"},
		{TaskID: "restored", Title: "from backend"},
		nil,
		{TaskID: ""},
	}, false)
	assert.Equal(t, 1, imported)

	got, err := r.GetTask("existing")
	require.NoError(t, err)
	assert.Equal(t, "title-existing", got.Title)

	restored, err := r.GetTask("restored")
	require.NoError(t, err)
	assert.Equal(t, "legacy-restored", restored.RunID)

	imported = r.ImportSnapshots([]*models.TaskSnapshot{
		{TaskID: "existing", Title: "overwritten", RunID: "run-2"},
	}, true)
	assert.Equal(t, 1, imported)
	got, err = r.GetTask("existing")
	require.NoError(t, err)
	assert.Equal(t, "overwritten", got.Title)
}

func TestMutationsAreCopies(t *testing.T) {
	r := New(nil, nil)
	snap, err := r.Register(assigned("t1"), "run-1")
	require.NoError(t, err)

	snap.Title = "mutated by caller"
	got, err := r.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, "title-t1", got.Title)
}
