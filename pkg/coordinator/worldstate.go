package coordinator

import (
	"github.com/agentswarm/swarmd/pkg/goap"
	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
)

// runState is the per-task, run-local bookkeeping that complements the
// registry snapshot when building a world state.
type runState struct {
	reviewPassed    bool
	reviewRejected  bool
	forcedRetryStop bool
	reworkCount     int
	negotiationDone bool
	roleRetries     map[models.Role]int
}

func newRunState() *runState {
	return &runState{roleRetries: make(map[models.Role]int)}
}

func (rs *runState) retryLimitReached(maxRetries int) bool {
	return rs.forcedRetryStop || rs.reworkCount >= maxRetries
}

// buildWorldState derives the planner's view from the registry snapshot and
// the run-local counters.
func buildWorldState(snap *models.TaskSnapshot, rs *runState, reg *registry.Registry, maxRetries int) goap.WorldState {
	spawned := len(snap.ChildTaskIDs) > 0
	completed := spawned && childrenSettled(snap, reg)

	return goap.NewWorldState(map[goap.WorldKey]bool{
		goap.TaskExists:          true,
		goap.PlanExists:          snap.PlanningOutput != "",
		goap.BuildExists:         snap.BuildOutput != "",
		goap.ReviewPassed:        rs.reviewPassed,
		goap.ReviewRejected:      rs.reviewRejected,
		goap.RetryLimitReached:   rs.retryLimitReached(maxRetries),
		goap.ReworkAttempted:     rs.reworkCount > 0,
		goap.TaskCompleted:       snap.Status == models.StatusDone,
		goap.TaskBlocked:         snap.Status == models.StatusBlocked,
		goap.SubTasksSpawned:     spawned,
		goap.SubTasksCompleted:   completed,
		goap.NegotiationComplete: rs.negotiationDone,
	})
}

// childrenSettled reports whether every child task has reached a terminal
// status.
func childrenSettled(snap *models.TaskSnapshot, reg *registry.Registry) bool {
	for _, childID := range snap.ChildTaskIDs {
		child, err := reg.GetTask(childID)
		if err != nil || !child.Status.IsTerminal() {
			return false
		}
	}
	return true
}
