// Package coordinator drives one task from submission to a terminal status:
// it plans with the goal-oriented planner, maps actions to roles, dispatches
// roles through the actor mesh, records outcomes, and replans until the task
// is Done or Blocked.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentswarm/swarmd/pkg/events"
	"github.com/agentswarm/swarmd/pkg/executor"
	"github.com/agentswarm/swarmd/pkg/goap"
	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
)

// maxCycles is a hard stop on the plan/dispatch loop; a healthy task
// terminates in a handful of cycles.
const maxCycles = 100

// subTaskPollInterval paces WaitForSubTasks checks.
const subTaskPollInterval = 200 * time.Millisecond

// RoleRunner dispatches one role execution; the actor mesh router
// implements it.
type RoleRunner interface {
	RunRole(ctx context.Context, task executor.RoleTask) (executor.Result, error)
}

// StatsRecorder receives lifecycle counts; the supervisor implements it.
type StatsRecorder interface {
	TaskStarted()
	TaskCompleted()
	TaskFailed()
	Escalation()
}

// noopStats keeps every recorder call nil-safe.
type noopStats struct{}

func (noopStats) TaskStarted()   {}
func (noopStats) TaskCompleted() {}
func (noopStats) TaskFailed()    {}
func (noopStats) Escalation()    {}

// Coordinator is the per-task finite-state driver. One Coordinator instance
// serves all tasks; per-task state lives on the stack of Run.
type Coordinator struct {
	registry   *registry.Registry
	emitter    *events.Emitter
	planner    *goap.Planner
	runner     RoleRunner
	stats      StatsRecorder
	learner    *CostLearner
	maxRetries int
	logger     *slog.Logger
}

// New builds a coordinator. stats and learner may be nil.
func New(reg *registry.Registry, emitter *events.Emitter, runner RoleRunner, stats StatsRecorder, learner *CostLearner, maxRetries int, logger *slog.Logger) *Coordinator {
	if stats == nil {
		stats = noopStats{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry:   reg,
		emitter:    emitter,
		planner:    goap.NewPlanner(),
		runner:     runner,
		stats:      stats,
		learner:    learner,
		maxRetries: maxRetries,
		logger:     logger.With("component", "coordinator"),
	}
}

// actionRole maps a plan action to the role that executes it. Internal
// actions return "".
func actionRole(action string) models.Role {
	switch action {
	case goap.ActionPlan:
		return models.RolePlanner
	case goap.ActionBuild, goap.ActionRework:
		return models.RoleBuilder
	case goap.ActionReview:
		return models.RoleReviewer
	default:
		return ""
	}
}

// Run drives the task to a terminal status. It returns when the task is
// Done or Blocked, or when ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, taskID string) {
	log := c.logger.With("task_id", taskID)

	snap, err := c.registry.GetTask(taskID)
	if err != nil {
		log.Error("Unknown task", "error", err)
		return
	}
	if _, err := c.registry.Transition(taskID, models.StatusInProgress); err != nil {
		log.Error("Cannot start coordination", "error", err)
		return
	}
	c.stats.TaskStarted()
	c.emitter.Emit(ctx, taskID, snap.RunID, models.EventCoordinationStarted, "", nil)
	log.Info("Coordination started", "run_id", snap.RunID)

	rs := newRunState()
	for cycle := 0; cycle < maxCycles; cycle++ {
		if ctx.Err() != nil {
			log.Warn("Coordination cancelled")
			return
		}

		snap, err = c.registry.GetTask(taskID)
		if err != nil {
			log.Error("Snapshot vanished mid-run", "error", err)
			return
		}
		if snap.Status.IsTerminal() {
			return
		}

		action, ok := c.nextAction(snap, rs, log)
		if !ok {
			c.terminate(ctx, snap, rs, "no plan reaches any goal from the current state", log)
			return
		}

		switch action.Name {
		case goap.ActionFinalize:
			// Never finalize over open subtasks, whatever order the plan
			// put the remaining actions in.
			if len(snap.ChildTaskIDs) > 0 && !childrenSettled(snap, c.registry) {
				if !c.awaitSubTasks(ctx, taskID, log) {
					return
				}
				continue
			}
			c.finalize(ctx, snap, log)
			return
		case goap.ActionEscalate:
			c.terminate(ctx, snap, rs, escalationReason(rs), log)
			return
		case goap.ActionWaitForSubTasks:
			if !c.awaitSubTasks(ctx, taskID, log) {
				return
			}
		case goap.ActionNegotiate:
			rs.negotiationDone = true
		default:
			c.dispatchRole(ctx, snap, rs, action, log)
		}
	}

	snap, err = c.registry.GetTask(taskID)
	if err == nil && !snap.Status.IsTerminal() {
		c.terminate(ctx, snap, rs, "coordination cycle budget exhausted", log)
	}
}

// nextAction plans toward completion, falling back to the escalation goal on
// a dead end. Returns false when neither goal is reachable.
func (c *Coordinator) nextAction(snap *models.TaskSnapshot, rs *runState, log *slog.Logger) (goap.Action, bool) {
	ws := buildWorldState(snap, rs, c.registry, c.maxRetries)

	var adjustments map[string]float64
	if c.learner != nil {
		adjustments = c.learner.Adjustments()
	}

	// A task that spawned children is only complete once they all settle,
	// which pulls WaitForSubTasks into the plan.
	goal := goap.GoalCompleteTask
	if ws.Get(goap.SubTasksSpawned) {
		target := make(map[goap.WorldKey]bool, len(goal.Target)+1)
		for k, v := range goal.Target {
			target[k] = v
		}
		target[goap.SubTasksCompleted] = true
		goal = goap.Goal{Name: goal.Name, Target: target}
	}

	result := c.planner.Plan(ws, goal, adjustments)
	if result.DeadEnd {
		log.Info("No route to completion, planning escalation")
		result = c.planner.Plan(ws, goap.GoalEscalateTask, adjustments)
	}
	if result.DeadEnd || len(result.Recommended) == 0 {
		return goap.Action{}, false
	}
	log.Debug("Plan selected",
		"next_action", result.Recommended[0].Name,
		"plan_length", len(result.Recommended),
		"has_alternative", result.Alternative != nil)
	return result.Recommended[0], true
}

// dispatchRole executes one role-backed action and updates the run state.
// Failures retry the same role once; a second failure forces the retry
// limit so the next planning pass escalates.
func (c *Coordinator) dispatchRole(ctx context.Context, snap *models.TaskSnapshot, rs *runState, action goap.Action, log *slog.Logger) {
	role := actionRole(action.Name)
	started := time.Now()
	record := models.RoleExecutionRecord{
		TaskID:     snap.TaskID,
		Role:       role,
		RetryCount: rs.roleRetries[role],
		StartedAt:  started.UTC(),
	}

	c.emitter.Emit(ctx, snap.TaskID, snap.RunID, models.EventRoleStarted, role, map[string]any{
		"action": action.Name,
	})

	result, err := c.runner.RunRole(ctx, c.roleTask(snap, role))
	if err != nil {
		if c.learner != nil {
			c.learner.RecordFailure(action.Name)
		}
		record.CompletedAt = time.Now().UTC()
		c.emitter.Emit(ctx, snap.TaskID, snap.RunID, models.EventRoleFailed, role, map[string]any{
			"action":    action.Name,
			"reason":    failureReason(err),
			"execution": record,
		})
		rs.roleRetries[role]++
		if rs.roleRetries[role] <= 1 {
			log.Warn("Role failed, retrying once", "role", role, "error", err)
			return
		}
		log.Error("Role failed twice, forcing escalation", "role", role, "error", err)
		rs.reviewRejected = true
		rs.forcedRetryStop = true
		return
	}

	if c.learner != nil {
		c.learner.RecordSuccess(action.Name)
	}
	if action.Name == goap.ActionRework {
		rs.reworkCount++
	}

	if _, err := c.registry.SetRoleOutput(snap.TaskID, role, result.Output); err != nil {
		log.Error("Recording role output failed", "role", role, "error", err)
	}
	artifact := models.NewArtifact(snap.RunID, snap.TaskID, result.AdapterID,
		models.ArtifactMessage, "", []byte(result.Output), map[string]string{"role": string(role)})
	if _, err := c.registry.AddArtifacts(snap.TaskID, []models.TaskArtifact{artifact}); err != nil {
		log.Error("Recording role artifact failed", "role", role, "error", err)
	}

	rejected := false
	if role == models.RoleReviewer {
		rejected = isRejection(result.Output)
		rs.reviewRejected = rejected
		rs.reviewPassed = !rejected
	} else if action.Name == goap.ActionRework {
		rs.reviewRejected = false
	}

	record.CompletedAt = time.Now().UTC()
	record.AdapterUsed = result.AdapterID
	record.Succeeded = true
	record.Confidence = 1.0
	if rejected {
		record.Confidence = 0.5
	}

	c.emitter.Emit(ctx, snap.TaskID, snap.RunID, models.EventRoleCompleted, role, map[string]any{
		"action":      action.Name,
		"adapter":     result.AdapterID,
		"rejected":    rejected,
		"duration_ms": time.Since(started).Milliseconds(),
		"execution":   record,
	})
}

// isRejection is the single rejection signal: a case-insensitive "reject"
// substring in the normalized reviewer output.
func isRejection(output string) bool {
	return strings.Contains(strings.ToLower(output), "reject")
}

func failureReason(err error) string {
	msg := err.Error()
	if strings.Contains(msg, executor.ErrExecutionTimeout.Error()) {
		return "execution timeout"
	}
	return msg
}

func escalationReason(rs *runState) string {
	if rs.forcedRetryStop {
		return "role execution failed after retry"
	}
	return fmt.Sprintf("review rejected after %d rework attempts", rs.reworkCount)
}

// roleTask builds the executor request for a role, feeding earlier outputs
// forward as context.
func (c *Coordinator) roleTask(snap *models.TaskSnapshot, role models.Role) executor.RoleTask {
	var prompt string
	switch role {
	case models.RolePlanner:
		prompt = fmt.Sprintf("Produce a step-by-step plan for: %s\n\n%s", snap.Title, snap.Description)
	case models.RoleBuilder:
		prompt = fmt.Sprintf("Implement the following plan for %q:\n\n%s", snap.Title, snap.PlanningOutput)
	case models.RoleReviewer:
		prompt = fmt.Sprintf("Review the following work for %q. Reply APPROVE or REJECT with reasons.\n\nPlan:\n%s\n\nBuild:\n%s",
			snap.Title, snap.PlanningOutput, snap.BuildOutput)
	default:
		prompt = snap.Description
	}
	return executor.RoleTask{
		TaskID:      snap.TaskID,
		Title:       snap.Title,
		Description: snap.Description,
		Role:        role,
		Prompt:      prompt,
	}
}

// awaitSubTasks blocks until every child task settles. Returns false only
// on cancellation.
func (c *Coordinator) awaitSubTasks(ctx context.Context, taskID string, log *slog.Logger) bool {
	log.Info("Waiting for subtasks")
	ticker := time.NewTicker(subTaskPollInterval)
	defer ticker.Stop()
	for {
		snap, err := c.registry.GetTask(taskID)
		if err != nil {
			return false
		}
		if childrenSettled(snap, c.registry) {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Warn("Subtask wait cancelled")
			return false
		}
	}
}

// finalize marks the task Done and emits the terminal event.
func (c *Coordinator) finalize(ctx context.Context, snap *models.TaskSnapshot, log *slog.Logger) {
	summary := snap.ReviewOutput
	if summary == "" {
		summary = snap.BuildOutput
	}
	if _, err := c.registry.MarkDone(snap.TaskID, summary); err != nil {
		log.Error("Marking task done failed", "error", err)
		return
	}
	c.stats.TaskCompleted()
	c.emitter.Emit(ctx, snap.TaskID, snap.RunID, models.EventTaskDone, "", map[string]any{
		"summary": summary,
	})
	log.Info("Task completed")
}

// terminate marks the task Blocked and emits the terminal failure event.
func (c *Coordinator) terminate(ctx context.Context, snap *models.TaskSnapshot, rs *runState, reason string, log *slog.Logger) {
	if _, err := c.registry.MarkFailed(snap.TaskID, reason); err != nil {
		log.Error("Marking task failed errored", "error", err)
		return
	}
	c.stats.TaskFailed()
	c.stats.Escalation()
	c.emitter.Emit(ctx, snap.TaskID, snap.RunID, models.EventTaskFailed, "", map[string]any{
		"reason":       reason,
		"rework_count": rs.reworkCount,
	})
	log.Warn("Task escalated", "reason", reason)
}
