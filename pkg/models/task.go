// Package models contains the shared domain types: task snapshots, roles,
// artifacts, execution records, and the persisted event shape.
package models

import (
	"time"
)

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

// Task status constants. Done and Blocked are terminal; Queued → InProgress
// may recur after rework.
const (
	StatusQueued     TaskStatus = "queued"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusBlocked
}

// Role identifies an agent role a task step can be dispatched to.
type Role string

// Role constants.
const (
	RolePlanner      Role = "planner"
	RoleBuilder      Role = "builder"
	RoleReviewer     Role = "reviewer"
	RoleOrchestrator Role = "orchestrator"
	RoleResearcher   Role = "researcher"
	RoleDebugger     Role = "debugger"
	RoleTester       Role = "tester"
)

// TaskAssigned is the external submission message handled by the dispatcher.
type TaskAssigned struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AssignedAt  time.Time `json:"assigned_at"`
}

// TaskSnapshot is the authoritative per-task state owned by the registry.
// Consumers always receive copies; mutation goes through registry operations.
type TaskSnapshot struct {
	TaskID         string         `json:"task_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         TaskStatus     `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	PlanningOutput string         `json:"planning_output,omitempty"`
	BuildOutput    string         `json:"build_output,omitempty"`
	ReviewOutput   string         `json:"review_output,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Error          string         `json:"error,omitempty"`
	ParentTaskID   string         `json:"parent_task_id,omitempty"`
	ChildTaskIDs   []string       `json:"child_task_ids,omitempty"`
	RunID          string         `json:"run_id"`
	Artifacts      []TaskArtifact `json:"artifacts,omitempty"`
}

// Clone returns a deep copy so callers can never alias registry state.
func (s *TaskSnapshot) Clone() *TaskSnapshot {
	c := *s
	if len(s.ChildTaskIDs) > 0 {
		c.ChildTaskIDs = append([]string(nil), s.ChildTaskIDs...)
	}
	if len(s.Artifacts) > 0 {
		c.Artifacts = make([]TaskArtifact, len(s.Artifacts))
		for i, a := range s.Artifacts {
			c.Artifacts[i] = *a.Clone()
		}
	}
	return &c
}

// SetRoleOutput stores a role's normalized output on the matching field.
// Builder and Debugger share the build slot; unknown roles are ignored.
func (s *TaskSnapshot) SetRoleOutput(role Role, output string) {
	switch role {
	case RolePlanner, RoleOrchestrator, RoleResearcher:
		s.PlanningOutput = output
	case RoleBuilder, RoleDebugger:
		s.BuildOutput = output
	case RoleReviewer, RoleTester:
		s.ReviewOutput = output
	}
}

// RoleExecutionRecord captures one role attempt for observability.
type RoleExecutionRecord struct {
	TaskID      string    `json:"task_id"`
	Role        Role      `json:"role"`
	AdapterUsed string    `json:"adapter_used,omitempty"`
	RetryCount  int       `json:"retry_count"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Succeeded   bool      `json:"succeeded"`
	Confidence  float64   `json:"confidence"`
}
