package models

import "time"

// Event type constants for the execution event stream.
const (
	EventTaskSubmitted       = "task.submitted"
	EventCoordinationStarted = "coordination.started"
	EventRoleStarted         = "role.started"
	EventRoleCompleted       = "role.completed"
	EventRoleFailed          = "role.failed"
	EventTaskDone            = "task.done"
	EventTaskFailed          = "task.failed"
	EventDiagnosticContext   = "diagnostic.context"
)

// TaskExecutionEvent is one entry in the append-only execution history of a
// task. TaskSequence and RunSequence are strictly increasing and contiguous
// from 1 within their respective scopes. Payload is serialized to an opaque
// JSON string at the persistence boundary.
type TaskExecutionEvent struct {
	EventID      string         `json:"event_id"`
	RunID        string         `json:"run_id"`
	TaskID       string         `json:"task_id"`
	EventType    string         `json:"event_type"`
	Role         Role           `json:"role,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	TaskSequence int64          `json:"task_sequence"`
	RunSequence  int64          `json:"run_sequence"`
	TraceID      string         `json:"trace_id,omitempty"`
	SpanID       string         `json:"span_id,omitempty"`
}

// IsTerminal reports whether the event marks the end of a task's execution.
func (e *TaskExecutionEvent) IsTerminal() bool {
	return e.EventType == EventTaskDone || e.EventType == EventTaskFailed
}
