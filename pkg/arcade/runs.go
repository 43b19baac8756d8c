package arcade

import (
	"context"
	"log/slog"
	"time"
)

// TaskOutcome aggregates one finished task for the learning loop.
type TaskOutcome struct {
	TaskID         string
	RunID          string
	Status         string
	Succeeded      bool
	ReworkCount    int
	DurationMillis int64
	CompletedAt    time.Time
}

// RunStore persists run metadata and task outcomes.
type RunStore struct {
	client *Client
	schema *schemaEnsurer
	logger *slog.Logger
}

// NewRunStore builds a run store.
func NewRunStore(client *Client, autoCreateSchema bool, logger *slog.Logger) *RunStore {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "run_store")
	s := &RunStore{client: client, logger: logger}
	if autoCreateSchema {
		s.schema = newSchemaEnsurer(client, logger)
	}
	return s
}

// EnsureRun records the run's start once; repeated calls only refresh the
// aggregate counters.
func (s *RunStore) EnsureRun(ctx context.Context, runID string, startedAt time.Time) error {
	if s.schema != nil {
		s.schema.ensure(ctx)
	}
	records, err := s.client.Command(ctx,
		"SELECT runId FROM SwarmRun WHERE runId = :runId",
		map[string]any{"runId": runID})
	if err != nil {
		return err
	}
	if len(records) > 0 {
		return nil
	}
	_, err = s.client.Command(ctx,
		"INSERT INTO SwarmRun SET runId = :runId, startedAt = :startedAt, taskCount = 0, completedCount = 0, failedCount = 0",
		map[string]any{
			"runId":     runID,
			"startedAt": startedAt.UTC().Format(time.RFC3339Nano),
		})
	return err
}

// UpdateRunCounts refreshes the run's aggregate counters.
func (s *RunStore) UpdateRunCounts(ctx context.Context, runID string, taskCount, completed, failed int) error {
	_, err := s.client.Command(ctx,
		"UPDATE SwarmRun SET taskCount = :taskCount, completedCount = :completed, failedCount = :failed, updatedAt = :updatedAt WHERE runId = :runId",
		map[string]any{
			"runId":     runID,
			"taskCount": taskCount,
			"completed": completed,
			"failed":    failed,
			"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
		})
	return err
}

// WriteOutcome appends one task outcome document.
func (s *RunStore) WriteOutcome(ctx context.Context, outcome TaskOutcome) error {
	if s.schema != nil {
		s.schema.ensure(ctx)
	}
	_, err := s.client.Command(ctx,
		"INSERT INTO TaskOutcome SET taskId = :taskId, runId = :runId, status = :status, "+
			"succeeded = :succeeded, reworkCount = :reworkCount, durationMillis = :durationMillis, "+
			"completedAt = :completedAt",
		map[string]any{
			"taskId":         outcome.TaskID,
			"runId":          outcome.RunID,
			"status":         outcome.Status,
			"succeeded":      outcome.Succeeded,
			"reworkCount":    outcome.ReworkCount,
			"durationMillis": outcome.DurationMillis,
			"completedAt":    outcome.CompletedAt.UTC().Format(time.RFC3339Nano),
		})
	return err
}
