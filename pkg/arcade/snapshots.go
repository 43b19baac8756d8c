package arcade

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentswarm/swarmd/pkg/models"
)

// SnapshotStore persists task snapshots as SwarmTask documents, upserted by
// task id. All writes and reads are best-effort.
type SnapshotStore struct {
	client *Client
	schema *schemaEnsurer
	logger *slog.Logger
}

// NewSnapshotStore builds a snapshot store. When autoCreateSchema is set the
// first write triggers an idempotent schema bootstrap.
func NewSnapshotStore(client *Client, autoCreateSchema bool, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "snapshot_store")
	s := &SnapshotStore{client: client, logger: logger}
	if autoCreateSchema {
		s.schema = newSchemaEnsurer(client, logger)
	}
	return s
}

// Save upserts the snapshot. Schema-ensure failures do not stop the write.
func (s *SnapshotStore) Save(ctx context.Context, snap *models.TaskSnapshot) error {
	if s.schema != nil {
		s.schema.ensure(ctx)
	}

	artifacts, err := json.Marshal(snap.Artifacts)
	if err != nil {
		return err
	}

	params := map[string]any{
		"taskId":         snap.TaskID,
		"title":          snap.Title,
		"description":    snap.Description,
		"status":         string(snap.Status),
		"createdAt":      snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":      snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"planningOutput": snap.PlanningOutput,
		"buildOutput":    snap.BuildOutput,
		"reviewOutput":   snap.ReviewOutput,
		"summary":        snap.Summary,
		"error":          snap.Error,
		"parentTaskId":   snap.ParentTaskID,
		"childTaskIds":   snap.ChildTaskIDs,
		"runId":          snap.RunID,
		"artifacts":      string(artifacts),
	}

	command := "UPDATE SwarmTask SET " +
		"taskId = :taskId, title = :title, description = :description, " +
		"status = :status, createdAt = :createdAt, updatedAt = :updatedAt, " +
		"planningOutput = :planningOutput, buildOutput = :buildOutput, " +
		"reviewOutput = :reviewOutput, summary = :summary, error = :error, " +
		"parentTaskId = :parentTaskId, childTaskIds = :childTaskIds, " +
		"runId = :runId, artifacts = :artifacts " +
		"UPSERT WHERE taskId = :taskId"

	_, err = s.client.Command(ctx, command, params)
	return err
}

// Get returns the persisted snapshot, or nil when absent or on transport
// failure.
func (s *SnapshotStore) Get(ctx context.Context, taskID string) *models.TaskSnapshot {
	records, err := s.client.Command(ctx,
		"SELECT FROM SwarmTask WHERE taskId = :taskId",
		map[string]any{"taskId": taskID})
	if err != nil || len(records) == 0 {
		return nil
	}
	return snapshotFromRecord(records[0])
}

// List returns up to limit snapshots ordered by the given field descending
// (updatedAt when empty). Empty on transport failure.
func (s *SnapshotStore) List(ctx context.Context, limit int, orderBy string) []*models.TaskSnapshot {
	if limit <= 0 {
		limit = 100
	}
	if orderBy == "" {
		orderBy = "updatedAt"
	}
	records, err := s.client.Command(ctx,
		"SELECT FROM SwarmTask ORDER BY "+orderBy+" DESC LIMIT :limit",
		map[string]any{"limit": limit})
	if err != nil {
		return nil
	}
	return snapshotsFromRecords(records)
}

// ListByRunID returns up to limit snapshots for one run.
func (s *SnapshotStore) ListByRunID(ctx context.Context, runID string, limit int) []*models.TaskSnapshot {
	if limit <= 0 {
		limit = 100
	}
	records, err := s.client.Command(ctx,
		"SELECT FROM SwarmTask WHERE runId = :runId ORDER BY updatedAt DESC LIMIT :limit",
		map[string]any{"runId": runID, "limit": limit})
	if err != nil {
		return nil
	}
	return snapshotsFromRecords(records)
}

func snapshotsFromRecords(records []map[string]any) []*models.TaskSnapshot {
	out := make([]*models.TaskSnapshot, 0, len(records))
	for _, rec := range records {
		if snap := snapshotFromRecord(rec); snap != nil {
			out = append(out, snap)
		}
	}
	return out
}

func snapshotFromRecord(rec map[string]any) *models.TaskSnapshot {
	taskID := asString(rec["taskId"])
	if taskID == "" {
		return nil
	}
	snap := &models.TaskSnapshot{
		TaskID:         taskID,
		Title:          asString(rec["title"]),
		Description:    asString(rec["description"]),
		Status:         models.TaskStatus(asString(rec["status"])),
		PlanningOutput: asString(rec["planningOutput"]),
		BuildOutput:    asString(rec["buildOutput"]),
		ReviewOutput:   asString(rec["reviewOutput"]),
		Summary:        asString(rec["summary"]),
		Error:          asString(rec["error"]),
		ParentTaskID:   asString(rec["parentTaskId"]),
		RunID:          asString(rec["runId"]),
		CreatedAt:      parseTime(rec["createdAt"]),
		UpdatedAt:      parseTime(rec["updatedAt"]),
	}
	// Legacy records predate run ids; synthesize deterministically so
	// callers never see a blank one.
	if snap.RunID == "" {
		snap.RunID = "legacy-" + snap.TaskID
	}
	if ids, ok := rec["childTaskIds"].([]any); ok {
		for _, id := range ids {
			snap.ChildTaskIDs = append(snap.ChildTaskIDs, asString(id))
		}
	}
	if raw := asString(rec["artifacts"]); raw != "" && raw != "null" {
		var artifacts []models.TaskArtifact
		if err := json.Unmarshal([]byte(raw), &artifacts); err == nil {
			snap.Artifacts = artifacts
		}
	}
	return snap
}

func parseTime(v any) time.Time {
	t, err := time.Parse(time.RFC3339Nano, asString(v))
	if err != nil {
		return time.Time{}
	}
	return t
}
