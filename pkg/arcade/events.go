package arcade

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentswarm/swarmd/pkg/models"
)

// EventStore appends execution events as TaskExecutionEvent documents. The
// log is append-only; there are no updates or deletes.
type EventStore struct {
	client *Client
	schema *schemaEnsurer
	logger *slog.Logger
}

// NewEventStore builds an event store.
func NewEventStore(client *Client, autoCreateSchema bool, logger *slog.Logger) *EventStore {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "event_store")
	s := &EventStore{client: client, logger: logger}
	if autoCreateSchema {
		s.schema = newSchemaEnsurer(client, logger)
	}
	return s
}

// Append writes one already-sequenced event.
func (s *EventStore) Append(ctx context.Context, event *models.TaskExecutionEvent) error {
	if s.schema != nil {
		s.schema.ensure(ctx)
	}

	payload := "{}"
	if len(event.Payload) > 0 {
		if data, err := json.Marshal(event.Payload); err == nil {
			payload = string(data)
		}
	}

	_, err := s.client.Command(ctx,
		"INSERT INTO TaskExecutionEvent SET "+
			"eventId = :eventId, runId = :runId, taskId = :taskId, "+
			"eventType = :eventType, role = :role, payload = :payload, "+
			"occurredAt = :occurredAt, taskSequence = :taskSequence, "+
			"runSequence = :runSequence, traceId = :traceId, spanId = :spanId",
		map[string]any{
			"eventId":      event.EventID,
			"runId":        event.RunID,
			"taskId":       event.TaskID,
			"eventType":    event.EventType,
			"role":         string(event.Role),
			"payload":      payload,
			"occurredAt":   event.OccurredAt.UTC().Format(time.RFC3339Nano),
			"taskSequence": event.TaskSequence,
			"runSequence":  event.RunSequence,
			"traceId":      event.TraceID,
			"spanId":       event.SpanID,
		})
	return err
}

// ListByTask returns the persisted events for one task ordered by sequence.
// Empty on transport failure.
func (s *EventStore) ListByTask(ctx context.Context, taskID string, limit int) []*models.TaskExecutionEvent {
	if limit <= 0 {
		limit = 500
	}
	records, err := s.client.Command(ctx,
		"SELECT FROM TaskExecutionEvent WHERE taskId = :taskId ORDER BY taskSequence ASC LIMIT :limit",
		map[string]any{"taskId": taskID, "limit": limit})
	if err != nil {
		return nil
	}
	out := make([]*models.TaskExecutionEvent, 0, len(records))
	for _, rec := range records {
		out = append(out, eventFromRecord(rec))
	}
	return out
}

// TaskSequenceSeed returns a SeedFunc querying the highest persisted
// taskSequence for a task id.
func (s *EventStore) TaskSequenceSeed() SeedFunc {
	return func(ctx context.Context, taskID string) (int64, error) {
		return s.maxSequence(ctx, "taskSequence", "taskId", taskID)
	}
}

// RunSequenceSeed returns a SeedFunc querying the highest persisted
// runSequence for a run id.
func (s *EventStore) RunSequenceSeed() SeedFunc {
	return func(ctx context.Context, runID string) (int64, error) {
		return s.maxSequence(ctx, "runSequence", "runId", runID)
	}
}

func (s *EventStore) maxSequence(ctx context.Context, seqField, selectorField, key string) (int64, error) {
	records, err := s.client.Command(ctx,
		"SELECT max("+seqField+") as maxSeq FROM TaskExecutionEvent WHERE "+selectorField+" = :key",
		map[string]any{"key": key})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	if n, ok := asInt64(records[0]["maxSeq"]); ok {
		return n, nil
	}
	return 0, nil
}

func eventFromRecord(rec map[string]any) *models.TaskExecutionEvent {
	event := &models.TaskExecutionEvent{
		EventID:    asString(rec["eventId"]),
		RunID:      asString(rec["runId"]),
		TaskID:     asString(rec["taskId"]),
		EventType:  asString(rec["eventType"]),
		Role:       models.Role(asString(rec["role"])),
		OccurredAt: parseTime(rec["occurredAt"]),
		TraceID:    asString(rec["traceId"]),
		SpanID:     asString(rec["spanId"]),
	}
	if event.RunID == "" {
		event.RunID = "legacy-" + event.TaskID
	}
	if n, ok := asInt64(rec["taskSequence"]); ok {
		event.TaskSequence = n
	}
	if n, ok := asInt64(rec["runSequence"]); ok {
		event.RunSequence = n
	}
	if raw := asString(rec["payload"]); raw != "" && raw != "{}" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			event.Payload = payload
		}
	}
	return event
}
