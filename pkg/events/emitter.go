package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentswarm/swarmd/pkg/arcade"
	"github.com/agentswarm/swarmd/pkg/models"
)

// persistTimeout bounds the best-effort backend append per event.
const persistTimeout = 5 * time.Second

// Emitter stamps execution events with ids, timestamps, trace correlation
// fields, and contiguous per-task/per-run sequence numbers, then publishes
// them on the bus and appends them to the event store when one is
// configured. Emission never fails: persistence problems are logged and
// swallowed.
type Emitter struct {
	store   *arcade.EventStore
	taskSeq *arcade.SequenceAllocator
	runSeq  *arcade.SequenceAllocator
	bus     *Bus
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewEmitter builds an emitter. store may be nil (no persistence); bus may
// be nil (no in-process delivery). With a store, sequence counters are
// seeded from the persisted maxima so a restarted process never collides.
func NewEmitter(store *arcade.EventStore, bus *Bus, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "event_emitter")

	var taskSeed, runSeed arcade.SeedFunc
	if store != nil {
		taskSeed = store.TaskSequenceSeed()
		runSeed = store.RunSequenceSeed()
	}
	return &Emitter{
		store:   store,
		taskSeq: arcade.NewSequenceAllocator(taskSeed, logger),
		runSeq:  arcade.NewSequenceAllocator(runSeed, logger),
		bus:     bus,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// Emit builds, sequences, publishes, and persists one event.
func (e *Emitter) Emit(ctx context.Context, taskID, runID, eventType string, role models.Role, payload map[string]any) *models.TaskExecutionEvent {
	if runID == "" {
		runID = "legacy-" + taskID
	}
	event := &models.TaskExecutionEvent{
		EventID:      uuid.NewString(),
		TaskID:       taskID,
		RunID:        runID,
		EventType:    eventType,
		Role:         role,
		Payload:      payload,
		OccurredAt:   e.nowFn().UTC(),
		TaskSequence: e.taskSeq.Next(ctx, taskID),
		RunSequence:  e.runSeq.Next(ctx, runID),
	}

	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		event.TraceID = span.TraceID().String()
		event.SpanID = span.SpanID().String()
	}

	if e.bus != nil {
		e.bus.Publish(event)
	}

	if e.store != nil {
		// Persist on a background context: an emitted event should land
		// even while the caller's context is being cancelled.
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := e.store.Append(persistCtx, event); err != nil {
			e.logger.Debug("Event append failed",
				"event_type", eventType, "task_id", taskID, "error", err)
		}
	}

	return event
}
