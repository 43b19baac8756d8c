package actors

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/agentswarm/swarmd/pkg/events"
	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
)

// TaskRunner drives one task from registration to a terminal status. The
// coordinator implements it; the dispatcher only holds the interface so the
// actor layer stays decoupled from planning.
type TaskRunner interface {
	Run(ctx context.Context, taskID string)
}

// Dispatcher is the mesh entry point: it receives task assignments,
// registers them, emits task.submitted, and hands each task to its own
// coordinator goroutine.
type Dispatcher struct {
	mailbox  *Mailbox
	registry *registry.Registry
	emitter  *events.Emitter
	runner   TaskRunner
	runID    string

	baseCtx context.Context
	tasks   sync.WaitGroup
	logger  *slog.Logger
}

// NewDispatcher builds the dispatcher actor. baseCtx is the process-wide
// shutdown context every coordinator inherits.
func NewDispatcher(baseCtx context.Context, reg *registry.Registry, emitter *events.Emitter, runner TaskRunner, runID string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		registry: reg,
		emitter:  emitter,
		runner:   runner,
		runID:    runID,
		baseCtx:  baseCtx,
		logger:   logger.With("actor", "dispatcher"),
	}
	d.mailbox = NewMailbox("dispatcher", d.handle, logger)
	return d
}

// Start launches the dispatcher loop.
func (d *Dispatcher) Start() { d.mailbox.Start() }

// Stop drains the mailbox, then waits for in-flight coordinators.
func (d *Dispatcher) Stop() {
	d.mailbox.Stop()
	d.tasks.Wait()
}

// Submit enqueues an assignment. Returns false during shutdown.
func (d *Dispatcher) Submit(assigned models.TaskAssigned) bool {
	return d.mailbox.Send(assigned)
}

func (d *Dispatcher) handle(msg any) {
	assigned, ok := msg.(models.TaskAssigned)
	if !ok {
		return
	}
	log := d.logger.With("task_id", assigned.TaskID)

	snap, err := d.registry.Register(assigned, d.runID)
	if err != nil {
		if errors.Is(err, registry.ErrTaskExists) {
			log.Warn("Duplicate task assignment ignored")
		} else {
			log.Error("Task registration failed", "error", err)
		}
		return
	}

	d.emitter.Emit(d.baseCtx, snap.TaskID, snap.RunID, models.EventTaskSubmitted, "", map[string]any{
		"title": snap.Title,
	})

	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		d.runner.Run(d.baseCtx, snap.TaskID)
	}()
	log.Info("Task dispatched", "run_id", snap.RunID)
}
