package arcade

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/registry"
)

// writeTimeout bounds each backend write from the drain loop.
const writeTimeout = 10 * time.Second

type runCounts struct {
	taskCount int
	completed int
	failed    int
	seen      map[string]models.TaskStatus
}

// Pipeline is the single reader of the registry handoff. It upserts each
// snapshot, records run metadata on first sight of a run, and writes a
// TaskOutcome when a task reaches a terminal status. Everything here is
// best-effort; a dead backend never blocks the registry.
type Pipeline struct {
	snapshots *SnapshotStore
	runs      *RunStore
	handoff   *registry.Handoff

	runsSeen map[string]*runCounts

	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewPipeline builds the drain worker.
func NewPipeline(snapshots *SnapshotStore, runs *RunStore, handoff *registry.Handoff, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		snapshots: snapshots,
		runs:      runs,
		handoff:   handoff,
		runsSeen:  make(map[string]*runCounts),
		logger:    logger.With("component", "persistence_pipeline"),
	}
}

// Start launches the drain loop. The loop exits when the handoff closes.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.drain()
	}()
	p.logger.Info("Persistence pipeline started")
}

// Stop closes the handoff and waits for the drain loop to flush the
// remaining queue.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.handoff.Close()
		p.wg.Wait()
		p.logger.Info("Persistence pipeline stopped", "dropped", p.handoff.Dropped())
	})
}

func (p *Pipeline) drain() {
	for snap := range p.handoff.Snapshots() {
		p.persist(snap)
	}
}

func (p *Pipeline) persist(snap *models.TaskSnapshot) {
	// Writes use a background context: shutdown must still flush the queue.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.snapshots.Save(ctx, snap); err != nil {
		p.logger.Debug("Snapshot write failed", "task_id", snap.TaskID, "error", err)
	}
	p.trackRun(ctx, snap)
}

func (p *Pipeline) trackRun(ctx context.Context, snap *models.TaskSnapshot) {
	rc, ok := p.runsSeen[snap.RunID]
	if !ok {
		rc = &runCounts{seen: make(map[string]models.TaskStatus)}
		p.runsSeen[snap.RunID] = rc
		if err := p.runs.EnsureRun(ctx, snap.RunID, snap.CreatedAt); err != nil {
			p.logger.Debug("Run record write failed", "run_id", snap.RunID, "error", err)
		}
	}

	prev, known := rc.seen[snap.TaskID]
	if !known {
		rc.taskCount++
	}
	rc.seen[snap.TaskID] = snap.Status

	if !snap.Status.IsTerminal() || prev == snap.Status {
		return
	}
	switch snap.Status {
	case models.StatusDone:
		rc.completed++
	case models.StatusBlocked:
		rc.failed++
	}

	outcome := TaskOutcome{
		TaskID:         snap.TaskID,
		RunID:          snap.RunID,
		Status:         string(snap.Status),
		Succeeded:      snap.Status == models.StatusDone,
		DurationMillis: snap.UpdatedAt.Sub(snap.CreatedAt).Milliseconds(),
		CompletedAt:    snap.UpdatedAt,
	}
	if err := p.runs.WriteOutcome(ctx, outcome); err != nil {
		p.logger.Debug("Outcome write failed", "task_id", snap.TaskID, "error", err)
	}
	if err := p.runs.UpdateRunCounts(ctx, snap.RunID, rc.taskCount, rc.completed, rc.failed); err != nil {
		p.logger.Debug("Run counter update failed", "run_id", snap.RunID, "error", err)
	}
}
