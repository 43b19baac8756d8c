package actors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentswarm/swarmd/pkg/events"
	"github.com/agentswarm/swarmd/pkg/models"
)

// monitorTaskID scopes the heartbeat event stream. The pseudo-task gets its
// own contiguous sequence like any real task.
const monitorTaskID = "system"

// Monitor periodically asks the supervisor for its counters and publishes a
// diagnostic event for UI consumers.
type Monitor struct {
	supervisor *Supervisor
	emitter    *events.Emitter
	runID      string
	interval   time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewMonitor builds a monitor ticking every max(5, heartbeatSec) seconds.
func NewMonitor(supervisor *Supervisor, emitter *events.Emitter, runID string, heartbeatSec int, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatSec < 5 {
		heartbeatSec = 5
	}
	return &Monitor{
		supervisor: supervisor,
		emitter:    emitter,
		runID:      runID,
		interval:   time.Duration(heartbeatSec) * time.Second,
		stopCh:     make(chan struct{}),
		logger:     logger.With("component", "monitor"),
	}
}

// Start launches the tick loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick()
			case <-m.stopCh:
				return
			}
		}
	}()
	m.logger.Info("Monitor started", "interval", m.interval)
}

// Stop terminates the tick loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

func (m *Monitor) tick() {
	stats, err := m.supervisor.Snapshot()
	if err != nil {
		m.logger.Warn("Supervisor snapshot unavailable", "error", err)
		return
	}
	m.emitter.Emit(context.Background(), monitorTaskID, m.runID,
		models.EventDiagnosticContext, "", map[string]any{
			"started":     stats.Started,
			"completed":   stats.Completed,
			"failed":      stats.Failed,
			"escalations": stats.Escalations,
		})
}
