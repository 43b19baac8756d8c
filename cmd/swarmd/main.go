// swarmd is the multi-agent task daemon: it plans tasks with a goal-oriented
// planner, executes roles through sandboxed CLI adapters, and persists
// snapshots and events to ArcadeDB best-effort.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/agentswarm/swarmd/pkg/actors"
	"github.com/agentswarm/swarmd/pkg/api"
	"github.com/agentswarm/swarmd/pkg/arcade"
	"github.com/agentswarm/swarmd/pkg/config"
	"github.com/agentswarm/swarmd/pkg/coordinator"
	"github.com/agentswarm/swarmd/pkg/events"
	"github.com/agentswarm/swarmd/pkg/executor"
	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/provider"
	"github.com/agentswarm/swarmd/pkg/registry"
	"github.com/agentswarm/swarmd/pkg/sandbox"
	"github.com/agentswarm/swarmd/pkg/version"
)

// shutdownBudget bounds the pool drain during graceful shutdown.
const shutdownBudget = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildProviders assembles the in-process model providers from the
// environment. Missing API keys simply leave a provider out.
func buildProviders(logger *slog.Logger) []provider.Provider {
	var providers []provider.Provider
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, err := provider.NewAnthropicFromAPIKey(key, getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"))
		if err != nil {
			logger.Warn("Anthropic provider unavailable", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := provider.NewOpenAIFromAPIKey(key, getEnv("OPENAI_MODEL", "gpt-4o"))
		if err != nil {
			logger.Warn("OpenAI provider unavailable", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	return providers
}

func main() {
	configPath := flag.String("config",
		getEnv("SWARMD_CONFIG", "./swarmd.yaml"),
		"Path to the runtime options YAML file")
	flag.Parse()

	logger := slog.Default()
	runID := "run-" + uuid.NewString()
	logger.Info("Starting swarmd", "version", version.Full(), "run_id", runID, "config", *configPath)

	ctx := context.Background()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// 1. Configuration.
	opts, err := config.Initialize(ctx, *configPath)
	if err != nil {
		logger.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Persistence backend (optional). The registry publishes snapshots
	// into the handoff; the pipeline drains it into ArcadeDB.
	var (
		handoff    *registry.Handoff
		pipeline   *arcade.Pipeline
		eventStore *arcade.EventStore
		snapshots  *arcade.SnapshotStore
	)
	if opts.ArcadeDB.Enabled {
		client := arcade.NewClient(opts.ArcadeDB, logger)
		snapshots = arcade.NewSnapshotStore(client, opts.ArcadeDB.AutoCreateSchema, logger)
		eventStore = arcade.NewEventStore(client, opts.ArcadeDB.AutoCreateSchema, logger)
		runs := arcade.NewRunStore(client, opts.ArcadeDB.AutoCreateSchema, logger)

		handoff = registry.NewHandoff(logger)
		pipeline = arcade.NewPipeline(snapshots, runs, handoff, logger)
		pipeline.Start()
		logger.Info("Persistence pipeline started",
			"url", opts.ArcadeDB.URL, "database", opts.ArcadeDB.Database)
	} else {
		logger.Info("Persistence disabled, running in-memory only")
	}

	// 3. Registry and event plumbing.
	reg := registry.New(handoff, logger)
	bus := events.NewBus()
	emitter := events.NewEmitter(eventStore, bus, logger)

	// Memory bootstrap: warm the registry from persisted snapshots.
	if opts.MemoryBootstrapEnabled && snapshots != nil {
		restored := reg.ImportSnapshots(snapshots.List(ctx, opts.MemoryBootstrapLimit, "updatedAt"), false)
		logger.Info("Memory bootstrap complete", "restored", restored)
	}

	// 4. Execution stack: sandbox, in-process providers, executor, pools.
	box, err := sandbox.New(opts, logger)
	if err != nil {
		logger.Error("Sandbox unavailable", "error", err)
		os.Exit(1)
	}

	var model executor.InProcessModel
	if providers := buildProviders(logger); len(providers) > 0 {
		model = provider.NewChain(opts.APIProviderOrder, providers, logger)
		logger.Info("In-process providers configured", "count", len(providers))
	}
	exec := executor.New(opts, box, model, logger)

	workers := actors.NewPool("worker", opts.WorkerPoolSize, exec, logger)
	reviewers := actors.NewPool("reviewer", opts.ReviewerPoolSize, exec, logger)
	workers.Start()
	reviewers.Start()
	router := actors.NewRouter(workers, reviewers)

	// 5. Supervisor, blackboard, monitor.
	supervisor := actors.NewSupervisor(logger)
	supervisor.Start()
	blackboard := actors.NewBlackboard(logger)
	blackboard.Start()
	monitor := actors.NewMonitor(supervisor, emitter, runID, opts.HeartbeatSec, logger)
	monitor.Start()

	// 6. Coordinator and dispatcher.
	learner := coordinator.NewCostLearner()
	coord := coordinator.New(reg, emitter, router, supervisor, learner, opts.MaxRetries, logger)
	dispatcher := actors.NewDispatcher(runCtx, reg, emitter, coord, runID, logger)
	dispatcher.Start()

	// 7. HTTP API.
	server := api.NewServer(reg, bus, dispatcher, supervisor, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(opts.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	logger.Info("swarmd started",
		"workers", opts.WorkerPoolSize,
		"reviewers", opts.ReviewerPoolSize,
		"sandbox", box.Level(),
		"listen", opts.ListenAddr)

	// 8. Demo task auto-submit.
	if opts.AutoSubmitDemoTask {
		taskID := "demo-" + uuid.NewString()
		dispatcher.Submit(models.TaskAssigned{
			TaskID:      taskID,
			Title:       opts.DemoTaskTitle,
			Description: opts.DemoTaskDescription,
			AssignedAt:  time.Now().UTC(),
		})
		logger.Info("Demo task submitted", "task_id", taskID)
	}

	// 9. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Ordered graceful shutdown: stop intake first, then drain the
	// coordinators and pools, then flush persistence.
	httpCtx, cancelHTTP := context.WithTimeout(ctx, 5*time.Second)
	defer cancelHTTP()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	cancelRun()
	done := make(chan struct{})
	go func() {
		dispatcher.Stop()
		workers.Stop()
		reviewers.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Dispatcher and pools stopped")
	case <-time.After(shutdownBudget):
		logger.Warn("Shutdown budget exceeded, abandoning in-flight work")
	}

	monitor.Stop()
	blackboard.Stop()
	supervisor.Stop()

	if pipeline != nil {
		pipeline.Stop()
		logger.Info("Persistence pipeline drained")
	}
	logger.Info("Shutdown complete")
}
