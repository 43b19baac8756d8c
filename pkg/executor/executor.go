// Package executor runs one role attempt against an ordered list of CLI
// adapters, falling through on probe failure, timeout, non-zero exit, empty
// output, or auth rejection, and failing only when every adapter has been
// exhausted.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentswarm/swarmd/pkg/config"
	"github.com/agentswarm/swarmd/pkg/models"
	"github.com/agentswarm/swarmd/pkg/sandbox"
)

// probeTimeout bounds each adapter availability check.
const probeTimeout = 10 * time.Second

// ErrNoAdapterSucceeded is returned once the whole adapter list has been
// exhausted; the wrapped message joins each adapter's failure with " | ".
var ErrNoAdapterSucceeded = errors.New("no adapter succeeded")

// RoleTask is one role invocation request.
type RoleTask struct {
	TaskID           string
	Title            string
	Description      string
	Role             models.Role
	Prompt           string
	PreferredAdapter string
	ExtraArgs        []string
}

// Result is a successful role invocation.
type Result struct {
	Output    string
	AdapterID string
	Model     string
	Reasoning string
}

// InProcessModel serves internal adapters without spawning a process; the
// provider chain implements it. providerID is the adapter id, which may pin
// a specific provider.
type InProcessModel interface {
	Complete(ctx context.Context, providerID, model, reasoning, prompt string) (string, error)
}

// Executor drives sandboxed CLI adapters under a global concurrency gate.
type Executor struct {
	opts      *config.RuntimeOptions
	adapters  []config.AdapterSpec
	box       *sandbox.Wrapper
	model     InProcessModel
	sem       *semaphore.Weighted
	workspace string
	logger    *slog.Logger
}

// New builds an executor. The configured adapter order is resolved once; the
// internal echo adapter is always appended last. model may be nil, in which
// case internal adapters other than local-echo fall through.
func New(opts *config.RuntimeOptions, box *sandbox.Wrapper, model InProcessModel, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		opts:      opts,
		adapters:  baseAdapterOrder(opts),
		box:       box,
		model:     model,
		sem:       semaphore.NewWeighted(int64(opts.MaxCliConcurrency)),
		workspace: opts.WorkspacePath,
		logger:    logger.With("component", "executor"),
	}
}

// baseAdapterOrder resolves cli_adapter_order against the declared adapters,
// falling back to declaration order, with local-echo pinned last.
func baseAdapterOrder(opts *config.RuntimeOptions) []config.AdapterSpec {
	byID := make(map[string]config.AdapterSpec, len(opts.Adapters))
	for _, a := range opts.Adapters {
		byID[strings.ToLower(a.ID)] = a
	}

	var ordered []config.AdapterSpec
	if len(opts.CliAdapterOrder) > 0 {
		for _, id := range opts.CliAdapterOrder {
			if a, ok := byID[strings.ToLower(id)]; ok {
				ordered = append(ordered, a)
			}
		}
	} else {
		ordered = append(ordered, opts.Adapters...)
	}

	out := make([]config.AdapterSpec, 0, len(ordered)+1)
	seen := make(map[string]struct{}, len(ordered)+1)
	for _, a := range ordered {
		key := strings.ToLower(a.ID)
		if key == EchoAdapterID {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return append(out, echoAdapterSpec())
}

// orderFor prepends the caller's preferred adapter when it is known,
// deduplicating case-insensitively. Unknown preferences are logged and the
// base order is used as-is.
func (e *Executor) orderFor(preferred string) []config.AdapterSpec {
	if preferred == "" {
		return e.adapters
	}
	var match *config.AdapterSpec
	for i := range e.adapters {
		if strings.EqualFold(e.adapters[i].ID, preferred) {
			match = &e.adapters[i]
			break
		}
	}
	if match == nil {
		e.logger.Warn("Preferred adapter unknown, using configured order", "preferred", preferred)
		return e.adapters
	}
	out := make([]config.AdapterSpec, 0, len(e.adapters))
	out = append(out, *match)
	for _, a := range e.adapters {
		if !strings.EqualFold(a.ID, preferred) {
			out = append(out, a)
		}
	}
	return out
}

// roleMode maps a role to the adapter mode hint.
func roleMode(role models.Role) string {
	switch role {
	case models.RoleBuilder, models.RoleDebugger, models.RoleTester:
		return "act"
	default:
		return "plan"
	}
}

// Execute runs the role task through the adapter list and returns the first
// acceptable output. Blocks on the global concurrency gate first.
func (e *Executor) Execute(ctx context.Context, task RoleTask) (Result, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("acquire cli slot: %w", err)
	}
	defer e.sem.Release(1)

	log := e.logger.With("task_id", task.TaskID, "role", task.Role)
	model, reasoning := e.roleModel(task.Role)

	var failures []string
	for _, adapter := range e.orderFor(task.PreferredAdapter) {
		if adapter.IsInternal {
			res, reason := e.runInternal(ctx, log, adapter, task, model, reasoning)
			if reason != "" {
				failures = append(failures, fmt.Sprintf("%s: %s", adapter.ID, reason))
				continue
			}
			return res, nil
		}

		if reason := e.probe(ctx, log, adapter); reason != "" {
			failures = append(failures, fmt.Sprintf("%s: %s", adapter.ID, reason))
			continue
		}

		res, reason := e.runAdapter(ctx, log, adapter, task, model, reasoning)
		if reason != "" {
			failures = append(failures, fmt.Sprintf("%s: %s", adapter.ID, reason))
			continue
		}
		return res, nil
	}

	return Result{}, fmt.Errorf("%w: %s", ErrNoAdapterSucceeded, strings.Join(failures, " | "))
}

// runInternal serves an internal adapter: local-echo answers directly, any
// other internal id goes to the in-process model chain.
func (e *Executor) runInternal(ctx context.Context, log *slog.Logger, adapter config.AdapterSpec, task RoleTask, model, reasoning string) (Result, string) {
	if strings.EqualFold(adapter.ID, EchoAdapterID) {
		output := Normalize(echoOutput(task))
		log.Info("Internal adapter produced output", "adapter", adapter.ID)
		return Result{Output: output, AdapterID: adapter.ID}, ""
	}
	if e.model == nil {
		return Result{}, "no in-process model configured"
	}

	timeout := time.Duration(e.opts.RoleExecutionTimeoutSeconds) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := e.model.Complete(execCtx, adapter.ID, model, reasoning, task.Prompt)
	if err != nil {
		log.Warn("In-process model failed", "adapter", adapter.ID, "error", err)
		return Result{}, err.Error()
	}
	output := Normalize(raw)
	if output == "" {
		return Result{}, "empty output"
	}
	log.Info("Internal adapter produced output", "adapter", adapter.ID)
	return Result{Output: output, AdapterID: adapter.ID, Model: model, Reasoning: reasoning}, ""
}

// probe checks adapter availability; an empty return means it is usable.
func (e *Executor) probe(ctx context.Context, log *slog.Logger, adapter config.AdapterSpec) string {
	if adapter.ProbeCommand == "" {
		return ""
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := e.box.Wrap(sandbox.Command{Path: adapter.ProbeCommand, Args: adapter.ProbeArgs})
	res, err := runProcess(probeCtx, cmd, e.workspace, adapter.Env)
	if err != nil {
		log.Debug("Adapter probe failed", "adapter", adapter.ID, "error", err)
		return fmt.Sprintf("probe failed: %v", err)
	}
	if res.exitCode != 0 {
		log.Debug("Adapter probe exited non-zero", "adapter", adapter.ID, "exit_code", res.exitCode)
		return fmt.Sprintf("probe exit code %d", res.exitCode)
	}
	return ""
}

// runAdapter executes one adapter attempt; an empty reason means success.
func (e *Executor) runAdapter(ctx context.Context, log *slog.Logger, adapter config.AdapterSpec, task RoleTask, model, reasoning string) (Result, string) {
	args := renderArgs(adapter.ExecuteArgs, templateVars(task, e.workspace), task.ExtraArgs)
	env := make(map[string]string, len(adapter.Env)+2)
	for k, v := range adapter.Env {
		env[k] = v
	}

	if model != "" {
		if adapter.ModelFlag != "" {
			args = append(args, adapter.ModelFlag, model)
		}
		if adapter.ModelEnvVar != "" {
			env[adapter.ModelEnvVar] = model
		}
	}
	if reasoning != "" {
		if adapter.ReasoningFlag != "" {
			args = append(args, adapter.ReasoningFlag, reasoning)
		}
		if adapter.ReasoningEnvVar != "" {
			env[adapter.ReasoningEnvVar] = reasoning
		}
	}
	if adapter.ModeFlag != "" {
		args = append(args, adapter.ModeFlag, roleMode(task.Role))
	}

	timeout := time.Duration(e.opts.RoleExecutionTimeoutSeconds) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := e.box.Wrap(sandbox.Command{Path: adapter.ExecuteCommand, Args: args})
	log.Info("Executing adapter", "adapter", adapter.ID, "timeout", timeout)

	res, err := runProcess(execCtx, cmd, e.workspace, env)
	switch {
	case errors.Is(err, ErrExecutionTimeout):
		log.Warn("Adapter execution timed out", "adapter", adapter.ID)
		return Result{}, "execution timeout"
	case err != nil:
		return Result{}, err.Error()
	case res.exitCode != 0:
		reason := strings.TrimSpace(res.stderr)
		if reason == "" {
			reason = fmt.Sprintf("exit code %d", res.exitCode)
		}
		return Result{}, reason
	}

	output := Normalize(res.stdout)
	if output == "" {
		return Result{}, "empty output"
	}
	if matched := rejectionMatch(output, adapter.RejectOutputSubstrings); matched != "" {
		log.Warn("Adapter output rejected", "adapter", adapter.ID, "matched", matched)
		return Result{}, fmt.Sprintf("rejected output (matched %q)", matched)
	}

	return Result{Output: output, AdapterID: adapter.ID, Model: model, Reasoning: reasoning}, ""
}

func (e *Executor) roleModel(role models.Role) (string, string) {
	if rm, ok := e.opts.RoleModelMapping[string(role)]; ok {
		return rm.Model, rm.Reasoning
	}
	return "", ""
}
