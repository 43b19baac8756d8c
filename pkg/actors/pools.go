package actors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentswarm/swarmd/pkg/executor"
	"github.com/agentswarm/swarmd/pkg/models"
)

// RoleRequest asks a pool member to run one role. The outcome is delivered
// on Reply, which must be buffered so a worker never blocks on a caller that
// gave up.
type RoleRequest struct {
	Ctx   context.Context
	Task  executor.RoleTask
	Reply chan RoleOutcome
}

// RoleOutcome is a finished role attempt.
type RoleOutcome struct {
	Result executor.Result
	Err    error
}

// Pool routes role requests across a fixed set of single-threaded members
// using smallest-mailbox routing. Each member runs one role at a time.
type Pool struct {
	name    string
	members []*Mailbox
	logger  *slog.Logger
}

// NewPool builds a pool of size members, each invoking exec for its
// requests. Size must already be clamped by config.
func NewPool(name string, size int, exec *executor.Executor, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{name: name, logger: logger.With("pool", name)}
	for i := 0; i < size; i++ {
		member := NewMailbox(fmt.Sprintf("%s-%d", name, i), func(msg any) {
			req, ok := msg.(RoleRequest)
			if !ok {
				return
			}
			result, err := exec.Execute(req.Ctx, req.Task)
			req.Reply <- RoleOutcome{Result: result, Err: err}
		}, logger)
		p.members = append(p.members, member)
	}
	return p
}

// Start launches every member.
func (p *Pool) Start() {
	for _, m := range p.members {
		m.Start()
	}
	p.logger.Info("Pool started", "size", len(p.members))
}

// Stop drains and stops every member.
func (p *Pool) Stop() {
	for _, m := range p.members {
		m.Stop()
	}
	p.logger.Info("Pool stopped")
}

// Size returns the member count.
func (p *Pool) Size() int { return len(p.members) }

// route picks the member with the fewest queued messages; ties go to the
// lowest index, which keeps routing deterministic.
func (p *Pool) route() *Mailbox {
	best := p.members[0]
	for _, m := range p.members[1:] {
		if m.Len() < best.Len() {
			best = m
		}
	}
	return best
}

// Submit enqueues a role request on the least-loaded member.
func (p *Pool) Submit(req RoleRequest) bool {
	return p.route().Send(req)
}

// Router sends role tasks to the right pool and awaits the outcome. It is
// the coordinator's only path into role execution; the coordinator holds
// mailbox addresses, never worker references.
type Router struct {
	workers   *Pool
	reviewers *Pool
}

// NewRouter builds a router over the two pools.
func NewRouter(workers, reviewers *Pool) *Router {
	return &Router{workers: workers, reviewers: reviewers}
}

// poolFor routes review-family roles to the reviewer pool and everything
// else to the worker pool.
func (r *Router) poolFor(role models.Role) *Pool {
	switch role {
	case models.RoleReviewer, models.RoleTester:
		return r.reviewers
	default:
		return r.workers
	}
}

// RunRole dispatches one role execution and blocks until it finishes or ctx
// is cancelled.
func (r *Router) RunRole(ctx context.Context, task executor.RoleTask) (executor.Result, error) {
	reply := make(chan RoleOutcome, 1)
	req := RoleRequest{Ctx: ctx, Task: task, Reply: reply}
	if !r.poolFor(task.Role).Submit(req) {
		return executor.Result{}, context.Canceled
	}
	select {
	case outcome := <-reply:
		return outcome.Result, outcome.Err
	case <-ctx.Done():
		return executor.Result{}, ctx.Err()
	}
}
