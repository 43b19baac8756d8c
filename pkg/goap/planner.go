package goap

import (
	"container/heap"
	"math"
)

// PlanResult is the outcome of a planning call. A non-nil empty Recommended
// means the goal is already satisfied; DeadEnd means no action sequence can
// reach the goal from the given state.
type PlanResult struct {
	Recommended []Action
	Alternative []Action
	DeadEnd     bool
}

// AdjustedCost applies a learned multiplier to an action's base cost.
// The result never drops below 1.
func AdjustedCost(base int, multiplier float64) int {
	adjusted := int(math.Round(float64(base) * multiplier))
	if adjusted < 1 {
		return 1
	}
	return adjusted
}

type searchNode struct {
	state   WorldState
	actions []Action
	g       int
	f       int
	seq     int // insertion order, breaks equal-f ties FIFO
}

type openQueue []*searchNode

func (q openQueue) Len() int { return len(q) }
func (q openQueue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq < q[j].seq
}
func (q openQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *openQueue) Push(x any)        { *q = append(*q, x.(*searchNode)) }
func (q *openQueue) Pop() any {
	old := *q
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return node
}

// Planner runs best-first searches over the fixed catalogue.
type Planner struct {
	catalogue []Action
}

// NewPlanner returns a planner over the canonical catalogue.
func NewPlanner() *Planner {
	return &Planner{catalogue: Catalogue()}
}

// Plan searches for up to two distinct action sequences reaching the goal.
// costAdjustments maps action name to a cost multiplier (nil for none).
// The search is fully deterministic: identical inputs yield identical plans.
func (p *Planner) Plan(current WorldState, goal Goal, costAdjustments map[string]float64) PlanResult {
	if current.Satisfies(goal.Target) {
		return PlanResult{Recommended: []Action{}}
	}

	costs := make([]int, len(p.catalogue))
	for i, a := range p.catalogue {
		costs[i] = a.Cost
		if m, ok := costAdjustments[a.Name]; ok {
			costs[i] = AdjustedCost(a.Cost, m)
		}
	}

	open := &openQueue{}
	heap.Init(open)
	seq := 0
	push := func(n *searchNode) {
		n.seq = seq
		seq++
		heap.Push(open, n)
	}
	push(&searchNode{
		state: current,
		g:     0,
		f:     current.Unsatisfied(goal.Target),
	})

	closed := make(map[string]struct{})
	var plans [][]Action

	for open.Len() > 0 && len(plans) < 2 {
		node := heap.Pop(open).(*searchNode)

		if node.state.Satisfies(goal.Target) {
			// Goal nodes are terminal and never closed, so a second
			// route to the same goal state can still be emitted.
			if len(node.actions) > 0 {
				plans = append(plans, node.actions)
			}
			continue
		}

		key := node.state.Key()
		if _, seen := closed[key]; seen {
			continue
		}
		closed[key] = struct{}{}

		for i, action := range p.catalogue {
			if !node.state.Satisfies(action.Preconditions) {
				continue
			}
			next := node.state.Apply(action)
			if _, seen := closed[next.Key()]; seen {
				continue
			}
			actions := make([]Action, len(node.actions)+1)
			copy(actions, node.actions)
			actions[len(node.actions)] = action
			g := node.g + costs[i]
			push(&searchNode{
				state:   next,
				actions: actions,
				g:       g,
				f:       g + next.Unsatisfied(goal.Target),
			})
		}
	}

	result := PlanResult{}
	switch len(plans) {
	case 0:
		result.DeadEnd = true
	case 1:
		result.Recommended = plans[0]
	default:
		result.Recommended = plans[0]
		result.Alternative = plans[1]
	}
	return result
}
