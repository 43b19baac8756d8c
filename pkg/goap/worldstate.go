// Package goap implements goal-oriented action planning over an immutable
// boolean world state: a fixed action catalogue, two predefined goals, and a
// deterministic best-first planner producing a recommended/alternative plan
// pair.
package goap

import (
	"sort"
	"strings"
)

// WorldKey is one of the closed set of propositions the planner reasons over.
type WorldKey string

// World propositions.
const (
	TaskExists          WorldKey = "TaskExists"
	PlanExists          WorldKey = "PlanExists"
	BuildExists         WorldKey = "BuildExists"
	ReviewPassed        WorldKey = "ReviewPassed"
	ReviewRejected      WorldKey = "ReviewRejected"
	RetryLimitReached   WorldKey = "RetryLimitReached"
	ReworkAttempted     WorldKey = "ReworkAttempted"
	TaskCompleted       WorldKey = "TaskCompleted"
	TaskBlocked         WorldKey = "TaskBlocked"
	SubTasksSpawned     WorldKey = "SubTasksSpawned"
	SubTasksCompleted   WorldKey = "SubTasksCompleted"
	AgentsAvailable     WorldKey = "AgentsAvailable"
	NegotiationComplete WorldKey = "NegotiationComplete"
)

// WorldState is an immutable set of true propositions. An absent key reads
// as false, so only true keys are stored; With(k, false) removes the key.
type WorldState struct {
	truths map[WorldKey]struct{}
}

// NewWorldState builds a state from the given assignments. False values are
// equivalent to omission.
func NewWorldState(values map[WorldKey]bool) WorldState {
	truths := make(map[WorldKey]struct{})
	for k, v := range values {
		if v {
			truths[k] = struct{}{}
		}
	}
	return WorldState{truths: truths}
}

// Get returns the value of a proposition.
func (ws WorldState) Get(key WorldKey) bool {
	_, ok := ws.truths[key]
	return ok
}

// With returns a new state with key set to value. The receiver is unchanged.
func (ws WorldState) With(key WorldKey, value bool) WorldState {
	if ws.Get(key) == value {
		return ws
	}
	truths := make(map[WorldKey]struct{}, len(ws.truths)+1)
	for k := range ws.truths {
		truths[k] = struct{}{}
	}
	if value {
		truths[key] = struct{}{}
	} else {
		delete(truths, key)
	}
	return WorldState{truths: truths}
}

// Satisfies reports whether every condition holds in this state.
func (ws WorldState) Satisfies(conds map[WorldKey]bool) bool {
	for k, want := range conds {
		if ws.Get(k) != want {
			return false
		}
	}
	return true
}

// Unsatisfied counts the conditions not yet holding in this state. This is
// the planner's heuristic: each action changes at most its declared effects,
// so the count never overestimates remaining cost.
func (ws WorldState) Unsatisfied(conds map[WorldKey]bool) int {
	n := 0
	for k, want := range conds {
		if ws.Get(k) != want {
			n++
		}
	}
	return n
}

// Apply returns the state after merging the action's effects.
func (ws WorldState) Apply(action Action) WorldState {
	next := ws
	for k, v := range action.Effects {
		next = next.With(k, v)
	}
	return next
}

// Key returns an order-independent canonical form usable as a map key.
// States are equal iff their keys are equal.
func (ws WorldState) Key() string {
	if len(ws.truths) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ws.truths))
	for k := range ws.truths {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

// Equals reports content equality.
func (ws WorldState) Equals(other WorldState) bool {
	if len(ws.truths) != len(other.truths) {
		return false
	}
	for k := range ws.truths {
		if !other.Get(k) {
			return false
		}
	}
	return true
}
