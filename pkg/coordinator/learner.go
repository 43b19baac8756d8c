package coordinator

import "sync"

// Cost learning bounds: repeated failures inflate an action's multiplier up
// to the cap; successes decay it down to the floor.
const (
	failureFactor = 1.5
	successFactor = 0.9
	multiplierCap = 3.0
	multiplierMin = 0.5
)

// CostLearner accumulates per-action cost multipliers from observed
// outcomes across a run and feeds them back into planning.
type CostLearner struct {
	mu          sync.Mutex
	multipliers map[string]float64
}

// NewCostLearner starts with every action at its base cost.
func NewCostLearner() *CostLearner {
	return &CostLearner{multipliers: make(map[string]float64)}
}

func (l *CostLearner) current(action string) float64 {
	if m, ok := l.multipliers[action]; ok {
		return m
	}
	return 1.0
}

// RecordFailure inflates the action's multiplier.
func (l *CostLearner) RecordFailure(action string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.current(action) * failureFactor
	if m > multiplierCap {
		m = multiplierCap
	}
	l.multipliers[action] = m
}

// RecordSuccess decays the action's multiplier.
func (l *CostLearner) RecordSuccess(action string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.current(action) * successFactor
	if m < multiplierMin {
		m = multiplierMin
	}
	l.multipliers[action] = m
}

// Adjustments returns a copy of the current multipliers for a planning call.
func (l *CostLearner) Adjustments() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.multipliers))
	for k, v := range l.multipliers {
		out[k] = v
	}
	return out
}
