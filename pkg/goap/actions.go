package goap

// Action names.
const (
	ActionPlan            = "Plan"
	ActionBuild           = "Build"
	ActionReview          = "Review"
	ActionRework          = "Rework"
	ActionEscalate        = "Escalate"
	ActionFinalize        = "Finalize"
	ActionWaitForSubTasks = "WaitForSubTasks"
	ActionNegotiate       = "Negotiate"
)

// Action is a named precondition/effect pair with an integer cost.
type Action struct {
	Name          string
	Preconditions map[WorldKey]bool
	Effects       map[WorldKey]bool
	Cost          int
}

// Goal is a named target state.
type Goal struct {
	Name   string
	Target map[WorldKey]bool
}

// Predefined goals.
var (
	GoalCompleteTask = Goal{Name: "CompleteTask", Target: map[WorldKey]bool{TaskCompleted: true}}
	GoalEscalateTask = Goal{Name: "EscalateTask", Target: map[WorldKey]bool{TaskBlocked: true}}
)

// Catalogue returns the fixed action catalogue in canonical declaration
// order. The planner iterates actions in this order, which fixes tie-breaks.
func Catalogue() []Action {
	return []Action{
		{
			Name:          ActionPlan,
			Preconditions: map[WorldKey]bool{TaskExists: true},
			Effects:       map[WorldKey]bool{PlanExists: true},
			Cost:          1,
		},
		{
			Name:          ActionBuild,
			Preconditions: map[WorldKey]bool{PlanExists: true},
			Effects:       map[WorldKey]bool{BuildExists: true},
			Cost:          3,
		},
		{
			Name:          ActionReview,
			Preconditions: map[WorldKey]bool{BuildExists: true, ReviewRejected: false},
			Effects:       map[WorldKey]bool{ReviewPassed: true},
			Cost:          2,
		},
		{
			Name:          ActionRework,
			Preconditions: map[WorldKey]bool{ReviewRejected: true, RetryLimitReached: false},
			Effects:       map[WorldKey]bool{BuildExists: true, ReviewRejected: false, ReworkAttempted: true},
			Cost:          4,
		},
		{
			Name:          ActionEscalate,
			Preconditions: map[WorldKey]bool{ReviewRejected: true, RetryLimitReached: true},
			Effects:       map[WorldKey]bool{TaskBlocked: true},
			Cost:          10,
		},
		{
			Name:          ActionFinalize,
			Preconditions: map[WorldKey]bool{ReviewPassed: true},
			Effects:       map[WorldKey]bool{TaskCompleted: true},
			Cost:          1,
		},
		{
			Name:          ActionWaitForSubTasks,
			Preconditions: map[WorldKey]bool{SubTasksSpawned: true, SubTasksCompleted: false},
			Effects:       map[WorldKey]bool{SubTasksCompleted: true},
			Cost:          2,
		},
		{
			Name:          ActionNegotiate,
			Preconditions: map[WorldKey]bool{TaskExists: true, AgentsAvailable: true},
			Effects:       map[WorldKey]bool{NegotiationComplete: true},
			Cost:          1,
		},
	}
}
