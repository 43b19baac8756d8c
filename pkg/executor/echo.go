package executor

import (
	"fmt"

	"github.com/agentswarm/swarmd/pkg/config"
	"github.com/agentswarm/swarmd/pkg/models"
)

// EchoAdapterID names the built-in internal adapter. It always terminates
// the resolved adapter order so execution has a deterministic offline
// fallback.
const EchoAdapterID = "local-echo"

func echoAdapterSpec() config.AdapterSpec {
	return config.AdapterSpec{ID: EchoAdapterID, IsInternal: true}
}

// echoOutput synthesizes a deterministic per-role output without spawning
// any process. Used as the final fallback and in tests.
func echoOutput(task RoleTask) string {
	switch task.Role {
	case models.RolePlanner, models.RoleOrchestrator, models.RoleResearcher:
		return fmt.Sprintf("PLAN for %s (%s):\n1. Analyze the request\n2. Outline the change\n3. Hand off to build", task.TaskID, task.Title)
	case models.RoleBuilder, models.RoleDebugger:
		return fmt.Sprintf("BUILD for %s: applied the planned change for %q.", task.TaskID, task.Title)
	case models.RoleReviewer, models.RoleTester:
		return fmt.Sprintf("REVIEW for %s: change looks consistent with the plan. APPROVE.", task.TaskID)
	default:
		return fmt.Sprintf("OUTPUT for %s (%s role)", task.TaskID, task.Role)
	}
}
