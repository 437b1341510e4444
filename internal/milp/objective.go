package milp

import (
	"fmt"

	"taxinav/internal/solve"
)

// stageOneEps is the tolerance used when pinning the stage-one optimum as a
// constraint for the makespan stage, absorbing MIP-gap noise without letting
// stage two degrade stage one.
const stageOneEps = 1e-6

// CompletionObjective returns the stage-one objective: the sum over the
// fleet of each aircraft's arrival time at its destination.
func CompletionObjective(reg *Registry, in *Instance) solve.Expr {
	var e solve.Expr
	for i, ar := range in.Catalog.Aircraft {
		e = e.Plus(reg.T(i, ar.Aircraft.Destination), 1)
	}
	return e
}

// AddMakespanStage converts a solved stage-one model into the stage-two
// model: allocates the bounding variable S, constrains it above every
// departure's completion time, pins the stage-one objective at its optimum,
// and replaces the objective with S. The two stages are strictly
// lexicographic: stage two minimizes the latest departure completion only
// among schedules that keep total completion time optimal.
func AddMakespanStage(m *solve.Model, reg *Registry, in *Instance, stageOneValue float64) solve.Var {
	s := reg.AddMakespan(m)
	for i, ar := range in.Catalog.Aircraft {
		if ar.Aircraft.Role != roleDeparture {
			continue
		}
		// S >= t[i, dest]
		e := solve.Expr{}.Plus(s, 1).Plus(reg.T(i, ar.Aircraft.Destination), -1)
		m.AddConstraint(fmt.Sprintf("makespan_%s", ar.Aircraft.ID), e, solve.GE, 0)
	}
	m.AddConstraint("stage_one_pin", CompletionObjective(reg, in), solve.LE, stageOneValue+stageOneEps)
	m.SetObjective(solve.Expr{}.Plus(s, 1))
	return s
}
