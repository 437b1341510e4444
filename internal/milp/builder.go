package milp

import (
	"taxinav/internal/airport"
	"taxinav/internal/model"
	"taxinav/internal/solve"
)

const (
	roleDeparture = model.RoleDeparture
	roleArrival   = model.RoleArrival
)

// Build is a fully emitted stage-one model with its registry and instance,
// ready for the solve facade. Registry and Instance are retained so the
// planner can extract schedules and add the makespan stage.
type Build struct {
	Model    *solve.Model
	Registry *Registry
	Instance *Instance
}

// BuildModel assembles the complete stage-one MILP for a catalog: variable
// allocation, every constraint family in canonical order, and the
// total-completion-time objective. Construction is single-threaded and
// deterministic; identical inputs produce models with identical
// fingerprints.
func BuildModel(cat *airport.Catalog, p model.Params) (*Build, error) {
	in, err := NewInstance(cat, p)
	if err != nil {
		return nil, err
	}
	m := &solve.Model{}
	reg := Allocate(m, in)
	for _, f := range Families() {
		f.Emit(m, reg, in)
	}
	m.SetObjective(CompletionObjective(reg, in))
	return &Build{Model: m, Registry: reg, Instance: in}, nil
}
