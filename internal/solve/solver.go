package solve

import "context"

// Status is a solver terminal status. Infeasibility and unboundedness are
// data, not errors: configuration problems are caught before a model is
// built, so any status here describes a well-formed instance.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusOther
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "other"
	}
}

// Result is the outcome of one solve call. Objective and Values are only
// meaningful when Status is StatusOptimal; Values is indexed by Var.
type Result struct {
	Status    Status
	Objective float64
	Values    []float64
}

// Value returns the solution value of v.
func (r Result) Value(v Var) float64 { return r.Values[v] }

// BoolValue returns the solution value of a binary column, tolerating the
// small fractional noise MIP solvers report.
func (r Result) BoolValue(v Var) bool { return r.Values[v] > 0.5 }

// Solver runs one optimization over a finished model. Solve is synchronous
// and potentially long-running; implementations should honor ctx
// cancellation where their backend allows it.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Result, error)
}
