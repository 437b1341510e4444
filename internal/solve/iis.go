package solve

import "context"

// Diagnose approximates an irreducible inconsistent subsystem of an
// infeasible model with a deletion filter: each constraint is tentatively
// dropped, and it is kept out permanently when the remainder is still
// infeasible. The constraints surviving the sweep are jointly infeasible and
// minimal with respect to single removals. Returns their names.
//
// Cost is one solve per constraint, so this is a debugging aid for small
// models, never part of the planning path.
func Diagnose(ctx context.Context, s Solver, m *Model) ([]string, error) {
	res, err := s.Solve(ctx, m)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusInfeasible {
		return nil, nil
	}

	cons := m.Constraints()
	keep := make([]bool, len(cons))
	for i := range keep {
		keep[i] = true
	}
	for i := range cons {
		keep[i] = false
		res, err := s.Solve(ctx, subModel(m, keep))
		if err != nil {
			return nil, err
		}
		// Still infeasible without it: the constraint is not part of the
		// conflict core.
		if res.Status != StatusInfeasible {
			keep[i] = true
		}
	}

	var names []string
	for i, k := range keep {
		if k {
			names = append(names, cons[i].Name)
		}
	}
	return names, nil
}

func subModel(m *Model, keep []bool) *Model {
	sub := &Model{}
	sub.vars = append(sub.vars, m.vars...)
	for i, c := range m.cons {
		if keep[i] {
			sub.cons = append(sub.cons, c)
		}
	}
	sub.objective = m.objective
	return sub
}
