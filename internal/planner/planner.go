// Package planner runs the full planning pipeline: scenario to validated
// graph, route catalog, MILP build, the two-stage solve, and schedule
// extraction. It owns the boundary between configuration errors (returned as
// errors before any solve) and solver terminal statuses (returned as plan
// data).
package planner

import (
	"context"
	"fmt"
	"time"

	"taxinav/internal/airport"
	"taxinav/internal/milp"
	"taxinav/internal/model"
	"taxinav/internal/solve"
)

// Planner plans scenarios through an injected solver.
type Planner struct {
	Solver solve.Solver
}

// New returns a Planner backed by s.
func New(s solve.Solver) *Planner { return &Planner{Solver: s} }

// Plan validates the scenario, builds the model, and solves it. The returned
// plan carries no identity or tenant fields; the caller assigns those. An
// error return means the scenario is misconfigured (no route, bad
// parameters); solver outcomes, including infeasibility and unboundedness,
// come back as plan statuses.
func (p *Planner) Plan(ctx context.Context, sc model.ScenarioIn, opts model.PlanOptions) (*model.Plan, error) {
	g, err := airport.NewGraph(sc)
	if err != nil {
		return nil, err
	}
	cat, err := airport.BuildCatalog(g, sc.Fleet, opts.RouteLimit)
	if err != nil {
		return nil, err
	}

	buildStart := time.Now()
	b, err := milp.BuildModel(cat, sc.Params)
	if err != nil {
		return nil, err
	}
	plan := &model.Plan{
		Stats: model.PlanStats{
			Variables:   b.Model.NumVars(),
			Constraints: b.Model.NumConstraints(),
			BuildMs:     time.Since(buildStart).Milliseconds(),
			Stages:      1,
		},
	}
	for _, ar := range cat.Aircraft {
		plan.Stats.RouteCount += len(ar.Routes)
	}

	solveStart := time.Now()
	res, err := p.Solver.Solve(ctx, b.Model)
	if err != nil {
		return nil, fmt.Errorf("stage one: %w", err)
	}
	plan.Stats.SolveMs = time.Since(solveStart).Milliseconds()

	switch res.Status {
	case solve.StatusOptimal:
	case solve.StatusInfeasible:
		plan.Status = model.PlanInfeasible
		return plan, nil
	case solve.StatusUnbounded:
		plan.Status = model.PlanUnbounded
		return plan, nil
	default:
		plan.Status = model.PlanError
		plan.Error = "solver returned no usable status"
		return plan, nil
	}

	if opts.SecondStage {
		s := milp.AddMakespanStage(b.Model, b.Registry, b.Instance, res.Objective)
		plan.Stats.Constraints = b.Model.NumConstraints()
		plan.Stats.Variables = b.Model.NumVars()

		stageStart := time.Now()
		res2, err := p.Solver.Solve(ctx, b.Model)
		if err != nil {
			return nil, fmt.Errorf("stage two: %w", err)
		}
		plan.Stats.SolveMs += time.Since(stageStart).Milliseconds()
		// The pinned stage keeps the stage-one optimum reachable, so anything
		// but optimal here means numerical trouble; the stage-one solution is
		// still valid, keep it.
		if res2.Status == solve.StatusOptimal {
			plan.Stats.Stages = 2
			plan.MakespanSec = res2.Value(s)
			res = res2
			res.Objective = solve.EvalExpr(milp.CompletionObjective(b.Registry, b.Instance), res2.Values)
		}
	}

	plan.Status = model.PlanOptimal
	plan.Objective = res.Objective
	plan.Schedules = extractSchedules(b, res)
	return plan, nil
}

func extractSchedules(b *milp.Build, res solve.Result) []model.AircraftSchedule {
	cat := b.Instance.Catalog
	out := make([]model.AircraftSchedule, 0, len(cat.Aircraft))
	for i, ar := range cat.Aircraft {
		sched := model.AircraftSchedule{
			AircraftID: ar.Aircraft.ID,
			Role:       ar.Aircraft.Role,
			RouteIndex: -1,
		}
		for r := range ar.Routes {
			if res.BoolValue(b.Registry.Gamma(i, r)) {
				sched.RouteIndex = r
				break
			}
		}
		if sched.RouteIndex >= 0 {
			rt := ar.Routes[sched.RouteIndex]
			sched.Route = rt.Nodes
			for _, u := range rt.Nodes {
				sched.Times = append(sched.Times, model.NodeTime{
					Node: u,
					Sec:  res.Value(b.Registry.T(i, u)),
				})
			}
			sched.CompletionSec = res.Value(b.Registry.T(i, ar.Aircraft.Destination))
		}
		out = append(out, sched)
	}
	return out
}
