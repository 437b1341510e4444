package milp

import (
	"fmt"

	"taxinav/internal/airport"
	"taxinav/internal/model"
	"taxinav/internal/solve"
)

// EmitFunc is the uniform signature every constraint family implements. A
// family is a pure function of (model, registry, instance): it appends rows
// and mutates nothing else, so families compose in any order. Emission order
// is still fixed for reproducible models.
type EmitFunc func(m *solve.Model, reg *Registry, in *Instance)

// Family pairs a constraint family with its name for diagnostics.
type Family struct {
	Name string
	Emit EmitFunc
}

// Families returns the constraint families in canonical emission order.
func Families() []Family {
	return []Family{
		{"domain", emitDomain},
		{"sequencing", emitSequencing},
		{"conflict", emitConflict},
		{"release", emitRelease},
		{"speed", emitSpeed},
		{"separation", emitSeparation},
		{"runway", emitRunway},
		{"capacity", emitCapacity},
	}
}

// emitDomain emits route selection (each aircraft selects exactly one
// route), the activation logic tying Z to route membership, and the runway
// ordering completeness rho[i,j] + rho[j,i] = 1. Variable bounds themselves
// are fixed at allocation and need no rows.
func emitDomain(m *solve.Model, reg *Registry, in *Instance) {
	cat := in.Catalog
	for i, ar := range cat.Aircraft {
		var e solve.Expr
		for r := range ar.Routes {
			e = e.Plus(reg.Gamma(i, r), 1)
		}
		m.AddConstraint(fmt.Sprintf("route_selection_%s", ar.Aircraft.ID), e, solve.EQ, 1)
	}
	for i := range cat.Aircraft {
		for j := range cat.Aircraft {
			if i == j {
				continue
			}
			for _, u := range cat.SharedNodes(i, j) {
				// Z[i,j,u] <= sum Gamma over routes of i through u, and the
				// same for j: Z can only activate when both aircraft can be
				// at u under their selected routes.
				z := reg.Z(i, j, u)
				ei := solve.Expr{{Var: z, Coef: 1}}
				for _, t := range reg.NodeMembership(i, u) {
					ei = ei.Plus(t.Var, -1)
				}
				m.AddConstraint(
					fmt.Sprintf("z_active_first_%s_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, u),
					ei, solve.LE, 0)
				ej := solve.Expr{{Var: z, Coef: 1}}
				for _, t := range reg.NodeMembership(j, u) {
					ej = ej.Plus(t.Var, -1)
				}
				m.AddConstraint(
					fmt.Sprintf("z_active_second_%s_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, u),
					ej, solve.LE, 0)
			}
			if i < j {
				e := solve.Expr{}.Plus(reg.Rho(i, j), 1).Plus(reg.Rho(j, i), 1)
				m.AddConstraint(
					fmt.Sprintf("runway_order_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID),
					e, solve.EQ, 1)
			}
		}
	}
}

// emitSequencing pinches Z[i,j,u] + Z[j,i,u] between
// 2*(membership(i) + membership(j)) - 3 and 3 - (membership(i) +
// membership(j)): exactly one direction when both selected routes pass
// through u, both zero otherwise (the activation rows force the zeros).
// One unordered pair per shared node suffices.
func emitSequencing(m *solve.Model, reg *Registry, in *Instance) {
	cat := in.Catalog
	for i := range cat.Aircraft {
		for j := i + 1; j < len(cat.Aircraft); j++ {
			for _, u := range cat.SharedNodes(i, j) {
				zij := reg.Z(i, j, u)
				zji := reg.Z(j, i, u)
				mi := reg.NodeMembership(i, u)
				mj := reg.NodeMembership(j, u)

				upper := solve.Expr{}.Plus(zij, 1).Plus(zji, 1)
				for _, t := range mi {
					upper = upper.Plus(t.Var, 1)
				}
				for _, t := range mj {
					upper = upper.Plus(t.Var, 1)
				}
				m.AddConstraint(
					fmt.Sprintf("seq_upper_%s_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, u),
					upper, solve.LE, 3)

				lower := solve.Expr{}.Plus(zij, 1).Plus(zji, 1)
				for _, t := range mi {
					lower = lower.Plus(t.Var, -2)
				}
				for _, t := range mj {
					lower = lower.Plus(t.Var, -2)
				}
				m.AddConstraint(
					fmt.Sprintf("seq_lower_%s_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, u),
					lower, solve.GE, -3)
			}
		}
	}
}

// emitConflict emits the overtaking and head-on families. Both pin the
// ordering at a segment's two endpoints to be equal whenever the gating
// memberships select conflicting traversals:
//
//	overtaking: i and j traverse (a,b) in the same direction; the follower
//	may not pass the leader mid-segment, so Z[i,j,a] = Z[i,j,b];
//	head-on: i traverses (a,b) while j traverses (b,a); one must fully
//	clear the segment before the other enters, again Z[i,j,a] = Z[i,j,b].
//
// Each equality is the pair |Z[i,j,a] - Z[i,j,b]| <= 2 - gate, vacuous
// unless both memberships are selected.
func emitConflict(m *solve.Model, reg *Registry, in *Instance) {
	cat := in.Catalog
	for i := range cat.Aircraft {
		for j := range cat.Aircraft {
			if i == j {
				continue
			}
			for _, seg := range cat.SharedEdges(i, j) {
				for _, dir := range [][2]int{{0, 1}, {1, 0}} {
					a, b := seg.From, seg.To
					if dir[0] == 1 {
						a, b = b, a
					}
					mi := reg.DirectedMembership(i, a, b)
					if len(mi) == 0 {
						continue
					}
					if mj := reg.DirectedMembership(j, a, b); len(mj) > 0 {
						emitEndpointTie(m, reg, in, "overtake", i, j, a, b, mi, mj)
					}
					if mj := reg.DirectedMembership(j, b, a); len(mj) > 0 {
						emitEndpointTie(m, reg, in, "headon", i, j, a, b, mi, mj)
					}
				}
			}
		}
	}
}

func emitEndpointTie(m *solve.Model, reg *Registry, in *Instance, kind string, i, j int, a, b model.NodeID, mi, mj solve.Expr) {
	cat := in.Catalog
	za := reg.Z(i, j, a)
	zb := reg.Z(i, j, b)

	upper := solve.Expr{}.Plus(za, 1).Plus(zb, -1)
	lower := solve.Expr{}.Plus(za, 1).Plus(zb, -1)
	for _, t := range mi {
		upper = upper.Plus(t.Var, 1)
		lower = lower.Plus(t.Var, -1)
	}
	for _, t := range mj {
		upper = upper.Plus(t.Var, 1)
		lower = lower.Plus(t.Var, -1)
	}
	name := fmt.Sprintf("%s_%s_%s_%s_%s", kind, cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, a, b)
	m.AddConstraint(name+"_upper", upper, solve.LE, 2)
	m.AddConstraint(name+"_lower", lower, solve.GE, -2)
}

// emitRelease bounds each aircraft's time at its origin below by its release
// time: push-back for departures, estimated touchdown for arrivals.
func emitRelease(m *solve.Model, reg *Registry, in *Instance) {
	for i, ar := range in.Catalog.Aircraft {
		e := solve.Expr{}.Plus(reg.T(i, ar.Aircraft.Origin), 1)
		m.AddConstraint(fmt.Sprintf("release_%s", ar.Aircraft.ID), e, solve.GE, ar.Aircraft.ReleaseSec)
	}
}

// emitSpeed bounds the transit time over every traversable footprint edge by
// the segment's speed envelope: at least length/Smax (flat out) and at most
// length/Smin (crawling), binding only when the edge is on the aircraft's
// selected route. Relaxed by M per unit of membership slack otherwise.
func emitSpeed(m *solve.Model, reg *Registry, in *Instance) {
	M := in.M.Time
	for i, ar := range in.Catalog.Aircraft {
		for _, seg := range ar.FootprintEdges {
			for _, dir := range [][2]int{{0, 1}, {1, 0}} {
				a, b := seg.From, seg.To
				if dir[0] == 1 {
					a, b = b, a
				}
				mem := reg.DirectedMembership(i, a, b)
				if len(mem) == 0 {
					continue
				}
				fast, slow, err := in.Catalog.Graph.TransitBounds(a, b)
				if err != nil {
					// Footprint edges come from the validated graph.
					panic(err)
				}
				ta := reg.T(i, a)
				tb := reg.T(i, b)

				// t[b] - t[a] <= slow + M*(1 - mem)
				upper := solve.Expr{}.Plus(tb, 1).Plus(ta, -1)
				for _, t := range mem {
					upper = upper.Plus(t.Var, M)
				}
				m.AddConstraint(fmt.Sprintf("speed_slow_%s_%s_%s", ar.Aircraft.ID, a, b),
					upper, solve.LE, slow+M)

				// t[b] - t[a] >= fast - M*(1 - mem)
				lower := solve.Expr{}.Plus(tb, 1).Plus(ta, -1)
				for _, t := range mem {
					lower = lower.Plus(t.Var, -M)
				}
				m.AddConstraint(fmt.Sprintf("speed_fast_%s_%s_%s", ar.Aircraft.ID, a, b),
					lower, solve.GE, fast-M)
			}
		}
	}
}

// emitSeparation keeps a trailing aircraft a fixed distance behind the
// leader on any co-traversed segment, via interpolated position: with
// constant speed across a segment of length L, the moment the leader is Sep
// meters past a node is a Sep/L fraction of its transit time. Binding only
// when Z orders the pair and both selected routes traverse the segment in
// the same direction (three gating indicators, M per slack unit). Pairwise
// minimum time separations are emitted at every shared node under the same
// gating.
func emitSeparation(m *solve.Model, reg *Registry, in *Instance) {
	cat := in.Catalog
	M := in.M.Separation
	sep := in.Params.SeparationM
	if sep > 0 {
		for i := range cat.Aircraft {
			for j := range cat.Aircraft {
				if i == j {
					continue
				}
				for _, seg := range cat.SharedEdges(i, j) {
					for _, dir := range [][2]int{{0, 1}, {1, 0}} {
						a, b := seg.From, seg.To
						if dir[0] == 1 {
							a, b = b, a
						}
						mi := reg.DirectedMembership(i, a, b)
						mj := reg.DirectedMembership(j, a, b)
						if len(mi) == 0 || len(mj) == 0 {
							continue
						}
						p, err := cat.Graph.Params(a, b)
						if err != nil {
							panic(err)
						}
						emitSegmentSeparation(m, reg, in, i, j, a, b, sep/p.LengthM, mi, mj, M)
					}
				}
			}
		}
	}
	for _, ps := range in.Params.PairSeparations {
		i := aircraftIndex(cat, ps.First)
		j := aircraftIndex(cat, ps.Second)
		for _, u := range cat.SharedNodes(i, j) {
			// t[j,u] >= t[i,u] + minSec - M*(3 - Z[i,j,u] - mem(i,u) - mem(j,u))
			e := solve.Expr{}.
				Plus(reg.T(j, u), 1).
				Plus(reg.T(i, u), -1).
				Plus(reg.Z(i, j, u), -M)
			for _, t := range reg.NodeMembership(i, u) {
				e = e.Plus(t.Var, -M)
			}
			for _, t := range reg.NodeMembership(j, u) {
				e = e.Plus(t.Var, -M)
			}
			m.AddConstraint(fmt.Sprintf("pairsep_%s_%s_%s", ps.First, ps.Second, u),
				e, solve.GE, ps.MinSec-3*M)
		}
	}
}

// emitSegmentSeparation emits the entry and exit inequalities for i leading
// j across (a,b). ratio is SeparationM over the segment length.
func emitSegmentSeparation(m *solve.Model, reg *Registry, in *Instance, i, j int, a, b model.NodeID, ratio float64, mi, mj solve.Expr, M float64) {
	cat := in.Catalog
	tia := reg.T(i, a)
	tib := reg.T(i, b)
	tja := reg.T(j, a)
	tjb := reg.T(j, b)
	z := reg.Z(i, j, a)

	gate := func(e solve.Expr) solve.Expr {
		e = e.Plus(z, -M)
		for _, t := range mi {
			e = e.Plus(t.Var, -M)
		}
		for _, t := range mj {
			e = e.Plus(t.Var, -M)
		}
		return e
	}

	// Entry: t[j,a] >= t[i,a] + ratio*(t[i,b] - t[i,a]) - M*(3 - gate sum)
	entry := solve.Expr{}.
		Plus(tja, 1).
		Plus(tia, -1+ratio).
		Plus(tib, -ratio)
	m.AddConstraint(
		fmt.Sprintf("sep_entry_%s_%s_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, a, b),
		gate(entry), solve.GE, -3*M)

	// Exit: t[j,b] >= t[i,b] + ratio*(t[j,b] - t[j,a]) - M*(3 - gate sum)
	exit := solve.Expr{}.
		Plus(tjb, 1-ratio).
		Plus(tja, ratio).
		Plus(tib, -1)
	m.AddConstraint(
		fmt.Sprintf("sep_exit_%s_%s_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, a, b),
		gate(exit), solve.GE, -3*M)
}

// emitRunway orders every aircraft pair that can reach a runway entry node,
// with a role-dependent minimum interval: occupancy time between same-role
// movements, crossing clearance between a departure and an arrival. The
// rho-selected direction is binding, the other is relaxed, and membership
// slack relaxes both for pairs that never touch the runway.
func emitRunway(m *solve.Model, reg *Registry, in *Instance) {
	cat := in.Catalog
	M := in.M.Runway
	for _, rw := range cat.Graph.RunwayEntries() {
		entry := rw.From
		for i := range cat.Aircraft {
			for j := i + 1; j < len(cat.Aircraft); j++ {
				if !cat.Aircraft[i].HasNode(entry) || !cat.Aircraft[j].HasNode(entry) {
					continue
				}
				emitRunwayPair(m, reg, in, entry, i, j, M)
				emitRunwayPair(m, reg, in, entry, j, i, M)
			}
		}
	}
}

// emitRunwayPair emits t[i,entry] + T(i,j) <= t[j,entry], relaxed unless
// rho[i,j] = 1 and both aircraft's selected routes reach the entry node.
func emitRunwayPair(m *solve.Model, reg *Registry, in *Instance, entry model.NodeID, i, j int, M float64) {
	cat := in.Catalog
	occ := in.OccupancySec(cat.Aircraft[i].Aircraft.Role, cat.Aircraft[j].Aircraft.Role)

	// t[i,e] - t[j,e] + M*rho[i,j] + M*mem(i,e) + M*mem(j,e) <= 3M - occ
	e := solve.Expr{}.
		Plus(reg.T(i, entry), 1).
		Plus(reg.T(j, entry), -1).
		Plus(reg.Rho(i, j), M)
	for _, t := range reg.NodeMembership(i, entry) {
		e = e.Plus(t.Var, M)
	}
	for _, t := range reg.NodeMembership(j, entry) {
		e = e.Plus(t.Var, M)
	}
	m.AddConstraint(
		fmt.Sprintf("runway_%s_%s_%s", cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, entry),
		e, solve.LE, 3*M-occ)
}

// emitCapacity caps how long an arrival may hold a runway-exit segment: its
// time at the exit node may not exceed touchdown plus the configured exit
// occupancy, preventing crossing-queue buildup. Skipped when no exit
// occupancy is configured.
func emitCapacity(m *solve.Model, reg *Registry, in *Instance) {
	if in.Params.ExitOccupancySec <= 0 {
		return
	}
	cat := in.Catalog
	M := in.M.Time
	for i, ar := range cat.Aircraft {
		if ar.Aircraft.Role != roleArrival {
			continue
		}
		for _, seg := range ar.FootprintEdges {
			if !cat.Graph.IsExit(seg.From, seg.To) {
				continue
			}
			exit := seg.To
			mem := reg.NodeMembership(i, exit)
			// t[i,exit] <= release + exitOccupancy + M*(1 - mem)
			e := solve.Expr{}.Plus(reg.T(i, exit), 1)
			for _, t := range mem {
				e = e.Plus(t.Var, M)
			}
			m.AddConstraint(fmt.Sprintf("capacity_%s_%s", ar.Aircraft.ID, exit),
				e, solve.LE, ar.Aircraft.ReleaseSec+in.Params.ExitOccupancySec+M)
		}
	}
}

func aircraftIndex(cat *airport.Catalog, id string) int {
	for i, ar := range cat.Aircraft {
		if ar.Aircraft.ID == id {
			return i
		}
	}
	panic(fmt.Sprintf("milp: unknown aircraft %q", id))
}
