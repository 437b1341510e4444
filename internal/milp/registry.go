package milp

import (
	"fmt"

	"taxinav/internal/model"
	"taxinav/internal/solve"
)

type gammaKey struct {
	aircraft int
	route    int
}

type zKey struct {
	i, j int
	node model.NodeID
}

type pairKey struct {
	i, j int
}

type timeKey struct {
	aircraft int
	node     model.NodeID
}

// Registry allocates the four decision-variable families over the minimal
// index sets implied by the catalog footprints and is the single source of
// truth for variable handles. Constraint families never fabricate an index:
// looking up a handle the registry did not allocate is a programming error
// and panics.
type Registry struct {
	in *Instance

	gamma map[gammaKey]solve.Var
	z     map[zKey]solve.Var
	rho   map[pairKey]solve.Var
	t     map[timeKey]solve.Var
}

// Allocate creates every decision variable in the model. Gamma is indexed by
// (aircraft, route); Z by (i, j, shared footprint node), i != j; rho by all
// ordered aircraft pairs; t by (aircraft, footprint node) with bounds
// [0, horizon]. Binaries get their 0/1 bounds here, so no explicit bound
// rows are needed.
func Allocate(m *solve.Model, in *Instance) *Registry {
	reg := &Registry{
		in:    in,
		gamma: map[gammaKey]solve.Var{},
		z:     map[zKey]solve.Var{},
		rho:   map[pairKey]solve.Var{},
		t:     map[timeKey]solve.Var{},
	}
	cat := in.Catalog
	for i, ar := range cat.Aircraft {
		id := ar.Aircraft.ID
		for r := range ar.Routes {
			reg.gamma[gammaKey{i, r}] = m.AddBinary(fmt.Sprintf("Gamma[%s,%d]", id, r))
		}
	}
	for i := range cat.Aircraft {
		for j := range cat.Aircraft {
			if i == j {
				continue
			}
			for _, u := range cat.SharedNodes(i, j) {
				reg.z[zKey{i, j, u}] = m.AddBinary(fmt.Sprintf("Z[%s,%s,%s]",
					cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID, u))
			}
			reg.rho[pairKey{i, j}] = m.AddBinary(fmt.Sprintf("rho[%s,%s]",
				cat.Aircraft[i].Aircraft.ID, cat.Aircraft[j].Aircraft.ID))
		}
	}
	for i, ar := range cat.Aircraft {
		for _, u := range ar.FootprintNodes {
			reg.t[timeKey{i, u}] = m.AddContinuous(
				fmt.Sprintf("t[%s,%s]", ar.Aircraft.ID, u), 0, in.Horizon)
		}
	}
	return reg
}

// Gamma returns the route-selection variable of aircraft i's route r.
func (reg *Registry) Gamma(i, r int) solve.Var {
	v, ok := reg.gamma[gammaKey{i, r}]
	if !ok {
		panic(fmt.Sprintf("milp: Gamma[%d,%d] not allocated", i, r))
	}
	return v
}

// Z returns the sequencing variable of aircraft i before j at node u.
func (reg *Registry) Z(i, j int, u model.NodeID) solve.Var {
	v, ok := reg.z[zKey{i, j, u}]
	if !ok {
		panic(fmt.Sprintf("milp: Z[%d,%d,%s] not allocated", i, j, u))
	}
	return v
}

// HasZ reports whether u is a shared footprint node of i and j.
func (reg *Registry) HasZ(i, j int, u model.NodeID) bool {
	_, ok := reg.z[zKey{i, j, u}]
	return ok
}

// Rho returns the runway-sequencing variable of aircraft i before j.
func (reg *Registry) Rho(i, j int) solve.Var {
	v, ok := reg.rho[pairKey{i, j}]
	if !ok {
		panic(fmt.Sprintf("milp: rho[%d,%d] not allocated", i, j))
	}
	return v
}

// T returns the node-time variable of aircraft i at footprint node u.
func (reg *Registry) T(i int, u model.NodeID) solve.Var {
	v, ok := reg.t[timeKey{i, u}]
	if !ok {
		panic(fmt.Sprintf("milp: t[%d,%s] not allocated", i, u))
	}
	return v
}

// HasT reports whether u is in aircraft i's footprint.
func (reg *Registry) HasT(i int, u model.NodeID) bool {
	_, ok := reg.t[timeKey{i, u}]
	return ok
}

// NodeMembership returns the indicator sum over aircraft i's routes through
// node u: 1 exactly when i's selected route visits u. Empty when no route
// does.
func (reg *Registry) NodeMembership(i int, u model.NodeID) solve.Expr {
	var e solve.Expr
	for _, r := range reg.in.Catalog.Aircraft[i].RoutesThroughNode(u) {
		e = e.Plus(reg.Gamma(i, r), 1)
	}
	return e
}

// DirectedMembership returns the indicator sum over aircraft i's routes that
// traverse the edge from u to v in that direction.
func (reg *Registry) DirectedMembership(i int, u, v model.NodeID) solve.Expr {
	var e solve.Expr
	for _, r := range reg.in.Catalog.Aircraft[i].RoutesTraversingDirected(u, v) {
		e = e.Plus(reg.Gamma(i, r), 1)
	}
	return e
}

// AddMakespan allocates the stage-two bounding variable S.
func (reg *Registry) AddMakespan(m *solve.Model) solve.Var {
	return m.AddContinuous("S", 0, reg.in.Horizon)
}
