package milp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxinav/internal/airport"
	"taxinav/internal/model"
	"taxinav/internal/solve"
)

// singleEdge is the smallest useful network: one 150 m segment with the
// 5..15 m/s envelope, so the legal transit interval is [10, 30] seconds.
func singleEdge() model.ScenarioIn {
	return model.ScenarioIn{
		Nodes: []model.NodeID{"1", "2"},
		Edges: []model.EdgeIn{
			{From: "1", To: "2", LengthM: 150, SpeedMin: 5, SpeedMax: 15},
		},
	}
}

func lineDiagonal() model.ScenarioIn {
	return model.ScenarioIn{
		Nodes: []model.NodeID{"1", "2", "3", "4", "5"},
		Edges: []model.EdgeIn{
			{From: "1", To: "2", LengthM: 100, SpeedMin: 5, SpeedMax: 15},
			{From: "2", To: "3", LengthM: 150, SpeedMin: 5, SpeedMax: 15},
			{From: "3", To: "5", LengthM: 250, SpeedMin: 5, SpeedMax: 15},
			{From: "1", To: "4", LengthM: 120, SpeedMin: 5, SpeedMax: 15},
			{From: "4", To: "3", LengthM: 200, SpeedMin: 5, SpeedMax: 15},
		},
	}
}

func mustCatalog(t *testing.T, in model.ScenarioIn, fleet []model.AircraftIn) *airport.Catalog {
	t.Helper()
	g, err := airport.NewGraph(in)
	require.NoError(t, err)
	cat, err := airport.BuildCatalog(g, fleet, 0)
	require.NoError(t, err)
	return cat
}

// familyModel builds a model holding only the named constraint family, so a
// family's semantics are checkable in isolation (families are independent by
// contract).
func familyModel(t *testing.T, cat *airport.Catalog, p model.Params, family string) (*solve.Model, *Registry, *Instance) {
	t.Helper()
	in, err := NewInstance(cat, p)
	require.NoError(t, err)
	m := &solve.Model{}
	reg := Allocate(m, in)
	for _, f := range Families() {
		if f.Name == family {
			f.Emit(m, reg, in)
			return m, reg, in
		}
	}
	t.Fatalf("no family %q", family)
	return nil, nil, nil
}

func TestRouteSelectionInvariant(t *testing.T) {
	cat := mustCatalog(t, lineDiagonal(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 10},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "2", Destination: "5", ReleaseSec: 15},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "domain")

	// Every aircraft has exactly one route_selection row, and its
	// coefficients cover each candidate route exactly once.
	var rows []solve.Constraint
	for _, c := range m.Constraints() {
		if c.Sense == solve.EQ && c.RHS == 1 && len(c.Expr) == len(cat.Aircraft[0].Routes) {
			rows = append(rows, c)
		}
	}
	require.GreaterOrEqual(t, len(rows), 1)

	x := make([]float64, m.NumVars())
	x[reg.Rho(0, 1)] = 1 // domain also pins rho[i,j] + rho[j,i] = 1

	// Selecting exactly one route per aircraft satisfies the family.
	x[reg.Gamma(0, 0)] = 1
	x[reg.Gamma(1, 0)] = 1
	assert.Empty(t, m.Violations(x))

	// Selecting two routes for AC1 violates it.
	x[reg.Gamma(0, 1)] = 1
	assert.Contains(t, m.Violations(x), "route_selection_AC1")

	// Selecting none violates it too.
	x[reg.Gamma(0, 0)] = 0
	x[reg.Gamma(0, 1)] = 0
	assert.Contains(t, m.Violations(x), "route_selection_AC1")
}

func TestZActivationRequiresBothMemberships(t *testing.T) {
	cat := mustCatalog(t, lineDiagonal(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 10},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "2", Destination: "5", ReleaseSec: 15},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "domain")

	x := make([]float64, m.NumVars())
	x[reg.Rho(0, 1)] = 1
	x[reg.Gamma(0, 1)] = 1 // AC1 takes 1-4-3-5, which avoids node 2
	x[reg.Gamma(1, 1)] = 1 // AC2 takes 2-3-5

	// Node 2 is not on AC1's selected route, so Z[AC1,AC2,2] may not be 1.
	x[reg.Z(0, 1, "2")] = 1
	assert.Contains(t, m.Violations(x), "z_active_first_AC1_AC2_2")

	// Node 3 is on both selected routes; ordering there is allowed.
	x[reg.Z(0, 1, "2")] = 0
	x[reg.Z(0, 1, "3")] = 1
	assert.Empty(t, m.Violations(x))
}

func TestSequencingExactlyOneWhenShared(t *testing.T) {
	cat := mustCatalog(t, lineDiagonal(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 10},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "2", Destination: "5", ReleaseSec: 15},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "sequencing")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1 // 1-2-3-5
	x[reg.Gamma(1, 1)] = 1 // 2-3-5, sharing nodes 2, 3 and 5

	// Both selected routes pass node 3: leaving the pair unordered violates
	// the lower pinch.
	assert.Contains(t, m.Violations(x), "seq_lower_AC1_AC2_3")

	// Exactly one direction at every shared visited node satisfies it.
	for _, u := range []model.NodeID{"2", "3", "5"} {
		x[reg.Z(0, 1, u)] = 1
	}
	assert.Empty(t, m.Violations(x))

	// Both directions at once violates the upper pinch.
	x[reg.Z(1, 0, "3")] = 1
	assert.Contains(t, m.Violations(x), "seq_upper_AC1_AC2_3")
}

func TestSequencingRelaxedWhenNotShared(t *testing.T) {
	cat := mustCatalog(t, lineDiagonal(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 10},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "2", Destination: "5", ReleaseSec: 15},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "sequencing")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 1)] = 1 // 1-4-3-5 avoids node 2
	x[reg.Gamma(1, 1)] = 1 // 2-3-5 visits node 2

	// Node 2 is in both footprints but only one selected route: the pinch is
	// slack with both Z at zero, ordering at 3 and 5 still required.
	viol := m.Violations(x)
	assert.NotContains(t, viol, "seq_lower_AC1_AC2_2")
	assert.Contains(t, viol, "seq_lower_AC1_AC2_3")
	assert.Contains(t, viol, "seq_lower_AC1_AC2_5")
}

func TestOvertakingTiesOrderingAcrossEdge(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 5},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "conflict")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.Gamma(1, 0)] = 1

	// AC1 enters first but exits second: overtaking, forbidden.
	x[reg.Z(0, 1, "1")] = 1
	x[reg.Z(1, 0, "2")] = 1
	assert.Contains(t, m.Violations(x), "overtake_AC1_AC2_1_2_upper")

	// Same order at both endpoints is fine.
	x[reg.Z(1, 0, "2")] = 0
	x[reg.Z(0, 1, "2")] = 1
	assert.Empty(t, m.Violations(x))
}

func TestHeadOnTiesOrderingAcrossEdge(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
		{ID: "AC2", Role: model.RoleArrival, Origin: "2", Destination: "1", ReleaseSec: 0},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "conflict")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1 // 1 -> 2
	x[reg.Gamma(1, 0)] = 1 // 2 -> 1

	// Opposite traversals may not swap order mid-segment: i first at one
	// endpoint, j first at the other is a head-on conflict.
	x[reg.Z(0, 1, "1")] = 1
	x[reg.Z(1, 0, "2")] = 1
	viol := m.Violations(x)
	assert.NotEmpty(t, viol)

	// AC1 fully clears before AC2 enters: consistent order, allowed.
	x[reg.Z(1, 0, "2")] = 0
	x[reg.Z(0, 1, "2")] = 1
	assert.Empty(t, m.Violations(x))
}

func TestReleaseBoundsOriginTime(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 10},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "release")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.T(0, "1")] = 9.9
	assert.Contains(t, m.Violations(x), "release_AC1")

	x[reg.T(0, "1")] = 10
	assert.Empty(t, m.Violations(x))
}

func TestSpeedTransitInterval(t *testing.T) {
	// 150 m at 5..15 m/s: transit must land in [10, 30] when the edge is on
	// the selected route.
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "speed")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1

	x[reg.T(0, "1")] = 0
	x[reg.T(0, "2")] = 10
	assert.Empty(t, m.Violations(x))
	x[reg.T(0, "2")] = 30
	assert.Empty(t, m.Violations(x))

	x[reg.T(0, "2")] = 9.5
	assert.Contains(t, m.Violations(x), "speed_fast_AC1_1_2")
	x[reg.T(0, "2")] = 30.5
	assert.Contains(t, m.Violations(x), "speed_slow_AC1_1_2")
}

func TestSpeedRelaxedOffRoute(t *testing.T) {
	cat := mustCatalog(t, lineDiagonal(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 0},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "speed")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 1)] = 1 // 1-4-3-5
	// Node 2 is footprint-only: an arbitrary in-horizon time there violates
	// nothing.
	x[reg.T(0, "1")] = 0
	x[reg.T(0, "4")] = 120.0 / 15
	x[reg.T(0, "3")] = x[reg.T(0, "4")] + 200.0/15
	x[reg.T(0, "5")] = x[reg.T(0, "3")] + 250.0/15
	x[reg.T(0, "2")] = 150
	assert.Empty(t, m.Violations(x))
}

func TestSeparationInterpolatedTrail(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "separation")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.Gamma(1, 0)] = 1
	x[reg.Z(0, 1, "1")] = 1 // AC1 leads at the entry node

	// AC1 crosses in 30 s; 5 m of 150 m is 1 s of its transit, so AC2 may
	// enter no earlier than t=1.
	x[reg.T(0, "1")] = 0
	x[reg.T(0, "2")] = 30
	x[reg.T(1, "1")] = 0.5
	x[reg.T(1, "2")] = 30.5
	assert.Contains(t, m.Violations(x), "sep_entry_AC1_AC2_1_2")

	x[reg.T(1, "1")] = 1
	x[reg.T(1, "2")] = 31
	assert.Empty(t, m.Violations(x))

	// Exit side: AC2 covering the last 5 m of its own transit takes
	// (5/150) * 30 = 1 s, so exiting at 30.5 trails AC1's exit by less than
	// that and violates.
	x[reg.T(1, "1")] = 1
	x[reg.T(1, "2")] = 30.5
	assert.Contains(t, m.Violations(x), "sep_exit_AC1_AC2_1_2")
}

func TestSeparationRelaxedWithoutOrdering(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	m, reg, _ := familyModel(t, cat, model.Params{SeparationM: 5}, "separation")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.Gamma(1, 0)] = 1
	// No Z set in this family-only model: every separation row is relaxed,
	// whatever the times say.
	x[reg.T(0, "1")] = 0
	x[reg.T(0, "2")] = 30
	x[reg.T(1, "1")] = 0
	x[reg.T(1, "2")] = 30
	assert.Empty(t, m.Violations(x))
}

func TestPairSeparationOverride(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	p := model.Params{PairSeparations: []model.PairSeparation{
		{First: "AC1", Second: "AC2", MinSec: 30},
	}}
	m, reg, _ := familyModel(t, cat, p, "separation")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.Gamma(1, 0)] = 1
	x[reg.Z(0, 1, "1")] = 1

	x[reg.T(0, "1")] = 0
	x[reg.T(1, "1")] = 29
	assert.Contains(t, m.Violations(x), "pairsep_AC1_AC2_1")

	x[reg.T(1, "1")] = 30
	viol := m.Violations(x)
	assert.NotContains(t, viol, "pairsep_AC1_AC2_1")
}

func TestRunwayOccupancyOrdersSharedRunway(t *testing.T) {
	in := singleEdge()
	in.RunwayEdges = []model.EdgeRef{{From: "1", To: "2"}}
	cat := mustCatalog(t, in, []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	p := model.Params{SeparationM: 5, RunwayOccupancySec: 60}
	m, reg, _ := familyModel(t, cat, p, "runway")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.Gamma(1, 0)] = 1
	x[reg.Rho(0, 1)] = 1

	x[reg.T(0, "1")] = 0
	x[reg.T(1, "1")] = 59
	assert.Contains(t, m.Violations(x), "runway_AC1_AC2_1")

	x[reg.T(1, "1")] = 60
	assert.Empty(t, m.Violations(x))
}

func TestRunwayCrossingClearanceForMixedRoles(t *testing.T) {
	in := singleEdge()
	in.RunwayEdges = []model.EdgeRef{{From: "1", To: "2"}}
	cat := mustCatalog(t, in, []model.AircraftIn{
		{ID: "DEP", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
		{ID: "ARR", Role: model.RoleArrival, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	p := model.Params{SeparationM: 5, RunwayOccupancySec: 60, CrossingClearanceSec: 20}
	m, reg, _ := familyModel(t, cat, p, "runway")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.Gamma(1, 0)] = 1
	x[reg.Rho(0, 1)] = 1

	// Mixed roles need only the crossing clearance, not full occupancy.
	x[reg.T(0, "1")] = 0
	x[reg.T(1, "1")] = 20
	assert.Empty(t, m.Violations(x))

	x[reg.T(1, "1")] = 19
	assert.Contains(t, m.Violations(x), "runway_DEP_ARR_1")
}

func TestCapacityBoundsExitDwell(t *testing.T) {
	in := singleEdge()
	in.ExitEdges = []model.EdgeRef{{From: "1", To: "2"}}
	cat := mustCatalog(t, in, []model.AircraftIn{
		{ID: "ARR", Role: model.RoleArrival, Origin: "1", Destination: "2", ReleaseSec: 30},
	})
	p := model.Params{SeparationM: 5, ExitOccupancySec: 45}
	m, reg, _ := familyModel(t, cat, p, "capacity")

	x := make([]float64, m.NumVars())
	x[reg.Gamma(0, 0)] = 1
	x[reg.T(0, "2")] = 75
	assert.Empty(t, m.Violations(x))

	x[reg.T(0, "2")] = 76
	assert.Contains(t, m.Violations(x), "capacity_ARR_2")
}

func TestRegistryPanicsOnUnallocatedIndex(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	in, err := NewInstance(cat, model.Params{SeparationM: 5})
	require.NoError(t, err)
	m := &solve.Model{}
	reg := Allocate(m, in)

	assert.Panics(t, func() { reg.Gamma(0, 99) })
	assert.Panics(t, func() { reg.T(0, "nope") })
	assert.Panics(t, func() { reg.Z(0, 0, "1") })
}

func TestNewInstanceValidatesPairSeparations(t *testing.T) {
	cat := mustCatalog(t, singleEdge(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "2", ReleaseSec: 0},
	})
	_, err := NewInstance(cat, model.Params{
		PairSeparations: []model.PairSeparation{{First: "AC1", Second: "ghost", MinSec: 10}},
	})
	assert.Error(t, err)

	_, err = NewInstance(cat, model.Params{
		PairSeparations: []model.PairSeparation{{First: "AC1", Second: "AC1", MinSec: 10}},
	})
	assert.Error(t, err)
}

func TestBuildModelIdempotent(t *testing.T) {
	fleet := []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 10},
		{ID: "AC2", Role: model.RoleDeparture, Origin: "2", Destination: "5", ReleaseSec: 15},
	}
	p := model.Params{SeparationM: 5, RunwayOccupancySec: 60}

	a, err := BuildModel(mustCatalog(t, lineDiagonal(), fleet), p)
	require.NoError(t, err)
	b, err := BuildModel(mustCatalog(t, lineDiagonal(), fleet), p)
	require.NoError(t, err)

	assert.Equal(t, a.Model.NumVars(), b.Model.NumVars())
	assert.Equal(t, a.Model.NumConstraints(), b.Model.NumConstraints())
	assert.Equal(t, a.Model.Fingerprint(), b.Model.Fingerprint())
}

func TestBigMDerivedFromHorizon(t *testing.T) {
	cat := mustCatalog(t, lineDiagonal(), []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 10},
	})
	in, err := NewInstance(cat, model.Params{SeparationM: 5, RunwayOccupancySec: 60})
	require.NoError(t, err)

	assert.Greater(t, in.Horizon, 10.0)
	assert.Greater(t, in.M.Time, in.Horizon)
	assert.GreaterOrEqual(t, in.M.Separation, in.Horizon)
	assert.Greater(t, in.M.Runway, in.Horizon)

	// An explicit horizon wins over derivation.
	in2, err := NewInstance(cat, model.Params{SeparationM: 5, HorizonSec: 5000})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, in2.Horizon)
}

func TestMakespanStage(t *testing.T) {
	fleet := []model.AircraftIn{
		{ID: "AC1", Role: model.RoleDeparture, Origin: "1", Destination: "5", ReleaseSec: 10},
		{ID: "ARR", Role: model.RoleArrival, Origin: "2", Destination: "5", ReleaseSec: 30},
	}
	b, err := BuildModel(mustCatalog(t, lineDiagonal(), fleet), model.Params{SeparationM: 5})
	require.NoError(t, err)

	before := b.Model.NumConstraints()
	s := AddMakespanStage(b.Model, b.Registry, b.Instance, 123.0)

	// One makespan row per departure (the arrival adds none) plus the
	// stage-one pin.
	assert.Equal(t, before+2, b.Model.NumConstraints())
	assert.Equal(t, solve.Expr{{Var: s, Coef: 1}}, b.Model.Objective())

	names := make(map[string]bool)
	for _, c := range b.Model.Constraints() {
		names[c.Name] = true
	}
	assert.True(t, names["makespan_AC1"])
	assert.False(t, names["makespan_ARR"])
	assert.True(t, names["stage_one_pin"])
}
