// Package milp translates a scenario's route catalog and physical parameters
// into a mixed-integer linear program: sparse variable allocation, the
// constraint families, and the two-stage objective. Everything it emits goes
// through the solve facade; no solver types leak in here.
package milp

import (
	"fmt"

	"taxinav/internal/airport"
	"taxinav/internal/model"
)

// BigM holds the relaxation constants, one per concern, derived from the
// instance horizon rather than a shared oversized global. A constraint gated
// by k slack units uses k*M, so each value only has to dominate the gated
// expression's magnitude once.
type BigM struct {
	// Time dominates any difference of two node times plus one segment
	// transit time.
	Time float64
	// Separation dominates the interpolated-position expressions, which
	// scale a time difference by separation distance over segment length.
	Separation float64
	// Runway dominates a time difference plus the largest occupancy or
	// clearance interval.
	Runway float64
}

// Instance bundles the catalog with the scenario parameters and the derived
// horizon and relaxation constants. It is read-only during emission.
type Instance struct {
	Catalog *airport.Catalog
	Params  model.Params

	// Horizon is an upper bound on any node time in a schedule worth
	// considering; it doubles as the upper bound of every time variable.
	Horizon float64
	M       BigM
}

// NewInstance validates the parameters against the catalog and derives the
// horizon and big-M constants. Unknown aircraft in pairwise separation
// overrides are configuration errors.
func NewInstance(cat *airport.Catalog, p model.Params) (*Instance, error) {
	if p.SeparationM < 0 {
		return nil, fmt.Errorf("separationM must be >= 0")
	}
	ids := map[string]bool{}
	for _, ar := range cat.Aircraft {
		ids[ar.Aircraft.ID] = true
	}
	for _, ps := range p.PairSeparations {
		if !ids[ps.First] {
			return nil, fmt.Errorf("pair separation references unknown aircraft %q", ps.First)
		}
		if !ids[ps.Second] {
			return nil, fmt.Errorf("pair separation references unknown aircraft %q", ps.Second)
		}
		if ps.First == ps.Second {
			return nil, fmt.Errorf("pair separation pairs aircraft %q with itself", ps.First)
		}
		if ps.MinSec < 0 {
			return nil, fmt.Errorf("pair separation (%s,%s): minSec must be >= 0", ps.First, ps.Second)
		}
	}

	in := &Instance{Catalog: cat, Params: p}
	if err := in.derive(); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Instance) derive() error {
	var (
		maxRelease  float64
		sumSlack    float64
		maxSlow     float64 // slowest single-segment transit anywhere in a footprint
		maxSepRatio float64 // largest Sep/length over footprint segments
	)
	maxPairSep := 0.0
	for _, ps := range in.Params.PairSeparations {
		if ps.MinSec > maxPairSep {
			maxPairSep = ps.MinSec
		}
	}
	occupancy := in.Params.RunwayOccupancySec
	if in.Params.CrossingClearanceSec > occupancy {
		occupancy = in.Params.CrossingClearanceSec
	}

	for _, ar := range in.Catalog.Aircraft {
		if ar.Aircraft.ReleaseSec > maxRelease {
			maxRelease = ar.Aircraft.ReleaseSec
		}
		worst := 0.0
		for _, rt := range ar.Routes {
			total := 0.0
			for _, e := range rt.Edges {
				_, slow, err := in.Catalog.Graph.TransitBounds(e.From, e.To)
				if err != nil {
					return err
				}
				total += slow
				if slow > maxSlow {
					maxSlow = slow
				}
			}
			if total > worst {
				worst = total
			}
		}
		for _, e := range ar.FootprintEdges {
			p, err := in.Catalog.Graph.Params(e.From, e.To)
			if err != nil {
				return err
			}
			if r := in.Params.SeparationM / p.LengthM; r > maxSepRatio {
				maxSepRatio = r
			}
		}
		// One aircraft's worst-case contribution to a sequential schedule:
		// its slowest route plus every hold another aircraft can impose.
		sumSlack += worst + occupancy + maxPairSep + maxSlow
	}

	in.Horizon = in.Params.HorizonSec
	if in.Horizon <= 0 {
		in.Horizon = maxRelease + sumSlack + in.Params.ExitOccupancySec
	}
	if in.Horizon <= 0 {
		in.Horizon = 1
	}
	in.M = BigM{
		Time:       in.Horizon + maxSlow,
		Separation: in.Horizon * (1 + maxSepRatio),
		Runway:     in.Horizon + occupancy,
	}
	return nil
}

// OccupancySec returns the minimum interval between two aircraft using the
// same runway resource, by role pairing: same-role sequencing uses the
// runway occupancy time, mixed pairs use the crossing clearance time.
func (in *Instance) OccupancySec(roleFirst, roleSecond string) float64 {
	if roleFirst == roleSecond {
		return in.Params.RunwayOccupancySec
	}
	return in.Params.CrossingClearanceSec
}
