package api

import (
	"fmt"
	"strings"

	"taxinav/internal/airport"
	"taxinav/internal/model"
	"taxinav/internal/webhooks"
)

func validateScenario(in *model.ScenarioIn) error {
	if len(in.Nodes) == 0 {
		return fmt.Errorf("nodes must not be empty")
	}
	if len(in.Fleet) == 0 {
		return fmt.Errorf("fleet must not be empty")
	}
	// Graph-level checks (duplicate nodes/edges, lengths, speed envelopes,
	// designations) live in the graph constructor.
	g, err := airport.NewGraph(*in)
	if err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, ac := range in.Fleet {
		if ac.ID == "" {
			return fmt.Errorf("aircraft id must not be empty")
		}
		if _, dup := seen[ac.ID]; dup {
			return fmt.Errorf("duplicate aircraft id: %s", ac.ID)
		}
		seen[ac.ID] = struct{}{}
		if ac.Role != model.RoleDeparture && ac.Role != model.RoleArrival {
			return fmt.Errorf("aircraft %s: invalid role %q (allowed: departure,arrival)", ac.ID, ac.Role)
		}
		if !g.HasNode(ac.Origin) {
			return fmt.Errorf("aircraft %s: unknown origin %s", ac.ID, ac.Origin)
		}
		if !g.HasNode(ac.Destination) {
			return fmt.Errorf("aircraft %s: unknown destination %s", ac.ID, ac.Destination)
		}
		if ac.ReleaseSec < 0 {
			return fmt.Errorf("aircraft %s: releaseSec must be >= 0", ac.ID)
		}
	}
	if in.Params.SeparationM < 0 {
		return fmt.Errorf("separationM must be >= 0")
	}
	for _, ps := range in.Params.PairSeparations {
		if _, ok := seen[ps.First]; !ok {
			return fmt.Errorf("pair separation references unknown aircraft: %s", ps.First)
		}
		if _, ok := seen[ps.Second]; !ok {
			return fmt.Errorf("pair separation references unknown aircraft: %s", ps.Second)
		}
		if ps.First == ps.Second {
			return fmt.Errorf("pair separation must name two distinct aircraft")
		}
		if ps.MinSec < 0 {
			return fmt.Errorf("pair separation minSec must be >= 0")
		}
	}
	return nil
}

func validatePlanRequest(req *model.PlanRequest) error {
	if strings.TrimSpace(req.ScenarioID) == "" {
		return fmt.Errorf("scenarioId is required")
	}
	if req.Options.RouteLimit < 0 {
		return fmt.Errorf("routeLimit must be >= 0")
	}
	return nil
}

func validateSubscription(req *model.SubscriptionRequest) error {
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return fmt.Errorf("url must be http(s)")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	allowed := map[string]struct{}{
		webhooks.EventPlanCompleted:  {},
		webhooks.EventPlanInfeasible: {},
		webhooks.EventPlanUnbounded:  {},
		webhooks.EventPlanFailed:     {},
	}
	for _, e := range req.Events {
		if _, ok := allowed[e]; !ok {
			return fmt.Errorf("unknown event type: %s", e)
		}
	}
	return nil
}
