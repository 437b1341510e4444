package model

// Core domain types shared across the service.

// NodeID identifies a point in the taxiway/runway network: an intersection,
// a gate, or a runway entry/exit point.
type NodeID string

// Aircraft roles.
const (
	RoleDeparture = "departure"
	RoleArrival   = "arrival"
)

// EdgeIn is a directed taxiway segment as submitted by clients. Length and
// speed parameters are keyed by the undirected node pair, so a bidirectional
// segment needs its physical attributes on only one of the two directions.
type EdgeIn struct {
	From     NodeID  `json:"from" yaml:"from"`
	To       NodeID  `json:"to" yaml:"to"`
	LengthM  float64 `json:"lengthM,omitempty" yaml:"lengthM,omitempty"`
	SpeedMin float64 `json:"speedMin,omitempty" yaml:"speedMin,omitempty"`
	SpeedMax float64 `json:"speedMax,omitempty" yaml:"speedMax,omitempty"`
}

// EdgeRef names a directed edge, used for runway and exit designations.
type EdgeRef struct {
	From NodeID `json:"from" yaml:"from"`
	To   NodeID `json:"to" yaml:"to"`
}

// AircraftIn describes one aircraft of a scenario's fleet. ReleaseSec is the
// push-back time for departures and the estimated touchdown time for
// arrivals, in seconds from the scenario epoch.
type AircraftIn struct {
	ID          string  `json:"id" yaml:"id"`
	Role        string  `json:"role" yaml:"role"`
	Origin      NodeID  `json:"origin" yaml:"origin"`
	Destination NodeID  `json:"destination" yaml:"destination"`
	ReleaseSec  float64 `json:"releaseSec" yaml:"releaseSec"`
}

// PairSeparation overrides the minimum time separation between a specific
// ordered pair of aircraft, in seconds.
type PairSeparation struct {
	First  string  `json:"first" yaml:"first"`
	Second string  `json:"second" yaml:"second"`
	MinSec float64 `json:"minSec" yaml:"minSec"`
}

// Params carries the physical parameters of a scenario.
type Params struct {
	SeparationM          float64          `json:"separationM" yaml:"separationM"`
	RunwayOccupancySec   float64          `json:"runwayOccupancySec,omitempty" yaml:"runwayOccupancySec,omitempty"`
	CrossingClearanceSec float64          `json:"crossingClearanceSec,omitempty" yaml:"crossingClearanceSec,omitempty"`
	ExitOccupancySec     float64          `json:"exitOccupancySec,omitempty" yaml:"exitOccupancySec,omitempty"`
	PairSeparations      []PairSeparation `json:"pairSeparations,omitempty" yaml:"pairSeparations,omitempty"`
	HorizonSec           float64          `json:"horizonSec,omitempty" yaml:"horizonSec,omitempty"`
}

// ScenarioIn is the client-submitted scenario payload.
type ScenarioIn struct {
	Name        string       `json:"name" yaml:"name"`
	Nodes       []NodeID     `json:"nodes" yaml:"nodes"`
	Edges       []EdgeIn     `json:"edges" yaml:"edges"`
	RunwayEdges []EdgeRef    `json:"runwayEdges,omitempty" yaml:"runwayEdges,omitempty"`
	ExitEdges   []EdgeRef    `json:"exitEdges,omitempty" yaml:"exitEdges,omitempty"`
	Fleet       []AircraftIn `json:"fleet" yaml:"fleet"`
	Params      Params       `json:"params" yaml:"params"`
}

// Scenario is a stored scenario.
type Scenario struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	CreatedAt string `json:"createdAt,omitempty"`
	ScenarioIn
}

// PlanOptions tune a single plan run.
type PlanOptions struct {
	// SecondStage enables the lexicographic makespan refinement after the
	// total-completion-time stage.
	SecondStage bool `json:"secondStage,omitempty"`
	// RouteLimit caps candidate routes per aircraft (0 = unlimited).
	RouteLimit int `json:"routeLimit,omitempty"`
}

// PlanRequest asks for a plan of a stored scenario.
type PlanRequest struct {
	TenantID   string      `json:"tenantId,omitempty"`
	ScenarioID string      `json:"scenarioId"`
	Options    PlanOptions `json:"options,omitempty"`
}

// Plan terminal statuses mirror the solver's terminal statuses, plus "error"
// for configuration failures detected before any model was built.
const (
	PlanOptimal    = "optimal"
	PlanInfeasible = "infeasible"
	PlanUnbounded  = "unbounded"
	PlanError      = "error"
)

// NodeTime is one entry of an aircraft's schedule: the time it reaches a node
// on its selected route.
type NodeTime struct {
	Node NodeID  `json:"node"`
	Sec  float64 `json:"sec"`
}

// AircraftSchedule is the per-aircraft result of an optimal plan.
type AircraftSchedule struct {
	AircraftID    string     `json:"aircraftId"`
	Role          string     `json:"role"`
	RouteIndex    int        `json:"routeIndex"`
	Route         []NodeID   `json:"route"`
	Times         []NodeTime `json:"times"`
	CompletionSec float64    `json:"completionSec"`
}

// PlanStats records model size and timing for a plan run.
type PlanStats struct {
	RouteCount  int   `json:"routeCount"`
	Variables   int   `json:"variables"`
	Constraints int   `json:"constraints"`
	BuildMs     int64 `json:"buildMs"`
	SolveMs     int64 `json:"solveMs"`
	Stages      int   `json:"stages"`
}

// Plan is a stored plan run.
type Plan struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenantId"`
	ScenarioID  string             `json:"scenarioId"`
	Status      string             `json:"status"`
	Objective   float64            `json:"objective,omitempty"`
	MakespanSec float64            `json:"makespanSec,omitempty"`
	Schedules   []AircraftSchedule `json:"schedules,omitempty"`
	Stats       PlanStats          `json:"stats"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   string             `json:"createdAt,omitempty"`
}

// SubscriptionRequest registers a webhook endpoint for plan events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

// Subscription is a stored webhook subscription.
type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
