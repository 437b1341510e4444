// Package airport models the taxiway/runway network and enumerates candidate
// taxi routes per aircraft. It is the only package that interprets raw
// scenario graph data; everything downstream works off the validated Graph
// and the per-aircraft Catalog it produces.
package airport

import (
	"errors"
	"fmt"

	"taxinav/internal/model"
)

var (
	// ErrNoRoute is returned when an aircraft has no path from its origin to
	// its destination. This is a configuration error: the scenario must be
	// fixed, it must never surface as a silently infeasible model.
	ErrNoRoute = errors.New("no route between origin and destination")

	// ErrUnknownNode is returned when an edge or aircraft references a node
	// that is not part of the graph.
	ErrUnknownNode = errors.New("unknown node")
)

// EdgeParams are the physical attributes of a segment, keyed by the
// undirected node pair.
type EdgeParams struct {
	LengthM  float64
	SpeedMin float64
	SpeedMax float64
}

// pairKey is the canonical undirected key for a node pair: the
// lexicographically smaller node first. Storing parameters under the
// canonical key means a segment listed in both directions needs its length
// and speed envelope entered only once.
type pairKey struct {
	A, B model.NodeID
}

func keyOf(u, v model.NodeID) pairKey {
	if v < u {
		u, v = v, u
	}
	return pairKey{A: u, B: v}
}

// Graph is a validated airport network. Traversal is addressed as an
// undirected adjacency with the listed directed edges overlaid: every listed
// edge is traversable in both its listed direction and the reverse.
type Graph struct {
	nodes   []model.NodeID
	nodeSet map[model.NodeID]struct{}
	edges   []model.EdgeRef
	edgeSet map[model.EdgeRef]struct{}
	params  map[pairKey]EdgeParams
	adj     map[model.NodeID][]model.NodeID
	runway  map[pairKey]bool
	exit    map[pairKey]bool
}

// NewGraph validates and indexes the scenario network. It fails on edges with
// unknown endpoints, missing or non-positive length/speed parameters,
// inverted speed envelopes, and on bidirectional segments whose two listed
// directions disagree on their physical parameters.
func NewGraph(in model.ScenarioIn) (*Graph, error) {
	g := &Graph{
		nodeSet: make(map[model.NodeID]struct{}, len(in.Nodes)),
		edgeSet: make(map[model.EdgeRef]struct{}, len(in.Edges)),
		params:  make(map[pairKey]EdgeParams, len(in.Edges)),
		adj:     make(map[model.NodeID][]model.NodeID, len(in.Nodes)),
		runway:  map[pairKey]bool{},
		exit:    map[pairKey]bool{},
	}
	for _, n := range in.Nodes {
		if _, dup := g.nodeSet[n]; dup {
			return nil, fmt.Errorf("duplicate node %q", n)
		}
		g.nodeSet[n] = struct{}{}
		g.nodes = append(g.nodes, n)
	}
	for _, e := range in.Edges {
		ref := model.EdgeRef{From: e.From, To: e.To}
		if _, ok := g.nodeSet[e.From]; !ok {
			return nil, fmt.Errorf("edge (%s,%s): %w: %q", e.From, e.To, ErrUnknownNode, e.From)
		}
		if _, ok := g.nodeSet[e.To]; !ok {
			return nil, fmt.Errorf("edge (%s,%s): %w: %q", e.From, e.To, ErrUnknownNode, e.To)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("edge (%s,%s): self-loop", e.From, e.To)
		}
		if _, dup := g.edgeSet[ref]; dup {
			return nil, fmt.Errorf("edge (%s,%s): listed twice", e.From, e.To)
		}
		k := keyOf(e.From, e.To)
		p := EdgeParams{LengthM: e.LengthM, SpeedMin: e.SpeedMin, SpeedMax: e.SpeedMax}
		if prev, ok := g.params[k]; ok {
			// Opposite direction already listed: parameters may be given on
			// either direction, but not both with conflicting values.
			if p != (EdgeParams{}) && p != prev {
				return nil, fmt.Errorf("edge (%s,%s): parameters conflict with opposite direction", e.From, e.To)
			}
		} else {
			if p.LengthM <= 0 {
				return nil, fmt.Errorf("edge (%s,%s): length must be > 0", e.From, e.To)
			}
			if p.SpeedMin <= 0 || p.SpeedMax <= 0 {
				return nil, fmt.Errorf("edge (%s,%s): speeds must be > 0", e.From, e.To)
			}
			if p.SpeedMin > p.SpeedMax {
				return nil, fmt.Errorf("edge (%s,%s): speedMin exceeds speedMax", e.From, e.To)
			}
			g.params[k] = p
		}
		g.edgeSet[ref] = struct{}{}
		g.edges = append(g.edges, ref)
		g.addAdjacent(e.From, e.To)
		g.addAdjacent(e.To, e.From)
	}
	for _, r := range in.RunwayEdges {
		if err := g.checkDesignation("runway", r); err != nil {
			return nil, err
		}
		g.runway[keyOf(r.From, r.To)] = true
	}
	for _, r := range in.ExitEdges {
		if err := g.checkDesignation("exit", r); err != nil {
			return nil, err
		}
		g.exit[keyOf(r.From, r.To)] = true
	}
	return g, nil
}

func (g *Graph) checkDesignation(kind string, r model.EdgeRef) error {
	if g.HasSegment(r.From, r.To) {
		return nil
	}
	return fmt.Errorf("%s edge (%s,%s) is not a graph segment", kind, r.From, r.To)
}

func (g *Graph) addAdjacent(u, v model.NodeID) {
	for _, w := range g.adj[u] {
		if w == v {
			return
		}
	}
	g.adj[u] = append(g.adj[u], v)
}

// Nodes returns the node list in input order.
func (g *Graph) Nodes() []model.NodeID { return g.nodes }

// HasNode reports whether n is part of the graph.
func (g *Graph) HasNode(n model.NodeID) bool {
	_, ok := g.nodeSet[n]
	return ok
}

// HasSegment reports whether the segment between u and v exists in either
// listed direction.
func (g *Graph) HasSegment(u, v model.NodeID) bool {
	_, ok := g.params[keyOf(u, v)]
	return ok
}

// Params returns the physical parameters of the segment between u and v,
// regardless of traversal direction.
func (g *Graph) Params(u, v model.NodeID) (EdgeParams, error) {
	p, ok := g.params[keyOf(u, v)]
	if !ok {
		return EdgeParams{}, fmt.Errorf("segment (%s,%s): no parameters", u, v)
	}
	return p, nil
}

// TransitBounds returns the fastest and slowest legal transit time across
// the segment between u and v.
func (g *Graph) TransitBounds(u, v model.NodeID) (minSec, maxSec float64, err error) {
	p, err := g.Params(u, v)
	if err != nil {
		return 0, 0, err
	}
	return p.LengthM / p.SpeedMax, p.LengthM / p.SpeedMin, nil
}

// IsRunway reports whether the segment between u and v is a runway segment.
func (g *Graph) IsRunway(u, v model.NodeID) bool { return g.runway[keyOf(u, v)] }

// IsExit reports whether the segment between u and v is a runway exit
// segment.
func (g *Graph) IsExit(u, v model.NodeID) bool { return g.exit[keyOf(u, v)] }

// RunwayEntries returns the entry node of every runway segment, in input
// edge order. The listed From node of the designation is the entry side.
func (g *Graph) RunwayEntries() []model.EdgeRef {
	out := make([]model.EdgeRef, 0, len(g.runway))
	seen := map[pairKey]bool{}
	for _, e := range g.edges {
		k := keyOf(e.From, e.To)
		if g.runway[k] && !seen[k] {
			seen[k] = true
			out = append(out, e)
		}
	}
	return out
}

// neighbors returns the traversal neighbors of u in deterministic
// first-listed order.
func (g *Graph) neighbors(u model.NodeID) []model.NodeID { return g.adj[u] }
