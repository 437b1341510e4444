package airport

import (
	"fmt"

	"taxinav/internal/model"
)

// Route is one acyclic candidate path from an aircraft's origin to its
// destination, paired with the induced edge sequence.
type Route struct {
	Nodes []model.NodeID
	Edges []model.EdgeRef
}

// EnumerateRoutes returns every simple path from origin to dest, in
// deterministic DFS order (neighbors are expanded in first-listed edge
// order). origin == dest yields the trivial single-node route. An empty
// result is ErrNoRoute.
func EnumerateRoutes(g *Graph, origin, dest model.NodeID) ([]Route, error) {
	if !g.HasNode(origin) {
		return nil, fmt.Errorf("origin: %w: %q", ErrUnknownNode, origin)
	}
	if !g.HasNode(dest) {
		return nil, fmt.Errorf("destination: %w: %q", ErrUnknownNode, dest)
	}
	if origin == dest {
		return []Route{{Nodes: []model.NodeID{origin}}}, nil
	}
	var (
		out     []Route
		path    []model.NodeID
		onPath  = map[model.NodeID]bool{}
		explore func(u model.NodeID)
	)
	explore = func(u model.NodeID) {
		path = append(path, u)
		onPath[u] = true
		if u == dest {
			out = append(out, snapshot(path))
		} else {
			for _, v := range g.neighbors(u) {
				if !onPath[v] {
					explore(v)
				}
			}
		}
		onPath[u] = false
		path = path[:len(path)-1]
	}
	explore(origin)
	if len(out) == 0 {
		return nil, fmt.Errorf("aircraft %s -> %s: %w", origin, dest, ErrNoRoute)
	}
	return out, nil
}

func snapshot(path []model.NodeID) Route {
	nodes := make([]model.NodeID, len(path))
	copy(nodes, path)
	edges := make([]model.EdgeRef, 0, len(nodes)-1)
	for k := 0; k+1 < len(nodes); k++ {
		edges = append(edges, model.EdgeRef{From: nodes[k], To: nodes[k+1]})
	}
	return Route{Nodes: nodes, Edges: edges}
}

// ContainsNode reports whether the route visits node u.
func (r Route) ContainsNode(u model.NodeID) bool {
	for _, n := range r.Nodes {
		if n == u {
			return true
		}
	}
	return false
}

// ContainsSegment reports whether the route traverses the segment between u
// and v, in either direction.
func (r Route) ContainsSegment(u, v model.NodeID) bool {
	for _, e := range r.Edges {
		if (e.From == u && e.To == v) || (e.From == v && e.To == u) {
			return true
		}
	}
	return false
}

// AircraftRoutes holds one aircraft's candidate routes and its footprint:
// the union of nodes and segments any of its routes can touch, in
// first-appearance order with O(1) membership lookups.
type AircraftRoutes struct {
	Aircraft model.AircraftIn
	Routes   []Route

	FootprintNodes []model.NodeID
	FootprintEdges []model.EdgeRef

	nodeSet map[model.NodeID]struct{}
	edgeSet map[pairKey]struct{}
}

// HasNode reports whether u is in the aircraft's footprint.
func (ar *AircraftRoutes) HasNode(u model.NodeID) bool {
	_, ok := ar.nodeSet[u]
	return ok
}

// HasSegment reports whether the segment between u and v, in either
// direction, is in the aircraft's footprint.
func (ar *AircraftRoutes) HasSegment(u, v model.NodeID) bool {
	_, ok := ar.edgeSet[keyOf(u, v)]
	return ok
}

// RoutesThroughNode returns the indices of the aircraft's routes that visit
// node u.
func (ar *AircraftRoutes) RoutesThroughNode(u model.NodeID) []int {
	var out []int
	for r, rt := range ar.Routes {
		if rt.ContainsNode(u) {
			out = append(out, r)
		}
	}
	return out
}

// RoutesThroughSegment returns the indices of the aircraft's routes that
// traverse the segment between u and v in either direction.
func (ar *AircraftRoutes) RoutesThroughSegment(u, v model.NodeID) []int {
	var out []int
	for r, rt := range ar.Routes {
		if rt.ContainsSegment(u, v) {
			out = append(out, r)
		}
	}
	return out
}

// RoutesTraversingDirected returns the indices of the aircraft's routes that
// traverse the edge from u to v in exactly that direction.
func (ar *AircraftRoutes) RoutesTraversingDirected(u, v model.NodeID) []int {
	var out []int
	for r, rt := range ar.Routes {
		for _, e := range rt.Edges {
			if e.From == u && e.To == v {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Catalog is the full per-aircraft route catalog of a scenario, in fleet
// order.
type Catalog struct {
	Graph    *Graph
	Aircraft []*AircraftRoutes
}

// BuildCatalog enumerates candidate routes for every aircraft of the fleet
// and derives footprints. routeLimit, when positive, caps the candidate
// routes kept per aircraft (enumeration order, so shorter DFS branches
// first).
func BuildCatalog(g *Graph, fleet []model.AircraftIn, routeLimit int) (*Catalog, error) {
	c := &Catalog{Graph: g, Aircraft: make([]*AircraftRoutes, 0, len(fleet))}
	for _, ac := range fleet {
		routes, err := EnumerateRoutes(g, ac.Origin, ac.Destination)
		if err != nil {
			return nil, fmt.Errorf("aircraft %s: %w", ac.ID, err)
		}
		if routeLimit > 0 && len(routes) > routeLimit {
			routes = routes[:routeLimit]
		}
		ar := &AircraftRoutes{
			Aircraft: ac,
			Routes:   routes,
			nodeSet:  map[model.NodeID]struct{}{},
			edgeSet:  map[pairKey]struct{}{},
		}
		for _, rt := range routes {
			for _, n := range rt.Nodes {
				if _, ok := ar.nodeSet[n]; !ok {
					ar.nodeSet[n] = struct{}{}
					ar.FootprintNodes = append(ar.FootprintNodes, n)
				}
			}
			for _, e := range rt.Edges {
				k := keyOf(e.From, e.To)
				if _, ok := ar.edgeSet[k]; !ok {
					ar.edgeSet[k] = struct{}{}
					ar.FootprintEdges = append(ar.FootprintEdges, e)
				}
			}
		}
		c.Aircraft = append(c.Aircraft, ar)
	}
	return c, nil
}

// SharedNodes returns the nodes present in both aircraft footprints, in the
// first aircraft's footprint order.
func (c *Catalog) SharedNodes(i, j int) []model.NodeID {
	var out []model.NodeID
	for _, u := range c.Aircraft[i].FootprintNodes {
		if c.Aircraft[j].HasNode(u) {
			out = append(out, u)
		}
	}
	return out
}

// SharedEdges returns the segments present in both aircraft footprints, in
// the first aircraft's footprint order.
func (c *Catalog) SharedEdges(i, j int) []model.EdgeRef {
	var out []model.EdgeRef
	for _, e := range c.Aircraft[i].FootprintEdges {
		if c.Aircraft[j].HasSegment(e.From, e.To) {
			out = append(out, e)
		}
	}
	return out
}
