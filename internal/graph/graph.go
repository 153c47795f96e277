// Package graph provides the travel graph data model: named states joined by
// directed legs that carry optional physical attributes.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeID is the identifier of a state in the travel graph.
type NodeID = string

var (
	ErrMissingEdge     = errors.New("missing edge")
	ErrUnknownState    = errors.New("unknown state")
	ErrDuplicateState  = errors.New("duplicate state")
	ErrDuplicateEdge   = errors.New("duplicate edge")
	ErrEmptyStates     = errors.New("states must be a non-empty list")
	ErrInvalidSpecJSON = errors.New("invalid spec JSON")
)

// Attributes are the optional numeric fields of a leg. A nil field is absent.
type Attributes struct {
	DistanceM            *float64 `json:"distance_m,omitempty"`              // metres
	DurationS            *float64 `json:"duration_s,omitempty"`              // Earth-frame seconds
	EarthDepartureEpochS *float64 `json:"earth_departure_epoch_s,omitempty"` // absolute seconds
	EarthArrivalEpochS   *float64 `json:"earth_arrival_epoch_s,omitempty"`   // absolute seconds
	RiskProb             *float64 `json:"risk_prob,omitempty"`               // [0, 1)
	EnergyJ              *float64 `json:"energy_j,omitempty"`                // joules
	Credits              *float64 `json:"credits,omitempty"`
}

// Edge is a directed leg from Src to Dst.
type Edge struct {
	Src        NodeID     `json:"src"`
	Dst        NodeID     `json:"dst"`
	Attributes Attributes `json:"attributes"`
}

// GraphSpec is the serialisable input representation of a travel graph.
// Initial and ABC are consumed by the external planner; they are only checked
// for membership here.
type GraphSpec struct {
	States      []NodeID `json:"states"`
	Initial     NodeID   `json:"initial,omitempty"`
	ABC         []NodeID `json:"ABC,omitempty"`
	Transitions []Edge   `json:"transitions"`
}

// Graph is an indexed, read-only view of a GraphSpec.
type Graph struct {
	states      []NodeID
	stateSet    map[NodeID]struct{}
	edges       []Edge
	edgeByNodes map[NodeID]map[NodeID]int // src → dst → index into edges
}

// ParseSpec decodes a JSON GraphSpec.
func ParseSpec(data []byte) (GraphSpec, error) {
	var spec GraphSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return GraphSpec{}, fmt.Errorf("%w: %v", ErrInvalidSpecJSON, err)
	}
	return spec, nil
}

// NewGraph builds a Graph from a GraphSpec, returning an error if any state or
// edge reference is invalid. Attribute values are not checked here; the
// kinematics package degrades gracefully on bad numbers.
func NewGraph(spec GraphSpec) (*Graph, error) {
	if len(spec.States) == 0 {
		return nil, ErrEmptyStates
	}
	g := &Graph{
		stateSet:    make(map[NodeID]struct{}, len(spec.States)),
		edgeByNodes: make(map[NodeID]map[NodeID]int),
	}
	for _, s := range spec.States {
		if err := g.addState(s); err != nil {
			return nil, err
		}
	}
	if spec.Initial != "" && !g.HasState(spec.Initial) {
		return nil, fmt.Errorf("initial %q: %w", spec.Initial, ErrUnknownState)
	}
	for _, s := range spec.ABC {
		if !g.HasState(s) {
			return nil, fmt.Errorf("ABC entry %q: %w", s, ErrUnknownState)
		}
	}
	for _, e := range spec.Transitions {
		if err := g.addEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) addState(id NodeID) error {
	if _, exists := g.stateSet[id]; exists {
		return fmt.Errorf("state %q: %w", id, ErrDuplicateState)
	}
	g.states = append(g.states, id)
	g.stateSet[id] = struct{}{}
	return nil
}

func (g *Graph) addEdge(e Edge) error {
	if !g.HasState(e.Src) {
		return fmt.Errorf("edge %q->%q: source: %w", e.Src, e.Dst, ErrUnknownState)
	}
	if !g.HasState(e.Dst) {
		return fmt.Errorf("edge %q->%q: target: %w", e.Src, e.Dst, ErrUnknownState)
	}
	if _, exists := g.edgeByNodes[e.Src][e.Dst]; exists {
		return fmt.Errorf("edge %q->%q: %w", e.Src, e.Dst, ErrDuplicateEdge)
	}
	if g.edgeByNodes[e.Src] == nil {
		g.edgeByNodes[e.Src] = make(map[NodeID]int)
	}
	g.edgeByNodes[e.Src][e.Dst] = len(g.edges)
	g.edges = append(g.edges, e)
	return nil
}

// HasState reports whether id is a declared state.
func (g *Graph) HasState(id NodeID) bool {
	_, ok := g.stateSet[id]
	return ok
}

// States returns the declared states in spec order.
func (g *Graph) States() []NodeID {
	return append([]NodeID(nil), g.states...)
}

// Edges returns the legs in spec order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// GetEdge returns the directed edge from u to v.
func (g *Graph) GetEdge(u, v NodeID) (Edge, error) {
	if m, ok := g.edgeByNodes[u]; ok {
		if i, ok := m[v]; ok {
			return g.edges[i], nil
		}
	}
	return Edge{}, fmt.Errorf("%w: no edge from %q to %q", ErrMissingEdge, u, v)
}

// Float returns a pointer to v, for building Attributes literals.
func Float(v float64) *float64 { return &v }
