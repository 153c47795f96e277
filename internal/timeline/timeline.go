// Package timeline infers an absolute Earth-frame epoch for every node it can
// reach from a partial set of per-edge time constraints.
//
// Inference runs in two phases:
//
//  1. Seed - every explicit departure epoch is a candidate time for the edge's
//     source, every explicit arrival epoch a candidate for its destination.
//     When a node receives several candidates the earliest wins; the losing
//     candidates are reported as Conflicts rather than reconciled.
//
//  2. Relax - edges with a known duration repeatedly propagate a known
//     endpoint time to an unknown endpoint (source + duration, or destination
//     − duration) until a full pass makes no change or the pass budget of
//     2 × edge count is spent.
//
// Nodes in components without any absolute mention stay unknown. That is
// expected and not an error.
package timeline

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/kinematics"
)

// NodeTime maps nodes to inferred absolute epoch seconds. It is immutable once
// returned by Infer.
type NodeTime struct {
	times map[graph.NodeID]float64
}

// Get returns the inferred epoch for id.
func (n NodeTime) Get(id graph.NodeID) (float64, bool) {
	t, ok := n.times[id]
	return t, ok
}

// Len returns the number of nodes with an inferred time.
func (n NodeTime) Len() int { return len(n.times) }

// IDs returns the nodes with an inferred time, sorted.
func (n NodeTime) IDs() []graph.NodeID {
	ids := make([]graph.NodeID, 0, len(n.times))
	for id := range n.times {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Map returns a copy of the underlying mapping.
func (n NodeTime) Map() map[graph.NodeID]float64 {
	out := make(map[graph.NodeID]float64, len(n.times))
	for k, v := range n.times {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the mapping as a JSON object.
func (n NodeTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Map())
}

// Conflict records a seed candidate that disagreed with the kept value.
type Conflict struct {
	Node      graph.NodeID `json:"node"`
	Kept      float64      `json:"kept"`
	Discarded float64      `json:"discarded"`
	Src       graph.NodeID `json:"src"` // edge that produced the discarded candidate
	Dst       graph.NodeID `json:"dst"`
}

// Result is the outcome of one inference run.
type Result struct {
	Times NodeTime `json:"times"`
	// HasAbsoluteReference is false when no node could be given an absolute
	// epoch; callers must then use a purely duration-based frame.
	HasAbsoluteReference bool       `json:"has_absolute_reference"`
	Passes               int        `json:"passes"`
	PassBudget           int        `json:"pass_budget"`
	Conflicts            []Conflict `json:"conflicts,omitempty"`
}

// Infer derives node epochs from edges.
func Infer(edges []graph.Edge) Result {
	times := make(map[graph.NodeID]float64)
	var conflicts []Conflict

	seed := func(node graph.NodeID, t float64, e graph.Edge) {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return
		}
		cur, ok := times[node]
		switch {
		case !ok:
			times[node] = t
		case t == cur:
		case t < cur:
			times[node] = t
			conflicts = append(conflicts, Conflict{Node: node, Kept: t, Discarded: cur, Src: e.Src, Dst: e.Dst})
		default:
			conflicts = append(conflicts, Conflict{Node: node, Kept: cur, Discarded: t, Src: e.Src, Dst: e.Dst})
		}
	}
	for _, e := range edges {
		if dep := e.Attributes.EarthDepartureEpochS; dep != nil {
			seed(e.Src, *dep, e)
		}
		if arr := e.Attributes.EarthArrivalEpochS; arr != nil {
			seed(e.Dst, *arr, e)
		}
	}

	durations := make([]float64, len(edges))
	known := make([]bool, len(edges))
	for i, e := range edges {
		durations[i], known[i] = kinematics.ResolveDuration(e.Attributes)
	}

	budget := 2 * len(edges)
	passes := 0
	for passes < budget {
		passes++
		changed := false
		for i, e := range edges {
			if !known[i] {
				continue
			}
			ts, srcOK := times[e.Src]
			td, dstOK := times[e.Dst]
			switch {
			case srcOK && !dstOK:
				times[e.Dst] = ts + durations[i]
				changed = true
			case dstOK && !srcOK:
				times[e.Src] = td - durations[i]
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	hasRef := len(times) > 0
	for _, t := range times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			hasRef = false
			break
		}
	}

	return Result{
		Times:                NodeTime{times: times},
		HasAbsoluteReference: hasRef,
		Passes:               passes,
		PassBudget:           budget,
		Conflicts:            conflicts,
	}
}
