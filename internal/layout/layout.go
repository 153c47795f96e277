// Package layout places graph states in 3-D space for the segment builder.
package layout

import (
	"math"

	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
)

// Layout resolves a state to its scene position.
type Layout interface {
	Position(id graph.NodeID) (geom.Vec3, bool)
}

// Static is a fixed state → position table, typically supplied by the
// rendering frontend.
type Static map[graph.NodeID]geom.Vec3

func (s Static) Position(id graph.NodeID) (geom.Vec3, bool) {
	p, ok := s[id]
	return p, ok
}

// Circle spaces states evenly on a circle of the given radius in the XZ plane,
// in the order given. The first state sits on +X.
func Circle(states []graph.NodeID, radius float64) Static {
	out := make(Static, len(states))
	n := float64(len(states))
	for i, id := range states {
		theta := 2 * math.Pi * float64(i) / n
		out[id] = geom.Vec3{X: radius * math.Cos(theta), Z: radius * math.Sin(theta)}
	}
	return out
}

// Merge overlays explicit positions on a fallback layout.
func Merge(fallback Static, explicit map[graph.NodeID]geom.Vec3) Static {
	out := make(Static, len(fallback)+len(explicit))
	for k, v := range fallback {
		out[k] = v
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}
