package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
)

func TestCircle(t *testing.T) {
	l := Circle([]graph.NodeID{"A", "B", "C", "D"}, 10)

	a, ok := l.Position("A")
	require.True(t, ok)
	assert.True(t, geom.ApproxEqual(geom.Vec3{X: 10}, a, 1e-9))

	b, _ := l.Position("B")
	assert.True(t, geom.ApproxEqual(geom.Vec3{Z: 10}, b, 1e-9))

	_, ok = l.Position("Z")
	assert.False(t, ok)
}

func TestMerge(t *testing.T) {
	l := Merge(Circle([]graph.NodeID{"A", "B"}, 1), map[graph.NodeID]geom.Vec3{"B": {Y: 5}})
	b, _ := l.Position("B")
	assert.Equal(t, geom.Vec3{Y: 5}, b)
	a, _ := l.Position("A")
	assert.InDelta(t, 1, a.X, 1e-9)
}
