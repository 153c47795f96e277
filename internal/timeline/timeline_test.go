package timeline

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/spacetime-engine/internal/graph"
)

var f = graph.Float

func TestInfer_PropagatesDuration(t *testing.T) {
	res := Infer([]graph.Edge{
		{Src: "A", Dst: "B", Attributes: graph.Attributes{EarthDepartureEpochS: f(1000), EarthArrivalEpochS: f(1100)}},
		{Src: "B", Dst: "C", Attributes: graph.Attributes{DurationS: f(50)}},
	})

	require.True(t, res.HasAbsoluteReference)
	c, ok := res.Times.Get("C")
	require.True(t, ok)
	assert.Equal(t, 1150.0, c)

	a, _ := res.Times.Get("A")
	assert.Equal(t, 1000.0, a)
	assert.Empty(t, res.Conflicts)
}

func TestInfer_PropagatesBackwards(t *testing.T) {
	res := Infer([]graph.Edge{
		{Src: "A", Dst: "B", Attributes: graph.Attributes{DurationS: f(30)}},
		{Src: "B", Dst: "C", Attributes: graph.Attributes{DurationS: f(20)}},
		{Src: "C", Dst: "D", Attributes: graph.Attributes{EarthArrivalEpochS: f(500), DurationS: f(50)}},
		{Src: "D", Dst: "E", Attributes: graph.Attributes{}},
	})

	require.True(t, res.HasAbsoluteReference)
	want := map[graph.NodeID]float64{"A": 400, "B": 430, "C": 450, "D": 500}
	for id, w := range want {
		got, ok := res.Times.Get(id)
		require.True(t, ok, "node %s", id)
		assert.Equal(t, w, got, "node %s", id)
	}

	// D→E has no duration, so E stays unknown.
	_, ok := res.Times.Get("E")
	assert.False(t, ok)
}

func TestInfer_NoAbsoluteReference(t *testing.T) {
	res := Infer([]graph.Edge{
		{Src: "A", Dst: "B", Attributes: graph.Attributes{DurationS: f(10)}},
		{Src: "B", Dst: "C", Attributes: graph.Attributes{DurationS: f(10)}},
	})
	assert.False(t, res.HasAbsoluteReference)
	assert.Equal(t, 0, res.Times.Len())
}

func TestInfer_DisconnectedComponent(t *testing.T) {
	res := Infer([]graph.Edge{
		{Src: "A", Dst: "B", Attributes: graph.Attributes{EarthDepartureEpochS: f(0), DurationS: f(10)}},
		{Src: "X", Dst: "Y", Attributes: graph.Attributes{DurationS: f(5)}},
	})
	assert.True(t, res.HasAbsoluteReference)
	assert.Equal(t, []graph.NodeID{"A", "B"}, res.Times.IDs())
}

func TestInfer_ConflictingSeedsKeepEarliest(t *testing.T) {
	// A→B says B is reached at 1100, B→C says B is left at 1050.
	res := Infer([]graph.Edge{
		{Src: "A", Dst: "B", Attributes: graph.Attributes{EarthDepartureEpochS: f(1000), EarthArrivalEpochS: f(1100)}},
		{Src: "B", Dst: "C", Attributes: graph.Attributes{EarthDepartureEpochS: f(1050), DurationS: f(10)}},
		{Src: "C", Dst: "A", Attributes: graph.Attributes{EarthArrivalEpochS: f(2000)}},
	})

	require.True(t, res.HasAbsoluteReference)
	b, ok := res.Times.Get("B")
	require.True(t, ok)
	assert.Equal(t, 1050.0, b)

	require.NotEmpty(t, res.Conflicts)
	nodes := map[graph.NodeID]bool{}
	for _, c := range res.Conflicts {
		nodes[c.Node] = true
		assert.Less(t, c.Kept, c.Discarded)
	}
	assert.True(t, nodes["B"])
	assert.True(t, nodes["A"])
}

func TestInfer_ContradictoryCycleDoesNotCrash(t *testing.T) {
	// Durations around the cycle cannot all be satisfied; the engine must
	// still terminate and produce some value for every node.
	res := Infer([]graph.Edge{
		{Src: "A", Dst: "B", Attributes: graph.Attributes{EarthDepartureEpochS: f(0), DurationS: f(10)}},
		{Src: "B", Dst: "C", Attributes: graph.Attributes{DurationS: f(10)}},
		{Src: "C", Dst: "A", Attributes: graph.Attributes{DurationS: f(10), EarthArrivalEpochS: f(5)}},
	})
	assert.True(t, res.HasAbsoluteReference)
	for _, id := range []graph.NodeID{"A", "B", "C"} {
		_, ok := res.Times.Get(id)
		assert.True(t, ok, "node %s", id)
	}
	assert.LessOrEqual(t, res.Passes, res.PassBudget)
}

func TestInfer_TerminatesWithinBudget(t *testing.T) {
	// A reversed chain forces one new node per pass.
	const n = 40
	edges := make([]graph.Edge, 0, n)
	for i := n - 1; i >= 0; i-- {
		attrs := graph.Attributes{DurationS: f(1)}
		if i == 0 {
			attrs.EarthDepartureEpochS = f(0)
		}
		edges = append(edges, graph.Edge{Src: fmt.Sprint(i), Dst: fmt.Sprint(i + 1), Attributes: attrs})
	}

	res := Infer(edges)
	assert.Equal(t, 2*n, res.PassBudget)
	assert.LessOrEqual(t, res.Passes, res.PassBudget)
	last, ok := res.Times.Get(fmt.Sprint(n))
	require.True(t, ok)
	assert.Equal(t, float64(n), last)
}

func TestInfer_Empty(t *testing.T) {
	res := Infer(nil)
	assert.False(t, res.HasAbsoluteReference)
	assert.Equal(t, 0, res.Passes)
}

func TestNodeTime_JSON(t *testing.T) {
	res := Infer([]graph.Edge{
		{Src: "A", Dst: "B", Attributes: graph.Attributes{EarthDepartureEpochS: f(1), EarthArrivalEpochS: f(2)}},
	})
	out, err := json.Marshal(res.Times)
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":1,"B":2}`, string(out))
}
