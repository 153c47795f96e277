package engine

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/spacetime-engine/internal/config"
	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/logging"
	"github.com/cxd309/spacetime-engine/internal/metrics"
	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/playback"
	"github.com/cxd309/spacetime-engine/internal/validation"
)

var f = graph.Float

// absoluteSpec: A→B departs 1000 arrives 1100, B→C takes 50s, C→D has no time data.
func absoluteSpec() graph.GraphSpec {
	return graph.GraphSpec{
		States: []graph.NodeID{"A", "B", "C", "D"},
		Transitions: []graph.Edge{
			{Src: "A", Dst: "B", Attributes: graph.Attributes{EarthDepartureEpochS: f(1000), EarthArrivalEpochS: f(1100), DistanceM: f(2e10)}},
			{Src: "B", Dst: "C", Attributes: graph.Attributes{DurationS: f(50), RiskProb: f(0.25)}},
			{Src: "C", Dst: "D", Attributes: graph.Attributes{}},
		},
	}
}

var positions = map[graph.NodeID]geom.Vec3{
	"A": {X: 0},
	"B": {X: 10},
	"C": {X: 20},
	"D": {X: 30},
}

func plan(path ...graph.NodeID) Plan { return Plan{OK: true, Path: path} }

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(nil, WithPositions(positions))
	_, err := e.Load(absoluteSpec(), plan("A", "B", "C"))
	require.NoError(t, err)
	return e
}

func TestEngine_NoSession(t *testing.T) {
	e := New(nil)
	_, err := e.Tick(0.1)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, e.Play(), ErrNoSession)
	_, err = e.Segments()
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = e.SegmentsCompleted()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Nil(t, e.Session())
}

func TestEngine_SegmentsCompleted(t *testing.T) {
	e := newEngine(t)
	done, err := e.SegmentsCompleted()
	require.NoError(t, err)
	assert.Empty(t, done)

	require.NoError(t, e.Seek(120))
	done, err = e.SegmentsCompleted()
	require.NoError(t, err)
	assert.Equal(t, []graph.NodeID{"B"}, done)
}

func TestEngine_Load(t *testing.T) {
	e := newEngine(t)
	s := e.Session()
	require.NotNil(t, s)

	assert.True(t, s.Route.Absolute)
	assert.Equal(t, 150.0, s.Route.TotalDuration())
	c, ok := s.Timeline.Times.Get("C")
	require.True(t, ok)
	assert.Equal(t, 1150.0, c)

	segs, err := e.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, geom.Vec3{X: 10}, segs[0].To)

	hud, err := e.HUD()
	require.NoError(t, err)
	assert.Equal(t, playback.StateIdle, hud.State)
	require.NotNil(t, hud.AbsoluteEpochS)
	assert.Equal(t, 1000.0, *hud.AbsoluteEpochS)
}

func TestEngine_LoadFailureKeepsSession(t *testing.T) {
	e := newEngine(t)
	before := e.Session()
	require.NoError(t, e.Seek(42))

	_, err := e.Load(absoluteSpec(), plan("A", "C"))
	assert.ErrorIs(t, err, graph.ErrMissingEdge)
	assert.Same(t, before, e.Session())

	_, err = e.Load(absoluteSpec(), Plan{OK: false})
	assert.ErrorIs(t, err, ErrPlanRejected)

	_, err = e.Load(graph.GraphSpec{}, plan("A", "B"))
	assert.ErrorIs(t, err, graph.ErrEmptyStates)

	cur, err := e.Cursor()
	require.NoError(t, err)
	assert.Equal(t, 42.0, cur.ElapsedWorldTimeS)
}

func TestEngine_FailedLoadKeepsLayout(t *testing.T) {
	e := newEngine(t)

	_, err := e.LoadWithPositions(absoluteSpec(), plan("A", "C"), map[graph.NodeID]geom.Vec3{"A": {X: 999}})
	require.ErrorIs(t, err, graph.ErrMissingEdge)

	_, err = e.Load(absoluteSpec(), plan("A", "B"))
	require.NoError(t, err)
	segs, err := e.Segments()
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{X: 0}, segs[0].From, "layout from the last successful load")

	_, err = e.LoadWithPositions(absoluteSpec(), plan("A", "B"), nil)
	require.NoError(t, err)
	segs, err = e.Segments()
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{X: config.Default().Route.LayoutRadius}, segs[0].From, "circle layout")
}

func TestEngine_LoadReplacesEverything(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Play())
	_, err := e.Tick(30)
	require.NoError(t, err)

	_, err = e.Load(absoluteSpec(), plan("B", "C", "D"))
	require.NoError(t, err)

	cur, err := e.Cursor()
	require.NoError(t, err)
	assert.Equal(t, 0.0, cur.ElapsedWorldTimeS)
	assert.False(t, cur.Playing)
	assert.False(t, e.Session().Route.Absolute, "C→D has no epochs")
	assert.Equal(t, 50.0, e.Session().Route.TotalDuration())
}

func TestEngine_TickAndControls(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Play())

	snap, err := e.Tick(1)
	require.NoError(t, err)
	assert.True(t, snap.HUDUpdated)
	assert.Equal(t, 1.0, snap.HUD.ElapsedWorldTimeS)
	assert.InDelta(t, 0.1, snap.Frame.Position.X, 1e-9)

	require.NoError(t, e.SetSpeed(10))
	snap, err = e.Tick(2)
	require.NoError(t, err)
	assert.Equal(t, 21.0, snap.HUD.ElapsedWorldTimeS)

	require.NoError(t, e.Pause())
	require.NoError(t, e.Pause())
	snap, err = e.Tick(5)
	require.NoError(t, err)
	assert.Equal(t, 21.0, snap.HUD.ElapsedWorldTimeS)
	assert.False(t, snap.HUDUpdated)

	require.NoError(t, e.StepToSegment(1))
	hud, _ := e.HUD()
	assert.Equal(t, 100.0, hud.ElapsedWorldTimeS)
	assert.Equal(t, "B", hud.SourceID)
	assert.True(t, hud.Risky)

	assert.ErrorIs(t, e.SetSpeed(-1), playback.ErrInvalidSpeed)
	assert.ErrorIs(t, e.StepToSegment(9), playback.ErrInvalidArgument)
}

func TestEngine_LoopsPlayback(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Seek(100))
	require.NoError(t, e.Play())
	snap, err := e.Tick(60)
	require.NoError(t, err)
	assert.InDelta(t, 10, snap.HUD.ElapsedWorldTimeS, 1e-9)
	assert.Equal(t, 0, snap.HUD.SegmentIndex)
}

func TestEngine_ObserverFollowAndManual(t *testing.T) {
	cfg := config.Default()
	cfg.Observer = observer.Config{Enabled: true, FollowDistance: 2, Height: 1, Smoothing: 1}
	e := New(cfg, WithPositions(positions))
	_, err := e.Load(absoluteSpec(), plan("A", "B", "C"))
	require.NoError(t, err)

	require.NoError(t, e.Seek(50))
	snap, err := e.Tick(0)
	require.NoError(t, err)
	assert.True(t, geom.ApproxEqual(geom.Vec3{X: 3, Y: 1}, snap.Pose.Position, 1e-9))
	assert.True(t, geom.ApproxEqual(geom.Vec3{X: 5}, snap.Pose.Target, 1e-9))

	require.NoError(t, e.SetFollow(false))
	manual := observer.Pose{Position: geom.Vec3{Y: 40}}
	require.NoError(t, e.SetPose(manual))
	snap, err = e.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, manual, snap.Pose)

	// A reload keeps the manual camera.
	_, err = e.Load(absoluteSpec(), plan("B", "C"))
	require.NoError(t, err)
	pose, err := e.Pose()
	require.NoError(t, err)
	assert.Equal(t, manual, pose)
}

func TestEngine_CrossCheck(t *testing.T) {
	e := newEngine(t)
	report := validation.Build(e.Session().Graph, false)

	mismatches, err := e.CrossCheck(report, 1e-9)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	report.Edges[0].Breakdown.ProperTimeS = 1
	mismatches, err = e.CrossCheck(report, 1e-9)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "proper_time_s", mismatches[0].Field)
}

func TestEngine_MetricsAndLogging(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New(&buf, "debug", "json")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)

	e := New(nil, WithPositions(positions), WithLogger(log), WithMetrics(m))
	_, err = e.Load(absoluteSpec(), plan("A", "B", "C"))
	require.NoError(t, err)
	_, err = e.Load(absoluteSpec(), Plan{})
	require.Error(t, err)
	require.NoError(t, e.Play())
	_, err = e.Tick(0.5)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "qtt_routes_loaded_total", "qtt_route_load_failures_total", "qtt_ticks_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	out := buf.String()
	assert.Contains(t, out, `"msg":"route_loaded"`)
	assert.Contains(t, out, `"msg":"edge_warning"`)
	assert.Contains(t, out, `"msg":"route_rejected"`)
	assert.Contains(t, out, `"action":"play"`)
}
