// Package engine owns the current-path context and drives one animation loop
// over it.
//
// A Session bundles everything derived from one (spec, plan) pair: the graph
// index, inferred node times, the segment route, the playback cursor and the
// observer pose. Loading a new pair builds a complete Session off to the side
// and only then replaces the old one, so readers never see a route from one
// plan paired with a cursor or timeline from another.
//
// Each tick runs two steps:
//
//  1. Playback - the cursor advances by dt × speed (wrapping), the active
//     segment is located and the frame (position, directions, HUD) derived.
//
//  2. Observer - the follow controller eases the camera toward a pose behind
//     and above the frame position.
//
// The Engine is not safe for concurrent use; callers that share one across
// goroutines must serialise access.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cxd309/spacetime-engine/internal/config"
	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/layout"
	"github.com/cxd309/spacetime-engine/internal/logging"
	"github.com/cxd309/spacetime-engine/internal/metrics"
	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/playback"
	"github.com/cxd309/spacetime-engine/internal/segment"
	"github.com/cxd309/spacetime-engine/internal/timeline"
	"github.com/cxd309/spacetime-engine/internal/validation"
)

var (
	ErrPlanRejected = errors.New("planner returned ok=false")
	ErrNoSession    = errors.New("no route loaded")
)

// Session is the derived state for one loaded (spec, plan) pair.
type Session struct {
	Spec     graph.GraphSpec
	Plan     Plan
	Graph    *graph.Graph
	Timeline timeline.Result
	Route    *segment.Route

	player   *playback.Player
	observer *observer.Controller
}

// Engine holds the active Session.
type Engine struct {
	cfg       *config.Config
	log       *slog.Logger
	metrics   *metrics.Collector
	positions map[graph.NodeID]geom.Vec3

	session *Session
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(c *metrics.Collector) Option { return func(e *Engine) { e.metrics = c } }

// WithPositions supplies explicit scene positions; states without one fall
// back to the circle layout.
func WithPositions(p map[graph.NodeID]geom.Vec3) Option {
	return func(e *Engine) { e.positions = p }
}

// New creates an Engine with no route loaded. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{cfg: cfg}
	for _, o := range opts {
		o(e)
	}
	e.log = logging.OrDiscard(e.log).With(slog.String("component", "engine"))
	return e
}

// Load builds a new Session for spec and plan using the current explicit
// layout and swaps it in. On any error the previously loaded session is left
// untouched.
func (e *Engine) Load(spec graph.GraphSpec, plan Plan) (*Session, error) {
	return e.LoadWithPositions(spec, plan, e.positions)
}

// LoadWithPositions is Load with a replacement explicit layout. The layout is
// only kept when the load succeeds.
func (e *Engine) LoadWithPositions(spec graph.GraphSpec, plan Plan, positions map[graph.NodeID]geom.Vec3) (*Session, error) {
	s, err := e.build(spec, plan, positions)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordLoadFailure()
		}
		e.log.Warn("route_rejected", slog.String("error", err.Error()))
		return nil, err
	}

	warnings := 0
	for _, seg := range s.Route.Segments {
		warnings += len(seg.Warnings)
		for _, w := range seg.Warnings {
			e.log.Warn("edge_warning", slog.String("src", seg.SourceID), slog.String("dst", seg.DestID), slog.String("warning", w))
		}
	}
	for _, c := range s.Timeline.Conflicts {
		e.log.Warn("timeline_conflict",
			slog.String("node", c.Node),
			slog.Float64("kept", c.Kept),
			slog.Float64("discarded", c.Discarded),
			slog.String("src", c.Src),
			slog.String("dst", c.Dst),
		)
	}
	e.log.Info("route_loaded",
		slog.Int("segments", len(s.Route.Segments)),
		slog.Float64("total_duration_s", s.Route.TotalDuration()),
		slog.Bool("absolute", s.Route.Absolute),
		slog.String("mode", string(s.Route.Mode)),
	)
	if e.metrics != nil {
		e.metrics.RecordRouteLoaded(len(s.Route.Segments), s.Route.TotalDuration(), warnings, len(s.Timeline.Conflicts))
	}

	e.session = s
	e.positions = positions
	return s, nil
}

func (e *Engine) build(spec graph.GraphSpec, plan Plan, positions map[graph.NodeID]geom.Vec3) (*Session, error) {
	if !plan.OK {
		return nil, ErrPlanRejected
	}
	g, err := graph.NewGraph(spec)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}
	times := timeline.Infer(g.Edges())
	l := layout.Merge(layout.Circle(g.States(), e.cfg.Route.LayoutRadius), positions)

	route, err := segment.Build(plan.Path, g, l, times, e.cfg.SegmentOptions())
	if err != nil {
		return nil, fmt.Errorf("building route: %w", err)
	}
	player, err := playback.NewPlayer(route, playback.Options{
		Speed:       e.cfg.Playback.DefaultSpeed,
		HUDInterval: e.cfg.HUDInterval(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}

	obsCfg := e.cfg.Observer
	pose := observer.Desired(obsCfg, frameInput(player.Frame()))
	if prev := e.session; prev != nil {
		// Keep a manually placed camera where the user left it.
		obsCfg.Enabled = prev.observer.Following()
		if !obsCfg.Enabled {
			pose = prev.observer.Pose()
		}
	}

	return &Session{
		Spec:     spec,
		Plan:     plan,
		Graph:    g,
		Timeline: times,
		Route:    route,
		player:   player,
		observer: observer.NewController(obsCfg, pose),
	}, nil
}

// Session returns the active session, or nil.
func (e *Engine) Session() *Session { return e.session }

func (e *Engine) current() (*Session, error) {
	if e.session == nil {
		return nil, ErrNoSession
	}
	return e.session, nil
}

// Tick advances playback by dtReal seconds of real time and updates the observer.
func (e *Engine) Tick(dtReal float64) (Snapshot, error) {
	s, err := e.current()
	if err != nil {
		return Snapshot{}, err
	}
	frame, updated := s.player.Tick(dtReal)
	pose := s.observer.Update(frameInput(frame))
	if e.metrics != nil {
		e.metrics.RecordTick(frame.HUD.ElapsedWorldTimeS, updated)
	}
	return Snapshot{Frame: frame, Pose: pose, HUD: s.player.HUD(), HUDUpdated: updated}, nil
}

func frameInput(f playback.Frame) observer.Input {
	return observer.Input{Position: f.Position, Direction: f.Direction, PrevDirection: f.PrevDirection}
}

func (e *Engine) Play() error {
	return e.control("play", func(p *playback.Player) error { p.Play(); return nil })
}

// Pause is safe to call at any time, e.g. when the view loses visibility.
func (e *Engine) Pause() error {
	return e.control("pause", func(p *playback.Player) error { p.Pause(); return nil })
}

func (e *Engine) Seek(t float64) error {
	return e.control("seek", func(p *playback.Player) error { return p.Seek(t) })
}

func (e *Engine) StepToSegment(i int) error {
	return e.control("step", func(p *playback.Player) error { return p.StepToSegment(i) })
}

func (e *Engine) SetSpeed(speed float64) error {
	return e.control("speed", func(p *playback.Player) error { return p.SetSpeed(speed) })
}

func (e *Engine) control(action string, fn func(*playback.Player) error) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	if err := fn(s.player); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	e.log.Debug("control", slog.String("action", action), slog.Float64("elapsed_s", s.player.Cursor().ElapsedWorldTimeS))
	if e.metrics != nil {
		e.metrics.RecordControl(action)
	}
	return nil
}

// Segments returns a copy of the active route's segments.
func (e *Engine) Segments() ([]segment.Segment, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	return append([]segment.Segment(nil), s.Route.Segments...), nil
}

func (e *Engine) HUD() (playback.HUD, error) {
	s, err := e.current()
	if err != nil {
		return playback.HUD{}, err
	}
	return s.player.HUD(), nil
}

func (e *Engine) Cursor() (playback.Cursor, error) {
	s, err := e.current()
	if err != nil {
		return playback.Cursor{}, err
	}
	return s.player.Cursor(), nil
}

// SegmentsCompleted lists the destination IDs of segments behind the cursor.
func (e *Engine) SegmentsCompleted() ([]graph.NodeID, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	return s.player.SegmentsCompleted(), nil
}

func (e *Engine) Pose() (observer.Pose, error) {
	s, err := e.current()
	if err != nil {
		return observer.Pose{}, err
	}
	return s.observer.Pose(), nil
}

// SetFollow toggles follow mode. With follow off the pose only changes via SetPose.
func (e *Engine) SetFollow(enabled bool) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	s.observer.SetFollow(enabled)
	return nil
}

func (e *Engine) SetPose(p observer.Pose) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	s.observer.SetPose(p)
	return nil
}

// CrossCheck compares an external validation report with the active graph's
// own kinematics.
func (e *Engine) CrossCheck(report validation.Report, tol float64) ([]validation.Mismatch, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	mismatches, err := validation.CrossCheck(s.Graph, report, tol)
	if err != nil {
		return nil, err
	}
	for _, m := range mismatches {
		e.log.Warn("report_mismatch", slog.String("detail", m.String()))
	}
	return mismatches, nil
}

// Summary describes the active route.
func (s *Session) Summary() RouteSummary {
	return RouteSummary{
		Segments:       append([]segment.Segment(nil), s.Route.Segments...),
		TotalDurationS: s.Route.TotalDuration(),
		Absolute:       s.Route.Absolute,
		Mode:           s.Route.Mode,
		Conflicts:      s.Timeline.Conflicts,
	}
}

// Following reports whether the observer is in follow mode.
func (s *Session) Following() bool { return s.observer.Following() }
