// Package playback implements the route playback state machine: a single
// world-time cursor advanced under a play/pause/speed model, mapped onto the
// active segment, and turned into an interpolated position and HUD values.
//
// The Player is not goroutine-safe; it is driven from one animation loop.
package playback

import (
	"errors"
	"fmt"
	"math"

	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/segment"
)

// State is the playback state.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidSpeed    = fmt.Errorf("%w: speed must be a finite value > 0", ErrInvalidArgument)
	ErrEmptyRoute      = errors.New("route has no segments")
)

// DefaultHUDInterval is the minimum real time between throttled HUD updates (10 Hz).
const DefaultHUDInterval = 0.1

// Cursor is the mutable playback position.
type Cursor struct {
	ElapsedWorldTimeS float64 `json:"elapsed_world_time_s"`
	Playing           bool    `json:"playing"`
	SpeedMultiplier   float64 `json:"speed_multiplier"`
}

// Options configures a Player.
type Options struct {
	Speed       float64 // initial speed multiplier; 0 means 1
	HUDInterval float64 // seconds of real time between throttled HUD updates; 0 means DefaultHUDInterval
}

// Player owns the cursor for one route.
type Player struct {
	route   *segment.Route
	total   float64
	state   State
	elapsed float64
	speed   float64

	// cumulative world-time end of each segment, relative routes only
	cumEnd []float64
	// crew time over each segment; on absolute routes the cursor crosses a
	// segment in its epoch span, so that span is what gets dilated
	properLen []float64
	// cumulative proper time at the start of each segment
	properStart []float64

	hudInterval float64
	sinceHUD    float64
	hud         HUD
}

// NewPlayer creates an Idle player at cursor 0.
func NewPlayer(route *segment.Route, opts Options) (*Player, error) {
	if route == nil || len(route.Segments) == 0 {
		return nil, ErrEmptyRoute
	}
	speed := opts.Speed
	if speed == 0 {
		speed = 1
	}
	if !validSpeed(speed) {
		return nil, ErrInvalidSpeed
	}
	interval := opts.HUDInterval
	if interval <= 0 || math.IsNaN(interval) {
		interval = DefaultHUDInterval
	}

	p := &Player{
		route:       route,
		total:       route.TotalDuration(),
		state:       StateIdle,
		speed:       speed,
		cumEnd:      make([]float64, len(route.Segments)),
		properLen:   make([]float64, len(route.Segments)),
		properStart: make([]float64, len(route.Segments)),
		hudInterval: interval,
	}
	var world, proper float64
	for i, s := range route.Segments {
		p.properLen[i] = s.ProperTimeS()
		if span, ok := s.EpochSpanS(); ok && route.Absolute {
			p.properLen[i] = span / s.Kinematics.DilationFactor
		}
		p.properStart[i] = proper
		world += s.DurationS
		proper += p.properLen[i]
		p.cumEnd[i] = world
	}
	p.publishHUD()
	return p, nil
}

// State returns the current playback state.
func (p *Player) State() State { return p.state }

// Cursor returns a copy of the cursor.
func (p *Player) Cursor() Cursor {
	return Cursor{ElapsedWorldTimeS: p.elapsed, Playing: p.state == StatePlaying, SpeedMultiplier: p.speed}
}

// TotalDuration is the world-time length of the route.
func (p *Player) TotalDuration() float64 { return p.total }

// HUD returns the last published HUD snapshot.
func (p *Player) HUD() HUD { return p.hud }

// Play starts or resumes playback. Playing → Playing is a no-op.
func (p *Player) Play() {
	if p.state == StatePlaying {
		return
	}
	p.state = StatePlaying
	p.publishHUD()
}

// Pause stops advancing the cursor. It is idempotent and does nothing from Idle.
func (p *Player) Pause() {
	if p.state != StatePlaying {
		return
	}
	p.state = StatePaused
	p.publishHUD()
}

// Seek moves the cursor to t clamped into [0, total]. A non-finite t fails
// with ErrInvalidArgument and leaves the player unchanged.
func (p *Player) Seek(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: seek time %v", ErrInvalidArgument, t)
	}
	p.elapsed = clamp(t, 0, p.total)
	p.publishHUD()
	return nil
}

// SetSpeed changes the speed multiplier; s must be finite and > 0.
func (p *Player) SetSpeed(s float64) error {
	if !validSpeed(s) {
		return ErrInvalidSpeed
	}
	p.speed = s
	p.publishHUD()
	return nil
}

// StepToSegment seeks to the start of segment i and pauses.
func (p *Player) StepToSegment(i int) error {
	if i < 0 || i >= len(p.route.Segments) {
		return fmt.Errorf("%w: segment index %d out of range [0, %d)", ErrInvalidArgument, i, len(p.route.Segments))
	}
	p.elapsed = clamp(p.segmentStart(i), 0, p.total)
	p.state = StatePaused
	p.publishHUD()
	return nil
}

// Advance moves the cursor by dtReal × speed while playing, wrapping modulo the
// total duration so playback loops. Non-positive or non-finite dt is ignored.
func (p *Player) Advance(dtReal float64) {
	if p.state != StatePlaying || !(dtReal > 0) || math.IsInf(dtReal, 0) {
		return
	}
	if p.total <= 0 {
		p.elapsed = 0
		return
	}
	p.elapsed = math.Mod(p.elapsed+dtReal*p.speed, p.total)
}

// Tick advances by dtReal and returns the current frame. hudUpdated reports
// whether the throttled HUD snapshot was refreshed on this tick.
func (p *Player) Tick(dtReal float64) (frame Frame, hudUpdated bool) {
	p.Advance(dtReal)
	frame = p.Frame()
	if p.state != StatePlaying {
		return frame, false
	}
	if dtReal > 0 && !math.IsInf(dtReal, 0) {
		p.sinceHUD += dtReal
	}
	if p.sinceHUD >= p.hudInterval {
		p.hud = frame.HUD
		p.sinceHUD = 0
		return frame, true
	}
	return frame, false
}

// Frame computes the position and HUD values for the current cursor.
func (p *Player) Frame() Frame {
	loc := p.Locate()
	seg := p.route.Segments[loc.Index]

	proper := p.properStart[loc.Index] + p.properLen[loc.Index]*loc.Fraction
	hud := HUD{
		State:              p.state,
		SegmentIndex:       loc.Index,
		SegmentCount:       len(p.route.Segments),
		SourceID:           seg.SourceID,
		DestID:             seg.DestID,
		Fraction:           loc.Fraction,
		ElapsedWorldTimeS:  p.elapsed,
		ElapsedProperTimeS: proper,
		TotalDurationS:     p.total,
		VelocityFractionC:  seg.Kinematics.VelocityFractionC,
		DilationFactor:     seg.Kinematics.DilationFactor,
		Risky:              seg.Risky(),
		Speed:              p.speed,
	}
	if start, ok := p.route.StartEpoch(); ok {
		epoch := start + p.elapsed
		hud.AbsoluteEpochS = &epoch
	}

	prev := seg.Direction()
	if loc.Index > 0 {
		prev = p.route.Segments[loc.Index-1].Direction()
	}
	return Frame{
		HUD:           hud,
		Position:      geom.Lerp(seg.From, seg.To, loc.Fraction),
		Direction:     seg.Direction(),
		PrevDirection: prev,
	}
}

// Location is the active segment and the interpolation fraction within it.
type Location struct {
	Index    int
	Fraction float64
}

// Locate maps the cursor onto the route.
func (p *Player) Locate() Location {
	if start, ok := p.route.StartEpoch(); ok {
		return p.locateAbsolute(start + p.elapsed)
	}
	return p.locateRelative(p.elapsed)
}

// locateAbsolute finds the segment whose epoch interval contains t. In a gap
// between segments the position freezes at the end of the last arrived segment.
func (p *Player) locateAbsolute(t float64) Location {
	segs := p.route.Segments
	for i, s := range segs {
		dep, arr := *s.DepartureEpoch, *s.ArrivalEpoch
		if t >= dep && t <= arr {
			return Location{Index: i, Fraction: fraction(t-dep, arr-dep)}
		}
	}
	last := -1
	for i, s := range segs {
		if *s.ArrivalEpoch <= t {
			last = i
		}
	}
	if last < 0 {
		return Location{Index: 0, Fraction: 0}
	}
	return Location{Index: last, Fraction: 1}
}

func (p *Player) locateRelative(t float64) Location {
	for i, end := range p.cumEnd {
		if end >= t {
			start := end - p.route.Segments[i].DurationS
			return Location{Index: i, Fraction: fraction(t-start, p.route.Segments[i].DurationS)}
		}
	}
	return Location{Index: len(p.cumEnd) - 1, Fraction: 1}
}

// segmentStart returns the cursor value at which segment i begins.
func (p *Player) segmentStart(i int) float64 {
	if start, ok := p.route.StartEpoch(); ok {
		return *p.route.Segments[i].DepartureEpoch - start
	}
	return p.cumEnd[i] - p.route.Segments[i].DurationS
}

// publishHUD refreshes the HUD immediately, bypassing the throttle.
func (p *Player) publishHUD() {
	p.hud = p.Frame().HUD
	p.sinceHUD = 0
}

// SegmentsCompleted lists the IDs of segments fully behind the cursor.
func (p *Player) SegmentsCompleted() []graph.NodeID {
	loc := p.Locate()
	n := loc.Index
	if loc.Fraction >= 1 {
		n++
	}
	out := make([]graph.NodeID, 0, n)
	for _, s := range p.route.Segments[:n] {
		out = append(out, s.DestID)
	}
	return out
}

func fraction(local, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return clamp(local/duration, 0, 1)
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

func validSpeed(s float64) bool { return s > 0 && !math.IsInf(s, 0) }
