// Package segment turns a planned path into an ordered list of motion
// segments with spatial endpoints, durations, optional absolute epochs and
// precomputed kinematics.
package segment

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/kinematics"
	"github.com/cxd309/spacetime-engine/internal/layout"
	"github.com/cxd309/spacetime-engine/internal/timeline"
)

// Mode selects how endpoints are placed.
type Mode string

const (
	// ModeSpatial uses layout positions unchanged.
	ModeSpatial Mode = "spatial"
	// ModeSpaceTime lifts each endpoint along the time axis by its time coordinate.
	ModeSpaceTime Mode = "space-time"
)

var (
	ErrShortPath       = errors.New("path must contain at least two states")
	ErrMissingPosition = errors.New("no layout position for state")
	ErrUnknownMode     = errors.New("unknown display mode")
)

// Options controls segment placement.
type Options struct {
	Mode      Mode      `json:"mode" yaml:"mode"`
	TimeScale float64   `json:"time_scale" yaml:"time_scale"` // scene units per second
	TimeAxis  geom.Vec3 `json:"time_axis" yaml:"-"`
}

// DefaultOptions returns spatial mode with one scene unit per second along +Y.
func DefaultOptions() Options {
	return Options{Mode: ModeSpatial, TimeScale: 1, TimeAxis: geom.Up}
}

// Segment is one traversed edge resolved for playback.
type Segment struct {
	SourceID       graph.NodeID              `json:"source_id"`
	DestID         graph.NodeID              `json:"dest_id"`
	From           geom.Vec3                 `json:"from"`
	To             geom.Vec3                 `json:"to"`
	DurationS      float64                   `json:"duration_s"`
	DepartureEpoch *float64                  `json:"departure_epoch,omitempty"`
	ArrivalEpoch   *float64                  `json:"arrival_epoch,omitempty"`
	RiskProb       float64                   `json:"risk_prob"`
	Kinematics     kinematics.EdgeKinematics `json:"kinematics"`
	Warnings       []string                  `json:"warnings,omitempty"`
}

// Direction returns the unit vector from From to To, zero for a degenerate segment.
func (s Segment) Direction() geom.Vec3 { return s.To.Sub(s.From).Normalize() }

// ProperTimeS is the crew-clock time elapsed over the whole segment.
func (s Segment) ProperTimeS() float64 { return s.DurationS / s.Kinematics.DilationFactor }

// EpochSpanS returns arrival − departure, clamped at 0, when both epochs are
// resolved.
func (s Segment) EpochSpanS() (float64, bool) {
	if !s.HasEpochs() {
		return 0, false
	}
	return math.Max(0, *s.ArrivalEpoch-*s.DepartureEpoch), true
}

// HasEpochs reports whether both absolute endpoints are resolved.
func (s Segment) HasEpochs() bool { return s.DepartureEpoch != nil && s.ArrivalEpoch != nil }

// Risky reports whether the segment's risk probability crosses the warning threshold.
func (s Segment) Risky() bool { return s.RiskProb >= kinematics.HighRiskThreshold }

// Route is the ordered segment list for one path. It is rebuilt wholesale on
// every path change.
type Route struct {
	Path     []graph.NodeID `json:"path"`
	Segments []Segment      `json:"segments"`
	// Absolute is true when the timeline has an absolute reference and every
	// segment has both epochs resolved.
	Absolute bool `json:"absolute"`
	Mode     Mode `json:"mode"`
}

// SumDurations adds up segment durations.
func (r *Route) SumDurations() float64 {
	var sum float64
	for _, s := range r.Segments {
		sum += s.DurationS
	}
	return sum
}

// AbsoluteSpan returns lastArrival − firstDeparture when the route is absolute.
func (r *Route) AbsoluteSpan() (float64, bool) {
	if !r.Absolute || len(r.Segments) == 0 {
		return 0, false
	}
	return *r.Segments[len(r.Segments)-1].ArrivalEpoch - *r.Segments[0].DepartureEpoch, true
}

// TotalDuration is the absolute span for absolute routes, otherwise the sum of durations.
func (r *Route) TotalDuration() float64 {
	if span, ok := r.AbsoluteSpan(); ok {
		return math.Max(0, span)
	}
	return r.SumDurations()
}

// StartEpoch returns the first departure epoch of an absolute route.
func (r *Route) StartEpoch() (float64, bool) {
	if !r.Absolute || len(r.Segments) == 0 {
		return 0, false
	}
	return *r.Segments[0].DepartureEpoch, true
}

// Build resolves path into a Route. It fails with graph.ErrMissingEdge if any
// consecutive pair has no edge; no partial route is returned.
func Build(path []graph.NodeID, g *graph.Graph, l layout.Layout, times timeline.Result, opts Options) (*Route, error) {
	if len(path) < 2 {
		return nil, ErrShortPath
	}
	switch opts.Mode {
	case ModeSpatial, ModeSpaceTime:
	case "":
		opts.Mode = ModeSpatial
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}

	segs := make([]Segment, 0, len(path)-1)
	absolute := times.HasAbsoluteReference
	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		e, err := g.GetEdge(u, v)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		from, ok := l.Position(u)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingPosition, u)
		}
		to, ok := l.Position(v)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingPosition, v)
		}

		k := kinematics.Compute(e.Attributes)
		seg := Segment{
			SourceID:       u,
			DestID:         v,
			From:           from,
			To:             to,
			DepartureEpoch: resolveEpoch(e.Attributes.EarthDepartureEpochS, times.Times, u),
			ArrivalEpoch:   resolveEpoch(e.Attributes.EarthArrivalEpochS, times.Times, v),
			Kinematics:     k,
			Warnings:       kinematics.Warnings(e.Attributes, k),
		}
		if e.Attributes.RiskProb != nil {
			seg.RiskProb = *e.Attributes.RiskProb
		}
		span, hasSpan := seg.EpochSpanS()
		switch {
		case k.DurationKnown:
			seg.DurationS = k.DurationS
			// Inferred epochs can contradict the duration too.
			if hasSpan && kinematics.DurationsDisagree(k.DurationS, span) && !slices.Contains(seg.Warnings, kinematics.WarnDurationEpochs) {
				seg.Warnings = append(seg.Warnings, kinematics.WarnDurationEpochs)
			}
		case hasSpan:
			seg.DurationS = span
		}
		if !seg.HasEpochs() {
			absolute = false
		}
		segs = append(segs, seg)
	}

	r := &Route{
		Path:     append([]graph.NodeID(nil), path...),
		Segments: segs,
		Absolute: absolute,
		Mode:     opts.Mode,
	}
	if opts.Mode == ModeSpaceTime {
		liftIntoTime(r, opts)
	}
	return r, nil
}

// resolveEpoch prefers the edge's explicit epoch, then the inferred node time.
func resolveEpoch(explicit *float64, times timeline.NodeTime, node graph.NodeID) *float64 {
	if explicit != nil && !math.IsNaN(*explicit) && !math.IsInf(*explicit, 0) {
		v := *explicit
		return &v
	}
	if t, ok := times.Get(node); ok {
		return &t
	}
	return nil
}

// liftIntoTime offsets endpoints along the time axis. Absolute routes use
// epoch − earliest epoch; relative routes use cumulative duration.
func liftIntoTime(r *Route, opts Options) {
	axis := opts.TimeAxis.Normalize()
	if axis.IsZero() {
		axis = geom.Up
	}
	scale := opts.TimeScale
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}

	if r.Absolute {
		ref := math.Inf(1)
		for _, s := range r.Segments {
			ref = math.Min(ref, math.Min(*s.DepartureEpoch, *s.ArrivalEpoch))
		}
		for i := range r.Segments {
			s := &r.Segments[i]
			s.From = s.From.Add(axis.Scale((*s.DepartureEpoch - ref) * scale))
			s.To = s.To.Add(axis.Scale((*s.ArrivalEpoch - ref) * scale))
		}
		return
	}

	var t float64
	for i := range r.Segments {
		s := &r.Segments[i]
		s.From = s.From.Add(axis.Scale(t * scale))
		t += s.DurationS
		s.To = s.To.Add(axis.Scale(t * scale))
	}
}
