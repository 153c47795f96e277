// Package kinematics derives per-leg relativistic quantities from raw edge
// attributes: velocity as a fraction of light speed, the dilation factor, and
// the proper (crew) time elapsed along the leg.
//
// Compute is total: it never fails. Missing or unusable inputs degrade to
// "no implied motion" or "duration unknown" instead of producing an error, and
// superluminal inputs are clamped just below c. Flagging those conditions is
// the caller's job (see Warnings).
package kinematics

import (
	"math"

	"github.com/cxd309/spacetime-engine/internal/graph"
)

// SpeedOfLight is c in metres per second.
const SpeedOfLight = 299_792_458.0

// MaxVelocityFraction is the clamp applied to v/c so the dilation formula stays finite.
const MaxVelocityFraction = 1 - 1e-6

// EdgeKinematics is derived from an edge's attributes and never mutated.
type EdgeKinematics struct {
	VelocityFractionC float64 `json:"velocity_fraction_c"`
	DilationFactor    float64 `json:"dilation_factor"` // >= 1
	DurationS         float64 `json:"duration_s"`      // 0 when !DurationKnown
	ProperTimeS       float64 `json:"proper_time_s"`   // 0 when !DurationKnown
	DurationKnown     bool    `json:"duration_known"`
	// Superluminal is set when the unclamped distance/duration exceeds c.
	Superluminal bool `json:"superluminal,omitempty"`
}

// ResolveDuration returns the leg's Earth-frame duration: duration_s when
// present, otherwise arrival − departure when both epochs are present.
// A negative or non-finite result is reported as unknown.
func ResolveDuration(a graph.Attributes) (float64, bool) {
	var d float64
	switch {
	case a.DurationS != nil:
		d = *a.DurationS
	case a.EarthDepartureEpochS != nil && a.EarthArrivalEpochS != nil:
		d = *a.EarthArrivalEpochS - *a.EarthDepartureEpochS
	default:
		return 0, false
	}
	if !finite(d) || d < 0 {
		return 0, false
	}
	return d, true
}

// Compute maps an edge's attributes to its kinematics.
func Compute(a graph.Attributes) EdgeKinematics {
	k := EdgeKinematics{DilationFactor: 1}

	dur, known := ResolveDuration(a)
	if known {
		k.DurationS = dur
		k.DurationKnown = true
	}

	var v float64
	if a.DistanceM != nil && known && dur > 0 {
		if dist := *a.DistanceM; finite(dist) && dist > 0 {
			v = dist / dur
		}
	}

	if v > 0 {
		beta := v / SpeedOfLight
		if beta > 1 {
			k.Superluminal = true
		}
		k.VelocityFractionC = math.Min(beta, MaxVelocityFraction)
		k.DilationFactor = LorentzFactor(k.VelocityFractionC)
	}

	if known {
		k.ProperTimeS = dur / k.DilationFactor
	}
	return k
}

// LorentzFactor returns 1/sqrt(1-β²) for β in [0, 1). β is clamped into that range.
func LorentzFactor(beta float64) float64 {
	if !finite(beta) || beta <= 0 {
		return 1
	}
	beta = math.Min(beta, MaxVelocityFraction)
	return 1 / math.Sqrt(1-beta*beta)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
