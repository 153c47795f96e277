package kinematics

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cxd309/spacetime-engine/internal/graph"
)

// Warning strings attached to a leg. They are data-quality flags, never errors.
const (
	WarnSuperluminal    = "implied superluminal average speed from distance/duration"
	WarnHighBeta        = "high relativistic speed (beta>=0.9)"
	WarnHighRisk        = "high mission risk (risk_prob>=0.2)"
	WarnEpochOrder      = "arrival epoch precedes departure epoch"
	WarnInvalidDuration = "negative or non-finite duration treated as unknown"
	WarnDurationEpochs  = "duration_s disagrees with arrival - departure epochs"
)

const (
	HighBetaThreshold = 0.9
	HighRiskThreshold = 0.2

	// DurationTolerance is the relative slack allowed between duration_s and
	// the epoch span before WarnDurationEpochs is raised.
	DurationTolerance = 1e-6
)

// Warnings lists the data-quality flags for a leg given its computed kinematics.
func Warnings(a graph.Attributes, k EdgeKinematics) []string {
	var out []string
	if k.Superluminal {
		out = append(out, WarnSuperluminal)
	}
	if k.VelocityFractionC >= HighBetaThreshold {
		out = append(out, WarnHighBeta)
	}
	if a.RiskProb != nil && *a.RiskProb >= HighRiskThreshold {
		out = append(out, WarnHighRisk)
	}
	if a.EarthDepartureEpochS != nil && a.EarthArrivalEpochS != nil &&
		*a.EarthArrivalEpochS < *a.EarthDepartureEpochS {
		out = append(out, WarnEpochOrder)
	}
	if durationDisagrees(a) {
		out = append(out, WarnDurationEpochs)
	}
	if !k.DurationKnown && (a.DurationS != nil || (a.EarthDepartureEpochS != nil && a.EarthArrivalEpochS != nil)) {
		out = append(out, WarnInvalidDuration)
	}
	return out
}

// durationDisagrees reports an explicit duration that does not match a
// well-ordered pair of epochs.
func durationDisagrees(a graph.Attributes) bool {
	if a.DurationS == nil || a.EarthDepartureEpochS == nil || a.EarthArrivalEpochS == nil {
		return false
	}
	d, dep, arr := *a.DurationS, *a.EarthDepartureEpochS, *a.EarthArrivalEpochS
	if !finite(d) || !finite(dep) || !finite(arr) || arr < dep {
		return false
	}
	return DurationsDisagree(d, arr-dep)
}

// DurationsDisagree compares a leg duration with an epoch span using
// DurationTolerance as relative slack.
func DurationsDisagree(duration, span float64) bool {
	return math.Abs(duration-span) > DurationTolerance*math.Max(1, math.Max(math.Abs(duration), math.Abs(span)))
}

// Band buckets a velocity fraction for colouring legs.
type Band string

const (
	BandClassical    Band = "classical"
	BandRelativistic Band = "relativistic"
	BandUltra        Band = "ultra-relativistic"
)

// BandOf returns the colour band for a velocity fraction of c.
func BandOf(beta float64) Band {
	switch {
	case beta >= HighBetaThreshold:
		return BandUltra
	case beta >= 0.1:
		return BandRelativistic
	default:
		return BandClassical
	}
}

// Label renders a short human-readable description of a leg for the static
// graph view, e.g. "2 Gm · 10s · β=0.667 γ=1.342 τ=7.45s".
func Label(a graph.Attributes, k EdgeKinematics) string {
	s := ""
	if a.DistanceM != nil && finite(*a.DistanceM) {
		s = humanize.SIWithDigits(*a.DistanceM, 2, "m") + " · "
	}
	if k.DurationKnown {
		s += formatSeconds(k.DurationS) + " · "
	} else {
		s += "? · "
	}
	s += fmt.Sprintf("β=%.3f γ=%.3f", k.VelocityFractionC, k.DilationFactor)
	if k.DurationKnown {
		s += " τ=" + formatSeconds(k.ProperTimeS)
	}
	return s
}

func formatSeconds(sec float64) string {
	if sec < 60 {
		return fmt.Sprintf("%.3gs", sec)
	}
	if sec > math.MaxInt64/float64(time.Second) {
		return humanize.SIWithDigits(sec, 2, "s")
	}
	return time.Duration(sec * float64(time.Second)).Round(time.Second).String()
}
