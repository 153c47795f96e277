package playback

import (
	"fmt"
	"strings"

	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
)

// HUD is the display snapshot derived from the cursor.
type HUD struct {
	State              State        `json:"state"`
	SegmentIndex       int          `json:"segment_index"`
	SegmentCount       int          `json:"segment_count"`
	SourceID           graph.NodeID `json:"source_id"`
	DestID             graph.NodeID `json:"dest_id"`
	Fraction           float64      `json:"fraction"`
	ElapsedWorldTimeS  float64      `json:"elapsed_world_time_s"`
	ElapsedProperTimeS float64      `json:"elapsed_proper_time_s"`
	TotalDurationS     float64      `json:"total_duration_s"`
	AbsoluteEpochS     *float64     `json:"absolute_epoch_s,omitempty"`
	VelocityFractionC  float64      `json:"velocity_fraction_c"`
	DilationFactor     float64      `json:"dilation_factor"`
	Risky              bool         `json:"risky"`
	Speed              float64      `json:"speed"`
}

// Frame is everything a renderer needs for one animation tick.
type Frame struct {
	HUD           HUD       `json:"hud"`
	Position      geom.Vec3 `json:"position"`
	Direction     geom.Vec3 `json:"direction"`
	PrevDirection geom.Vec3 `json:"prev_direction"`
}

// String renders the HUD as a compact single-line status.
func (h HUD) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] seg %d/%d %s→%s %.0f%%", h.State, h.SegmentIndex+1, h.SegmentCount, h.SourceID, h.DestID, h.Fraction*100)
	fmt.Fprintf(&b, " t=%.2fs τ=%.2fs", h.ElapsedWorldTimeS, h.ElapsedProperTimeS)
	if h.AbsoluteEpochS != nil {
		fmt.Fprintf(&b, " epoch=%.2f", *h.AbsoluteEpochS)
	}
	fmt.Fprintf(&b, " β=%.3f γ=%.3f x%g", h.VelocityFractionC, h.DilationFactor, h.Speed)
	if h.Risky {
		b.WriteString(" RISK")
	}
	return b.String()
}
