package engine

import (
	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/playback"
	"github.com/cxd309/spacetime-engine/internal/segment"
	"github.com/cxd309/spacetime-engine/internal/timeline"
)

// Plan is the external planner's answer for one query.
type Plan struct {
	OK   bool           `json:"ok"`
	Path []graph.NodeID `json:"path"`
	Cost *float64       `json:"cost,omitempty"`
}

// SimulationMeta holds the identity and timing parameters for a scripted run.
type SimulationMeta struct {
	SimulationID string  `json:"simulation_id"`
	RunTime      float64 `json:"run_time"`  // real seconds
	TimeStep     float64 `json:"time_step"` // real seconds per tick
	Autoplay     bool    `json:"autoplay"`
}

// Action names accepted in a script.
const (
	ActionPlay   = "play"
	ActionPause  = "pause"
	ActionSeek   = "seek"
	ActionStep   = "step"
	ActionSpeed  = "speed"
	ActionFollow = "follow"
)

// ScriptAction is a control applied once the run clock reaches At.
type ScriptAction struct {
	At     float64 `json:"at"` // real seconds
	Action string  `json:"action"`
	Value  float64 `json:"value,omitempty"`
}

// SimulationInput is the JSON-serialisable input to a scripted run.
type SimulationInput struct {
	Meta      SimulationMeta             `json:"simulation_meta"`
	Spec      graph.GraphSpec            `json:"spec"`
	Plan      Plan                       `json:"plan"`
	Positions map[graph.NodeID]geom.Vec3 `json:"positions,omitempty"`
	Script    []ScriptAction             `json:"script,omitempty"`
}

// RouteSummary describes the route a run played back.
type RouteSummary struct {
	Segments       []segment.Segment   `json:"segments"`
	TotalDurationS float64             `json:"total_duration_s"`
	Absolute       bool                `json:"absolute"`
	Mode           segment.Mode        `json:"mode"`
	Conflicts      []timeline.Conflict `json:"conflicts,omitempty"`
}

// Snapshot is the outcome of one tick.
type Snapshot struct {
	Frame      playback.Frame `json:"frame"`
	Pose       observer.Pose  `json:"pose"`
	HUD        playback.HUD   `json:"hud"`
	HUDUpdated bool           `json:"hud_updated"`
}

// SimulationLogRow is the engine state at one run timestep.
type SimulationLogRow struct {
	Timestamp  float64       `json:"timestamp"` // real seconds
	HUD        playback.HUD  `json:"hud"`
	Position   geom.Vec3     `json:"position"`
	Pose       observer.Pose `json:"pose"`
	HUDUpdated bool          `json:"hud_updated"`
}

// SimulationLog is the complete output of a scripted run.
type SimulationLog struct {
	Meta   SimulationMeta     `json:"simulation_meta"`
	Route  RouteSummary       `json:"route"`
	Output []SimulationLogRow `json:"output"`
}
