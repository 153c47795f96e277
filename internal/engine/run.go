package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cxd309/spacetime-engine/internal/config"
)

var (
	ErrUnknownAction = errors.New("unknown script action")
	ErrInvalidMeta   = errors.New("invalid simulation_meta")
)

// Simulation replays a SimulationInput through an Engine at a fixed timestep.
type Simulation struct {
	meta   SimulationMeta
	engine *Engine
	script []ScriptAction
	next   int
}

// NewSimulation validates input and loads its route into a fresh Engine.
func NewSimulation(input SimulationInput, cfg *config.Config, opts ...Option) (*Simulation, error) {
	m := input.Meta
	if !(m.TimeStep > 0) || math.IsInf(m.TimeStep, 0) {
		return nil, fmt.Errorf("%w: time_step must be > 0", ErrInvalidMeta)
	}
	if m.RunTime < 0 || math.IsNaN(m.RunTime) || math.IsInf(m.RunTime, 0) {
		return nil, fmt.Errorf("%w: run_time must be a finite value >= 0", ErrInvalidMeta)
	}

	script := append([]ScriptAction(nil), input.Script...)
	sort.SliceStable(script, func(i, j int) bool { return script[i].At < script[j].At })
	for _, a := range script {
		switch a.Action {
		case ActionPlay, ActionPause, ActionSeek, ActionStep, ActionSpeed, ActionFollow:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
		}
	}

	e := New(cfg, append(opts, WithPositions(input.Positions))...)
	if _, err := e.Load(input.Spec, input.Plan); err != nil {
		return nil, err
	}
	if m.Autoplay {
		if err := e.Play(); err != nil {
			return nil, err
		}
	}
	return &Simulation{meta: m, engine: e, script: script}, nil
}

// Engine exposes the engine driven by the simulation.
func (s *Simulation) Engine() *Engine { return s.engine }

// Run executes the full script and returns the log. Row i is taken at
// i × time_step after applying every action due by then; the first row does
// not advance the cursor.
func (s *Simulation) Run() (SimulationLog, error) {
	log := SimulationLog{Meta: s.meta, Route: s.engine.Session().Summary()}
	steps := int(math.Floor(s.meta.RunTime/s.meta.TimeStep + 1e-9))
	for i := 0; i <= steps; i++ {
		now := float64(i) * s.meta.TimeStep
		if err := s.applyDue(now); err != nil {
			return SimulationLog{}, fmt.Errorf("at t=%.2f: %w", now, err)
		}
		dt := s.meta.TimeStep
		if i == 0 {
			dt = 0
		}
		snap, err := s.engine.Tick(dt)
		if err != nil {
			return SimulationLog{}, fmt.Errorf("at t=%.2f: %w", now, err)
		}
		log.Output = append(log.Output, SimulationLogRow{
			Timestamp:  now,
			HUD:        snap.HUD,
			Position:   snap.Frame.Position,
			Pose:       snap.Pose,
			HUDUpdated: snap.HUDUpdated,
		})
	}
	return log, nil
}

func (s *Simulation) applyDue(now float64) error {
	for s.next < len(s.script) && s.script[s.next].At <= now+1e-9 {
		a := s.script[s.next]
		s.next++
		var err error
		switch a.Action {
		case ActionPlay:
			err = s.engine.Play()
		case ActionPause:
			err = s.engine.Pause()
		case ActionSeek:
			err = s.engine.Seek(a.Value)
		case ActionStep:
			err = s.engine.StepToSegment(int(a.Value))
		case ActionSpeed:
			err = s.engine.SetSpeed(a.Value)
		case ActionFollow:
			err = s.engine.SetFollow(a.Value != 0)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RunJSON is the entry point shared by the CLI and WASM targets. It accepts a
// JSON-encoded SimulationInput, runs it with the default configuration and
// returns a JSON-encoded SimulationLog.
func RunJSON(jsonInput string) (string, error) {
	return RunJSONWithConfig(jsonInput, nil)
}

func RunJSONWithConfig(jsonInput string, cfg *config.Config, opts ...Option) (string, error) {
	var input SimulationInput
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fmt.Errorf("invalid input JSON: %w", err)
	}

	sim, err := NewSimulation(input, cfg, opts...)
	if err != nil {
		return "", err
	}

	simLog, err := sim.Run()
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
