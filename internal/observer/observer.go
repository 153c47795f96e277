// Package observer implements the follow camera: each tick it computes where
// the observer would like to be (behind, above and banked into turns) and eases
// the actual pose toward it.
package observer

import (
	"errors"
	"math"

	"github.com/cxd309/spacetime-engine/internal/geom"
)

var ErrInvalidConfig = errors.New("invalid observer config")

// Config holds the follow parameters.
type Config struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	FollowDistance float64 `json:"follow_distance" yaml:"follow_distance"`
	Height         float64 `json:"height" yaml:"height"`
	BankIntensity  float64 `json:"bank_intensity" yaml:"bank_intensity"`
	// Smoothing is the per-tick blend factor in (0, 1]; 1 snaps to the desired pose.
	Smoothing float64 `json:"smoothing" yaml:"smoothing"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		FollowDistance: 8,
		Height:         3,
		BankIntensity:  2,
		Smoothing:      0.15,
	}
}

func (c Config) Validate() error {
	switch {
	case c.FollowDistance < 0 || math.IsNaN(c.FollowDistance):
		return errors.Join(ErrInvalidConfig, errors.New("follow_distance must be >= 0"))
	case c.BankIntensity < 0 || math.IsNaN(c.BankIntensity):
		return errors.Join(ErrInvalidConfig, errors.New("bank_intensity must be >= 0"))
	case !(c.Smoothing > 0 && c.Smoothing <= 1):
		return errors.Join(ErrInvalidConfig, errors.New("smoothing must be in (0, 1]"))
	}
	return nil
}

// Pose is the observer's position and look-at target.
type Pose struct {
	Position geom.Vec3 `json:"position"`
	Target   geom.Vec3 `json:"target"`
}

// Input is the moving point as seen on one tick.
type Input struct {
	Position      geom.Vec3
	Direction     geom.Vec3
	PrevDirection geom.Vec3
}

// TurnAngle returns the signed angle in radians between prev and dir in the
// horizontal plane. Left turns (counter-clockwise seen from +Y) are positive.
func TurnAngle(prev, dir geom.Vec3) float64 {
	a := geom.Angle(prev, dir)
	if prev.Cross(dir).Y < 0 {
		return -a
	}
	return a
}

// Desired computes the pose the observer would take with no smoothing.
func Desired(cfg Config, in Input) Pose {
	dir := in.Direction.Normalize()
	desired := in.Position.Sub(dir.Scale(cfg.FollowDistance)).Add(geom.Up.Scale(cfg.Height))

	if lateral := geom.Up.Cross(dir).Normalize(); !lateral.IsZero() {
		turn := TurnAngle(in.PrevDirection.Normalize(), dir)
		desired = desired.Add(lateral.Scale(cfg.BankIntensity * turn))
	}
	return Pose{Position: desired, Target: in.Position}
}

// SettleTolerance is the per-axis distance under which an eased pose snaps
// onto the desired one.
const SettleTolerance = 1e-9

// Step eases current toward the desired pose by cfg.Smoothing. With follow
// disabled the pose is returned unchanged.
func Step(cfg Config, current Pose, in Input) Pose {
	if !cfg.Enabled {
		return current
	}
	want := Desired(cfg, in)
	next := Pose{
		Position: geom.Lerp(current.Position, want.Position, cfg.Smoothing),
		Target:   geom.Lerp(current.Target, want.Target, cfg.Smoothing),
	}
	if geom.ApproxEqual(next.Position, want.Position, SettleTolerance) && geom.ApproxEqual(next.Target, want.Target, SettleTolerance) {
		return want
	}
	return next
}

// Controller owns the observer pose across ticks.
type Controller struct {
	cfg  Config
	pose Pose
}

func NewController(cfg Config, initial Pose) *Controller {
	return &Controller{cfg: cfg, pose: initial}
}

func (c *Controller) Update(in Input) Pose {
	c.pose = Step(c.cfg, c.pose, in)
	return c.pose
}

func (c *Controller) Pose() Pose { return c.pose }

// SetPose places the observer directly, for manual control.
func (c *Controller) SetPose(p Pose) { c.pose = p }

func (c *Controller) Following() bool { return c.cfg.Enabled }

func (c *Controller) SetFollow(enabled bool) { c.cfg.Enabled = enabled }

func (c *Controller) Config() Config { return c.cfg }
