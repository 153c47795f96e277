// Package geom provides the small amount of 3-D vector math shared by the
// segment builder, the playback locator and the observer controller.
package geom

import "math"

// Vec3 is a point or direction in scene units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Up is the scene's vertical axis.
var Up = Vec3{0, 1, 0}

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Len() float64         { return math.Sqrt(a.Dot(a)) }

// Cross returns a × b.
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Normalize returns the unit vector along a, or the zero vector if a has no length.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// IsZero reports whether a is the zero vector.
func (a Vec3) IsZero() bool { return a.X == 0 && a.Y == 0 && a.Z == 0 }

// Lerp interpolates between a and b; t is not clamped.
func Lerp(a, b Vec3, t float64) Vec3 {
	return a.Add(b.Sub(a).Scale(t))
}

// Angle returns the unsigned angle in radians between a and b, 0 if either is zero.
func Angle(a, b Vec3) float64 {
	na, nb := a.Normalize(), b.Normalize()
	if na.IsZero() || nb.IsZero() {
		return 0
	}
	// Clamp for rounding: acos is undefined just outside [-1, 1].
	return math.Acos(math.Max(-1, math.Min(1, na.Dot(nb))))
}

// ApproxEqual reports whether a and b are within tol on every axis.
func ApproxEqual(a, b Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}
