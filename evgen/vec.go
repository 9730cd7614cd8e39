package evgen

import "math"

// Vec3 is a cartesian 3-vector in the geometry's length units (cm).
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Mag returns the euclidean norm of v.
func (v Vec3) Mag() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Unit returns v normalized to unit length. The zero vector maps to +z so
// that a degenerate beam direction still yields a usable ray.
func (v Vec3) Unit() Vec3 {
	m := v.Mag()
	if m == 0 {
		return Vec3{0, 0, 1}
	}
	return v.Scale(1 / m)
}
