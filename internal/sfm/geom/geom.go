// Package geom provides the small fixed-size vector and rigid-transform
// math used by the reconstruction engine.
//
// Three-component vectors and 3x3 rotations are hand-rolled rather than
// built on gonum matrices: every operation here is a handful of fused
// multiplies on stack values, and the hot loops in triangulation call
// them per measurement.
package geom

import "math"

// Vec2 is a 2D point or displacement, typically a pixel coordinate.
type Vec2 struct {
	X, Y float64
}

// Sub returns v - u.
func (v Vec2) Sub(u Vec2) Vec2 {
	return Vec2{v.X - u.X, v.Y - u.Y}
}

// Norm returns the Euclidean length of v.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// Vec3 is a 3D point or displacement in world or camera coordinates.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + u.
func (v Vec3) Add(u Vec3) Vec3 {
	return Vec3{v.X + u.X, v.Y + u.Y, v.Z + u.Z}
}

// Sub returns v - u.
func (v Vec3) Sub(u Vec3) Vec3 {
	return Vec3{v.X - u.X, v.Y - u.Y, v.Z - u.Z}
}

// Scale returns s * v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v.X, s * v.Y, s * v.Z}
}

// Dot returns the inner product of v and u.
func (v Vec3) Dot(u Vec3) float64 {
	return v.X*u.X + v.Y*u.Y + v.Z*u.Z
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}
