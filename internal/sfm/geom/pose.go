package geom

import "math"

func sinCos(theta float64) (sin, cos float64) {
	return math.Sin(theta), math.Cos(theta)
}

// Rot3 is a 3x3 rotation matrix, row-major.
type Rot3 [9]float64

// IdentityRot3 returns the identity rotation.
func IdentityRot3() Rot3 {
	return Rot3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply rotates v.
func (r Rot3) Apply(v Vec3) Vec3 {
	return Vec3{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

// Transpose returns the inverse rotation.
func (r Rot3) Transpose() Rot3 {
	return Rot3{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// Mul returns the composed rotation r * s.
func (r Rot3) Mul(s Rot3) Rot3 {
	var out Rot3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += r[3*i+k] * s[3*k+j]
			}
			out[3*i+j] = sum
		}
	}
	return out
}

// Pose is a rigid transform. For a camera it is the world-from-camera
// transform wTc: Apply maps camera-frame points into the world frame,
// and T is the camera centre in world coordinates.
type Pose struct {
	R Rot3
	T Vec3
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{R: IdentityRot3()}
}

// Apply maps a point through the transform: R*v + T.
func (p Pose) Apply(v Vec3) Vec3 {
	return p.R.Apply(v).Add(p.T)
}

// Inverse returns the transform q with q.Apply(p.Apply(v)) == v.
func (p Pose) Inverse() Pose {
	rt := p.R.Transpose()
	return Pose{R: rt, T: rt.Apply(p.T).Scale(-1)}
}

// Compose returns the transform p then-applied-after q, i.e. (p*q).Apply(v)
// == p.Apply(q.Apply(v)).
func (p Pose) Compose(q Pose) Pose {
	return Pose{R: p.R.Mul(q.R), T: p.R.Apply(q.T).Add(p.T)}
}

// Translation returns the translation component of the transform.
func (p Pose) Translation() Vec3 {
	return p.T
}

// RotZ returns a rotation of theta radians about the Z axis.
func RotZ(theta float64) Rot3 {
	s, c := sinCos(theta)
	return Rot3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}

// RotY returns a rotation of theta radians about the Y axis.
func RotY(theta float64) Rot3 {
	s, c := sinCos(theta)
	return Rot3{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	}
}

// RotX returns a rotation of theta radians about the X axis.
func RotX(theta float64) Rot3 {
	s, c := sinCos(theta)
	return Rot3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}
