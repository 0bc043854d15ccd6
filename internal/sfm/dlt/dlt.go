// Package dlt implements multi-view point triangulation by the direct
// linear transform (DLT) of Hartley & Sturm, "Triangulation", CVIU 1997.
//
// Each observation contributes two rows to a homogeneous linear system
// A*X = 0 built from the camera projection matrices; the point is the
// right singular vector of A with the smallest singular value. A point
// that lands on or behind any contributing image plane is a cheirality
// failure, reported as ErrCheirality so callers can distinguish it from
// a rank-deficient system.
package dlt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/structure.report/internal/sfm/camera"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// RankTol is the singular-value ratio below which the homogeneous
// system is treated as rank deficient (degenerate camera geometry).
const RankTol = 1e-9

// ErrCheirality marks a triangulated point lying on or behind one or
// more of the contributing cameras.
var ErrCheirality = errors.New("dlt: triangulated point behind camera")

// ErrDegenerate marks a rank-deficient system: the viewing rays do not
// intersect in a well-defined point (e.g. identical camera centres).
var ErrDegenerate = errors.New("dlt: degenerate camera configuration")

// Triangulator solves the minimal multi-view triangulation problem.
// Implementations must report a cheirality failure as an error matching
// ErrCheirality and must not conflate it with other failure kinds.
type Triangulator interface {
	Triangulate(cams []*camera.Pinhole, pixels []geom.Vec2) (geom.Vec3, error)
}

// DLT is the stateless direct-linear-transform Triangulator. The zero
// value is ready to use.
type DLT struct{}

// Triangulate computes the 3D point observed as pixels[k] by cams[k].
// Both slices must have the same length >= 2.
func (DLT) Triangulate(cams []*camera.Pinhole, pixels []geom.Vec2) (geom.Vec3, error) {
	if len(cams) != len(pixels) {
		return geom.Vec3{}, fmt.Errorf("dlt: %d cameras but %d pixels", len(cams), len(pixels))
	}
	if len(cams) < 2 {
		return geom.Vec3{}, fmt.Errorf("dlt: need at least 2 views, got %d", len(cams))
	}

	// Two rows per observation: u*(p3 . X) - (p1 . X) = 0 and
	// v*(p3 . X) - (p2 . X) = 0, with p1..p3 the rows of P = K [R|t].
	a := mat.NewDense(2*len(cams), 4, nil)
	for k, cam := range cams {
		p := projectionMatrix(cam)
		u, v := pixels[k].X, pixels[k].Y
		for j := 0; j < 4; j++ {
			a.Set(2*k, j, u*p[2][j]-p[0][j])
			a.Set(2*k+1, j, v*p[2][j]-p[1][j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return geom.Vec3{}, ErrDegenerate
	}
	sv := svd.Values(nil)
	if sv[0] <= 0 {
		return geom.Vec3{}, ErrDegenerate
	}

	var v mat.Dense
	svd.VTo(&v)
	// Homogeneous solution: last right singular vector.
	h := [4]float64{v.At(0, 3), v.At(1, 3), v.At(2, 3), v.At(3, 3)}
	if math.Abs(h[3]) <= RankTol*sv[0] {
		// Point at infinity; the rays are (near) parallel.
		return geom.Vec3{}, ErrDegenerate
	}
	pt := geom.Vec3{X: h[0] / h[3], Y: h[1] / h[3], Z: h[2] / h[3]}

	for _, cam := range cams {
		if cam.Depth(pt) <= 0 {
			return geom.Vec3{}, ErrCheirality
		}
	}
	return pt, nil
}

// projectionMatrix builds the 3x4 matrix P = K [R|t] mapping homogeneous
// world points to homogeneous pixels, with [R|t] the camera-from-world
// transform.
func projectionMatrix(cam *camera.Pinhole) [3][4]float64 {
	cTw := cam.Pose().Inverse()
	r, t, k := cTw.R, cTw.T, cam.K

	var p [3][4]float64
	for j := 0; j < 3; j++ {
		p[0][j] = k.Fx*r[0+j] + k.Cx*r[6+j]
		p[1][j] = k.Fy*r[3+j] + k.Cy*r[6+j]
		p[2][j] = r[6+j]
	}
	p[0][3] = k.Fx*t.X + k.Cx*t.Z
	p[1][3] = k.Fy*t.Y + k.Cy*t.Z
	p[2][3] = t.Z
	return p
}
