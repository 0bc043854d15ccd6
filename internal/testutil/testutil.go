// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic-scene construction so that the
// estimation packages can test against geometrically exact cameras and
// tracks without duplicating setup code.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/structure.report/internal/sfm"
	"github.com/banshee-data/structure.report/internal/sfm/camera"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// DefaultIntrinsics is a plausible 1-megapixel calibration used by all
// fixture cameras.
var DefaultIntrinsics = camera.Intrinsics{Fx: 1000, Fy: 1000, Cx: 640, Cy: 480}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// LookAtCamera builds a camera at centre whose optical axis points at
// target, with an up direction as close to world +Z as the geometry
// allows.
func LookAtCamera(centre, target geom.Vec3) *camera.Pinhole {
	fwd := normalize(target.Sub(centre)) // camera +Z
	up := geom.Vec3{Z: 1}
	if math.Abs(fwd.Dot(up)) > 0.999 {
		up = geom.Vec3{Y: 1}
	}
	right := normalize(cross(up, fwd))
	down := cross(fwd, right) // camera +Y (image y grows downward)

	r := geom.Rot3{
		right.X, down.X, fwd.X,
		right.Y, down.Y, fwd.Y,
		right.Z, down.Z, fwd.Z,
	}
	return camera.NewPinhole(DefaultIntrinsics, geom.Pose{R: r, T: centre})
}

// RingRegistry builds n cameras evenly spaced on a circle of the given
// radius in the z = height plane, all looking at the origin. Camera
// indices are 0..n-1.
func RingRegistry(n int, radius, height float64) camera.Registry {
	reg := make(camera.Registry, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		centre := geom.Vec3{
			X: radius * math.Cos(theta),
			Y: radius * math.Sin(theta),
			Z: height,
		}
		reg[i] = LookAtCamera(centre, geom.Vec3{})
	}
	return reg
}

// ProjectTrack builds a noiseless track by projecting point through the
// given cameras, in order. Panics if the point is behind any of them;
// fixtures are expected to be geometrically valid.
func ProjectTrack(reg camera.Registry, point geom.Vec3, cameraIdxs ...int) sfm.Track2D {
	measurements := make([]sfm.Measurement, 0, len(cameraIdxs))
	for _, idx := range cameraIdxs {
		cam, ok := reg.Get(idx)
		if !ok {
			panic("testutil: unregistered fixture camera")
		}
		px, ok := cam.Project(point)
		if !ok {
			panic("testutil: fixture point behind camera")
		}
		measurements = append(measurements, sfm.Measurement{Camera: idx, Pixel: px})
	}
	return sfm.NewTrack2D(measurements)
}

// OffsetPixel returns a copy of the track with measurement k's pixel
// shifted by (dx, dy), turning it into a controlled outlier.
func OffsetPixel(track sfm.Track2D, k int, dx, dy float64) sfm.Track2D {
	out := make([]sfm.Measurement, len(track.Measurements))
	copy(out, track.Measurements)
	out[k].Pixel.X += dx
	out[k].Pixel.Y += dy
	return sfm.NewTrack2D(out)
}

func normalize(v geom.Vec3) geom.Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

func cross(a, b geom.Vec3) geom.Vec3 {
	return geom.Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}
