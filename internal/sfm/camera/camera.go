// Package camera provides the calibrated pinhole camera model and the
// read-only camera registry shared across track triangulation.
//
// The registry is populated once by the pose-estimation stage upstream
// and is never mutated during a reconstruction pass, so it may be read
// concurrently from any number of per-track workers without locking.
package camera

import (
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// Intrinsics holds the pinhole calibration of a single camera.
type Intrinsics struct {
	Fx, Fy float64 // focal lengths in pixels
	Cx, Cy float64 // principal point in pixels
}

// Pinhole is a calibrated camera with a known world pose.
type Pinhole struct {
	K   Intrinsics
	WTc geom.Pose // world-from-camera transform
}

// NewPinhole creates a camera from its calibration and world pose.
func NewPinhole(k Intrinsics, wTc geom.Pose) *Pinhole {
	return &Pinhole{K: k, WTc: wTc}
}

// Pose returns the world-from-camera transform.
func (c *Pinhole) Pose() geom.Pose {
	return c.WTc
}

// Centre returns the camera centre in world coordinates.
func (c *Pinhole) Centre() geom.Vec3 {
	return c.WTc.T
}

// Project maps a world point into pixel coordinates. ok is false when
// the point lies on or behind the image plane (non-positive depth), in
// which case the returned pixel is meaningless.
func (c *Pinhole) Project(p geom.Vec3) (px geom.Vec2, ok bool) {
	q := c.WTc.Inverse().Apply(p) // camera-frame point
	if q.Z <= 0 {
		return geom.Vec2{}, false
	}
	return geom.Vec2{
		X: c.K.Fx*(q.X/q.Z) + c.K.Cx,
		Y: c.K.Fy*(q.Y/q.Z) + c.K.Cy,
	}, true
}

// Depth returns the depth of a world point in the camera frame.
func (c *Pinhole) Depth(p geom.Vec3) float64 {
	return c.WTc.Inverse().Apply(p).Z
}

// Baseline returns the Euclidean separation between two camera centres.
// It approximates triangulation conditioning: a wider baseline gives a
// better-conditioned intersection of the two viewing rays.
func Baseline(a, b *Pinhole) float64 {
	return a.WTc.Inverse().Compose(b.WTc).Translation().Norm()
}

// Registry is a read-only camera lookup keyed by camera index. A nil
// entry and a missing entry are both reported as absent.
type Registry map[int]*Pinhole

// Get returns the camera for idx, or nil, false when the camera index
// is not registered (an unestimated camera).
func (r Registry) Get(idx int) (*Pinhole, bool) {
	c, ok := r[idx]
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

// Len returns the number of registered cameras.
func (r Registry) Len() int {
	return len(r)
}
