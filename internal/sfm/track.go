package sfm

import (
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// Measurement is a single 2D observation of a scene point: the index of
// the camera that saw it and the observed pixel coordinate.
type Measurement struct {
	Camera int
	Pixel  geom.Vec2
}

// Track2D is an ordered sequence of 2D observations believed to image
// the same physical scene point across several cameras. Tracks are
// produced once by the track-assembly stage and consumed exactly once
// by triangulation.
type Track2D struct {
	Measurements []Measurement
}

// NewTrack2D creates a track over the given measurements.
func NewTrack2D(measurements []Measurement) Track2D {
	return Track2D{Measurements: measurements}
}

// Len returns the number of measurements in the track.
func (t Track2D) Len() int {
	return len(t.Measurements)
}

// Measurement returns the k-th measurement.
func (t Track2D) Measurement(k int) Measurement {
	return t.Measurements[k]
}

// Subset derives a sub-track containing the measurements at the given
// indices, in the given order.
func (t Track2D) Subset(idxs []int) Track2D {
	sub := make([]Measurement, 0, len(idxs))
	for _, k := range idxs {
		sub = append(sub, t.Measurements[k])
	}
	return Track2D{Measurements: sub}
}

// DistinctCameras reports whether every measurement in the track comes
// from a different camera.
func (t Track2D) DistinctCameras() bool {
	seen := make(map[int]struct{}, len(t.Measurements))
	for _, m := range t.Measurements {
		if _, dup := seen[m.Camera]; dup {
			return false
		}
		seen[m.Camera] = struct{}{}
	}
	return true
}

// Landmark is a reconstructed 3D scene point together with the 2D
// measurements that support it. A valid landmark has at least two
// measurements from pairwise-distinct cameras, each reprojecting within
// the configured error threshold.
type Landmark struct {
	Point        geom.Vec3
	Measurements []Measurement
}

// Len returns the number of supporting measurements.
func (l *Landmark) Len() int {
	return len(l.Measurements)
}
