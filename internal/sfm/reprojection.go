package sfm

import (
	"math"

	"github.com/banshee-data/structure.report/internal/sfm/camera"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// ReprojectionErrors computes the per-measurement reprojection error of
// a candidate 3D point: the pixel distance between each observed
// measurement and the point's projection through that measurement's
// camera. A measurement whose camera is unregistered, or for which the
// point projects behind the camera, scores +Inf. The second return is
// the mean over all measurements (NaN for an empty input, +Inf if any
// measurement scored +Inf).
func ReprojectionErrors(reg camera.Registry, point geom.Vec3, measurements []Measurement) ([]float64, float64) {
	errs := make([]float64, len(measurements))
	var sum float64
	for k, m := range measurements {
		cam, ok := reg.Get(m.Camera)
		if !ok {
			errs[k] = math.Inf(1)
			sum = math.Inf(1)
			continue
		}
		px, ok := cam.Project(point)
		if !ok {
			errs[k] = math.Inf(1)
			sum = math.Inf(1)
			continue
		}
		errs[k] = m.Pixel.Sub(px).Norm()
		sum += errs[k]
	}
	if len(measurements) == 0 {
		return errs, math.NaN()
	}
	return errs, sum / float64(len(measurements))
}

// meanOf returns the mean of vals restricted to the indices where
// keep[k] is true, or +Inf when nothing is kept.
func meanOf(vals []float64, keep []bool) float64 {
	var sum float64
	var n int
	for k, v := range vals {
		if keep[k] {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}
