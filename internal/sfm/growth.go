package sfm

import (
	"math"
	"sort"
)

// growFromTriplet implements the triplet-seeded growth mode: find the
// camera triplet with the lowest average reprojection error, rank every
// measurement against the triplet's point, then greedily grow the
// supporting set one measurement at a time, keeping an addition only if
// the set still triangulates and its average error stays under
// threshold. Greedy and order-dependent by construction: it trades
// exhaustive search for one deterministic pass.
func (t *RobustTriangulator) growFromTriplet(track Track2D) Result {
	n := track.Len()

	if n == minimalSampleSize {
		// No growth possible; a valid two-view track must span two cameras.
		if track.Measurement(0).Camera == track.Measurement(1).Camera {
			return Result{Reason: RejectUnderDetermined}
		}
		return t.finalize(track.Measurements, averageGate)
	}

	seed, seedAvg := t.bestTriplet(track)
	if seed == nil {
		return Result{Reason: RejectNoConsensus}
	}
	if !(seedAvg < t.Config.ReprojErrorThresh) {
		return Result{Reason: RejectReprojection}
	}

	seedPoint, err := t.triangulateSet(track.Subset(seed).Measurements)
	if err != nil {
		// The winning triplet triangulated moments ago; any failure here
		// is a degenerate registry change and rejects the track.
		return Result{Reason: RejectDegenerate}
	}

	// Rank all original measurements by their error against the seed
	// point, ascending; measurement index breaks ties.
	errs, _ := ReprojectionErrors(t.Registry, seedPoint, track.Measurements)
	order := make([]int, n)
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		return errs[order[a]] < errs[order[b]]
	})

	accepted := make([]Measurement, 0, n)
	acceptedCams := make(map[int]struct{}, n)
	for _, k := range order {
		m := track.Measurement(k)

		if len(accepted) == 0 {
			// The best-ranked measurement is always taken.
			accepted = append(accepted, m)
			acceptedCams[m.Camera] = struct{}{}
			continue
		}
		if _, dup := acceptedCams[m.Camera]; dup {
			// At most one measurement per camera.
			continue
		}

		candidate := append(append(make([]Measurement, 0, len(accepted)+1), accepted...), m)
		pt, err := t.triangulateSet(candidate)
		if err != nil {
			continue
		}
		if _, avg := ReprojectionErrors(t.Registry, pt, candidate); avg < t.Config.ReprojErrorThresh {
			accepted = candidate
			acceptedCams[m.Camera] = struct{}{}
		}
	}

	if len(accepted) < minimalSampleSize {
		return Result{Reason: RejectNoConsensus}
	}
	return t.finalize(accepted, averageGate)
}

// bestTriplet enumerates all distinct-camera measurement triples in
// lexicographic order and returns the indices of the one with the lowest
// average reprojection error, together with that error. Ties keep the
// earlier triple. Returns nil when no triple triangulates.
func (t *RobustTriangulator) bestTriplet(track Track2D) ([]int, float64) {
	n := track.Len()
	var best []int
	bestAvg := math.Inf(1)

	for k1 := 0; k1 < n; k1++ {
		for k2 := k1 + 1; k2 < n; k2++ {
			for k3 := k2 + 1; k3 < n; k3++ {
				triple := track.Subset([]int{k1, k2, k3})
				if !triple.DistinctCameras() {
					continue
				}
				pt, err := t.triangulateSet(triple.Measurements)
				if err != nil {
					// Cheirality on a candidate triple skips it only.
					continue
				}
				_, avg := ReprojectionErrors(t.Registry, pt, triple.Measurements)
				if avg < bestAvg {
					bestAvg = avg
					best = []int{k1, k2, k3}
				}
			}
		}
	}
	return best, bestAvg
}
