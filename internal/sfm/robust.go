package sfm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/banshee-data/structure.report/internal/monitoring"
	"github.com/banshee-data/structure.report/internal/sfm/camera"
	"github.com/banshee-data/structure.report/internal/sfm/dlt"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// Mode selects the outlier-rejection strategy of the robust triangulator.
type Mode string

const (
	// ModeNoRobust triangulates every measurement in one shot and accepts
	// only if all of them reproject within threshold. No partial retry.
	ModeNoRobust Mode = "no_robust"
	// ModeSampleUniform runs pair-sample RANSAC with uniformly random
	// hypothesis selection.
	ModeSampleUniform Mode = "sample_uniform"
	// ModeSampleBiasedBaseline runs pair-sample RANSAC with hypothesis
	// selection weighted by the baseline between the pair's cameras.
	// Wider pairs are better conditioned, so they are drawn more often.
	ModeSampleBiasedBaseline Mode = "sample_biased_baseline"
	// ModeTopKBaseline deterministically evaluates the k widest-baseline
	// pairs. No randomness.
	ModeTopKBaseline Mode = "topk_baseline"
	// ModeTripletGrowth seeds from the most consistent camera triplet and
	// greedily grows the supporting set while the average reprojection
	// error stays under threshold. Order-dependent and non-exhaustive.
	ModeTripletGrowth Mode = "triplet_growth"
)

// minimalSampleSize is the number of measurements per RANSAC hypothesis.
const minimalSampleSize = 2

// ErrNonPositiveWeights reports a hypothesis-sampling weight vector whose
// total is zero or negative. This is a configuration or registry bug and
// halts the pass rather than silently substituting uniform weights.
var ErrNonPositiveWeights = errors.New("sfm: total hypothesis sampling weight is non-positive")

// RejectReason tags why a track produced no landmark.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectUnderDetermined RejectReason = "under_determined"
	RejectCheirality      RejectReason = "cheirality"
	RejectDegenerate      RejectReason = "degenerate"
	RejectNoConsensus     RejectReason = "no_consensus"
	RejectReprojection    RejectReason = "reprojection"
)

// Config holds the per-track robust-estimation parameters. It is an
// immutable value shared read-only across all per-track workers.
type Config struct {
	Mode              Mode
	ReprojErrorThresh float64 // pixels; a measurement is an inlier when error < threshold
	NumHypotheses     int     // RANSAC budget, clamped to the number of pairs

	// Seed is the base RNG seed for the randomized sampling modes. When
	// SeedFromTrack is set, each track derives its own seed from Seed
	// combined with a hash of the track content, so results are
	// reproducible regardless of worker scheduling.
	Seed          int64
	SeedFromTrack bool
}

// DefaultConfig returns the default robust-triangulation parameters.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeNoRobust,
		ReprojErrorThresh: 3.0,
		NumHypotheses:     20,
		SeedFromTrack:     true,
	}
}

// Result is the outcome of triangulating one track. Landmark is nil on
// rejection, with Reason saying why; AvgReprojError is only meaningful
// when Landmark is non-nil.
type Result struct {
	Landmark          *Landmark
	AvgReprojError    float64
	CheiralityFailure bool
	Reason            RejectReason
}

// RobustTriangulator estimates one 3D landmark per 2D track with
// configurable outlier rejection. It is stateless between calls: a
// single instance may be shared by concurrent per-track workers as long
// as the registry is not mutated underneath it.
type RobustTriangulator struct {
	Registry  camera.Registry
	Primitive dlt.Triangulator
	Config    Config
}

// NewRobustTriangulator creates a triangulator over the given read-only
// camera registry, using the standard DLT primitive.
func NewRobustTriangulator(reg camera.Registry, cfg Config) *RobustTriangulator {
	return &RobustTriangulator{Registry: reg, Primitive: dlt.DLT{}, Config: cfg}
}

// Triangulate estimates a landmark for one track. Measurements whose
// camera is not registered are dropped with a diagnostic; a track left
// with fewer than two measurements is rejected as under-determined.
// The only returned error is a fatal configuration error
// (ErrNonPositiveWeights or an unknown mode); every per-track failure
// is absorbed into the Result.
func (t *RobustTriangulator) Triangulate(track Track2D) (Result, error) {
	usable := t.dropUnregistered(track)
	if usable.Len() < minimalSampleSize || !spansTwoCameras(usable) {
		return Result{Reason: RejectUnderDetermined}, nil
	}

	switch t.Config.Mode {
	case ModeNoRobust:
		return t.finalize(usable.Measurements, strictGate), nil

	case ModeSampleUniform, ModeSampleBiasedBaseline, ModeTopKBaseline:
		inliers, err := t.consensusInliers(usable)
		if err != nil {
			return Result{}, err
		}
		var idxs []int
		for k, in := range inliers {
			if in {
				idxs = append(idxs, k)
			}
		}
		if len(idxs) < minimalSampleSize {
			return Result{Reason: RejectNoConsensus}, nil
		}
		return t.finalize(usable.Subset(idxs).Measurements, strictGate), nil

	case ModeTripletGrowth:
		return t.growFromTriplet(usable), nil

	default:
		return Result{}, fmt.Errorf("sfm: unknown triangulation mode %q", t.Config.Mode)
	}
}

// spansTwoCameras reports whether the track observes from at least two
// distinct cameras. A track seen by a single camera, however many
// times, carries no parallax and cannot be triangulated.
func spansTwoCameras(track Track2D) bool {
	if track.Len() == 0 {
		return false
	}
	first := track.Measurement(0).Camera
	for _, m := range track.Measurements[1:] {
		if m.Camera != first {
			return true
		}
	}
	return false
}

// dropUnregistered filters out measurements whose camera index has no
// entry in the registry. Not fatal: the rest of the track is still
// usable.
func (t *RobustTriangulator) dropUnregistered(track Track2D) Track2D {
	kept := make([]Measurement, 0, track.Len())
	for _, m := range track.Measurements {
		if _, ok := t.Registry.Get(m.Camera); !ok {
			monitoring.Logf("sfm: dropping measurement for unregistered camera %d", m.Camera)
			continue
		}
		kept = append(kept, m)
	}
	return Track2D{Measurements: kept}
}

// consensusInliers runs the pair-sampling RANSAC loop and returns the
// inlier mask of the best hypothesis. The mask is all-false when no
// hypothesis produced a single inlier.
func (t *RobustTriangulator) consensusInliers(track Track2D) ([]bool, error) {
	pairs := measurementPairs(track.Len())

	numHypotheses := t.Config.NumHypotheses
	if numHypotheses > len(pairs) {
		numHypotheses = len(pairs)
	}

	samples, err := t.sampleHypotheses(track, pairs, numHypotheses)
	if err != nil {
		return nil, err
	}

	bestVotes := 0
	bestErr := math.Inf(1)
	best := make([]bool, track.Len())

	for _, s := range samples {
		m1 := track.Measurement(pairs[s][0])
		m2 := track.Measurement(pairs[s][1])
		c1, _ := t.Registry.Get(m1.Camera)
		c2, _ := t.Registry.Get(m2.Camera)

		pt, err := t.Primitive.Triangulate(
			[]*camera.Pinhole{c1, c2},
			[]geom.Vec2{m1.Pixel, m2.Pixel},
		)
		if err != nil {
			// Cheirality or degenerate pair: skip the hypothesis, never
			// fail the track and never update the running best.
			continue
		}

		// Score against every measurement in the track, not just the pair.
		errs, _ := ReprojectionErrors(t.Registry, pt, track.Measurements)
		inliers := make([]bool, len(errs))
		votes := 0
		for k, e := range errs {
			if e < t.Config.ReprojErrorThresh {
				inliers[k] = true
				votes++
			}
		}
		if votes == 0 {
			continue
		}

		// Most inliers wins; mean inlier error breaks ties.
		avg := meanOf(errs, inliers)
		if votes > bestVotes || (votes == bestVotes && avg < bestErr) {
			bestVotes = votes
			bestErr = avg
			best = inliers
		}
	}

	return best, nil
}

// measurementPairs enumerates all unordered index pairs of a track with
// n measurements, in lexicographic order.
func measurementPairs(n int) [][2]int {
	pairs := make([][2]int, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

// sampleHypotheses selects which measurement pairs to evaluate. The
// randomized modes draw without replacement from the weight
// distribution; top-k sorts by weight and takes the widest baselines.
func (t *RobustTriangulator) sampleHypotheses(track Track2D, pairs [][2]int, numHypotheses int) ([]int, error) {
	weights := make([]float64, len(pairs))
	for k := range weights {
		weights[k] = 1.0
	}

	if t.Config.Mode == ModeSampleBiasedBaseline || t.Config.Mode == ModeTopKBaseline {
		for k, p := range pairs {
			c1, _ := t.Registry.Get(track.Measurement(p[0]).Camera)
			c2, _ := t.Registry.Get(track.Measurement(p[1]).Camera)
			weights[k] = camera.Baseline(c1, c2)
		}
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total %v over %d pairs", ErrNonPositiveWeights, total, len(pairs))
	}

	if t.Config.Mode == ModeTopKBaseline {
		// Deterministic: widest baselines first, pair index breaks ties so
		// the selection is stable.
		order := make([]int, len(pairs))
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, b int) bool {
			return weights[order[a]] > weights[order[b]]
		})
		return order[:numHypotheses], nil
	}

	return weightedSampleWithoutReplacement(weights, numHypotheses, t.rngFor(track)), nil
}

// weightedSampleWithoutReplacement draws n distinct indices with
// probability proportional to the remaining weights.
func weightedSampleWithoutReplacement(weights []float64, n int, rng *rand.Rand) []int {
	remaining := make([]float64, len(weights))
	copy(remaining, weights)
	var total float64
	for _, w := range remaining {
		total += w
	}

	chosen := make([]int, 0, n)
	taken := make([]bool, len(weights))
	for len(chosen) < n && total > 0 {
		r := rng.Float64() * total
		pick := -1
		for k, w := range remaining {
			if taken[k] {
				continue
			}
			pick = k
			r -= w
			if r < 0 {
				break
			}
		}
		if pick < 0 {
			break
		}
		taken[pick] = true
		total -= remaining[pick]
		chosen = append(chosen, pick)
	}
	return chosen
}

// rngFor returns the per-track random source. With SeedFromTrack the
// seed mixes the configured base seed with a content hash of the track,
// so identical tracks reproduce identical samples no matter which worker
// runs them or in what order.
func (t *RobustTriangulator) rngFor(track Track2D) *rand.Rand {
	seed := t.Config.Seed
	if t.Config.SeedFromTrack {
		h := fnv.New64a()
		var buf [8]byte
		for _, m := range track.Measurements {
			binary.LittleEndian.PutUint64(buf[:], uint64(m.Camera))
			h.Write(buf[:])
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.Pixel.X))
			h.Write(buf[:])
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.Pixel.Y))
			h.Write(buf[:])
		}
		seed ^= int64(h.Sum64())
	}
	return rand.New(rand.NewSource(seed))
}

// gateKind selects the final acceptance rule: strict requires every
// measurement under threshold, average only bounds the mean. The growth
// mode already vets each addition against the average, so its final gate
// re-checks the same quantity.
type gateKind int

const (
	strictGate gateKind = iota
	averageGate
)

// finalize re-triangulates the selected measurement set and applies the
// acceptance gate. A cheirality failure on the full set rejects the
// track and sets the flag.
func (t *RobustTriangulator) finalize(measurements []Measurement, gate gateKind) Result {
	pt, err := t.triangulateSet(measurements)
	if errors.Is(err, dlt.ErrCheirality) {
		return Result{CheiralityFailure: true, Reason: RejectCheirality}
	}
	if err != nil {
		return Result{Reason: RejectDegenerate}
	}

	errs, avg := ReprojectionErrors(t.Registry, pt, measurements)
	switch gate {
	case strictGate:
		for _, e := range errs {
			if !(e < t.Config.ReprojErrorThresh) {
				return Result{Reason: RejectReprojection}
			}
		}
	case averageGate:
		if !(avg < t.Config.ReprojErrorThresh) {
			return Result{Reason: RejectReprojection}
		}
	}

	return Result{
		Landmark:       &Landmark{Point: pt, Measurements: measurements},
		AvgReprojError: avg,
	}
}

// triangulateSet runs the primitive over a measurement set, resolving
// each measurement's camera from the registry.
func (t *RobustTriangulator) triangulateSet(measurements []Measurement) (geom.Vec3, error) {
	cams := make([]*camera.Pinhole, len(measurements))
	pixels := make([]geom.Vec2, len(measurements))
	for k, m := range measurements {
		cam, ok := t.Registry.Get(m.Camera)
		if !ok {
			return geom.Vec3{}, fmt.Errorf("sfm: measurement %d references unregistered camera %d", k, m.Camera)
		}
		cams[k] = cam
		pixels[k] = m.Pixel
	}
	return t.Primitive.Triangulate(cams, pixels)
}
