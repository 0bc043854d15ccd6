package sfm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/structure.report/internal/sfm"
	"github.com/banshee-data/structure.report/internal/sfm/camera"
	"github.com/banshee-data/structure.report/internal/sfm/dlt"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
	"github.com/banshee-data/structure.report/internal/testutil"
)

var scenePoint = geom.Vec3{X: 0.3, Y: -0.2, Z: 0.4}

func allModes() []sfm.Mode {
	return []sfm.Mode{
		sfm.ModeNoRobust,
		sfm.ModeSampleUniform,
		sfm.ModeSampleBiasedBaseline,
		sfm.ModeTopKBaseline,
		sfm.ModeTripletGrowth,
	}
}

func newTriangulator(reg camera.Registry, mode sfm.Mode, thresh float64) *sfm.RobustTriangulator {
	cfg := sfm.DefaultConfig()
	cfg.Mode = mode
	cfg.ReprojErrorThresh = thresh
	return sfm.NewRobustTriangulator(reg, cfg)
}

// Scenario: four noiseless measurements, NoRobust retains every one and
// recovers the point.
func TestNoRobustNoiseless(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.ProjectTrack(reg, scenePoint, 0, 1, 2, 3)

	tri := newTriangulator(reg, sfm.ModeNoRobust, 1.0)
	res, err := tri.Triangulate(track)
	require.NoError(t, err)
	require.NotNil(t, res.Landmark)

	assert.Less(t, res.Landmark.Point.Sub(scenePoint).Norm(), 1e-3)
	assert.Equal(t, track.Len(), res.Landmark.Len(),
		"NoRobust success must retain every input measurement")
	assert.Less(t, res.AvgReprojError, 1e-3)
	assert.False(t, res.CheiralityFailure)
}

// Scenario: one 50px outlier. NoRobust rejects the whole track with no
// partial retry.
func TestNoRobustRejectsOnSingleOutlier(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.OffsetPixel(testutil.ProjectTrack(reg, scenePoint, 0, 1, 2, 3), 2, 50, 0)

	tri := newTriangulator(reg, sfm.ModeNoRobust, 2.0)
	res, err := tri.Triangulate(track)
	require.NoError(t, err)
	assert.Nil(t, res.Landmark)
	assert.Equal(t, sfm.RejectReprojection, res.Reason)
}

// Scenario: same outlier, RANSAC with all six pairs in budget excludes
// exactly the contaminated camera.
func TestRansacExcludesOutlier(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.OffsetPixel(testutil.ProjectTrack(reg, scenePoint, 0, 1, 2, 3), 2, 50, 0)

	for _, mode := range []sfm.Mode{sfm.ModeSampleUniform, sfm.ModeSampleBiasedBaseline, sfm.ModeTopKBaseline} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := sfm.DefaultConfig()
			cfg.Mode = mode
			cfg.ReprojErrorThresh = 2.0
			cfg.NumHypotheses = 6 // all C(4,2) pairs
			tri := sfm.NewRobustTriangulator(reg, cfg)

			res, err := tri.Triangulate(track)
			require.NoError(t, err)
			require.NotNil(t, res.Landmark)

			assert.Equal(t, 3, res.Landmark.Len())
			for _, m := range res.Landmark.Measurements {
				assert.NotEqual(t, 2, m.Camera, "outlier camera must be excluded")
			}
			errs, _ := sfm.ReprojectionErrors(reg, res.Landmark.Point, res.Landmark.Measurements)
			for _, e := range errs {
				assert.Less(t, e, 2.0)
			}
		})
	}
}

// Any produced landmark has at least two measurements from pairwise
// distinct cameras, in every mode.
func TestLandmarkInvariant(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(6, 5, 1.5)
	track := testutil.ProjectTrack(reg, scenePoint, 0, 1, 2, 3, 4)

	for _, mode := range allModes() {
		t.Run(string(mode), func(t *testing.T) {
			tri := newTriangulator(reg, mode, 2.0)
			res, err := tri.Triangulate(track)
			require.NoError(t, err)
			require.NotNil(t, res.Landmark)

			assert.GreaterOrEqual(t, res.Landmark.Len(), 2)
			assert.True(t, sfm.NewTrack2D(res.Landmark.Measurements).DistinctCameras())
		})
	}
}

// Noiseless two-camera track triangulates with near-zero error in all
// modes.
func TestTwoViewNoiseless(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.ProjectTrack(reg, scenePoint, 0, 2)

	for _, mode := range allModes() {
		t.Run(string(mode), func(t *testing.T) {
			tri := newTriangulator(reg, mode, 1.0)
			res, err := tri.Triangulate(track)
			require.NoError(t, err)
			require.NotNil(t, res.Landmark)
			assert.LessOrEqual(t, res.AvgReprojError, 1e-3)
		})
	}
}

// Exactly two measurements from the same camera are rejected in every
// mode.
func TestSameCameraPairRejected(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := sfm.NewTrack2D([]sfm.Measurement{
		{Camera: 1, Pixel: geom.Vec2{X: 600, Y: 400}},
		{Camera: 1, Pixel: geom.Vec2{X: 700, Y: 500}},
	})

	for _, mode := range allModes() {
		t.Run(string(mode), func(t *testing.T) {
			tri := newTriangulator(reg, mode, 100.0)
			res, err := tri.Triangulate(track)
			require.NoError(t, err)
			assert.Nil(t, res.Landmark)
			assert.Equal(t, sfm.RejectUnderDetermined, res.Reason)
		})
	}
}

// Zero- and one-measurement tracks are under-determined in every mode;
// no panic, no error.
func TestUnderDeterminedTracks(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)

	for _, track := range []sfm.Track2D{
		sfm.NewTrack2D(nil),
		testutil.ProjectTrack(reg, scenePoint, 1),
	} {
		for _, mode := range allModes() {
			tri := newTriangulator(reg, mode, 1.0)
			res, err := tri.Triangulate(track)
			require.NoError(t, err)
			assert.Nil(t, res.Landmark)
			assert.Equal(t, sfm.RejectUnderDetermined, res.Reason)
		}
	}
}

// Measurements from unregistered cameras are dropped, not fatal; the
// remainder still triangulates.
func TestUnregisteredCameraDropped(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.ProjectTrack(reg, scenePoint, 0, 1, 2)
	track.Measurements = append(track.Measurements, sfm.Measurement{Camera: 42, Pixel: geom.Vec2{X: 1, Y: 1}})

	tri := newTriangulator(reg, sfm.ModeNoRobust, 1.0)
	res, err := tri.Triangulate(track)
	require.NoError(t, err)
	require.NotNil(t, res.Landmark)
	assert.Equal(t, 3, res.Landmark.Len())

	// Dropping below two usable measurements rejects the track instead.
	lone := sfm.NewTrack2D([]sfm.Measurement{
		track.Measurements[0],
		{Camera: 42, Pixel: geom.Vec2{X: 1, Y: 1}},
	})
	res, err = tri.Triangulate(lone)
	require.NoError(t, err)
	assert.Nil(t, res.Landmark)
	assert.Equal(t, sfm.RejectUnderDetermined, res.Reason)
}

// Identical track, mode and seed reproduce the identical landmark.
func TestDeterminism(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(6, 5, 1.5)
	track := testutil.OffsetPixel(testutil.ProjectTrack(reg, scenePoint, 0, 1, 2, 3, 4, 5), 4, 30, -10)

	for _, mode := range allModes() {
		t.Run(string(mode), func(t *testing.T) {
			cfg := sfm.DefaultConfig()
			cfg.Mode = mode
			cfg.ReprojErrorThresh = 2.0
			cfg.NumHypotheses = 5
			cfg.Seed = 1234
			tri := sfm.NewRobustTriangulator(reg, cfg)

			first, err := tri.Triangulate(track)
			require.NoError(t, err)
			second, err := tri.Triangulate(track)
			require.NoError(t, err)

			require.Equal(t, first.Landmark == nil, second.Landmark == nil)
			if first.Landmark != nil {
				assert.Equal(t, first.Landmark.Point, second.Landmark.Point)
				assert.Equal(t, first.Landmark.Measurements, second.Landmark.Measurements)
			}
		})
	}
}

// Growing the top-k hypothesis budget keeps the prior sample set as a
// prefix, so the winning inlier count never decreases.
func TestMonotonicHypothesisCoverage(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(6, 5, 1.5)
	track := testutil.OffsetPixel(testutil.ProjectTrack(reg, scenePoint, 0, 1, 2, 3, 4, 5), 3, 40, 0)

	prevInliers := 0
	for _, budget := range []int{1, 2, 4, 8, 15} {
		cfg := sfm.DefaultConfig()
		cfg.Mode = sfm.ModeTopKBaseline
		cfg.ReprojErrorThresh = 2.0
		cfg.NumHypotheses = budget
		tri := sfm.NewRobustTriangulator(reg, cfg)

		res, err := tri.Triangulate(track)
		require.NoError(t, err)

		inliers := 0
		if res.Landmark != nil {
			inliers = res.Landmark.Len()
		}
		assert.GreaterOrEqual(t, inliers, prevInliers,
			"budget %d selected fewer inliers than a smaller budget", budget)
		prevInliers = inliers
	}
}

// A zero total baseline weight is a configuration error, never a silent
// fallback.
func TestNonPositiveWeightsFatal(t *testing.T) {
	t.Parallel()
	// Two cameras sharing a centre: every pairwise baseline is zero.
	centre := geom.Vec3{X: 5, Y: 0, Z: 1.5}
	reg := camera.Registry{
		0: testutil.LookAtCamera(centre, geom.Vec3{}),
		1: testutil.LookAtCamera(centre, geom.Vec3{X: 0.5}),
	}
	point := geom.Vec3{X: 0.1, Y: 0.1, Z: 0.2}
	track := testutil.ProjectTrack(reg, point, 0, 1)

	for _, mode := range []sfm.Mode{sfm.ModeSampleBiasedBaseline, sfm.ModeTopKBaseline} {
		t.Run(string(mode), func(t *testing.T) {
			tri := newTriangulator(reg, mode, 2.0)
			_, err := tri.Triangulate(track)
			require.Error(t, err)
			assert.True(t, errors.Is(err, sfm.ErrNonPositiveWeights))
		})
	}
}

// An unknown mode is a configuration error.
func TestUnknownModeFatal(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.ProjectTrack(reg, scenePoint, 0, 1)

	tri := newTriangulator(reg, sfm.Mode("bogus"), 1.0)
	_, err := tri.Triangulate(track)
	require.Error(t, err)
}

// failingPrimitive always reports a cheirality failure.
type failingPrimitive struct{}

func (failingPrimitive) Triangulate([]*camera.Pinhole, []geom.Vec2) (geom.Vec3, error) {
	return geom.Vec3{}, dlt.ErrCheirality
}

// A cheirality failure on the full measurement set rejects the track
// and sets the flag.
func TestCheiralityFailureFlag(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.ProjectTrack(reg, scenePoint, 0, 1, 2)

	tri := newTriangulator(reg, sfm.ModeNoRobust, 1.0)
	tri.Primitive = failingPrimitive{}

	res, err := tri.Triangulate(track)
	require.NoError(t, err)
	assert.Nil(t, res.Landmark)
	assert.True(t, res.CheiralityFailure)
	assert.Equal(t, sfm.RejectCheirality, res.Reason)
}

// In the RANSAC modes a per-hypothesis cheirality failure is skipped:
// with every hypothesis failing there is simply no consensus, and the
// failure flag stays clear.
func TestHypothesisCheiralitySkipped(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(4, 5, 1.5)
	track := testutil.ProjectTrack(reg, scenePoint, 0, 1, 2, 3)

	tri := newTriangulator(reg, sfm.ModeSampleUniform, 1.0)
	tri.Primitive = failingPrimitive{}

	res, err := tri.Triangulate(track)
	require.NoError(t, err)
	assert.Nil(t, res.Landmark)
	assert.False(t, res.CheiralityFailure)
	assert.Equal(t, sfm.RejectNoConsensus, res.Reason)
}
