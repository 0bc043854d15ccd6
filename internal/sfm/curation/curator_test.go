package curation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/structure.report/internal/sfm"
	"github.com/banshee-data/structure.report/internal/sfm/camera"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
	"github.com/banshee-data/structure.report/internal/testutil"
)

var testPoints = []geom.Vec3{
	{X: 0.3, Y: -0.2, Z: 0.4},
	{X: -0.5, Y: 0.1, Z: 0.8},
	{X: 0.0, Y: 0.6, Z: 0.2},
}

func noRobustConfig(thresh float64) sfm.Config {
	cfg := sfm.DefaultConfig()
	cfg.ReprojErrorThresh = thresh
	return cfg
}

func TestCuratorAcceptsCleanTracks(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(5, 5, 1.5)

	tracks := make([]sfm.Track2D, 0, len(testPoints))
	for _, p := range testPoints {
		tracks = append(tracks, testutil.ProjectTrack(reg, p, 0, 1, 2, 3))
	}

	curator := NewCurator(Config{MinTrackLength: 3})
	result, err := curator.Run(context.Background(), tracks, reg, noRobustConfig(1.0))
	require.NoError(t, err)

	require.Len(t, result.Landmarks, len(testPoints))
	// Output order follows input track order regardless of scheduling.
	for k, lm := range result.Landmarks {
		assert.Less(t, lm.Point.Sub(testPoints[k]).Norm(), 1e-3, "landmark %d out of order or inaccurate", k)
	}
	assert.Equal(t, len(testPoints), result.Stats.Accepted)
	assert.Equal(t, len(testPoints), result.Stats.Tracks)
	assert.Equal(t, reg.Len(), result.Cameras.Len())
}

func TestCuratorMinimumSupport(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(5, 5, 1.5)

	tracks := []sfm.Track2D{
		testutil.ProjectTrack(reg, testPoints[0], 0, 1, 2, 3), // support 4
		testutil.ProjectTrack(reg, testPoints[1], 0, 2),       // support 2, below minimum
	}

	curator := NewCurator(Config{MinTrackLength: 3})
	result, err := curator.Run(context.Background(), tracks, reg, noRobustConfig(1.0))
	require.NoError(t, err)

	assert.Len(t, result.Landmarks, 1)
	assert.Equal(t, 1, result.Stats.Accepted)
	assert.Equal(t, 1, result.Stats.InsufficientSupport)
}

func TestCuratorIsolatesTrackFailures(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(5, 5, 1.5)

	tracks := []sfm.Track2D{
		sfm.NewTrack2D(nil), // under-determined
		sfm.NewTrack2D([]sfm.Measurement{{Camera: 99, Pixel: geom.Vec2{}}}), // unregistered
		testutil.ProjectTrack(reg, testPoints[0], 0, 1, 2),
		testutil.OffsetPixel(testutil.ProjectTrack(reg, testPoints[1], 0, 1, 2), 1, 80, 0), // reprojection reject
	}

	curator := NewCurator(Config{MinTrackLength: 2})
	result, err := curator.Run(context.Background(), tracks, reg, noRobustConfig(1.0))
	require.NoError(t, err)

	require.Len(t, result.Landmarks, 1)
	assert.Equal(t, 2, result.Stats.Rejected[sfm.RejectUnderDetermined])
	assert.Equal(t, 1, result.Stats.Rejected[sfm.RejectReprojection])
	assert.Equal(t, 1, result.Stats.Accepted)
}

func TestCuratorFatalConfigError(t *testing.T) {
	t.Parallel()
	// Cameras sharing a centre give a zero baseline weight total, which
	// must abort the whole pass.
	centre := geom.Vec3{X: 5, Z: 1.5}
	reg := camera.Registry{
		0: testutil.LookAtCamera(centre, geom.Vec3{}),
		1: testutil.LookAtCamera(centre, geom.Vec3{X: 0.5}),
	}
	track := testutil.ProjectTrack(reg, geom.Vec3{X: 0.1, Z: 0.2}, 0, 1)

	cfg := sfm.DefaultConfig()
	cfg.Mode = sfm.ModeSampleBiasedBaseline
	curator := NewCurator(DefaultConfig())

	_, err := curator.Run(context.Background(), []sfm.Track2D{track}, reg, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, sfm.ErrNonPositiveWeights)
}

func TestCuratorContextCancelled(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(5, 5, 1.5)
	tracks := []sfm.Track2D{testutil.ProjectTrack(reg, testPoints[0], 0, 1, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCurator(DefaultConfig()).Run(ctx, tracks, reg, noRobustConfig(1.0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCuratorEmptyInput(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(3, 5, 1.5)

	result, err := NewCurator(DefaultConfig()).Run(context.Background(), nil, reg, noRobustConfig(1.0))
	require.NoError(t, err)
	assert.Empty(t, result.Landmarks)
	assert.Equal(t, 0, result.Stats.Tracks)
}

func TestCuratorWorkerCounts(t *testing.T) {
	t.Parallel()
	reg := testutil.RingRegistry(5, 5, 1.5)

	tracks := make([]sfm.Track2D, 0, 20)
	for i := 0; i < 20; i++ {
		tracks = append(tracks, testutil.ProjectTrack(reg, testPoints[i%len(testPoints)], 0, 1, 2, 3))
	}

	for _, workers := range []int{0, 1, 4, 64} {
		curator := NewCurator(Config{MinTrackLength: 2, Workers: workers})
		result, err := curator.Run(context.Background(), tracks, reg, noRobustConfig(1.0))
		require.NoError(t, err)
		assert.Equal(t, 20, result.Stats.Accepted, "workers=%d", workers)
	}
}

func TestNewCuratorClampsMinimum(t *testing.T) {
	t.Parallel()
	c := NewCurator(Config{MinTrackLength: 0})
	assert.Equal(t, 2, c.Config.MinTrackLength)
}
