package curation

import (
	"context"
	"runtime"
	"sync"

	"github.com/banshee-data/structure.report/internal/monitoring"
	"github.com/banshee-data/structure.report/internal/sfm"
	"github.com/banshee-data/structure.report/internal/sfm/camera"
)

// Config holds the curation-level policy, kept separate from the
// per-track estimation policy in sfm.Config.
type Config struct {
	MinTrackLength int // minimum supporting measurements for a kept landmark
	Workers        int // 0 means GOMAXPROCS
}

// DefaultConfig returns the default curation parameters.
func DefaultConfig() Config {
	return Config{MinTrackLength: 2}
}

// Stats counts per-track outcomes over one curation pass.
type Stats struct {
	Tracks              int
	Accepted            int
	InsufficientSupport int
	Rejected            map[sfm.RejectReason]int
}

// SceneResult is the hand-off to the bundle-adjustment stage: the camera
// registry snapshot and every accepted landmark, in input track order.
type SceneResult struct {
	Cameras   camera.Registry
	Landmarks []sfm.Landmark
	Stats     Stats
}

// Curator runs the robust triangulator over all tracks and applies the
// global minimum-support filter.
type Curator struct {
	Config Config
}

// NewCurator creates a curator with the given policy.
func NewCurator(cfg Config) *Curator {
	if cfg.MinTrackLength < 2 {
		cfg.MinTrackLength = 2
	}
	return &Curator{Config: cfg}
}

// Run triangulates every track against the registry snapshot and
// assembles the accepted landmarks. Tracks are independent: they are
// fanned out over a bounded worker pool and no track's failure affects
// another. Output order follows input track order regardless of worker
// scheduling. The only returned error is a fatal configuration error
// from the triangulator; ctx cancellation stops dispatching new tracks.
func (c *Curator) Run(ctx context.Context, tracks []sfm.Track2D, reg camera.Registry, triCfg sfm.Config) (*SceneResult, error) {
	tri := sfm.NewRobustTriangulator(reg, triCfg)

	workers := c.Config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(tracks) {
		workers = len(tracks)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]sfm.Result, len(tracks))
	jobs := make(chan int)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := tri.Triangulate(tracks[j])
				if err != nil {
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
					continue
				}
				results[j] = res
			}
		}()
	}

dispatch:
	for j := range tracks {
		select {
		case jobs <- j:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &SceneResult{
		Cameras: reg,
		Stats: Stats{
			Tracks:   len(tracks),
			Rejected: make(map[sfm.RejectReason]int),
		},
	}
	for _, res := range results {
		if res.Landmark == nil {
			out.Stats.Rejected[res.Reason]++
			continue
		}
		if res.Landmark.Len() < c.Config.MinTrackLength {
			monitoring.Logf("curation: track support %d below minimum %d, discarding",
				res.Landmark.Len(), c.Config.MinTrackLength)
			out.Stats.InsufficientSupport++
			continue
		}
		out.Landmarks = append(out.Landmarks, *res.Landmark)
		out.Stats.Accepted++
	}
	return out, nil
}
