// Command sfm runs robust landmark triangulation over a scene file:
// a JSON description of calibrated cameras and 2D feature tracks. It
// prints curation statistics and optionally writes the accepted
// landmarks to a JSON result file and/or a SQLite results database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/structure.report/internal/config"
	"github.com/banshee-data/structure.report/internal/sfm"
	"github.com/banshee-data/structure.report/internal/sfm/curation"
	"github.com/banshee-data/structure.report/internal/sfm/sceneio"
	"github.com/banshee-data/structure.report/internal/sfm/storage/sqlite"
	"github.com/banshee-data/structure.report/internal/version"
)

var (
	scenePath   = flag.String("scene", "", "Path to the scene JSON file (required)")
	outPath     = flag.String("out", "", "Write accepted landmarks to this JSON file")
	dbPath      = flag.String("db", "", "Persist the run to this SQLite database")
	tuningPath  = flag.String("tuning", "", "Tuning config JSON (defaults to built-in values)")
	mode        = flag.String("mode", "", "Override triangulation mode")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("sfm %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *scenePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	triCfg := sfm.Config{
		Mode:              sfm.Mode(tuning.GetTriangulationMode()),
		ReprojErrorThresh: tuning.GetReprojErrorThresh(),
		NumHypotheses:     tuning.GetNumHypotheses(),
		Seed:              tuning.GetSeed(),
		SeedFromTrack:     tuning.GetSeedFromTrack(),
	}
	if *mode != "" {
		triCfg.Mode = sfm.Mode(*mode)
	}

	reg, tracks, err := sceneio.LoadScene(*scenePath)
	if err != nil {
		log.Fatalf("Failed to load scene: %v", err)
	}
	log.Printf("Loaded scene: %d cameras, %d tracks", reg.Len(), len(tracks))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	curator := curation.NewCurator(curation.Config{
		MinTrackLength: tuning.GetMinTrackLength(),
		Workers:        tuning.GetWorkers(),
	})
	result, err := curator.Run(ctx, tracks, reg, triCfg)
	if err != nil {
		log.Fatalf("Curation failed: %v", err)
	}

	log.Printf("Accepted %d/%d tracks (mode=%s, threshold=%.2fpx)",
		result.Stats.Accepted, result.Stats.Tracks, triCfg.Mode, triCfg.ReprojErrorThresh)
	if result.Stats.InsufficientSupport > 0 {
		log.Printf("Discarded %d landmarks below minimum support %d",
			result.Stats.InsufficientSupport, tuning.GetMinTrackLength())
	}
	for reason, n := range result.Stats.Rejected {
		log.Printf("Rejected %d tracks: %s", n, reason)
	}

	if *outPath != "" {
		if err := sceneio.WriteResult(*outPath, result.Cameras, result.Landmarks); err != nil {
			log.Fatalf("Failed to write result: %v", err)
		}
		log.Printf("Wrote %d landmarks to %s", len(result.Landmarks), *outPath)
	}

	if *dbPath != "" {
		db, err := sqlite.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open results database: %v", err)
		}
		defer db.Close()

		store := sqlite.NewLandmarkStore(db)
		run, err := store.SaveRun(sqlite.Run{
			Mode:         string(triCfg.Mode),
			ReprojThresh: triCfg.ReprojErrorThresh,
			TrackCount:   len(tracks),
		}, result.Landmarks)
		if err != nil {
			log.Fatalf("Failed to persist run: %v", err)
		}
		fmt.Printf("run_id=%s\n", run.RunID)
	}
}
