package sqlite

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/structure.report/internal/sfm"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// Run describes one persisted reconstruction pass.
type Run struct {
	RunID            string
	CreatedUnixNanos int64
	Mode             string
	ReprojThresh     float64
	TrackCount       int
	LandmarkCount    int
}

// LandmarkStore manages persistence of reconstruction runs and their
// accepted landmarks.
type LandmarkStore struct {
	db *DB
}

// NewLandmarkStore creates a LandmarkStore backed by the given database.
func NewLandmarkStore(db *DB) *LandmarkStore {
	return &LandmarkStore{db: db}
}

// SaveRun persists one reconstruction pass and all of its landmarks in
// a single transaction and returns the run record. An empty RunID is
// assigned a fresh UUID.
func (s *LandmarkStore) SaveRun(run Run, landmarks []sfm.Landmark) (Run, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedUnixNanos == 0 {
		run.CreatedUnixNanos = time.Now().UnixNano()
	}
	run.LandmarkCount = len(landmarks)

	tx, err := s.db.Begin()
	if err != nil {
		return Run{}, fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO reconstruction_runs (
			run_id, created_unix_nanos, triangulation_mode,
			reproj_error_thresh, track_count, landmark_count
		) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedUnixNanos, run.Mode,
		run.ReprojThresh, run.TrackCount, run.LandmarkCount,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	for _, lm := range landmarks {
		res, err := tx.Exec(`
			INSERT INTO landmarks (run_id, x, y, z, support_count)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, lm.Point.X, lm.Point.Y, lm.Point.Z, len(lm.Measurements),
		)
		if err != nil {
			return Run{}, fmt.Errorf("insert landmark: %w", err)
		}
		landmarkID, err := res.LastInsertId()
		if err != nil {
			return Run{}, fmt.Errorf("get landmark insert ID: %w", err)
		}

		for _, m := range lm.Measurements {
			_, err := tx.Exec(`
				INSERT INTO landmark_measurements (landmark_id, camera_idx, px, py)
				VALUES (?, ?, ?, ?)`,
				landmarkID, m.Camera, m.Pixel.X, m.Pixel.Y,
			)
			if err != nil {
				return Run{}, fmt.Errorf("insert measurement: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit save run: %w", err)
	}
	return run, nil
}

// GetRun returns the run record for runID.
func (s *LandmarkStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, created_unix_nanos, triangulation_mode,
		       reproj_error_thresh, track_count, landmark_count
		FROM reconstruction_runs WHERE run_id = ?`, runID)

	var run Run
	err := row.Scan(&run.RunID, &run.CreatedUnixNanos, &run.Mode,
		&run.ReprojThresh, &run.TrackCount, &run.LandmarkCount)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &run, nil
}

// GetLandmarks returns every landmark of a run with its supporting
// measurements, in insertion order.
func (s *LandmarkStore) GetLandmarks(runID string) ([]sfm.Landmark, error) {
	rows, err := s.db.Query(`
		SELECT landmark_id, x, y, z FROM landmarks
		WHERE run_id = ? ORDER BY landmark_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query landmarks: %w", err)
	}
	defer rows.Close()

	var landmarks []sfm.Landmark
	var ids []int64
	for rows.Next() {
		var id int64
		var lm sfm.Landmark
		if err := rows.Scan(&id, &lm.Point.X, &lm.Point.Y, &lm.Point.Z); err != nil {
			return nil, fmt.Errorf("scan landmark: %w", err)
		}
		ids = append(ids, id)
		landmarks = append(landmarks, lm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate landmarks: %w", err)
	}

	for k, id := range ids {
		measurements, err := s.getMeasurements(id)
		if err != nil {
			return nil, err
		}
		landmarks[k].Measurements = measurements
	}
	return landmarks, nil
}

func (s *LandmarkStore) getMeasurements(landmarkID int64) ([]sfm.Measurement, error) {
	rows, err := s.db.Query(`
		SELECT camera_idx, px, py FROM landmark_measurements
		WHERE landmark_id = ? ORDER BY rowid`, landmarkID)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var out []sfm.Measurement
	for rows.Next() {
		var m sfm.Measurement
		var px, py float64
		if err := rows.Scan(&m.Camera, &px, &py); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		m.Pixel = geom.Vec2{X: px, Y: py}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return out, nil
}

// ListRuns returns run records ordered most recent first, up to limit
// (limit <= 0 returns all).
func (s *LandmarkStore) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT run_id, created_unix_nanos, triangulation_mode,
		       reproj_error_thresh, track_count, landmark_count
		FROM reconstruction_runs ORDER BY created_unix_nanos DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.RunID, &run.CreatedUnixNanos, &run.Mode,
			&run.ReprojThresh, &run.TrackCount, &run.LandmarkCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
