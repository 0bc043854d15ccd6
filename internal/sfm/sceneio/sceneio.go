// Package sceneio reads and writes the JSON interchange files used by
// the sfm command: calibrated camera registries with 2D track sets on
// the way in, accepted landmark sets on the way out. The core
// estimation packages never touch files; this codec exists for the
// runner only.
package sceneio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/structure.report/internal/sfm"
	"github.com/banshee-data/structure.report/internal/sfm/camera"
	"github.com/banshee-data/structure.report/internal/sfm/geom"
)

// CameraRecord is the JSON form of one calibrated camera.
type CameraRecord struct {
	Index    int        `json:"index"`
	Fx       float64    `json:"fx"`
	Fy       float64    `json:"fy"`
	Cx       float64    `json:"cx"`
	Cy       float64    `json:"cy"`
	Rotation [9]float64 `json:"rotation"` // world-from-camera, row-major
	Centre   [3]float64 `json:"centre"`   // camera centre in world coordinates
}

// MeasurementRecord is the JSON form of one 2D observation.
type MeasurementRecord struct {
	Camera int        `json:"camera"`
	Pixel  [2]float64 `json:"pixel"`
}

// TrackRecord is the JSON form of one 2D track.
type TrackRecord struct {
	Measurements []MeasurementRecord `json:"measurements"`
}

// Scene is the on-disk input to a reconstruction pass.
type Scene struct {
	Cameras []CameraRecord `json:"cameras"`
	Tracks  []TrackRecord  `json:"tracks"`
}

// LandmarkRecord is the JSON form of one accepted landmark.
type LandmarkRecord struct {
	Point        [3]float64          `json:"point"`
	Measurements []MeasurementRecord `json:"measurements"`
}

// ResultFile is the on-disk output of a reconstruction pass.
type ResultFile struct {
	Cameras   []CameraRecord   `json:"cameras"`
	Landmarks []LandmarkRecord `json:"landmarks"`
}

// LoadScene reads a scene file and converts it to the in-memory camera
// registry and track set.
func LoadScene(path string) (camera.Registry, []sfm.Track2D, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read scene: %w", err)
	}

	var scene Scene
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, nil, fmt.Errorf("parse scene: %w", err)
	}

	reg := make(camera.Registry, len(scene.Cameras))
	for _, rec := range scene.Cameras {
		if _, dup := reg[rec.Index]; dup {
			return nil, nil, fmt.Errorf("duplicate camera index %d", rec.Index)
		}
		reg[rec.Index] = decodeCamera(rec)
	}

	tracks := make([]sfm.Track2D, 0, len(scene.Tracks))
	for _, tr := range scene.Tracks {
		measurements := make([]sfm.Measurement, 0, len(tr.Measurements))
		for _, m := range tr.Measurements {
			measurements = append(measurements, sfm.Measurement{
				Camera: m.Camera,
				Pixel:  geom.Vec2{X: m.Pixel[0], Y: m.Pixel[1]},
			})
		}
		tracks = append(tracks, sfm.NewTrack2D(measurements))
	}
	return reg, tracks, nil
}

// WriteResult writes the registry snapshot and accepted landmarks as a
// result file.
func WriteResult(path string, reg camera.Registry, landmarks []sfm.Landmark) error {
	out := ResultFile{
		Cameras:   make([]CameraRecord, 0, reg.Len()),
		Landmarks: make([]LandmarkRecord, 0, len(landmarks)),
	}
	for idx, cam := range reg {
		if cam == nil {
			continue
		}
		out.Cameras = append(out.Cameras, encodeCamera(idx, cam))
	}
	for _, lm := range landmarks {
		rec := LandmarkRecord{
			Point: [3]float64{lm.Point.X, lm.Point.Y, lm.Point.Z},
		}
		for _, m := range lm.Measurements {
			rec.Measurements = append(rec.Measurements, MeasurementRecord{
				Camera: m.Camera,
				Pixel:  [2]float64{m.Pixel.X, m.Pixel.Y},
			})
		}
		out.Landmarks = append(out.Landmarks, rec)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func decodeCamera(rec CameraRecord) *camera.Pinhole {
	var r geom.Rot3
	copy(r[:], rec.Rotation[:])
	return camera.NewPinhole(
		camera.Intrinsics{Fx: rec.Fx, Fy: rec.Fy, Cx: rec.Cx, Cy: rec.Cy},
		geom.Pose{R: r, T: geom.Vec3{X: rec.Centre[0], Y: rec.Centre[1], Z: rec.Centre[2]}},
	)
}

func encodeCamera(idx int, cam *camera.Pinhole) CameraRecord {
	rec := CameraRecord{
		Index:  idx,
		Fx:     cam.K.Fx,
		Fy:     cam.K.Fy,
		Cx:     cam.K.Cx,
		Cy:     cam.K.Cy,
		Centre: [3]float64{cam.WTc.T.X, cam.WTc.T.Y, cam.WTc.T.Z},
	}
	copy(rec.Rotation[:], cam.WTc.R[:])
	return rec
}
