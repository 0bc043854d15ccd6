package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for reconstruction
// tuning parameters. Fields are pointers so that partial JSON configs
// are safe: anything omitted falls back to the Get* defaults.
type TuningConfig struct {
	// Robust triangulation params
	TriangulationMode *string  `json:"triangulation_mode,omitempty"`
	ReprojErrorThresh *float64 `json:"reproj_error_thresh,omitempty"` // pixels
	NumHypotheses     *int     `json:"num_hypotheses,omitempty"`

	// Sampling reproducibility params
	Seed          *int64 `json:"seed,omitempty"`
	SeedFromTrack *bool  `json:"seed_from_track,omitempty"`

	// Curation params
	MinTrackLength *int `json:"min_track_length,omitempty"`
	Workers        *int `json:"workers,omitempty"` // 0 = one worker per CPU
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/sfm/curation/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// validModes lists the accepted triangulation_mode values, matching the
// sfm.Mode constants.
var validModes = map[string]bool{
	"no_robust":              true,
	"sample_uniform":         true,
	"sample_biased_baseline": true,
	"topk_baseline":          true,
	"triplet_growth":         true,
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.TriangulationMode != nil && !validModes[*c.TriangulationMode] {
		return fmt.Errorf("unknown triangulation_mode %q", *c.TriangulationMode)
	}

	if c.ReprojErrorThresh != nil {
		if *c.ReprojErrorThresh <= 0 {
			return fmt.Errorf("reproj_error_thresh must be positive, got %f", *c.ReprojErrorThresh)
		}
	}

	if c.NumHypotheses != nil {
		if *c.NumHypotheses < 1 {
			return fmt.Errorf("num_hypotheses must be at least 1, got %d", *c.NumHypotheses)
		}
	}

	if c.MinTrackLength != nil {
		if *c.MinTrackLength < 2 {
			return fmt.Errorf("min_track_length must be at least 2, got %d", *c.MinTrackLength)
		}
	}

	if c.Workers != nil {
		if *c.Workers < 0 {
			return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
		}
	}

	return nil
}

// GetTriangulationMode returns the triangulation_mode value or the default.
func (c *TuningConfig) GetTriangulationMode() string {
	if c.TriangulationMode == nil {
		return "no_robust"
	}
	return *c.TriangulationMode
}

// GetReprojErrorThresh returns the reproj_error_thresh value or the default.
func (c *TuningConfig) GetReprojErrorThresh() float64 {
	if c.ReprojErrorThresh == nil {
		return 3.0
	}
	return *c.ReprojErrorThresh
}

// GetNumHypotheses returns the num_hypotheses value or the default.
func (c *TuningConfig) GetNumHypotheses() int {
	if c.NumHypotheses == nil {
		return 20
	}
	return *c.NumHypotheses
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetSeedFromTrack returns the seed_from_track value or the default.
func (c *TuningConfig) GetSeedFromTrack() bool {
	if c.SeedFromTrack == nil {
		return true
	}
	return *c.SeedFromTrack
}

// GetMinTrackLength returns the min_track_length value or the default.
func (c *TuningConfig) GetMinTrackLength() int {
	if c.MinTrackLength == nil {
		return 3
	}
	return *c.MinTrackLength
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0 // one worker per CPU
	}
	return *c.Workers
}
