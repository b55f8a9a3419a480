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

// TuningConfig represents the root configuration for pipeline tuning
// parameters. Every field is optional: the Get* accessors fall back to the
// built-in defaults, so partial JSON files are safe.
type TuningConfig struct {
	// Tracker params
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	IoUThreshold        *float64 `json:"iou_threshold,omitempty"`
	MaxAge              *int     `json:"max_age,omitempty"`
	MinHits             *int     `json:"min_hits,omitempty"`
	LostAfter           *int     `json:"lost_after,omitempty"`

	// Calibration params
	PitchLength           *float64 `json:"pitch_length,omitempty"`
	PitchWidth            *float64 `json:"pitch_width,omitempty"`
	MaxReprojectionErrorM *float64 `json:"max_reprojection_error_m,omitempty"`
	RansacThresholdM      *float64 `json:"ransac_threshold_m,omitempty"`
	RansacIterations      *int     `json:"ransac_iterations,omitempty"`

	// Team classification params
	TeamClusters   *int     `json:"team_clusters,omitempty"`
	TeamMinSamples *int     `json:"team_min_samples,omitempty"`
	TeamMaxSpread  *float64 `json:"team_max_spread,omitempty"`

	// Physical metrics params
	HighIntensityThresholdMps *float64 `json:"high_intensity_threshold_mps,omitempty"`
	SprintThresholdMps        *float64 `json:"sprint_threshold_mps,omitempty"`
	SprintMinDurationS        *float64 `json:"sprint_min_duration_s,omitempty"`
	StaminaWindowS            *float64 `json:"stamina_window_s,omitempty"`
	MaxSpeedMps               *float64 `json:"max_speed_mps,omitempty"`
	MaxAccelMps2              *float64 `json:"max_accel_mps2,omitempty"`
	MaxFrameGap               *int     `json:"max_frame_gap,omitempty"`
	SmoothingWindow           *int     `json:"smoothing_window,omitempty"`

	// Heatmap params
	HeatmapGridWidth  *int     `json:"heatmap_grid_width,omitempty"`
	HeatmapGridHeight *int     `json:"heatmap_grid_height,omitempty"`
	SmoothingSigma    *float64 `json:"smoothing_sigma,omitempty"`

	// Pipeline params
	CheckpointEveryFrames *int   `json:"checkpoint_every_frames,omitempty"`
	Seed                  *int64 `json:"seed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It is the in-memory equivalent of the defaults file.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		ConfidenceThreshold:       ptrFloat64(e.GetConfidenceThreshold()),
		IoUThreshold:              ptrFloat64(e.GetIoUThreshold()),
		MaxAge:                    ptrInt(e.GetMaxAge()),
		MinHits:                   ptrInt(e.GetMinHits()),
		LostAfter:                 ptrInt(e.GetLostAfter()),
		PitchLength:               ptrFloat64(e.GetPitchLength()),
		PitchWidth:                ptrFloat64(e.GetPitchWidth()),
		MaxReprojectionErrorM:     ptrFloat64(e.GetMaxReprojectionErrorM()),
		RansacThresholdM:          ptrFloat64(e.GetRansacThresholdM()),
		RansacIterations:          ptrInt(e.GetRansacIterations()),
		TeamClusters:              ptrInt(e.GetTeamClusters()),
		TeamMinSamples:            ptrInt(e.GetTeamMinSamples()),
		TeamMaxSpread:             ptrFloat64(e.GetTeamMaxSpread()),
		HighIntensityThresholdMps: ptrFloat64(e.GetHighIntensityThresholdMps()),
		SprintThresholdMps:        ptrFloat64(e.GetSprintThresholdMps()),
		SprintMinDurationS:        ptrFloat64(e.GetSprintMinDurationS()),
		StaminaWindowS:            ptrFloat64(e.GetStaminaWindowS()),
		MaxSpeedMps:               ptrFloat64(e.GetMaxSpeedMps()),
		MaxAccelMps2:              ptrFloat64(e.GetMaxAccelMps2()),
		MaxFrameGap:               ptrInt(e.GetMaxFrameGap()),
		SmoothingWindow:           ptrInt(e.GetSmoothingWindow()),
		HeatmapGridWidth:          ptrInt(e.GetHeatmapGridWidth()),
		HeatmapGridHeight:         ptrInt(e.GetHeatmapGridHeight()),
		SmoothingSigma:            ptrFloat64(e.GetSmoothingSigma()),
		CheckpointEveryFrames:     ptrInt(e.GetCheckpointEveryFrames()),
		Seed:                      ptrInt64(e.GetSeed()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/match/tracks/
		"../../../../" + DefaultConfigPath,    // from internal/match/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
	}
	if c.IoUThreshold != nil && (*c.IoUThreshold < 0 || *c.IoUThreshold > 1) {
		return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", *c.IoUThreshold)
	}
	if c.MaxAge != nil && *c.MaxAge < 1 {
		return fmt.Errorf("max_age must be at least 1, got %d", *c.MaxAge)
	}
	if c.MinHits != nil && *c.MinHits < 1 {
		return fmt.Errorf("min_hits must be at least 1, got %d", *c.MinHits)
	}
	if c.LostAfter != nil && *c.LostAfter < 2 {
		// A confirmed track never goes lost on its first miss.
		return fmt.Errorf("lost_after must be at least 2, got %d", *c.LostAfter)
	}
	if c.LostAfter != nil && *c.LostAfter > c.GetMaxAge() {
		return fmt.Errorf("lost_after (%d) must not exceed max_age (%d)", *c.LostAfter, c.GetMaxAge())
	}
	if c.PitchLength != nil && *c.PitchLength <= 0 {
		return fmt.Errorf("pitch_length must be positive, got %f", *c.PitchLength)
	}
	if c.PitchWidth != nil && *c.PitchWidth <= 0 {
		return fmt.Errorf("pitch_width must be positive, got %f", *c.PitchWidth)
	}
	if c.TeamClusters != nil && (*c.TeamClusters < 2 || *c.TeamClusters > 3) {
		return fmt.Errorf("team_clusters must be 2 or 3, got %d", *c.TeamClusters)
	}
	if c.SprintThresholdMps != nil && c.HighIntensityThresholdMps != nil &&
		*c.SprintThresholdMps < *c.HighIntensityThresholdMps {
		return fmt.Errorf("sprint_threshold_mps (%f) must not be below high_intensity_threshold_mps (%f)",
			*c.SprintThresholdMps, *c.HighIntensityThresholdMps)
	}
	if c.HeatmapGridWidth != nil && *c.HeatmapGridWidth < 1 {
		return fmt.Errorf("heatmap_grid_width must be positive, got %d", *c.HeatmapGridWidth)
	}
	if c.HeatmapGridHeight != nil && *c.HeatmapGridHeight < 1 {
		return fmt.Errorf("heatmap_grid_height must be positive, got %d", *c.HeatmapGridHeight)
	}
	if c.SmoothingSigma != nil && *c.SmoothingSigma < 0 {
		return fmt.Errorf("smoothing_sigma must be non-negative, got %f", *c.SmoothingSigma)
	}
	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
	}
	if c.CheckpointEveryFrames != nil && *c.CheckpointEveryFrames < 0 {
		return fmt.Errorf("checkpoint_every_frames must be non-negative, got %d", *c.CheckpointEveryFrames)
	}
	return nil
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.3
	}
	return *c.ConfidenceThreshold
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.3
	}
	return *c.IoUThreshold
}

// GetMaxAge returns the max_age value or the default.
func (c *TuningConfig) GetMaxAge() int {
	if c.MaxAge == nil {
		return 30
	}
	return *c.MaxAge
}

// GetMinHits returns the min_hits value or the default.
func (c *TuningConfig) GetMinHits() int {
	if c.MinHits == nil {
		return 3
	}
	return *c.MinHits
}

// GetLostAfter returns the lost_after value or the default.
func (c *TuningConfig) GetLostAfter() int {
	if c.LostAfter == nil {
		return 2
	}
	return *c.LostAfter
}

// GetPitchLength returns the pitch_length value or the default.
func (c *TuningConfig) GetPitchLength() float64 {
	if c.PitchLength == nil {
		return 105.0
	}
	return *c.PitchLength
}

// GetPitchWidth returns the pitch_width value or the default.
func (c *TuningConfig) GetPitchWidth() float64 {
	if c.PitchWidth == nil {
		return 68.0
	}
	return *c.PitchWidth
}

// GetMaxReprojectionErrorM returns the max_reprojection_error_m value or the default.
func (c *TuningConfig) GetMaxReprojectionErrorM() float64 {
	if c.MaxReprojectionErrorM == nil {
		return 1.0
	}
	return *c.MaxReprojectionErrorM
}

// GetRansacThresholdM returns the ransac_threshold_m value or the default.
func (c *TuningConfig) GetRansacThresholdM() float64 {
	if c.RansacThresholdM == nil {
		return 0.5
	}
	return *c.RansacThresholdM
}

// GetRansacIterations returns the ransac_iterations value or the default.
func (c *TuningConfig) GetRansacIterations() int {
	if c.RansacIterations == nil {
		return 500
	}
	return *c.RansacIterations
}

// GetTeamClusters returns the team_clusters value or the default.
func (c *TuningConfig) GetTeamClusters() int {
	if c.TeamClusters == nil {
		return 2
	}
	return *c.TeamClusters
}

// GetTeamMinSamples returns the team_min_samples value or the default.
func (c *TuningConfig) GetTeamMinSamples() int {
	if c.TeamMinSamples == nil {
		return 3
	}
	return *c.TeamMinSamples
}

// GetTeamMaxSpread returns the team_max_spread value or the default.
func (c *TuningConfig) GetTeamMaxSpread() float64 {
	if c.TeamMaxSpread == nil {
		return 40.0
	}
	return *c.TeamMaxSpread
}

// GetHighIntensityThresholdMps returns the high_intensity_threshold_mps value or the default.
func (c *TuningConfig) GetHighIntensityThresholdMps() float64 {
	if c.HighIntensityThresholdMps == nil {
		return 5.5 // ~19.8 km/h
	}
	return *c.HighIntensityThresholdMps
}

// GetSprintThresholdMps returns the sprint_threshold_mps value or the default.
func (c *TuningConfig) GetSprintThresholdMps() float64 {
	if c.SprintThresholdMps == nil {
		return 7.0 // ~25.2 km/h
	}
	return *c.SprintThresholdMps
}

// GetSprintMinDurationS returns the sprint_min_duration_s value or the default.
func (c *TuningConfig) GetSprintMinDurationS() float64 {
	if c.SprintMinDurationS == nil {
		return 1.0
	}
	return *c.SprintMinDurationS
}

// GetStaminaWindowS returns the stamina_window_s value or the default.
func (c *TuningConfig) GetStaminaWindowS() float64 {
	if c.StaminaWindowS == nil {
		return 60
	}
	return *c.StaminaWindowS
}

// GetMaxSpeedMps returns the max_speed_mps value or the default.
func (c *TuningConfig) GetMaxSpeedMps() float64 {
	if c.MaxSpeedMps == nil {
		return 12.5 // 45 km/h, above any recorded footballer
	}
	return *c.MaxSpeedMps
}

// GetMaxAccelMps2 returns the max_accel_mps2 value or the default.
func (c *TuningConfig) GetMaxAccelMps2() float64 {
	if c.MaxAccelMps2 == nil {
		return 10.0
	}
	return *c.MaxAccelMps2
}

// GetMaxFrameGap returns the max_frame_gap value or the default.
func (c *TuningConfig) GetMaxFrameGap() int {
	if c.MaxFrameGap == nil {
		return 10
	}
	return *c.MaxFrameGap
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 5
	}
	return *c.SmoothingWindow
}

// GetHeatmapGridWidth returns the heatmap_grid_width value or the default.
func (c *TuningConfig) GetHeatmapGridWidth() int {
	if c.HeatmapGridWidth == nil {
		return 40
	}
	return *c.HeatmapGridWidth
}

// GetHeatmapGridHeight returns the heatmap_grid_height value or the default.
func (c *TuningConfig) GetHeatmapGridHeight() int {
	if c.HeatmapGridHeight == nil {
		return 25
	}
	return *c.HeatmapGridHeight
}

// GetSmoothingSigma returns the smoothing_sigma value or the default.
func (c *TuningConfig) GetSmoothingSigma() float64 {
	if c.SmoothingSigma == nil {
		return 1.0
	}
	return *c.SmoothingSigma
}

// GetCheckpointEveryFrames returns the checkpoint_every_frames value or the default.
// Zero disables checkpointing.
func (c *TuningConfig) GetCheckpointEveryFrames() int {
	if c.CheckpointEveryFrames == nil {
		return 500
	}
	return *c.CheckpointEveryFrames
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}
