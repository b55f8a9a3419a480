package pipeline

import (
	"time"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/events"
	"github.com/banshee-data/pitch.report/internal/match/heatmap"
	"github.com/banshee-data/pitch.report/internal/match/physical"
	"github.com/banshee-data/pitch.report/internal/match/tactical"
	"github.com/banshee-data/pitch.report/internal/match/teams"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// Config gathers the component configurations and the pipeline's own
// scheduling parameters.
type Config struct {
	Tracker  tracks.TrackerConfig
	Calib    calib.Options
	Teams    teams.Config
	Physical physical.Config
	Heatmap  heatmap.Config
	Tactical tactical.Config
	Events   events.Config

	PitchLength float64
	PitchWidth  float64

	// HomeAttacksRight orients both the tactical and the event engines.
	HomeAttacksRight bool

	CheckpointEveryFrames int // 0 disables periodic checkpoints
	JerseyEveryFrames     int // jersey sampler period in frames

	// ReclassifyFrame, when positive, refits team colours on the samples
	// after it and relabels tracks first seen after it.
	ReclassifyFrame int

	TacticalWindowS float64
	HeatmapWindowS  float64 // time-windowed team heatmaps; 0 disables
	Aggregation     heatmap.Aggregation

	// MaxFragmentation is the fragmentation ratio above which a quality
	// note is raised.
	MaxFragmentation float64
	ProgressEvery    time.Duration
}

// DefaultConfig returns pipeline configuration loaded from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Tracker:               tracks.TrackerConfigFromTuning(cfg),
		Calib:                 calib.OptionsFromTuning(cfg),
		Teams:                 teams.ConfigFromTuning(cfg),
		Physical:              physical.ConfigFromTuning(cfg),
		Heatmap:               heatmap.ConfigFromTuning(cfg),
		Tactical:              tactical.ConfigFromTuning(cfg),
		Events:                events.ConfigFromTuning(cfg),
		PitchLength:           cfg.GetPitchLength(),
		PitchWidth:            cfg.GetPitchWidth(),
		HomeAttacksRight:      true,
		CheckpointEveryFrames: cfg.GetCheckpointEveryFrames(),
		JerseyEveryFrames:     5,
		TacticalWindowS:       5,
		HeatmapWindowS:        300,
		Aggregation:           heatmap.AggregateSum,
		MaxFragmentation:      0.5,
		ProgressEvery:         5 * time.Second,
	}
}

func (c Config) homeDirection() tactical.Direction {
	if c.HomeAttacksRight {
		return tactical.AttackRight
	}
	return tactical.AttackLeft
}

func (c Config) direction(side tracks.TeamSide) tactical.Direction {
	home := c.homeDirection()
	if side == tracks.TeamHome {
		return home
	}
	if home == tactical.AttackRight {
		return tactical.AttackLeft
	}
	return tactical.AttackRight
}
