package tactical

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// ErrTooFewPlayers is returned when a snapshot has fewer outfield players
// than positional lines.
var ErrTooFewPlayers = errors.New("too few players for a tactical snapshot")

// Direction is the way a team attacks along the pitch x axis.
type Direction int

const (
	AttackRight Direction = iota // defends x = 0
	AttackLeft                   // defends x = pitch length
)

// BlockType classifies how deep a team defends.
type BlockType string

const (
	BlockLow    BlockType = "low"
	BlockMedium BlockType = "medium"
	BlockHigh   BlockType = "high"
)

// Player is one team member's position at the snapshot instant.
type Player struct {
	TrackID    int64      `json:"track_id"`
	Pos        geom.Point `json:"pos"`
	Goalkeeper bool       `json:"goalkeeper,omitempty"`
}

// Lines holds the mean along-pitch depth of each positional band,
// measured from the team's own goal line.
type Lines struct {
	Defensive float64 `json:"defensive"`
	Midfield  float64 `json:"midfield"`
	Attacking float64 `json:"attacking"`
	Counts    [3]int  `json:"counts"`
}

// Snapshot is the shape of one team at one instant.
type Snapshot struct {
	Team      tracks.TeamSide `json:"team"`
	Timestamp float64         `json:"timestamp"`
	Players   int             `json:"players"` // outfield players used

	Formation  string  `json:"formation"`
	Confidence float64 `json:"confidence"`

	Centroid    geom.Point `json:"centroid"`
	SpreadX     float64    `json:"spread_x"`
	SpreadY     float64    `json:"spread_y"`
	Compactness float64    `json:"compactness"` // mean pairwise distance
	HullArea    float64    `json:"hull_area"`

	Lines             Lines   `json:"lines"`
	LineSpacingDefMid float64 `json:"line_spacing_def_mid"`
	LineSpacingMidAtt float64 `json:"line_spacing_mid_att"`

	DefensiveLineHeight float64   `json:"defensive_line_height"`
	BlockType           BlockType `json:"block_type"`

	PressingIntensity float64 `json:"pressing_intensity"`
}

// Config holds tactical parameters.
type Config struct {
	PitchLength float64
	PitchWidth  float64

	// PressingPlayers is how many defenders nearest the carrier are
	// measured for pressing.
	PressingPlayers int
	// MaxClosingMps is the closing speed that scores 100 pressing.
	MaxClosingMps float64
}

// DefaultConfig returns tactical configuration loaded from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		PitchLength:     cfg.GetPitchLength(),
		PitchWidth:      cfg.GetPitchWidth(),
		PressingPlayers: 3,
		MaxClosingMps:   5.0,
	}
}

// Engine computes tactical snapshots. It is stateless and safe for
// concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine returns an Engine for cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.PressingPlayers < 1 {
		cfg.PressingPlayers = 1
	}
	return &Engine{cfg: cfg}
}

// depth maps x to the distance from the team's own goal line.
func (e *Engine) depth(x float64, dir Direction) float64 {
	if dir == AttackLeft {
		return e.cfg.PitchLength - x
	}
	return x
}

// Snapshot computes the shape of team from its players' positions at time
// t. Goalkeepers are left out of every measure.
func (e *Engine) Snapshot(team tracks.TeamSide, t float64, players []Player, dir Direction) (*Snapshot, error) {
	var pts []geom.Point
	for _, p := range players {
		if !p.Goalkeeper {
			pts = append(pts, p.Pos)
		}
	}
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: %d outfield", ErrTooFewPlayers, len(pts))
	}

	s := &Snapshot{Team: team, Timestamp: t, Players: len(pts)}

	// Step 1: centre and dispersion.
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	s.Centroid = geom.Pt(stat.Mean(xs, nil), stat.Mean(ys, nil))
	s.SpreadX = math.Sqrt(stat.PopVariance(xs, nil))
	s.SpreadY = math.Sqrt(stat.PopVariance(ys, nil))
	s.Compactness = geom.MeanPairwiseDistance(pts)
	s.HullArea = geom.PolygonArea(geom.ConvexHull(pts))

	// Step 2: three ordered bands along the pitch.
	depths := make([]float64, len(pts))
	for i, p := range pts {
		depths[i] = e.depth(p.X, dir)
	}
	bands := lineBands(depths)
	for i, b := range bands {
		s.Lines.Counts[i] = len(b)
	}
	s.Lines.Defensive = stat.Mean(bands[0], nil)
	s.Lines.Midfield = stat.Mean(bands[1], nil)
	s.Lines.Attacking = stat.Mean(bands[2], nil)
	s.LineSpacingDefMid = s.Lines.Midfield - s.Lines.Defensive
	s.LineSpacingMidAtt = s.Lines.Attacking - s.Lines.Midfield
	s.Formation = fmt.Sprintf("%d-%d-%d", s.Lines.Counts[0], s.Lines.Counts[1], s.Lines.Counts[2])
	s.Confidence = separation(bands)

	// Step 3: how high the defensive line holds.
	s.DefensiveLineHeight = s.Lines.Defensive
	s.BlockType = e.blockType(s.DefensiveLineHeight)

	tracef("%s t=%.1f formation=%s conf=%.2f block=%s", team, t, s.Formation, s.Confidence, s.BlockType)
	return s, nil
}

func (e *Engine) blockType(height float64) BlockType {
	switch {
	case height < 0.25*e.cfg.PitchLength:
		return BlockLow
	case height < 0.5*e.cfg.PitchLength:
		return BlockMedium
	default:
		return BlockHigh
	}
}

// lineBands splits depths into three contiguous ordered groups minimising
// the within-group sum of squares. With at most a few dozen players an
// exhaustive search over the two split points is exact and deterministic.
func lineBands(depths []float64) [3][]float64 {
	sorted := make([]float64, len(depths))
	copy(sorted, depths)
	sort.Float64s(sorted)
	n := len(sorted)

	// Prefix sums give each candidate band's SSE in O(1).
	sum := make([]float64, n+1)
	sq := make([]float64, n+1)
	for i, v := range sorted {
		sum[i+1] = sum[i] + v
		sq[i+1] = sq[i] + v*v
	}
	sse := func(lo, hi int) float64 {
		k := float64(hi - lo)
		s := sum[hi] - sum[lo]
		return sq[hi] - sq[lo] - s*s/k
	}

	bestI, bestJ, best := 1, 2, math.Inf(1)
	for i := 1; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			// Strict improvement keeps the first (deepest-defence-first)
			// split on ties.
			if c := sse(0, i) + sse(i, j) + sse(j, n); c < best-1e-12 {
				best, bestI, bestJ = c, i, j
			}
		}
	}
	return [3][]float64{sorted[:bestI], sorted[bestI:bestJ], sorted[bestJ:]}
}

// separation scores band quality in [0, 1]: the mean gap between adjacent
// bands against the pooled within-band standard deviation.
func separation(bands [3][]float64) float64 {
	gap := 0.0
	for k := 0; k < 2; k++ {
		lo, hi := bands[k], bands[k+1]
		gap += hi[0] - lo[len(lo)-1]
	}
	gap /= 2

	var ss float64
	n := 0
	for _, b := range bands {
		m := stat.Mean(b, nil)
		for _, v := range b {
			ss += (v - m) * (v - m)
		}
		n += len(b)
	}
	within := math.Sqrt(ss / float64(n))
	if gap+within == 0 {
		return 0
	}
	return gap / (gap + within)
}
