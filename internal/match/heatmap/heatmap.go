package heatmap

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// ErrGridMismatch is returned when heatmaps of different shapes are
// aggregated.
var ErrGridMismatch = errors.New("heatmap grid mismatch")

// Sample is one calibrated position of an entity.
type Sample = tracks.Sample

// Aggregation selects how player grids combine into a team grid.
type Aggregation string

const (
	AggregateSum Aggregation = "sum" // team occupancy; the default
	AggregateMax Aggregation = "max" // coverage by any player
)

// Config holds grid and smoothing parameters.
type Config struct {
	GridWidth   int // cells along the pitch
	GridHeight  int // cells across the pitch
	PitchLength float64
	PitchWidth  float64
	Sigma       float64 // Gaussian sigma in cells; 0 disables smoothing

	// DwellWeighting weights each sample by the time until the next one,
	// capped at MaxDwellS, instead of counting samples.
	DwellWeighting bool
	MaxDwellS      float64
}

// DefaultConfig returns heatmap configuration loaded from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		GridWidth:   cfg.GetHeatmapGridWidth(),
		GridHeight:  cfg.GetHeatmapGridHeight(),
		PitchLength: cfg.GetPitchLength(),
		PitchWidth:  cfg.GetPitchWidth(),
		Sigma:       cfg.GetSmoothingSigma(),
		MaxDwellS:   1.0,
	}
}

// Heatmap is an occupancy grid. Cells and Raw are indexed [row][col], rows
// running across the pitch (y) and columns along it (x).
type Heatmap struct {
	GridWidth   int     `json:"grid_width"`
	GridHeight  int     `json:"grid_height"`
	PitchLength float64 `json:"pitch_length"`
	PitchWidth  float64 `json:"pitch_width"`

	// Cells is the smoothed grid scaled so its maximum is 1.
	Cells [][]float64 `json:"cells"`
	// Raw is the unsmoothed weighted count per cell.
	Raw [][]float64 `json:"raw"`

	TotalSamples int     `json:"total_samples"`
	TotalWeight  float64 `json:"total_weight"`  // sum of Raw
	MaxIntensity float64 `json:"max_intensity"` // smoothed maximum before scaling
}

// Engine builds heatmaps. It is stateless and safe for concurrent use.
type Engine struct {
	cfg    Config
	kernel [][]float64
}

// NewEngine returns an Engine for cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.GridWidth < 1 {
		cfg.GridWidth = 1
	}
	if cfg.GridHeight < 1 {
		cfg.GridHeight = 1
	}
	return &Engine{cfg: cfg, kernel: gaussianKernel(cfg.Sigma)}
}

// Build bins samples into a new heatmap. Positions outside the pitch are
// clamped onto the boundary cells.
func (e *Engine) Build(samples []Sample) *Heatmap {
	raw := newGrid(e.cfg.GridHeight, e.cfg.GridWidth)
	sorted := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.X) || math.IsNaN(s.Y) {
			continue
		}
		sorted = append(sorted, s)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })

	weights := e.weights(sorted)
	for i, s := range sorted {
		r, c := e.cell(s.X, s.Y)
		raw[r][c] += weights[i]
	}
	h := e.finish(raw)
	h.TotalSamples = len(sorted)
	return h
}

// weights returns the per-sample weight: 1 each, or the capped dwell time
// when DwellWeighting is set. The last sample reuses the interval before
// it; a lone sample weighs 1.
func (e *Engine) weights(sorted []Sample) []float64 {
	w := make([]float64, len(sorted))
	if !e.cfg.DwellWeighting || len(sorted) < 2 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	for i := range sorted {
		var dt float64
		if i+1 < len(sorted) {
			dt = sorted[i+1].T - sorted[i].T
		} else {
			dt = sorted[i].T - sorted[i-1].T
		}
		w[i] = math.Max(0, math.Min(dt, e.cfg.MaxDwellS))
	}
	return w
}

func (e *Engine) cell(x, y float64) (row, col int) {
	col = int(math.Floor(x / (e.cfg.PitchLength / float64(e.cfg.GridWidth))))
	row = int(math.Floor(y / (e.cfg.PitchWidth / float64(e.cfg.GridHeight))))
	return clamp(row, 0, e.cfg.GridHeight-1), clamp(col, 0, e.cfg.GridWidth-1)
}

// Team aggregates player heatmaps element-wise over their raw grids and
// smooths the result.
func (e *Engine) Team(players []*Heatmap, agg Aggregation) (*Heatmap, error) {
	switch agg {
	case AggregateSum, AggregateMax:
	case "":
		agg = AggregateSum
	default:
		return nil, fmt.Errorf("unknown aggregation %q", agg)
	}

	raw := newGrid(e.cfg.GridHeight, e.cfg.GridWidth)
	samples := 0
	for _, p := range players {
		if p == nil {
			continue
		}
		if p.GridWidth != e.cfg.GridWidth || p.GridHeight != e.cfg.GridHeight {
			return nil, fmt.Errorf("%w: %dx%d, want %dx%d", ErrGridMismatch,
				p.GridWidth, p.GridHeight, e.cfg.GridWidth, e.cfg.GridHeight)
		}
		samples += p.TotalSamples
		for r := range raw {
			switch agg {
			case AggregateMax:
				for c := range raw[r] {
					raw[r][c] = math.Max(raw[r][c], p.Raw[r][c])
				}
			case AggregateSum:
				floats.Add(raw[r], p.Raw[r])
			}
		}
	}
	h := e.finish(raw)
	h.TotalSamples = samples
	return h, nil
}

// finish smooths raw and fills a Heatmap around it.
func (e *Engine) finish(raw [][]float64) *Heatmap {
	h := &Heatmap{
		GridWidth:   e.cfg.GridWidth,
		GridHeight:  e.cfg.GridHeight,
		PitchLength: e.cfg.PitchLength,
		PitchWidth:  e.cfg.PitchWidth,
		Raw:         raw,
	}
	for _, row := range raw {
		h.TotalWeight += floats.Sum(row)
	}

	h.Cells = e.smooth(raw)
	for _, row := range h.Cells {
		h.MaxIntensity = math.Max(h.MaxIntensity, floats.Max(row))
	}
	if h.MaxIntensity > 0 {
		for _, row := range h.Cells {
			floats.Scale(1/h.MaxIntensity, row)
		}
	}
	return h
}

// smooth spreads each cell over its kernel neighbourhood. Kernel weight
// falling outside the grid is redistributed over the inside part, so the
// smoothed grid holds the same mass as raw.
func (e *Engine) smooth(raw [][]float64) [][]float64 {
	out := newGrid(len(raw), len(raw[0]))
	k := e.kernel
	half := len(k) / 2
	rows, cols := len(raw), len(raw[0])
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := raw[r][c]
			if v == 0 {
				continue
			}
			// Step 1: kernel mass inside the grid around (r, c).
			var inside float64
			for i := -half; i <= half; i++ {
				for j := -half; j <= half; j++ {
					if r+i >= 0 && r+i < rows && c+j >= 0 && c+j < cols {
						inside += k[i+half][j+half]
					}
				}
			}
			// Step 2: scatter v in proportion to the renormalised kernel.
			for i := -half; i <= half; i++ {
				for j := -half; j <= half; j++ {
					if r+i >= 0 && r+i < rows && c+j >= 0 && c+j < cols {
						out[r+i][c+j] += v * k[i+half][j+half] / inside
					}
				}
			}
		}
	}
	return out
}

// gaussianKernel returns a normalised square kernel of odd size
// int(6σ+1). A non-positive sigma yields the identity kernel.
func gaussianKernel(sigma float64) [][]float64 {
	if sigma <= 0 {
		return [][]float64{{1}}
	}
	size := int(6*sigma + 1)
	if size%2 == 0 {
		size++
	}
	half := size / 2
	k := newGrid(size, size)
	var sum float64
	for i := range k {
		for j := range k[i] {
			x, y := float64(i-half), float64(j-half)
			k[i][j] = math.Exp(-(x*x + y*y) / (2 * sigma * sigma))
			sum += k[i][j]
		}
	}
	for i := range k {
		floats.Scale(1/sum, k[i])
	}
	return k
}

func newGrid(rows, cols int) [][]float64 {
	g := make([][]float64, rows)
	for i := range g {
		g[i] = make([]float64, cols)
	}
	return g
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
