package events

import (
	"math"

	"github.com/banshee-data/pitch.report/internal/geom"
)

// XT grid dimensions: columns along the pitch, rows across it.
const (
	XTColumns = 16
	XTRows    = 12
)

// xtValues is the baseline threat per zone for a team attacking towards
// x = pitch length, indexed [column][row].
var xtValues = [XTColumns][XTRows]float64{
	{0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00, 0.00},
	{0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01},
	{0.01, 0.01, 0.02, 0.02, 0.02, 0.02, 0.02, 0.02, 0.02, 0.02, 0.01, 0.01},
	{0.02, 0.02, 0.03, 0.03, 0.03, 0.03, 0.03, 0.03, 0.03, 0.03, 0.02, 0.02},
	{0.02, 0.03, 0.04, 0.04, 0.04, 0.04, 0.04, 0.04, 0.04, 0.04, 0.03, 0.02},
	{0.03, 0.04, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.04, 0.03},
	{0.04, 0.05, 0.06, 0.06, 0.06, 0.06, 0.06, 0.06, 0.06, 0.06, 0.05, 0.04},
	{0.05, 0.06, 0.07, 0.07, 0.07, 0.07, 0.07, 0.07, 0.07, 0.07, 0.06, 0.05},
	{0.06, 0.07, 0.08, 0.09, 0.09, 0.09, 0.09, 0.09, 0.09, 0.08, 0.07, 0.06},
	{0.07, 0.09, 0.10, 0.11, 0.11, 0.11, 0.11, 0.11, 0.11, 0.10, 0.09, 0.07},
	{0.09, 0.11, 0.13, 0.14, 0.14, 0.14, 0.14, 0.14, 0.14, 0.13, 0.11, 0.09},
	{0.11, 0.14, 0.16, 0.18, 0.18, 0.18, 0.18, 0.18, 0.18, 0.16, 0.14, 0.11},
	{0.13, 0.17, 0.20, 0.22, 0.23, 0.23, 0.23, 0.23, 0.22, 0.20, 0.17, 0.13},
	{0.16, 0.21, 0.25, 0.28, 0.29, 0.30, 0.30, 0.29, 0.28, 0.25, 0.21, 0.16},
	{0.20, 0.26, 0.32, 0.36, 0.38, 0.40, 0.40, 0.38, 0.36, 0.32, 0.26, 0.20},
	{0.25, 0.32, 0.40, 0.48, 0.52, 0.56, 0.56, 0.52, 0.48, 0.40, 0.32, 0.25},
}

// XTGrid values pitch positions for a team attacking towards x = Length.
type XTGrid struct {
	Length float64
	Width  float64
}

// NewXTGrid returns the static grid stretched over a pitch of the given
// size.
func NewXTGrid(length, width float64) *XTGrid {
	return &XTGrid{Length: length, Width: width}
}

// Cell returns the grid zone holding p. Positions off the pitch clamp to
// the nearest zone.
func (g *XTGrid) Cell(p geom.Point) (col, row int) {
	col = int(math.Floor(p.X / (g.Length / XTColumns)))
	row = int(math.Floor(p.Y / (g.Width / XTRows)))
	return max(0, min(col, XTColumns-1)), max(0, min(row, XTRows-1))
}

// Value returns the threat of the zone holding p.
func (g *XTGrid) Value(p geom.Point) float64 {
	c, r := g.Cell(p)
	return xtValues[c][r]
}

// Gain returns Value(b) − Value(a): positive when the ball moves into a
// more threatening zone.
func (g *XTGrid) Gain(a, b geom.Point) float64 {
	return g.Value(b) - g.Value(a)
}

// Values returns a copy of the grid, indexed [column][row].
func (g *XTGrid) Values() [XTColumns][XTRows]float64 { return xtValues }
