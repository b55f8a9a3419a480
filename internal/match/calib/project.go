package calib

import (
	"math"

	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// PixelToMeter maps an image pixel onto the pitch plane. ok is false when
// the pixel lies on the horizon line of the homography.
func (m *Matrix) PixelToMeter(p geom.Point) (geom.Point, bool) {
	return project(m.H, p)
}

// MeterToPixel maps a pitch position back into the image.
func (m *Matrix) MeterToPixel(p geom.Point) (geom.Point, bool) {
	return project(m.Inverse, p)
}

// Apply projects pixels in bulk. Entries that cannot be projected are nil.
func (m *Matrix) Apply(pixels []geom.Point) []*geom.Point {
	out := make([]*geom.Point, len(pixels))
	for i, p := range pixels {
		if q, ok := project(m.H, p); ok {
			out[i] = &q
		}
	}
	return out
}

// Valid reports whether m is usable for metric output: present, finite,
// invertible and with a reprojection error within maxError.
func (m *Matrix) Valid(maxError float64) bool {
	if m == nil {
		return false
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if v := m.H[r][c]; math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	if math.IsNaN(m.ReprojectionError) || m.ReprojectionError > maxError {
		return false
	}
	det := m.H[0][0]*(m.H[1][1]*m.H[2][2]-m.H[1][2]*m.H[2][1]) -
		m.H[0][1]*(m.H[1][0]*m.H[2][2]-m.H[1][2]*m.H[2][0]) +
		m.H[0][2]*(m.H[1][0]*m.H[2][1]-m.H[1][1]*m.H[2][0])
	return math.Abs(det) >= minDeterminant
}

// ProjectTracks fills MeterXY on every point of every track from its foot
// pixel. When m is not valid for maxError all MeterXY are cleared and the
// trajectories stay pixel-only. Returns the number of points projected.
func ProjectTracks(m *Matrix, maxError float64, trs []*tracks.Track) int {
	valid := m.Valid(maxError)
	if !valid {
		opsf("No valid calibration (max error %.2f m): trajectories stay pixel-only", maxError)
	}
	n := 0
	for _, tr := range trs {
		for i := range tr.Points {
			tr.Points[i].MeterXY = nil
			if !valid {
				continue
			}
			if q, ok := m.PixelToMeter(tr.Points[i].PixelXY); ok {
				tr.Points[i].MeterXY = &q
				n++
			}
		}
	}
	diagf("projected %d track points to pitch coordinates", n)
	return n
}

// PitchCornersPixels returns the pitch corners (0,0), (L,0), (L,W), (0,W)
// in image pixels. Corners that cannot be projected are omitted.
func PitchCornersPixels(m *Matrix) []geom.Point {
	if m == nil {
		return nil
	}
	corners := []geom.Point{
		{X: 0, Y: 0},
		{X: m.PitchLength, Y: 0},
		{X: m.PitchLength, Y: m.PitchWidth},
		{X: 0, Y: m.PitchWidth},
	}
	out := make([]geom.Point, 0, len(corners))
	for _, c := range corners {
		if p, ok := m.MeterToPixel(c); ok {
			out = append(out, p)
		}
	}
	return out
}
