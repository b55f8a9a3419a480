package heatmap

import (
	"math"
	"sort"
)

// Zone is an axis-aligned pitch rectangle in metres, bounds inclusive.
type Zone struct {
	Name string  `json:"name"`
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Contains reports whether (x, y) lies inside z.
func (z Zone) Contains(x, y float64) bool {
	return x >= z.MinX && x <= z.MaxX && y >= z.MinY && y <= z.MaxY
}

// StandardZones returns the pitch thirds and channels for a pitch of the
// given size. Thirds and channels overlap, so a sample falls in one of each.
func StandardZones(length, width float64) []Zone {
	return []Zone{
		{Name: "defensive_third", MinX: 0, MinY: 0, MaxX: length / 3, MaxY: width},
		{Name: "middle_third", MinX: length / 3, MinY: 0, MaxX: 2 * length / 3, MaxY: width},
		{Name: "attacking_third", MinX: 2 * length / 3, MinY: 0, MaxX: length, MaxY: width},
		{Name: "left_channel", MinX: 0, MinY: 0, MaxX: length, MaxY: width / 3},
		{Name: "centre_channel", MinX: 0, MinY: width / 3, MaxX: length, MaxY: 2 * width / 3},
		{Name: "right_channel", MinX: 0, MinY: 2 * width / 3, MaxX: length, MaxY: width},
	}
}

// ZoneOccupancy returns, per zone, the percentage of samples inside it.
// Each zone is scored independently.
func ZoneOccupancy(samples []Sample, zones []Zone) []float64 {
	out := make([]float64, len(zones))
	if len(samples) == 0 {
		return out
	}
	for _, s := range samples {
		for i, z := range zones {
			if z.Contains(s.X, s.Y) {
				out[i]++
			}
		}
	}
	for i := range out {
		out[i] = out[i] / float64(len(samples)) * 100
	}
	return out
}

// Window is the heatmap of one time slice.
type Window struct {
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Heatmap *Heatmap `json:"heatmap"`
}

// Windows splits samples into consecutive windows of the given length,
// starting at the earliest sample, and builds a heatmap per non-empty
// window.
func (e *Engine) Windows(samples []Sample, window float64) []Window {
	if len(samples) == 0 || window <= 0 {
		return nil
	}
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })

	origin := sorted[0].T
	var out []Window
	lo := 0
	for lo < len(sorted) {
		idx := math.Floor((sorted[lo].T - origin) / window)
		start := origin + idx*window
		hi := lo
		for hi < len(sorted) && sorted[hi].T < start+window {
			hi++
		}
		if hi == lo {
			hi++ // rounding put the sample just past its window
		}
		out = append(out, Window{Start: start, End: start + window, Heatmap: e.Build(sorted[lo:hi])})
		lo = hi
	}
	return out
}
