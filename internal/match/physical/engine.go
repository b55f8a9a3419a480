package physical

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
	"github.com/banshee-data/pitch.report/internal/units"
)

// durationEpsilon absorbs float error when summing frame intervals, so ten
// 0.1 s steps count as a full second.
const durationEpsilon = 1e-9

// Config holds the metric thresholds.
type Config struct {
	HighIntensityMps   float64
	SprintMps          float64
	SprintMinDurationS float64
	MaxSpeedMps        float64 // steps above this are excluded as noise
	MaxAccelMps2       float64 // accelerations above this (either sign) are excluded
	MaxFrameGap        int     // frame gaps above this split the trajectory
	SmoothingWindow    int     // centred moving-average width in samples
	StaminaWindowS     float64
	SeriesResolutionS  float64
	Workers            int // ComputeAll concurrency; <= 0 means unbounded
}

// DefaultConfig returns metric configuration loaded from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		HighIntensityMps:   cfg.GetHighIntensityThresholdMps(),
		SprintMps:          cfg.GetSprintThresholdMps(),
		SprintMinDurationS: cfg.GetSprintMinDurationS(),
		MaxSpeedMps:        cfg.GetMaxSpeedMps(),
		MaxAccelMps2:       cfg.GetMaxAccelMps2(),
		MaxFrameGap:        cfg.GetMaxFrameGap(),
		SmoothingWindow:    cfg.GetSmoothingWindow(),
		StaminaWindowS:     cfg.GetStaminaWindowS(),
		SeriesResolutionS:  1.0,
		Workers:            8,
	}
}

// Sample is one calibrated position of an entity.
type Sample = tracks.Sample

// SeriesPoint is one value of a reduced-resolution time series.
type SeriesPoint struct {
	T     float64 `json:"t"`
	Value float64 `json:"value"`
}

// PlayerMetric holds the physical metrics of one entity over one match.
type PlayerMetric struct {
	TrackID int64           `json:"track_id"`
	Team    tracks.TeamSide `json:"team"`

	Samples   int     `json:"samples"`
	Segments  int     `json:"segments"`
	DurationS float64 `json:"duration_s"` // time covered by accepted steps

	TotalDistanceM         float64 `json:"total_distance_m"`
	AvgSpeedMps            float64 `json:"avg_speed_mps"`
	TopSpeedMps            float64 `json:"top_speed_mps"`
	TopSpeedKmh            float64 `json:"top_speed_kmh"`
	HighIntensityDistanceM float64 `json:"high_intensity_distance_m"`
	SprintDistanceM        float64 `json:"sprint_distance_m"`
	SprintCount            int     `json:"sprint_count"`
	MaxAccelMps2           float64 `json:"max_accel_mps2"`
	MaxDecelMps2           float64 `json:"max_decel_mps2"` // most negative acceleration
	AvgAccelMps2           float64 `json:"avg_accel_mps2"` // mean absolute acceleration

	StaminaIndex      float64 `json:"stamina_index"`
	StaminaConfidence float64 `json:"stamina_confidence"`
	AnomaliesExcluded int     `json:"anomalies_excluded"`

	DistancePerMinute []float64     `json:"distance_per_minute,omitempty"`
	SpeedSeries       []SeriesPoint `json:"speed_series,omitempty"`
	AccelSeries       []SeriesPoint `json:"accel_series,omitempty"`
	StaminaCurve      []SeriesPoint `json:"stamina_curve,omitempty"`
}

// Engine computes physical metrics. It holds no per-player state and is
// safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine returns an Engine using cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = 1
	}
	if cfg.SeriesResolutionS <= 0 {
		cfg.SeriesResolutionS = 1
	}
	return &Engine{cfg: cfg}
}

// step is the displacement between two consecutive smoothed samples of one
// segment.
type step struct {
	seg    int
	t0, t1 float64
	dt     float64
	dist   float64
	v      float64
	valid  bool
}

type accel struct {
	t float64
	a float64
}

// Compute returns the metrics of one trajectory. Fewer than two samples
// yield a zero metric.
func (e *Engine) Compute(samples []Sample) PlayerMetric {
	m := PlayerMetric{Samples: len(samples)}
	if len(samples) < 2 {
		return m
	}

	// Step 1: order by frame and split into segments at large gaps.
	segs := e.segments(samples)
	m.Segments = len(segs)

	// Step 2: smooth each segment and difference consecutive positions.
	var steps []step
	for si, seg := range segs {
		sm := smooth(seg, e.cfg.SmoothingWindow)
		for i := 1; i < len(sm); i++ {
			dt := sm[i].T - sm[i-1].T
			d := math.Hypot(sm[i].X-sm[i-1].X, sm[i].Y-sm[i-1].Y)
			st := step{seg: si, t0: sm[i-1].T, t1: sm[i].T, dt: dt, dist: d, v: d / dt}
			st.valid = st.v <= e.cfg.MaxSpeedMps
			if !st.valid {
				m.AnomaliesExcluded++
				diagf("excluding step at t=%.2f: %.1f m/s above ceiling", st.t1, st.v)
			}
			steps = append(steps, st)
		}
	}
	if len(steps) == 0 {
		return m
	}

	// Step 3: accelerations between adjacent accepted steps.
	var accels []accel
	for i := 1; i < len(steps); i++ {
		prev, cur := steps[i-1], steps[i]
		if prev.seg != cur.seg || !prev.valid || !cur.valid {
			continue
		}
		a := (cur.v - prev.v) / ((prev.dt + cur.dt) / 2)
		if math.Abs(a) > e.cfg.MaxAccelMps2 {
			m.AnomaliesExcluded++
			continue
		}
		accels = append(accels, accel{t: cur.t0, a: a})
	}

	// Step 4: scalar aggregates over accepted steps.
	for _, st := range steps {
		if !st.valid {
			continue
		}
		m.TotalDistanceM += st.dist
		m.DurationS += st.dt
		if st.v > m.TopSpeedMps {
			m.TopSpeedMps = st.v
		}
		if st.v > e.cfg.HighIntensityMps {
			m.HighIntensityDistanceM += st.dist
		}
	}
	if m.DurationS > 0 {
		m.AvgSpeedMps = m.TotalDistanceM / m.DurationS
	}
	m.TopSpeedKmh = units.MPSToKMH(m.TopSpeedMps)

	if len(accels) > 0 {
		vals := make([]float64, len(accels))
		abs := make([]float64, len(accels))
		for i, a := range accels {
			vals[i] = a.a
			abs[i] = math.Abs(a.a)
		}
		m.MaxAccelMps2 = math.Max(0, floats.Max(vals))
		m.MaxDecelMps2 = math.Min(0, floats.Min(vals))
		m.AvgAccelMps2 = floats.Sum(abs) / float64(len(abs))
	}

	m.SprintCount, m.SprintDistanceM = e.sprints(steps)
	m.StaminaIndex, m.StaminaConfidence = e.stamina(samples, steps)

	m.DistancePerMinute = distancePerMinute(steps)
	m.SpeedSeries = e.speedSeries(steps)
	m.AccelSeries = e.accelSeries(steps[0].t0, accels)
	m.StaminaCurve = e.staminaCurve(steps)
	return m
}

// segments sorts a copy of samples by frame, drops duplicate frames and
// splits wherever the frame gap exceeds MaxFrameGap or time fails to
// advance.
func (e *Engine) segments(samples []Sample) [][]Sample {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	var out [][]Sample
	var cur []Sample
	for i, s := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			if s.Frame == prev.Frame {
				continue
			}
			if s.Frame-prev.Frame > e.cfg.MaxFrameGap || s.T <= prev.T {
				out = append(out, cur)
				cur = nil
			}
		}
		cur = append(cur, s)
	}
	return append(out, cur)
}

// smooth applies a centred moving average. Near the segment ends the window
// shrinks symmetrically, so a straight constant-speed path is unchanged.
func smooth(seg []Sample, window int) []Sample {
	half := window / 2
	out := make([]Sample, len(seg))
	for i := range seg {
		h := min(half, i, len(seg)-1-i)
		var sx, sy float64
		for j := i - h; j <= i+h; j++ {
			sx += seg[j].X
			sy += seg[j].Y
		}
		n := float64(2*h + 1)
		out[i] = Sample{Frame: seg[i].Frame, T: seg[i].T, X: sx / n, Y: sy / n}
	}
	return out
}

// sprints counts maximal runs of accepted steps above the sprint threshold
// lasting at least the minimum duration. A run never crosses a segment
// boundary or an excluded step.
//
// Durations are measured on smoothed speeds, and smoothing ramps every
// speed change across the window. With the default window of 5 at 10 fps a
// 9 m/s burst of 1.0 s spends only 0.8 s above 7 m/s, so it needs to last
// 1.2 s to count.
func (e *Engine) sprints(steps []step) (count int, dist float64) {
	var runDur, runDist float64
	inRun := false
	flush := func() {
		if inRun && runDur >= e.cfg.SprintMinDurationS-durationEpsilon {
			count++
			dist += runDist
		}
		inRun, runDur, runDist = false, 0, 0
	}
	for i, st := range steps {
		fast := st.valid && st.v > e.cfg.SprintMps
		if inRun && (!fast || steps[i-1].seg != st.seg) {
			flush()
		}
		if fast {
			inRun = true
			runDur += st.dt
			runDist += st.dist
		}
	}
	flush()
	return count, dist
}

// stamina compares the average speed of the final window with that of the
// first. 100 means the late intensity matched or beat the early baseline.
// Confidence is the fraction of both windows covered by accepted steps.
func (e *Engine) stamina(samples []Sample, steps []step) (index, confidence float64) {
	w := e.cfg.StaminaWindowS
	start, end := steps[0].t0, steps[len(steps)-1].t1
	if w <= 0 || end-start < 2*w {
		return 50, 0
	}

	var earlyDist, earlyDur, lateDist, lateDur float64
	for _, st := range steps {
		if !st.valid {
			continue
		}
		if st.t1 <= start+w {
			earlyDist += st.dist
			earlyDur += st.dt
		}
		if st.t0 >= end-w {
			lateDist += st.dist
			lateDur += st.dt
		}
	}
	if earlyDur == 0 || lateDur == 0 {
		return 50, 0
	}
	confidence = math.Min(1, (earlyDur+lateDur)/(2*w))

	early, late := earlyDist/earlyDur, lateDist/lateDur
	if early == 0 {
		if late == 0 {
			return 50, confidence
		}
		return 100, confidence
	}
	index = math.Max(0, math.Min(100, 100*late/early))
	tracef("stamina over %d samples: early=%.2f late=%.2f index=%.1f", len(samples), early, late, index)
	return index, confidence
}

// distancePerMinute buckets accepted distance by match minute of each
// step's end time.
func distancePerMinute(steps []step) []float64 {
	var out []float64
	for _, st := range steps {
		if !st.valid {
			continue
		}
		idx := int(math.Max(0, st.t1) / 60)
		for len(out) <= idx {
			out = append(out, 0)
		}
		out[idx] += st.dist
	}
	return out
}

// bin returns the series bin holding t.
func (e *Engine) bin(origin, t float64) int {
	return int(math.Floor((t - origin) / e.cfg.SeriesResolutionS))
}

func (e *Engine) speedSeries(steps []step) []SeriesPoint {
	origin := steps[0].t0
	type acc struct{ dist, dur float64 }
	bins := map[int]*acc{}
	for _, st := range steps {
		if !st.valid {
			continue
		}
		b := e.bin(origin, st.t1-st.dt/2)
		if bins[b] == nil {
			bins[b] = &acc{}
		}
		bins[b].dist += st.dist
		bins[b].dur += st.dt
	}
	keys := sortedKeys(bins)
	out := make([]SeriesPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, SeriesPoint{T: origin + float64(k)*e.cfg.SeriesResolutionS, Value: bins[k].dist / bins[k].dur})
	}
	return out
}

func (e *Engine) accelSeries(origin float64, accels []accel) []SeriesPoint {
	type acc struct {
		sum float64
		n   int
	}
	bins := map[int]*acc{}
	for _, a := range accels {
		b := e.bin(origin, a.t)
		if bins[b] == nil {
			bins[b] = &acc{}
		}
		bins[b].sum += a.a
		bins[b].n++
	}
	keys := sortedKeys(bins)
	out := make([]SeriesPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, SeriesPoint{T: origin + float64(k)*e.cfg.SeriesResolutionS, Value: bins[k].sum / float64(bins[k].n)})
	}
	return out
}

// staminaCurve is the rolling average speed over a stamina window centred
// on each series tick.
func (e *Engine) staminaCurve(steps []step) []SeriesPoint {
	w := e.cfg.StaminaWindowS
	if w <= 0 {
		return nil
	}
	// Prefix sums over accepted steps, ordered by end time.
	ends := make([]float64, 0, len(steps))
	cumDist := []float64{0}
	cumDur := []float64{0}
	for _, st := range steps {
		if !st.valid {
			continue
		}
		ends = append(ends, st.t1)
		cumDist = append(cumDist, cumDist[len(cumDist)-1]+st.dist)
		cumDur = append(cumDur, cumDur[len(cumDur)-1]+st.dt)
	}
	if len(ends) == 0 {
		return nil
	}

	origin, end := steps[0].t0, steps[len(steps)-1].t1
	var out []SeriesPoint
	for t := origin; t <= end+durationEpsilon; t += e.cfg.SeriesResolutionS {
		lo := sort.SearchFloat64s(ends, t-w/2)
		hi := sort.Search(len(ends), func(i int) bool { return ends[i] > t+w/2 })
		dur := cumDur[hi] - cumDur[lo]
		if dur <= 0 {
			continue
		}
		out = append(out, SeriesPoint{T: t, Value: (cumDist[hi] - cumDist[lo]) / dur})
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// ComputeAll computes metrics for every trajectory in players, fanning out
// across at most cfg.Workers goroutines. Each trajectory is read-only input.
func (e *Engine) ComputeAll(ctx context.Context, players map[int64][]Sample) (map[int64]PlayerMetric, error) {
	out := make(map[int64]PlayerMetric, len(players))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if e.cfg.Workers > 0 {
		g.SetLimit(e.cfg.Workers)
	}
	for id, samples := range players {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pm := e.Compute(samples)
			pm.TrackID = id
			mu.Lock()
			out[id] = pm
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
