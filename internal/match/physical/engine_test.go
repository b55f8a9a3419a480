package physical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

func testConfig() Config {
	return Config{
		HighIntensityMps:   5.5,
		SprintMps:          7.0,
		SprintMinDurationS: 1.0,
		MaxSpeedMps:        12.5,
		MaxAccelMps2:       10,
		MaxFrameGap:        10,
		SmoothingWindow:    5,
		StaminaWindowS:     60,
		SeriesResolutionS:  1.0,
		Workers:            2,
	}
}

// linear returns n samples at 10 fps starting at frame f0, moving step
// metres along x per frame from x0.
func linear(f0, n int, x0, step float64) []Sample {
	out := make([]Sample, n)
	for i := range out {
		f := f0 + i
		out[i] = Sample{Frame: f, T: float64(f) / 10, X: x0 + step*float64(i), Y: 34}
	}
	return out
}

// --------------------------------------------------------------------------
// Edge cases

func TestCompute_TooFewSamples(t *testing.T) {
	t.Parallel()
	e := NewEngine(testConfig())

	assert.Equal(t, PlayerMetric{}, e.Compute(nil))
	assert.Equal(t, PlayerMetric{Samples: 1}, e.Compute(linear(0, 1, 10, 0)))
}

func TestCompute_Stationary(t *testing.T) {
	t.Parallel()
	m := NewEngine(testConfig()).Compute(linear(0, 50, 30, 0))

	assert.Zero(t, m.TotalDistanceM)
	assert.Zero(t, m.SprintCount)
	assert.Zero(t, m.TopSpeedMps)
	assert.Zero(t, m.AnomaliesExcluded)
	assert.Equal(t, 1, m.Segments)
}

// --------------------------------------------------------------------------
// Speed and sprints

func TestCompute_TenMetresInOneSecond(t *testing.T) {
	t.Parallel()
	m := NewEngine(testConfig()).Compute(linear(0, 11, 10, 1.0))

	assert.InDelta(t, 10.0, m.TotalDistanceM, 1e-6)
	assert.InDelta(t, 36.0, m.TopSpeedKmh, 1e-6)
	assert.InDelta(t, 10.0, m.AvgSpeedMps, 1e-6)
	assert.Equal(t, 1, m.SprintCount)
	assert.InDelta(t, 10.0, m.SprintDistanceM, 1e-6)
	assert.InDelta(t, 10.0, m.HighIntensityDistanceM, 1e-6)
	assert.InDelta(t, 0, m.MaxAccelMps2, 1e-6)

	require.Len(t, m.SpeedSeries, 1)
	assert.InDelta(t, 10.0, m.SpeedSeries[0].Value, 1e-6)
	require.Len(t, m.DistancePerMinute, 1)
	assert.InDelta(t, 10.0, m.DistancePerMinute[0], 1e-6)
}

// burst walks at 1 m/s for 2 s, runs at 9 m/s for steps frames, then walks
// for another 2 s, at 10 fps.
func burst(steps int) []Sample {
	samples := []Sample{{Frame: 0, T: 0, X: 0, Y: 20}}
	x := 0.0
	f := 0
	add := func(n int, step float64) {
		for i := 0; i < n; i++ {
			x += step
			f++
			samples = append(samples, Sample{Frame: f, T: float64(f) / 10, X: x, Y: 20})
		}
	}
	add(20, 0.1)
	add(steps, 0.9)
	add(20, 0.1)
	return samples
}

func TestCompute_SprintMinimumDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		window   int
		steps    int
		sprint   int
		distance float64
	}{
		{"unsmoothed 0.9 second burst", 1, 9, 0, 0},
		{"unsmoothed 1.0 second burst", 1, 10, 1, 9.0},
		{"unsmoothed 2.0 second burst", 1, 20, 1, 18.0},

		// The default window ramps the burst edges: 7.4 m/s on the first
		// and last step above the threshold, 9 m/s between, and two steps
		// fewer above 7 m/s than the raw burst.
		{"smoothed 1.0 second burst", 5, 10, 0, 0},
		{"smoothed 1.1 second burst", 5, 11, 0, 0},
		{"smoothed 1.2 second burst", 5, 12, 1, 0.74*2 + 0.9*8},
		{"smoothed 2.0 second burst", 5, 20, 1, 0.74*2 + 0.9*16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.SmoothingWindow = tt.window

			m := NewEngine(cfg).Compute(burst(tt.steps))
			assert.Equal(t, tt.sprint, m.SprintCount)
			assert.InDelta(t, tt.distance, m.SprintDistanceM, 1e-6)
		})
	}
}

func TestCompute_SprintMinimumDurationDefaults(t *testing.T) {
	t.Parallel()
	cfg := ConfigFromTuning(config.DefaultTuningConfig())
	require.Equal(t, 5, cfg.SmoothingWindow)

	e := NewEngine(cfg)
	assert.Zero(t, e.Compute(burst(10)).SprintCount, "a 1.0 s burst smooths to 0.8 s above the threshold")
	assert.Equal(t, 1, e.Compute(burst(12)).SprintCount)
}

func TestCompute_SprintNotAcrossGap(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.SmoothingWindow = 1

	// Two 0.6 s bursts separated by a frame gap: neither qualifies alone.
	samples := append(linear(0, 7, 0, 0.8), linear(50, 7, 40, 0.8)...)
	m := NewEngine(cfg).Compute(samples)

	assert.Equal(t, 2, m.Segments)
	assert.Zero(t, m.SprintCount)
	assert.InDelta(t, 9.6, m.TotalDistanceM, 1e-6)
}

// --------------------------------------------------------------------------
// Anomalies and segments

func TestCompute_SpeedAnomalyExcluded(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.SmoothingWindow = 1

	samples := append(linear(0, 5, 0, 0.5), linear(5, 5, 7.5, 0.5)...)
	m := NewEngine(cfg).Compute(samples)

	assert.Equal(t, 1, m.AnomaliesExcluded)
	assert.InDelta(t, 4.0, m.TotalDistanceM, 1e-6)
	assert.InDelta(t, 5.0, m.TopSpeedMps, 1e-6)
}

func TestCompute_GapSplitsSegments(t *testing.T) {
	t.Parallel()
	samples := append(linear(0, 5, 0, 0.1), linear(100, 5, 50, 0.1)...)
	m := NewEngine(testConfig()).Compute(samples)

	assert.Equal(t, 2, m.Segments)
	assert.Zero(t, m.AnomaliesExcluded)
	assert.InDelta(t, 0.8, m.TotalDistanceM, 1e-6)
}

func TestCompute_UnorderedInput(t *testing.T) {
	t.Parallel()
	ordered := linear(0, 30, 0, 0.3)
	shuffled := make([]Sample, len(ordered))
	for i := range ordered {
		shuffled[len(ordered)-1-i] = ordered[i]
	}
	e := NewEngine(testConfig())
	assert.Equal(t, e.Compute(ordered), e.Compute(shuffled))
}

// --------------------------------------------------------------------------
// Stamina

func TestCompute_Stamina(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.SmoothingWindow = 1
	cfg.StaminaWindowS = 2

	var samples []Sample
	x := 0.0
	samples = append(samples, Sample{Frame: 0, T: 0, X: 0})
	for f := 1; f <= 60; f++ {
		switch {
		case f <= 20:
			x += 0.4
		case f <= 40:
			x += 0.3
		default:
			x += 0.2
		}
		samples = append(samples, Sample{Frame: f, T: float64(f) / 10, X: x})
	}

	m := NewEngine(cfg).Compute(samples)
	assert.InDelta(t, 50, m.StaminaIndex, 1e-6)
	assert.InDelta(t, 1, m.StaminaConfidence, 1e-6)
	assert.NotEmpty(t, m.StaminaCurve)
}

func TestCompute_StaminaNeutralOnShortTrack(t *testing.T) {
	t.Parallel()
	m := NewEngine(testConfig()).Compute(linear(0, 100, 0, 0.3))

	assert.Equal(t, 50.0, m.StaminaIndex)
	assert.Zero(t, m.StaminaConfidence)
}

// --------------------------------------------------------------------------
// Fan-out and team aggregation

func TestComputeAll(t *testing.T) {
	t.Parallel()
	e := NewEngine(testConfig())
	players := map[int64][]Sample{
		1: linear(0, 11, 0, 1.0),
		2: linear(0, 50, 0, 0),
	}

	got, err := e.ComputeAll(context.Background(), players)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[1].TrackID)
	assert.Equal(t, 1, got[1].SprintCount)
	assert.Zero(t, got[2].TotalDistanceM)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ComputeAll(ctx, players)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTeamMetrics(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TeamMetric{}, TeamMetrics(nil))

	tm := TeamMetrics([]PlayerMetric{
		{TrackID: 3, Team: tracks.TeamHome, TotalDistanceM: 1000, AvgSpeedMps: 2, TopSpeedMps: 8, SprintCount: 2, StaminaIndex: 80, StaminaConfidence: 1},
		{TrackID: 7, Team: tracks.TeamHome, TotalDistanceM: 3000, AvgSpeedMps: 4, TopSpeedMps: 9, SprintCount: 1, StaminaIndex: 40, StaminaConfidence: 1},
		{TrackID: 9, Team: tracks.TeamHome, TotalDistanceM: 2000, AvgSpeedMps: 3, StaminaIndex: 50},
	})
	assert.Equal(t, tracks.TeamHome, tm.Team)
	assert.Equal(t, 3, tm.Players)
	assert.Equal(t, 6000.0, tm.TotalDistanceM)
	assert.Equal(t, 2000.0, tm.AvgDistanceM)
	assert.Equal(t, 3, tm.TotalSprints)
	assert.Equal(t, 9.0, tm.TopSpeedMps)
	assert.Equal(t, int64(7), tm.TopSpeedTrackID)
	assert.InDelta(t, 3.0, tm.AvgSpeedMps, 1e-9)
	assert.InDelta(t, 60.0, tm.AvgStaminaIndex, 1e-9)
}

func TestMeterSamples(t *testing.T) {
	t.Parallel()
	p := geom.Pt(10, 20)
	got := tracks.MeterSamples([]tracks.TrackPoint{
		{FrameNumber: 1, Timestamp: 0.04},
		{FrameNumber: 2, Timestamp: 0.08, MeterXY: &p},
	})
	assert.Equal(t, []Sample{{Frame: 2, T: 0.08, X: 10, Y: 20}}, got)
}
