package events

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

func testDetector() *Detector {
	cfg := Config{
		PitchLength:      105,
		PitchWidth:       68,
		HomeAttacksRight: true,
		PossessionRadius: 2.0,
		KickSpeedMps:     12.0,
		PassMinDistance:  5.0,
		MaxPassDurationS: 2.0,
		CarryMinDistance: 3.0,
		CarryMinSpeedMps: 3.0,
		CarryMaxSpeedMps: 12.0,
		ShotSpeedMps:     18.0,
		ShotZoneDepth:    70.0,
		ShotMinCos:       0.7,
	}
	return NewDetector(cfg)
}

// scenario accumulates ball and player samples at 10 fps.
type scenario struct {
	ball    []Sample
	players map[int64][]Sample
	frame   int
}

func newScenario() *scenario {
	return &scenario{players: map[int64][]Sample{}}
}

// at records the ball and the given players at the next frame.
func (s *scenario) at(ball geom.Point, players map[int64]geom.Point) {
	t := float64(s.frame) / 10
	s.ball = append(s.ball, Sample{Frame: s.frame, T: t, X: ball.X, Y: ball.Y})
	for id, p := range players {
		s.players[id] = append(s.players[id], Sample{Frame: s.frame, T: t, X: p.X, Y: p.Y})
	}
	s.frame++
}

// kick has passer hold the ball at from for five frames, then plays it at
// 25 m/s along x to a receiver standing at to, who keeps it for five
// frames. A zero receiver leaves the ball unclaimed.
func kick(passer, receiver int64, from, to geom.Point) *scenario {
	s := newScenario()
	both := func() map[int64]geom.Point {
		m := map[int64]geom.Point{passer: from}
		if receiver != 0 {
			m[receiver] = to
		}
		return m
	}
	for i := 0; i < 5; i++ {
		s.at(from, both())
	}
	n := int(math.Round(math.Abs(to.X-from.X) / 2.5))
	dir := math.Copysign(2.5, to.X-from.X)
	for k := 1; k <= n; k++ {
		s.at(geom.Pt(from.X+dir*float64(k), from.Y), both())
	}
	if receiver != 0 {
		for i := 0; i < 5; i++ {
			s.at(to, both())
		}
	}
	return s
}

// --------------------------------------------------------------------------
// xT grid

func TestXTGrid(t *testing.T) {
	t.Parallel()
	g := NewXTGrid(105, 68)

	assert.Equal(t, 0.0, g.Value(geom.Pt(1, 34)))
	assert.Equal(t, 0.56, g.Value(geom.Pt(104, 34)))
	assert.Equal(t, 0.25, g.Value(geom.Pt(104, 1)))

	// Off-pitch positions clamp to the edge zones.
	c, r := g.Cell(geom.Pt(-3, 90))
	assert.Equal(t, 0, c)
	assert.Equal(t, XTRows-1, r)

	low, high := geom.Pt(10, 34), geom.Pt(95, 34)
	assert.Greater(t, g.Gain(low, high), 0.0)
	assert.Less(t, g.Gain(high, low), 0.0)
	assert.InDelta(t, 0.39, g.Gain(low, high), 1e-9)

	vals := g.Values()
	for col := 1; col < XTColumns; col++ {
		assert.GreaterOrEqual(t, vals[col][6], vals[col-1][6], "threat rises towards goal")
	}
}

// --------------------------------------------------------------------------
// Detection

func TestDetect_PassForwardAndBack(t *testing.T) {
	t.Parallel()
	d := testDetector()
	teams := map[int64]tracks.TeamSide{1: tracks.TeamHome, 2: tracks.TeamHome}

	fwd := kick(1, 2, geom.Pt(34.5, 34), geom.Pt(49.5, 34))
	evs := d.Detect(fwd.ball, fwd.players, teams)
	require.Len(t, evs, 1)
	p := evs[0]
	assert.Equal(t, EventPass, p.Type)
	assert.Equal(t, int64(1), p.TrackID)
	assert.Equal(t, int64(2), p.Receiver)
	assert.True(t, p.Completed)
	assert.Equal(t, 4, p.StartFrame)
	assert.Equal(t, 10, p.EndFrame)
	assert.InDelta(t, 15.0, p.Distance, 1e-9)
	assert.InDelta(t, 0.6, p.Duration, 1e-9)
	assert.InDelta(t, 25.0, p.PeakVelocity, 1e-6)
	assert.Greater(t, p.XTGain, 0.0)

	back := kick(2, 1, geom.Pt(49.5, 34), geom.Pt(34.5, 34))
	evs = d.Detect(back.ball, back.players, teams)
	require.Len(t, evs, 1)
	assert.Less(t, evs[0].XTGain, 0.0)
	assert.InDelta(t, -p.XTGain, evs[0].XTGain, 1e-12)
}

func TestDetect_AwayAttacksLeft(t *testing.T) {
	t.Parallel()
	d := testDetector()
	teams := map[int64]tracks.TeamSide{5: tracks.TeamAway, 6: tracks.TeamAway}

	s := kick(5, 6, geom.Pt(70.5, 34), geom.Pt(55.5, 34))
	evs := d.Detect(s.ball, s.players, teams)
	require.Len(t, evs, 1)
	assert.Equal(t, tracks.TeamAway, evs[0].Team)
	assert.Greater(t, evs[0].XTGain, 0.0)
}

func TestDetect_Interception(t *testing.T) {
	t.Parallel()
	d := testDetector()
	teams := map[int64]tracks.TeamSide{1: tracks.TeamHome, 9: tracks.TeamAway}

	s := kick(1, 9, geom.Pt(34.5, 34), geom.Pt(49.5, 34))
	evs := d.Detect(s.ball, s.players, teams)
	require.Len(t, evs, 1)
	assert.Equal(t, EventPass, evs[0].Type)
	assert.False(t, evs[0].Completed)
}

func TestDetect_Shot(t *testing.T) {
	t.Parallel()
	d := testDetector()
	teams := map[int64]tracks.TeamSide{1: tracks.TeamHome}

	s := kick(1, 0, geom.Pt(80, 34), geom.Pt(95, 34))
	evs := d.Detect(s.ball, s.players, teams)
	require.Len(t, evs, 1)
	assert.Equal(t, EventShot, evs[0].Type)
	assert.Greater(t, evs[0].XTGain, 0.0)

	// The same strike from midfield is neither a shot nor a pass.
	s = kick(1, 0, geom.Pt(30, 34), geom.Pt(45, 34))
	assert.Empty(t, d.Detect(s.ball, s.players, teams))
}

func TestDetect_CarryWithTurn(t *testing.T) {
	t.Parallel()
	d := testDetector()
	teams := map[int64]tracks.TeamSide{1: tracks.TeamHome}

	s := newScenario()
	pos := geom.Pt(40, 20)
	s.at(pos, map[int64]geom.Point{1: pos})
	for i := 0; i < 10; i++ {
		if i < 5 {
			pos = pos.Add(geom.Pt(0.5, 0))
		} else {
			pos = pos.Add(geom.Pt(0, 0.5))
		}
		s.at(pos, map[int64]geom.Point{1: pos})
	}

	evs := d.Detect(s.ball, s.players, teams)
	require.Len(t, evs, 1)
	c := evs[0]
	assert.Equal(t, EventCarry, c.Type)
	assert.InDelta(t, 5.0, c.Distance, 1e-9)
	assert.InDelta(t, 5.0, c.Velocity, 1e-9)
	assert.InDelta(t, 90.0, c.DirectionChange, 1e-6)
	assert.Equal(t, 0, c.StartFrame)
	assert.Equal(t, 10, c.EndFrame)
}

func TestDetect_RefereeNeverPossesses(t *testing.T) {
	t.Parallel()
	d := testDetector()
	teams := map[int64]tracks.TeamSide{1: tracks.TeamReferee, 2: tracks.TeamReferee}

	s := kick(1, 2, geom.Pt(34.5, 34), geom.Pt(49.5, 34))
	assert.Empty(t, d.Detect(s.ball, s.players, teams))
}

func TestDetect_DeterministicIDs(t *testing.T) {
	t.Parallel()
	d := testDetector()
	teams := map[int64]tracks.TeamSide{1: tracks.TeamHome, 2: tracks.TeamHome}
	s := kick(1, 2, geom.Pt(34.5, 34), geom.Pt(49.5, 34))

	a := d.Detect(s.ball, s.players, teams)
	b := d.Detect(s.ball, s.players, teams)
	require.Len(t, a, 1)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a[0].ID)
}

// --------------------------------------------------------------------------
// Summary

func TestSummarise(t *testing.T) {
	t.Parallel()
	got := Summarise([]Event{
		{TrackID: 7, Team: tracks.TeamAway, Type: EventCarry, XTGain: 0.05},
		{TrackID: 3, Team: tracks.TeamHome, Type: EventPass, XTGain: 0.10},
		{TrackID: 3, Team: tracks.TeamHome, Type: EventPass, XTGain: -0.04},
		{TrackID: 3, Team: tracks.TeamHome, Type: EventShot, XTGain: 0.20},
	})
	require.Len(t, got, 2)

	home := got[0]
	assert.Equal(t, int64(3), home.TrackID)
	assert.Equal(t, 2, home.Passes)
	assert.Equal(t, 1, home.Shots)
	assert.InDelta(t, 0.10, home.PassXT, 1e-12)
	assert.InDelta(t, 0.30, home.TotalXT, 1e-12)
	assert.InDelta(t, 0.10, home.AvgXTPerAction, 1e-12)
	assert.InDelta(t, 30.0, home.DangerScore, 1e-9)

	assert.Equal(t, int64(7), got[1].TrackID)
	assert.Equal(t, 1, got[1].Carries)
	assert.Empty(t, Summarise(nil))
}
