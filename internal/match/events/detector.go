package events

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// Sample is one calibrated position of the ball or a player.
type Sample = tracks.Sample

// EventType classifies a detected action.
type EventType string

const (
	EventPass  EventType = "pass"
	EventCarry EventType = "carry"
	EventShot  EventType = "shot"
)

// eventNamespace scopes event IDs so that re-running detection over the
// same trajectories yields the same IDs.
var eventNamespace = uuid.MustParse("3f6c1f7e-5d0a-4b8e-9a43-2c0f1e6b7d21")

// Event is one detected action by one player.
type Event struct {
	ID      string          `json:"id"`
	Type    EventType       `json:"type"`
	TrackID int64           `json:"track_id"`
	Team    tracks.TeamSide `json:"team"`

	// Receiver is the player gaining possession after a pass.
	Receiver  int64 `json:"receiver,omitempty"`
	Completed bool  `json:"completed,omitempty"` // pass reached a team-mate

	StartFrame int        `json:"start_frame"`
	EndFrame   int        `json:"end_frame"`
	Timestamp  float64    `json:"timestamp"`
	Start      geom.Point `json:"start"`
	End        geom.Point `json:"end"`

	Distance     float64 `json:"distance"`
	Duration     float64 `json:"duration"`
	Velocity     float64 `json:"velocity"` // average ball speed
	PeakVelocity float64 `json:"peak_velocity"`
	// DirectionChange is the total heading change of a carry in degrees.
	DirectionChange float64 `json:"direction_change,omitempty"`

	XTStart float64 `json:"xt_start"`
	XTEnd   float64 `json:"xt_end"`
	XTGain  float64 `json:"xt_gain"`
}

// Config holds detection thresholds.
type Config struct {
	PitchLength float64
	PitchWidth  float64
	// HomeAttacksRight sets the home team to attack towards x = length;
	// away attacks the other way.
	HomeAttacksRight bool

	PossessionRadius float64 // metres from ball to possessor

	KickSpeedMps     float64 // ball speed that marks a kick
	PassMinDistance  float64
	MaxPassDurationS float64

	CarryMinDistance float64
	CarryMinSpeedMps float64
	CarryMaxSpeedMps float64

	ShotSpeedMps  float64
	ShotZoneDepth float64 // metres from own goal line where shots can start
	ShotMinCos    float64 // alignment of the ball path with the goal direction
}

// DefaultConfig returns detector configuration loaded from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		PitchLength:      cfg.GetPitchLength(),
		PitchWidth:       cfg.GetPitchWidth(),
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
}

// Detector finds events in trajectories. It is stateless and safe for
// concurrent use.
type Detector struct {
	cfg  Config
	grid *XTGrid
}

// NewDetector returns a Detector for cfg.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, grid: NewXTGrid(cfg.PitchLength, cfg.PitchWidth)}
}

// Grid returns the xT grid used for valuation.
func (d *Detector) Grid() *XTGrid { return d.grid }

// attacksRight reports the attack direction of side.
func (d *Detector) attacksRight(side tracks.TeamSide) bool {
	return (side == tracks.TeamAway) != d.cfg.HomeAttacksRight
}

// orient maps p into the frame of a team attacking towards x = length.
func (d *Detector) orient(p geom.Point, side tracks.TeamSide) geom.Point {
	if d.attacksRight(side) {
		return p
	}
	return geom.Pt(d.cfg.PitchLength-p.X, d.cfg.PitchWidth-p.Y)
}

// tick is one ball sample with its possessor.
type tick struct {
	s     Sample
	owner int64
	owned bool
	speed float64 // ball speed from the previous tick
}

// Detect returns the events found in ball and player trajectories, ordered
// by start frame. Only home and away players can hold possession.
func (d *Detector) Detect(ball []Sample, players map[int64][]Sample, teams map[int64]tracks.TeamSide) []Event {
	ticks := d.possession(ball, players, teams)
	if len(ticks) < 2 {
		return nil
	}

	// Step 1: split the timeline into possession spells [start, end].
	type spell struct{ start, end int }
	var spells []spell
	for i := 0; i < len(ticks); i++ {
		if !ticks[i].owned {
			continue
		}
		j := i
		for j+1 < len(ticks) && ticks[j+1].owned && ticks[j+1].owner == ticks[i].owner {
			j++
		}
		spells = append(spells, spell{i, j})
		i = j
	}

	// Step 2: each spell may be a carry; the flight after it may be a pass
	// or a shot.
	var out []Event
	for k, sp := range spells {
		owner := ticks[sp.start].owner
		side := teams[owner]
		if ev, ok := d.carry(ticks[sp.start:sp.end+1], owner, side); ok {
			out = append(out, ev)
		}

		landing := len(ticks) - 1
		var receiver int64
		received := false
		if k+1 < len(spells) {
			landing = spells[k+1].start
			receiver = ticks[landing].owner
			received = true
		}
		if landing <= sp.end {
			continue
		}
		if ev, ok := d.flight(ticks[sp.end:landing+1], owner, side, receiver, received, teams); ok {
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartFrame < out[j].StartFrame })
	tracef("detected %d events over %d ball samples", len(out), len(ticks))
	return out
}

// possession orders the ball samples and assigns each to the nearest
// eligible player within the radius, ties going to the lower track ID.
func (d *Detector) possession(ball []Sample, players map[int64][]Sample, teams map[int64]tracks.TeamSide) []tick {
	byFrame := map[int]map[int64]geom.Point{}
	for id, samples := range players {
		if side := teams[id]; side != tracks.TeamHome && side != tracks.TeamAway {
			continue
		}
		for _, s := range samples {
			if byFrame[s.Frame] == nil {
				byFrame[s.Frame] = map[int64]geom.Point{}
			}
			byFrame[s.Frame][id] = s.Point()
		}
	}

	sorted := make([]Sample, len(ball))
	copy(sorted, ball)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	ticks := make([]tick, 0, len(sorted))
	for i, s := range sorted {
		if i > 0 && s.Frame == sorted[i-1].Frame {
			continue
		}
		t := tick{s: s}
		if n := len(ticks); n > 0 {
			prev := ticks[n-1].s
			if dt := s.T - prev.T; dt > 0 {
				t.speed = geom.Dist(s.Point(), prev.Point()) / dt
			}
		}
		best := math.Inf(1)
		for id, p := range byFrame[s.Frame] {
			dist := geom.Dist(p, s.Point())
			if dist > d.cfg.PossessionRadius {
				continue
			}
			if dist < best || (dist == best && id < t.owner) {
				best, t.owner, t.owned = dist, id, true
			}
		}
		ticks = append(ticks, t)
	}
	return ticks
}

// carry turns a possession spell into a carry when the ball covered enough
// ground at a running pace.
func (d *Detector) carry(spell []tick, owner int64, side tracks.TeamSide) (Event, bool) {
	if len(spell) < 2 {
		return Event{}, false
	}
	var dist, turn float64
	var heading geom.Point
	for i := 1; i < len(spell); i++ {
		step := spell[i].s.Point().Sub(spell[i-1].s.Point())
		dist += step.Norm()
		// Ignore jitter when tracking heading.
		if step.Norm() < 0.1 {
			continue
		}
		if heading != (geom.Point{}) {
			turn += geom.AngleBetween(heading, step)
		}
		heading = step
	}
	first, last := spell[0].s, spell[len(spell)-1].s
	dur := last.T - first.T
	if dur <= 0 || dist < d.cfg.CarryMinDistance {
		return Event{}, false
	}
	v := dist / dur
	if v < d.cfg.CarryMinSpeedMps || v > d.cfg.CarryMaxSpeedMps {
		return Event{}, false
	}
	ev := d.newEvent(EventCarry, owner, side, first, last)
	ev.Distance = dist
	ev.Velocity = v
	ev.PeakVelocity = peak(spell[1:])
	ev.DirectionChange = turn * 180 / math.Pi
	return ev, true
}

// flight classifies the ball's path from release (flight[0]) to landing.
// A fast path from the attacking zone towards goal is a shot whether or not
// anyone receives it; otherwise a kick reaching another player is a pass.
func (d *Detector) flight(flight []tick, owner int64, side tracks.TeamSide, receiver int64, received bool, teams map[int64]tracks.TeamSide) (Event, bool) {
	release, landing := flight[0].s, flight[len(flight)-1].s
	top := peak(flight[1:])
	dur := landing.T - release.T
	dist := geom.Dist(release.Point(), landing.Point())
	if dur <= 0 {
		return Event{}, false
	}

	from := d.orient(release.Point(), side)
	to := d.orient(landing.Point(), side)
	goal := geom.Pt(d.cfg.PitchLength, d.cfg.PitchWidth/2)
	towardGoal := math.Cos(geom.AngleBetween(to.Sub(from), goal.Sub(from)))

	var ev Event
	switch {
	case dist > 0 && from.X > d.cfg.ShotZoneDepth && top >= d.cfg.ShotSpeedMps && towardGoal > d.cfg.ShotMinCos:
		ev = d.newEvent(EventShot, owner, side, release, landing)
	case received && receiver != owner && top >= d.cfg.KickSpeedMps &&
		dist > d.cfg.PassMinDistance && dur <= d.cfg.MaxPassDurationS:
		ev = d.newEvent(EventPass, owner, side, release, landing)
		ev.Receiver = receiver
		ev.Completed = teams[receiver] == side
	default:
		return Event{}, false
	}
	ev.Distance = dist
	ev.Velocity = dist / dur
	ev.PeakVelocity = top
	return ev, true
}

func (d *Detector) newEvent(kind EventType, owner int64, side tracks.TeamSide, start, end Sample) Event {
	ev := Event{
		ID:         uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s/%d/%d", kind, owner, start.Frame))).String(),
		Type:       kind,
		TrackID:    owner,
		Team:       side,
		StartFrame: start.Frame,
		EndFrame:   end.Frame,
		Timestamp:  start.T,
		Start:      start.Point(),
		End:        end.Point(),
		Duration:   end.T - start.T,
	}
	ev.XTStart = d.grid.Value(d.orient(ev.Start, side))
	ev.XTEnd = d.grid.Value(d.orient(ev.End, side))
	ev.XTGain = ev.XTEnd - ev.XTStart
	return ev
}

func peak(ticks []tick) float64 {
	var m float64
	for _, t := range ticks {
		m = math.Max(m, t.speed)
	}
	return m
}
