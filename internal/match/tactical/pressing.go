package tactical

import (
	"math"
	"sort"

	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// Frame is one team's positions at an instant, plus the opposing ball
// carrier when the team is out of possession.
type Frame struct {
	T       float64     `json:"t"`
	Players []Player    `json:"players"`
	Carrier *geom.Point `json:"carrier,omitempty"`
}

// Pressing scores 0–100 how fast the defenders nearest the carrier closed
// on them between prev and cur. Only players present in both frames count;
// with no carrier, no shared players or no elapsed time the score is 0.
func (e *Engine) Pressing(prev, cur Frame) float64 {
	dt := cur.T - prev.T
	if dt <= 0 || prev.Carrier == nil || cur.Carrier == nil {
		return 0
	}
	before := make(map[int64]geom.Point, len(prev.Players))
	for _, p := range prev.Players {
		if !p.Goalkeeper {
			before[p.TrackID] = p.Pos
		}
	}

	type cand struct {
		id   int64
		dist float64
	}
	var near []cand
	for _, p := range cur.Players {
		if _, ok := before[p.TrackID]; ok && !p.Goalkeeper {
			near = append(near, cand{p.TrackID, geom.Dist(p.Pos, *cur.Carrier)})
		}
	}
	if len(near) == 0 {
		return 0
	}
	sort.Slice(near, func(i, j int) bool {
		if near[i].dist != near[j].dist {
			return near[i].dist < near[j].dist
		}
		return near[i].id < near[j].id
	})
	if len(near) > e.cfg.PressingPlayers {
		near = near[:e.cfg.PressingPlayers]
	}

	var closing float64
	for _, c := range near {
		closing += (geom.Dist(before[c.id], *prev.Carrier) - c.dist) / dt
	}
	closing /= float64(len(near))
	return math.Max(0, math.Min(100, 100*closing/e.cfg.MaxClosingMps))
}

// Series builds one snapshot per time window from frames. Each player's
// position is averaged over the window and the snapshot is stamped at the
// window midpoint; pressing is the mean over consecutive frame pairs in
// the window. Windows with too few players are skipped.
func (e *Engine) Series(team tracks.TeamSide, frames []Frame, window float64, dir Direction) []*Snapshot {
	if len(frames) == 0 || window <= 0 {
		return nil
	}
	sorted := make([]Frame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })

	var out []*Snapshot
	origin := sorted[0].T
	for lo := 0; lo < len(sorted); {
		start := origin + math.Floor((sorted[lo].T-origin)/window)*window
		hi := lo + 1
		for hi < len(sorted) && sorted[hi].T < start+window {
			hi++
		}
		if s := e.windowSnapshot(team, sorted[lo:hi], start+window/2, dir); s != nil {
			out = append(out, s)
		}
		lo = hi
	}
	return out
}

func (e *Engine) windowSnapshot(team tracks.TeamSide, frames []Frame, t float64, dir Direction) *Snapshot {
	type acc struct {
		sum geom.Point
		n   int
		gk  bool
	}
	byID := map[int64]*acc{}
	for _, f := range frames {
		for _, p := range f.Players {
			a := byID[p.TrackID]
			if a == nil {
				a = &acc{}
				byID[p.TrackID] = a
			}
			a.sum = a.sum.Add(p.Pos)
			a.n++
			a.gk = a.gk || p.Goalkeeper
		}
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	players := make([]Player, 0, len(ids))
	for _, id := range ids {
		a := byID[id]
		players = append(players, Player{TrackID: id, Pos: a.sum.Scale(1 / float64(a.n)), Goalkeeper: a.gk})
	}

	s, err := e.Snapshot(team, t, players, dir)
	if err != nil {
		diagf("%s window at t=%.1f skipped: %v", team, t, err)
		return nil
	}
	var press float64
	pairs := 0
	for i := 1; i < len(frames); i++ {
		if frames[i-1].Carrier != nil && frames[i].Carrier != nil {
			press += e.Pressing(frames[i-1], frames[i])
			pairs++
		}
	}
	if pairs > 0 {
		s.PressingIntensity = press / float64(pairs)
	}
	return s
}

// Transition is a swing of the team centroid between its defensive and
// attacking thirds across consecutive snapshots.
type Transition struct {
	Type     string  `json:"type"` // defence_to_attack or attack_to_defence
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Distance float64 `json:"distance"`
	Speed    float64 `json:"speed"`
}

// Transitions scans consecutive snapshots for centroid swings across the
// middle third.
func (e *Engine) Transitions(snaps []*Snapshot, dir Direction) []Transition {
	third := e.cfg.PitchLength / 3
	var out []Transition
	for i := 1; i < len(snaps); i++ {
		a, b := snaps[i-1], snaps[i]
		da, db := e.depth(a.Centroid.X, dir), e.depth(b.Centroid.X, dir)
		var kind string
		switch {
		case da < third && db > 2*third:
			kind = "defence_to_attack"
		case da > 2*third && db < third:
			kind = "attack_to_defence"
		default:
			continue
		}
		tr := Transition{Type: kind, Start: a.Timestamp, End: b.Timestamp, Distance: math.Abs(db - da)}
		if d := b.Timestamp - a.Timestamp; d > 0 {
			tr.Speed = tr.Distance / d
		}
		out = append(out, tr)
	}
	return out
}
