package events

import (
	"sort"

	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// PlayerXT sums the threat a player added. Only positive gains count
// towards the totals; negative actions still count as actions.
type PlayerXT struct {
	TrackID int64           `json:"track_id"`
	Team    tracks.TeamSide `json:"team"`

	TotalXT float64 `json:"total_xt"`
	PassXT  float64 `json:"pass_xt"`
	CarryXT float64 `json:"carry_xt"`
	ShotXT  float64 `json:"shot_xt"`

	Passes  int `json:"passes"`
	Carries int `json:"carries"`
	Shots   int `json:"shots"`

	AvgXTPerAction float64 `json:"avg_xt_per_action"`
	DangerScore    float64 `json:"danger_score"` // TotalXT × 100
}

// Summarise aggregates events per player, ordered by track ID.
func Summarise(events []Event) []PlayerXT {
	byID := map[int64]*PlayerXT{}
	for _, ev := range events {
		p := byID[ev.TrackID]
		if p == nil {
			p = &PlayerXT{TrackID: ev.TrackID, Team: ev.Team}
			byID[ev.TrackID] = p
		}
		gain := max(0, ev.XTGain)
		switch ev.Type {
		case EventPass:
			p.Passes++
			p.PassXT += gain
		case EventCarry:
			p.Carries++
			p.CarryXT += gain
		case EventShot:
			p.Shots++
			p.ShotXT += gain
		}
	}

	out := make([]PlayerXT, 0, len(byID))
	for _, p := range byID {
		p.TotalXT = p.PassXT + p.CarryXT + p.ShotXT
		if n := p.Passes + p.Carries + p.Shots; n > 0 {
			p.AvgXTPerAction = p.TotalXT / float64(n)
		}
		p.DangerScore = p.TotalXT * 100
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}
