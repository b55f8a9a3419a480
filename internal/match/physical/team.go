package physical

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// TeamMetric aggregates the player metrics of one side.
type TeamMetric struct {
	Team    tracks.TeamSide `json:"team"`
	Players int             `json:"players"`

	TotalDistanceM         float64 `json:"total_distance_m"`
	AvgDistanceM           float64 `json:"avg_distance_m"`
	HighIntensityDistanceM float64 `json:"high_intensity_distance_m"`
	SprintDistanceM        float64 `json:"sprint_distance_m"`
	TotalSprints           int     `json:"total_sprints"`
	TopSpeedMps            float64 `json:"top_speed_mps"`
	TopSpeedTrackID        int64   `json:"top_speed_track_id"`
	AvgSpeedMps            float64 `json:"avg_speed_mps"`

	// AvgStaminaIndex is weighted by each player's stamina confidence;
	// it stays 0 when no player has a confident index.
	AvgStaminaIndex float64 `json:"avg_stamina_index"`
}

// TeamMetrics sums and averages players. The team label is taken from the
// first player.
func TeamMetrics(players []PlayerMetric) TeamMetric {
	tm := TeamMetric{Players: len(players)}
	if len(players) == 0 {
		return tm
	}
	tm.Team = players[0].Team

	speeds := make([]float64, 0, len(players))
	stamina := make([]float64, 0, len(players))
	weights := make([]float64, 0, len(players))
	for _, p := range players {
		tm.TotalDistanceM += p.TotalDistanceM
		tm.HighIntensityDistanceM += p.HighIntensityDistanceM
		tm.SprintDistanceM += p.SprintDistanceM
		tm.TotalSprints += p.SprintCount
		if p.TopSpeedMps > tm.TopSpeedMps {
			tm.TopSpeedMps = p.TopSpeedMps
			tm.TopSpeedTrackID = p.TrackID
		}
		speeds = append(speeds, p.AvgSpeedMps)
		if p.StaminaConfidence > 0 {
			stamina = append(stamina, p.StaminaIndex)
			weights = append(weights, p.StaminaConfidence)
		}
	}
	tm.AvgDistanceM = tm.TotalDistanceM / float64(len(players))
	tm.AvgSpeedMps = stat.Mean(speeds, nil)
	if len(stamina) > 0 {
		tm.AvgStaminaIndex = stat.Mean(stamina, weights)
	}
	return tm
}
