package tracks

import (
	"fmt"

	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/detect"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // New track, needs confirmation
	TrackConfirmed TrackState = "confirmed" // Matched recently with sufficient history
	TrackLost      TrackState = "lost"      // Confirmed track coasting through misses
	TrackDeleted   TrackState = "deleted"   // Terminal; never re-enters another state
)

// TeamSide is the team label attached to a confirmed person track.
type TeamSide string

const (
	TeamHome    TeamSide = "home"
	TeamAway    TeamSide = "away"
	TeamReferee TeamSide = "referee"
	TeamUnknown TeamSide = "unknown"
)

// ParseTeamSide validates a stored team label.
func ParseTeamSide(s string) (TeamSide, error) {
	switch TeamSide(s) {
	case TeamHome, TeamAway, TeamReferee, TeamUnknown:
		return TeamSide(s), nil
	case "":
		return TeamUnknown, nil
	default:
		return "", fmt.Errorf("unknown team side %q", s)
	}
}

// Opponent returns the other playing side; referee and unknown have none.
func (s TeamSide) Opponent() TeamSide {
	switch s {
	case TeamHome:
		return TeamAway
	case TeamAway:
		return TeamHome
	case TeamReferee, TeamUnknown:
		return TeamUnknown
	default:
		return TeamUnknown
	}
}

// TrackPoint is one matched observation of a track. PixelXY is the
// detection's foot point; MeterXY is filled by calibration and stays nil
// when no valid homography is available.
type TrackPoint struct {
	TrackID     int64       `json:"track_id"`
	FrameNumber int         `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	BBox        detect.BBox `json:"bbox"`
	PixelXY     geom.Point  `json:"pixel_xy"`
	MeterXY     *geom.Point `json:"meter_xy,omitempty"`
	Confidence  float64     `json:"confidence"`
	Jersey      *detect.HSV `json:"jersey,omitempty"`
}

// Track is a single tracked entity within one video.
type Track struct {
	ID    int64              `json:"id"`
	Class detect.ObjectClass `json:"class"`
	Team  TeamSide           `json:"team"`
	State TrackState         `json:"state"`

	FirstFrame int `json:"first_frame"`
	LastFrame  int `json:"last_frame"` // last matched frame

	HitCount int `json:"hit_count"` // total matched detections
	Hits     int `json:"hits"`      // consecutive matches
	Misses   int `json:"misses"`    // consecutive frames without a match

	// EverConfirmed stays true once the track has been confirmed, so team
	// labels remain assignable after the track is lost or deleted.
	EverConfirmed bool `json:"ever_confirmed"`

	// Pixel velocity of the box centre, per frame.
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`

	BBox   detect.BBox  `json:"bbox"` // last matched box
	Points []TrackPoint `json:"points,omitempty"`
}

// Active reports whether the track still takes part in association.
func (t *Track) Active() bool { return t.State != TrackDeleted }

// Predicted returns the constant-velocity extrapolation of the last box to
// the given frame. With no velocity estimate the last box is returned.
func (t *Track) Predicted(frame int) detect.BBox {
	df := float64(frame - t.LastFrame)
	if df <= 0 || (t.VX == 0 && t.VY == 0) {
		return t.BBox
	}
	return t.BBox.Translate(t.VX*df, t.VY*df)
}

// clone returns a deep copy of t.
func (t *Track) clone() *Track {
	c := *t
	if t.Points != nil {
		c.Points = make([]TrackPoint, len(t.Points))
		copy(c.Points, t.Points)
		for i := range c.Points {
			if p := t.Points[i].MeterXY; p != nil {
				m := *p
				c.Points[i].MeterXY = &m
			}
		}
	}
	return &c
}

// Sample is one calibrated pitch position of an entity, the input shared by
// the analytics engines.
type Sample struct {
	Frame int     `json:"frame"`
	T     float64 `json:"t"` // seconds
	X     float64 `json:"x"` // metres along the pitch
	Y     float64 `json:"y"` // metres across the pitch
}

// Point returns the sample position.
func (s Sample) Point() geom.Point { return geom.Point{X: s.X, Y: s.Y} }

// MeterSamples converts the calibrated points of a track. Points without a
// pitch position are skipped.
func MeterSamples(points []TrackPoint) []Sample {
	out := make([]Sample, 0, len(points))
	for _, p := range points {
		if p.MeterXY == nil {
			continue
		}
		out = append(out, Sample{Frame: p.FrameNumber, T: p.Timestamp, X: p.MeterXY.X, Y: p.MeterXY.Y})
	}
	return out
}
