package detect

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/pitch.report/internal/geom"
)

// ObjectClass is the detector's label for an entity.
type ObjectClass string

const (
	ClassPlayer     ObjectClass = "player"
	ClassBall       ObjectClass = "ball"
	ClassReferee    ObjectClass = "referee"
	ClassGoalkeeper ObjectClass = "goalkeeper"
)

// ParseObjectClass maps a detector label onto an ObjectClass. Generic COCO
// labels are accepted: "person" is a player and "sports ball" is the ball.
func ParseObjectClass(label string) (ObjectClass, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "player", "person":
		return ClassPlayer, nil
	case "ball", "sports ball", "sports_ball":
		return ClassBall, nil
	case "referee":
		return ClassReferee, nil
	case "goalkeeper", "keeper":
		return ClassGoalkeeper, nil
	default:
		return "", fmt.Errorf("unknown object class %q", label)
	}
}

// IsPerson reports whether the class is one of the human classes.
func (c ObjectClass) IsPerson() bool {
	switch c {
	case ClassPlayer, ClassReferee, ClassGoalkeeper:
		return true
	case ClassBall:
		return false
	default:
		return false
	}
}

// Compatible reports whether a track of class c may be associated with a
// detection of class d. The ball never matches a person and vice versa;
// person classes may match each other since detectors flicker between
// player and goalkeeper labels.
func (c ObjectClass) Compatible(d ObjectClass) bool {
	if c == ClassBall || d == ClassBall {
		return c == d
	}
	return c.IsPerson() && d.IsPerson()
}

// BBox is an axis-aligned bounding box in image pixels, (X1,Y1) top-left
// and (X2,Y2) bottom-right.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BBox) Width() float64  { return math.Max(0, b.X2-b.X1) }
func (b BBox) Height() float64 { return math.Max(0, b.Y2-b.Y1) }
func (b BBox) Area() float64   { return b.Width() * b.Height() }

// Center returns the box centre.
func (b BBox) Center() geom.Point {
	return geom.Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// FootPoint returns the bottom-centre of the box, the pixel where a standing
// player touches the ground. This is the point projected onto the pitch.
func (b BBox) FootPoint() geom.Point {
	return geom.Point{X: (b.X1 + b.X2) / 2, Y: b.Y2}
}

// Translate returns the box shifted by (dx, dy).
func (b BBox) Translate(dx, dy float64) BBox {
	return BBox{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Valid reports whether the box has finite coordinates and positive area.
func (b BBox) Valid() bool {
	for _, v := range [4]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// IoU returns the intersection-over-union of b and o, in [0, 1].
func (b BBox) IoU(o BBox) float64 {
	ix := math.Min(b.X2, o.X2) - math.Max(b.X1, o.X1)
	iy := math.Min(b.Y2, o.Y2) - math.Max(b.Y1, o.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// HSV is a colour in OpenCV 8-bit HSV scale (H 0–180).
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// Detection is a single detector output for one frame. Jersey is an
// optional torso colour supplied by detectors that sample appearance.
type Detection struct {
	FrameNumber int         `json:"frame_number"`
	BBox        BBox        `json:"bbox"`
	Confidence  float64     `json:"confidence"`
	Class       ObjectClass `json:"class"`
	Jersey      *HSV        `json:"jersey,omitempty"`
}

// Frame groups the detections of one video frame with its timestamp in
// seconds from the start of the video.
type Frame struct {
	FrameNumber int         `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	Detections  []Detection `json:"detections"`
}
