// Package testutil provides shared test utilities and fixtures.
//
// The fixtures build synthetic broadcast footage: entities walking in
// straight lines on a pitch filmed by an axis-aligned camera, so that every
// pixel maps to pitch metres through a known scale and offset.
package testutil

import (
	"testing"

	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
)

// Camera maps pitch metres to pixels as pixel = Offset + Scale·metre.
type Camera struct {
	Scale  float64
	Offset geom.Point
}

// DefaultCamera frames a 105×68 m pitch in roughly 1920×1080 pixels.
var DefaultCamera = Camera{Scale: 17, Offset: geom.Pt(67, 962)}

// Pixel returns the pixel position of a pitch point. Pitch y grows upwards
// in the image, so it is subtracted.
func (c Camera) Pixel(m geom.Point) geom.Point {
	return geom.Pt(c.Offset.X+c.Scale*m.X, c.Offset.Y-c.Scale*m.Y)
}

// Correspondences returns the four pitch corners and the centre spot.
func (c Camera) Correspondences(length, width float64) []calib.Correspondence {
	metres := []geom.Point{
		geom.Pt(0, 0), geom.Pt(length, 0), geom.Pt(length, width), geom.Pt(0, width),
		geom.Pt(length/2, width/2),
	}
	out := make([]calib.Correspondence, len(metres))
	for i, m := range metres {
		out[i] = calib.Correspondence{Pixel: c.Pixel(m), Meter: m}
	}
	return out
}

// Walker is one entity moving at constant velocity on the pitch.
type Walker struct {
	Class  detect.ObjectClass
	Start  geom.Point // metres at frame 0
	Vel    geom.Point // metres per second
	Jersey *detect.HSV

	// Frames [From, To) in which the entity is detected; To == 0 means
	// until the end.
	From, To int
}

// Position returns the walker's pitch position at time t seconds.
func (w Walker) Position(t float64) geom.Point {
	return w.Start.Add(w.Vel.Scale(t))
}

func (w Walker) visible(frame int) bool {
	return frame >= w.From && (w.To == 0 || frame < w.To)
}

// Frames renders n frames at fps through cam. Person boxes are 1.8 m tall
// and 0.6 m wide, the ball 0.3 m; each box's foot point is the walker's
// position.
func Frames(cam Camera, n int, fps float64, walkers []Walker) []detect.Frame {
	frames := make([]detect.Frame, n)
	for f := range frames {
		t := float64(f) / fps
		frames[f] = detect.Frame{FrameNumber: f, Timestamp: t}
		for _, w := range walkers {
			if !w.visible(f) {
				continue
			}
			height, width := 1.8, 0.6
			if w.Class == detect.ClassBall {
				height, width = 0.3, 0.3
			}
			foot := cam.Pixel(w.Position(t))
			halfW := cam.Scale * width / 2
			frames[f].Detections = append(frames[f].Detections, detect.Detection{
				FrameNumber: f,
				BBox: detect.BBox{
					X1: foot.X - halfW, Y1: foot.Y - cam.Scale*height,
					X2: foot.X + halfW, Y2: foot.Y,
				},
				Confidence: 0.9,
				Class:      w.Class,
				Jersey:     w.Jersey,
			})
		}
	}
	return frames
}

// Kit returns a jersey colour for walkers.
func Kit(h, s, v float64) *detect.HSV {
	return &detect.HSV{H: h, S: s, V: v}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
