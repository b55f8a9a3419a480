// Package jersey samples torso colour from video frames with gocv.
package jersey

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/teams"
)

// Torso band of a person box: shorts and head are excluded.
const (
	torsoTop    = 0.20
	torsoBottom = 0.60
	torsoLeft   = 0.20
	torsoRight  = 0.80
)

// Pixels at or outside these V bounds are shadow or highlight, not kit.
const (
	minValue = 30
	maxValue = 225
)

// minPixels is the fewest usable torso pixels for a sample.
const minPixels = 16

// TorsoRect returns the torso sub-region of box clipped to a cols×rows
// image. The rectangle is empty when the box lies outside the image.
func TorsoRect(box detect.BBox, cols, rows int) image.Rectangle {
	w, h := box.Width(), box.Height()
	r := image.Rect(
		int(math.Round(box.X1+torsoLeft*w)),
		int(math.Round(box.Y1+torsoTop*h)),
		int(math.Round(box.X1+torsoRight*w)),
		int(math.Round(box.Y1+torsoBottom*h)),
	)
	return r.Intersect(image.Rect(0, 0, cols, rows))
}

// SampleTorso returns the mean HSV colour of the torso of box in a BGR
// image, ignoring shadow and highlight pixels. ok is false when the torso
// is off-image or has too few usable pixels.
func SampleTorso(img gocv.Mat, box detect.BBox) (teams.Descriptor, bool) {
	if img.Empty() {
		return teams.Descriptor{}, false
	}
	rect := TorsoRect(box, img.Cols(), img.Rows())
	if rect.Empty() {
		return teams.Descriptor{}, false
	}

	roi := img.Region(rect)
	defer roi.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(roi, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(0, 0, minValue+1, 0),
		gocv.NewScalar(180, 255, maxValue-1, 0),
		&mask)
	if gocv.CountNonZero(mask) < minPixels {
		return teams.Descriptor{}, false
	}

	// Hue is circular, so the mean is taken over the kept pixels rather
	// than with a linear Mean.
	pixels := make([]teams.Descriptor, 0, gocv.CountNonZero(mask))
	for r := 0; r < hsv.Rows(); r++ {
		for c := 0; c < hsv.Cols(); c++ {
			if mask.GetUCharAt(r, c) == 0 {
				continue
			}
			px := hsv.GetVecbAt(r, c)
			pixels = append(pixels, teams.Descriptor{H: float64(px[0]), S: float64(px[1]), V: float64(px[2])})
		}
	}
	return teams.Mean(pixels)
}
