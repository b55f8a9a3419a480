package teams

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// HueRange is the OpenCV 8-bit hue scale: hue wraps at 180.
const HueRange = 180.0

// hueWeight scales hue differences relative to saturation and value; kit
// colour is mostly carried by hue.
const hueWeight = 2.0

// Descriptor is a jersey colour in OpenCV HSV scale (H 0–180, S and V
// 0–255).
type Descriptor struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// hueDiff returns the circular distance between two hues, in [0, 90].
func hueDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), HueRange)
	return math.Min(d, HueRange-d)
}

// Distance is the weighted HSV distance between two descriptors with
// circular hue.
func Distance(a, b Descriptor) float64 {
	dh := hueWeight * hueDiff(a.H, b.H)
	ds := a.S - b.S
	dv := a.V - b.V
	return math.Sqrt(dh*dh + ds*ds + dv*dv)
}

func hueToAngle(h float64) float64 { return 2 * math.Pi * h / HueRange }

func angleToHue(a float64) float64 {
	h := a * HueRange / (2 * math.Pi)
	h = math.Mod(h, HueRange)
	if h < 0 {
		h += HueRange
	}
	return h
}

// Mean returns the component-wise mean with circular hue. Returns false for
// an empty input.
func Mean(ds []Descriptor) (Descriptor, bool) {
	if len(ds) == 0 {
		return Descriptor{}, false
	}
	angles := make([]float64, len(ds))
	s := make([]float64, len(ds))
	v := make([]float64, len(ds))
	for i, d := range ds {
		angles[i] = hueToAngle(d.H)
		s[i] = d.S
		v[i] = d.V
	}
	return Descriptor{
		H: angleToHue(stat.CircularMean(angles, nil)),
		S: stat.Mean(s, nil),
		V: stat.Mean(v, nil),
	}, true
}

// Median returns the component-wise median. Hues are unwrapped around their
// circular mean before taking the median so a kit straddling the red wrap
// point (H≈0/180) is not split in two.
func Median(ds []Descriptor) (Descriptor, bool) {
	mean, ok := Mean(ds)
	if !ok {
		return Descriptor{}, false
	}
	h := make([]float64, len(ds))
	s := make([]float64, len(ds))
	v := make([]float64, len(ds))
	for i, d := range ds {
		off := math.Mod(d.H-mean.H, HueRange)
		if off >= HueRange/2 {
			off -= HueRange
		} else if off < -HueRange/2 {
			off += HueRange
		}
		h[i] = off
		s[i] = d.S
		v[i] = d.V
	}
	sort.Float64s(h)
	sort.Float64s(s)
	sort.Float64s(v)
	return Descriptor{
		H: angleToHue(hueToAngle(mean.H + stat.Quantile(0.5, stat.Empirical, h, nil))),
		S: stat.Quantile(0.5, stat.Empirical, s, nil),
		V: stat.Quantile(0.5, stat.Empirical, v, nil),
	}, true
}

// Spread is the mean Distance from each sample to centre.
func Spread(ds []Descriptor, centre Descriptor) float64 {
	if len(ds) == 0 {
		return 0
	}
	total := 0.0
	for _, d := range ds {
		total += Distance(d, centre)
	}
	return total / float64(len(ds))
}
