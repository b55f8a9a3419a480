package calib

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/geom"
)

var (
	// ErrCalibrationFailure is the parent of every calibration error. It is
	// recoverable: callers fall back to pixel-only trajectories.
	ErrCalibrationFailure = errors.New("calibration failure")

	ErrInsufficientPoints = fmt.Errorf("%w: fewer than 4 correspondences", ErrCalibrationFailure)
	ErrDegenerate         = fmt.Errorf("%w: degenerate correspondences", ErrCalibrationFailure)
	ErrReprojection       = fmt.Errorf("%w: reprojection error above bound", ErrCalibrationFailure)
)

// Numerical guards, not user-tunable.
const (
	minW           = 1e-12 // homogeneous w below this is a point at infinity
	minDeterminant = 1e-12
	collinearTol   = 1e-6 // relative to the spread of the point set
)

// Correspondence pairs a pixel location with its known pitch position in
// metres.
type Correspondence struct {
	Pixel geom.Point `json:"pixel"`
	Meter geom.Point `json:"meter"`
}

// Options controls the robust fit.
type Options struct {
	MaxReprojectionError float64 // metres; above this the fit is rejected
	RansacThreshold      float64 // metres; inlier distance
	RansacIterations     int
	Seed                 int64
}

// DefaultOptions returns calibration options loaded from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultOptions() Options {
	return OptionsFromTuning(config.MustLoadDefaultConfig())
}

// OptionsFromTuning builds Options from a loaded TuningConfig.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		MaxReprojectionError: cfg.GetMaxReprojectionErrorM(),
		RansacThreshold:      cfg.GetRansacThresholdM(),
		RansacIterations:     cfg.GetRansacIterations(),
		Seed:                 cfg.GetSeed(),
	}
}

// Matrix is a pixel→metre homography with its inverse and fit quality.
type Matrix struct {
	H       [3][3]float64 `json:"h"`
	Inverse [3][3]float64 `json:"inverse"`

	SourcePoints []geom.Point `json:"source_points"` // pixels
	TargetPoints []geom.Point `json:"target_points"` // metres

	PitchLength       float64 `json:"pitch_length"`
	PitchWidth        float64 `json:"pitch_width"`
	ReprojectionError float64 `json:"reprojection_error"` // mean over inliers, metres
	Inliers           int     `json:"inliers"`
}

// NewMatrix wraps a pixel→metre homography, computing its inverse.
func NewMatrix(h [3][3]float64, pitchLength, pitchWidth float64) (*Matrix, error) {
	inv, err := invert(h)
	if err != nil {
		return nil, err
	}
	return &Matrix{H: h, Inverse: inv, PitchLength: pitchLength, PitchWidth: pitchWidth}, nil
}

// Calibrate estimates the pixel→metre homography from correspondences.
//
// Four points give an exact DLT solution; with more, RANSAC over 4-point
// samples (seeded from opts.Seed) selects the largest consensus set, which
// is then refitted. The result is rejected with ErrReprojection when the
// mean inlier error exceeds opts.MaxReprojectionError.
func Calibrate(corr []Correspondence, pitchLength, pitchWidth float64, opts Options) (*Matrix, error) {
	if len(corr) < 4 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientPoints, len(corr))
	}
	src := make([]geom.Point, len(corr))
	dst := make([]geom.Point, len(corr))
	for i, c := range corr {
		src[i], dst[i] = c.Pixel, c.Meter
	}
	if isCollinear(src) || isCollinear(dst) {
		return nil, fmt.Errorf("%w: points are collinear", ErrDegenerate)
	}

	// Step 1: Find the consensus set
	inliers := allIndices(len(corr))
	if len(corr) > 4 {
		inliers = ransac(src, dst, opts)
		if len(inliers) < 4 {
			diagf("RANSAC found %d inliers, refitting on all %d points", len(inliers), len(corr))
			inliers = allIndices(len(corr))
		}
	}

	// Step 2: Refit on inliers
	h, err := fitDLT(pick(src, inliers), pick(dst, inliers))
	if err != nil {
		return nil, err
	}
	m, err := NewMatrix(h, pitchLength, pitchWidth)
	if err != nil {
		return nil, err
	}
	m.SourcePoints = src
	m.TargetPoints = dst
	m.Inliers = len(inliers)

	// Step 3: Score
	m.ReprojectionError = meanError(h, pick(src, inliers), pick(dst, inliers))
	if math.IsNaN(m.ReprojectionError) {
		return nil, fmt.Errorf("%w: projection through infinity", ErrDegenerate)
	}
	diagf("homography fitted: %d/%d inliers, reprojection error %.4f m", m.Inliers, len(corr), m.ReprojectionError)
	if opts.MaxReprojectionError > 0 && m.ReprojectionError > opts.MaxReprojectionError {
		return nil, fmt.Errorf("%w: %.3f m > %.3f m", ErrReprojection, m.ReprojectionError, opts.MaxReprojectionError)
	}
	return m, nil
}

// ransac returns the indices of the best consensus set. Ties in inlier
// count go to the lower total error.
func ransac(src, dst []geom.Point, opts Options) []int {
	rng := rand.New(rand.NewSource(opts.Seed))
	n := len(src)
	iters := opts.RansacIterations
	if iters <= 0 {
		iters = 1
	}

	var best []int
	bestErr := math.Inf(1)
	sample := make([]int, 4)
	for it := 0; it < iters; it++ {
		perm := rng.Perm(n)
		copy(sample, perm[:4])
		s, d := pick(src, sample), pick(dst, sample)
		if anyThreeCollinear(s) || anyThreeCollinear(d) {
			continue
		}
		h, err := fitDLT(s, d)
		if err != nil {
			continue
		}
		var in []int
		total := 0.0
		for i := range src {
			p, ok := project(h, src[i])
			if !ok {
				continue
			}
			if e := geom.Dist(p, dst[i]); e <= opts.RansacThreshold {
				in = append(in, i)
				total += e
			}
		}
		if len(in) > len(best) || (len(in) == len(best) && total < bestErr) {
			best, bestErr = in, total
		}
		if len(best) == n {
			break
		}
	}
	return best
}

// fitDLT solves for H (src→dst) with the Hartley-normalised direct linear
// transform. The null vector of the 2n×9 system is the right singular
// vector of the smallest singular value.
func fitDLT(src, dst []geom.Point) ([3][3]float64, error) {
	var zero [3][3]float64
	ts, ns := normalise(src)
	td, nd := normalise(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range ns {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return zero, fmt.Errorf("%w: SVD did not converge", ErrDegenerate)
	}
	var vt mat.Dense
	svd.VTo(&vt)
	_, c := vt.Dims()
	hn := mat.NewDense(3, 3, mat.Col(nil, c-1, &vt))

	// Denormalise: H = Td⁻¹ · Hn · Ts
	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	var tmp, h mat.Dense
	tmp.Mul(&tdInv, hn)
	h.Mul(&tmp, ts)

	scale := h.At(2, 2)
	if math.Abs(scale) < minW {
		return zero, fmt.Errorf("%w: homography maps origin to infinity", ErrDegenerate)
	}
	var out [3][3]float64
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			out[r][col] = h.At(r, col) / scale
		}
	}
	if math.Abs(mat.Det(mat.NewDense(3, 3, flatten(out)))) < minDeterminant {
		return zero, fmt.Errorf("%w: singular homography", ErrDegenerate)
	}
	return out, nil
}

// normalise translates pts to their centroid and scales them so the mean
// distance from the origin is √2.
func normalise(pts []geom.Point) (*mat.Dense, []geom.Point) {
	c := geom.Centroid(pts)
	mean := 0.0
	for _, p := range pts {
		mean += geom.Dist(p, c)
	}
	mean /= float64(len(pts))
	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
	out := make([]geom.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(c).Scale(s)
	}
	return t, out
}

func invert(h [3][3]float64) ([3][3]float64, error) {
	var out [3][3]float64
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, flatten(h))); err != nil {
		return out, fmt.Errorf("%w: homography not invertible: %v", ErrDegenerate, err)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = inv.At(r, c)
		}
	}
	return out, nil
}

func flatten(h [3][3]float64) []float64 {
	return []float64{h[0][0], h[0][1], h[0][2], h[1][0], h[1][1], h[1][2], h[2][0], h[2][1], h[2][2]}
}

// project applies h to p in homogeneous coordinates.
func project(h [3][3]float64, p geom.Point) (geom.Point, bool) {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if math.Abs(w) < minW {
		return geom.Point{}, false
	}
	x := (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w
	y := (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return geom.Point{}, false
	}
	return geom.Point{X: x, Y: y}, true
}

func meanError(h [3][3]float64, src, dst []geom.Point) float64 {
	if len(src) == 0 {
		return math.NaN()
	}
	total := 0.0
	for i := range src {
		p, ok := project(h, src[i])
		if !ok {
			return math.NaN()
		}
		total += geom.Dist(p, dst[i])
	}
	return total / float64(len(src))
}

func isCollinear(pts []geom.Point) bool {
	spread := 0.0
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			spread = math.Max(spread, geom.Dist(pts[i], pts[j]))
		}
	}
	return geom.Collinear(pts, collinearTol*math.Max(spread, 1))
}

func anyThreeCollinear(pts []geom.Point) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				if isCollinear([]geom.Point{pts[i], pts[j], pts[k]}) {
					return true
				}
			}
		}
	}
	return false
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func pick(pts []geom.Point, idx []int) []geom.Point {
	out := make([]geom.Point, len(idx))
	for i, j := range idx {
		out[i] = pts[j]
	}
	return out
}
