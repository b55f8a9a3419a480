// Package geom provides the small planar geometry vocabulary shared by the
// calibration and analytics layers: points, distances and convex hulls.
package geom

import (
	"math"
	"sort"
)

// Point is a 2D position. Depending on context it is in image pixels or in
// pitch metres; the type does not carry the unit.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Sub returns p − q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Dist returns the Euclidean distance between p and q.
func Dist(p, q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Dot returns the dot product of p and q.
func Dot(p, q Point) float64 { return p.X*q.X + p.Y*q.Y }

// cross returns the z component of (a−o) × (b−o).
func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// Collinear reports whether every point lies within tol of the line through
// the two most distant points. Fewer than three points are always collinear.
func Collinear(pts []Point, tol float64) bool {
	if len(pts) < 3 {
		return true
	}
	var a, b Point
	best := -1.0
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			if d := Dist(pts[i], pts[j]); d > best {
				best, a, b = d, pts[i], pts[j]
			}
		}
	}
	if best <= tol {
		return true
	}
	for _, p := range pts {
		if math.Abs(cross(a, b, p))/best > tol {
			return false
		}
	}
	return true
}

// ConvexHull returns the convex hull of pts in counter-clockwise order using
// Andrew's monotone chain. Duplicate and collinear boundary points are
// dropped.
func ConvexHull(pts []Point) []Point {
	n := len(pts)
	if n < 3 {
		out := make([]Point, n)
		copy(out, pts)
		return out
	}
	sorted := make([]Point, n)
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	hull := make([]Point, 0, 2*n)
	// Lower hull
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// Upper hull
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// PolygonArea returns the absolute area of a simple polygon (shoelace).
func PolygonArea(poly []Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(sum) / 2
}

// Centroid returns the arithmetic mean of pts, or the zero point when empty.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	return c.Scale(1 / float64(len(pts)))
}

// MeanPairwiseDistance returns the mean distance over all unordered pairs.
func MeanPairwiseDistance(pts []Point) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += Dist(pts[i], pts[j])
		}
	}
	return sum / float64(n*(n-1)/2)
}

// AngleBetween returns the unsigned angle in radians between the headings of
// u and v, in [0, π]. Zero-length vectors yield 0.
func AngleBetween(u, v Point) float64 {
	nu, nv := u.Norm(), v.Norm()
	if nu == 0 || nv == 0 {
		return 0
	}
	c := Dot(u, v) / (nu * nv)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}
