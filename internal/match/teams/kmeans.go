package teams

import (
	"math"
	"math/rand"
)

type clustering struct {
	centres []Descriptor
	labels  []int
	inertia float64
}

// kmeans clusters points into k groups using k-means++ seeding and Lloyd
// iterations, keeping the lowest-inertia result over restarts. All
// randomness comes from rng, so a fixed seed gives a fixed result.
func kmeans(points []Descriptor, k int, rng *rand.Rand, maxIter, restarts int) clustering {
	if restarts < 1 {
		restarts = 1
	}
	best := clustering{inertia: math.Inf(1)}
	for r := 0; r < restarts; r++ {
		c := lloyd(points, seedCentres(points, k, rng), maxIter)
		if c.inertia < best.inertia {
			best = c
		}
	}
	return best
}

// seedCentres picks k initial centres with D² weighting.
func seedCentres(points []Descriptor, k int, rng *rand.Rand) []Descriptor {
	n := len(points)
	centres := make([]Descriptor, 0, k)
	chosen := make([]bool, n)
	first := rng.Intn(n)
	centres = append(centres, points[first])
	chosen[first] = true

	d2 := make([]float64, n)
	for len(centres) < k {
		sum := 0.0
		for i, p := range points {
			m := math.Inf(1)
			for _, c := range centres {
				if d := Distance(p, c); d*d < m {
					m = d * d
				}
			}
			d2[i] = m
			sum += m
		}
		next := -1
		if sum > 0 {
			target := rng.Float64() * sum
			acc := 0.0
			for i, w := range d2 {
				acc += w
				if acc >= target && w > 0 {
					next = i
					break
				}
			}
		}
		if next < 0 {
			// Every remaining point coincides with a centre.
			for i := range points {
				if !chosen[i] {
					next = i
					break
				}
			}
		}
		if next < 0 {
			next = 0
		}
		chosen[next] = true
		centres = append(centres, points[next])
	}
	return centres
}

func lloyd(points []Descriptor, centres []Descriptor, maxIter int) clustering {
	k := len(centres)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	if maxIter < 1 {
		maxIter = 1
	}
	for it := 0; it < maxIter; it++ {
		changed := false
		for i, p := range points {
			l := nearest(p, centres)
			if l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed {
			break
		}
		members := make([][]Descriptor, k)
		for i, l := range labels {
			members[l] = append(members[l], points[i])
		}
		for c := range centres {
			if m, ok := Mean(members[c]); ok {
				centres[c] = m
			}
		}
	}
	inertia := 0.0
	for i, p := range points {
		d := Distance(p, centres[labels[i]])
		inertia += d * d
	}
	return clustering{centres: centres, labels: labels, inertia: inertia}
}

// nearest returns the index of the closest centre; ties go to the lower
// index.
func nearest(p Descriptor, centres []Descriptor) int {
	best, bestD := 0, math.Inf(1)
	for i, c := range centres {
		if d := Distance(p, c); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
