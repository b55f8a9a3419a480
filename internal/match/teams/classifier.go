package teams

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// ErrClassificationAmbiguity reports that jersey colours could not be
// separated into teams. It is recoverable: the affected tracks are labelled
// unknown.
var ErrClassificationAmbiguity = errors.New("team classification ambiguous")

// Reasons a track is left unknown.
const (
	ReasonInsufficient = "insufficient_samples"
	ReasonInconsistent = "inconsistent_samples"
	ReasonAmbiguous    = "ambiguous_distance"
)

// Config holds the team classifier parameters.
type Config struct {
	Clusters       int     // 2 (home/away) or 3 (home/away/referee)
	MinSamples     int     // descriptors needed per track
	MaxSpread      float64 // mean sample distance from the track median above which the track is inconsistent
	AmbiguityRatio float64 // nearest/second-nearest centroid distance ratio above which the track is ambiguous
	Seed           int64
	MaxIterations  int
	Restarts       int
}

// DefaultConfig returns classifier configuration loaded from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Clusters:       cfg.GetTeamClusters(),
		MinSamples:     cfg.GetTeamMinSamples(),
		MaxSpread:      cfg.GetTeamMaxSpread(),
		AmbiguityRatio: 0.8,
		Seed:           cfg.GetSeed(),
		MaxIterations:  100,
		Restarts:       10,
	}
}

// ColorProfile describes one team's kit.
type ColorProfile struct {
	Team         tracks.TeamSide `json:"team"`
	PrimaryHSV   Descriptor      `json:"primary_hsv"`
	SecondaryHSV *Descriptor     `json:"secondary_hsv,omitempty"`
	// ClusterCenters holds the sub-cluster centres of the raw samples
	// (primary first) used to derive the profile.
	ClusterCenters []Descriptor `json:"cluster_centers"`
	Tracks         int          `json:"tracks"`
}

// Result is a fitted team model and the per-track labels derived from it.
type Result struct {
	Centroids   []Descriptor              `json:"centroids"`
	Sides       []tracks.TeamSide         `json:"sides"` // cluster index → side
	Profiles    []ColorProfile            `json:"profiles"`
	Assignments map[int64]tracks.TeamSide `json:"assignments"`
	Reasons     map[int64]string          `json:"reasons,omitempty"` // unknown tracks only
	Medians     map[int64]Descriptor      `json:"medians"`
	Clusters    map[int64]int             `json:"clusters"` // k-means cluster per usable track

	AmbiguityRatio float64 `json:"ambiguity_ratio"`
}

// Classifier fits team colour clusters. It is stateless between calls.
type Classifier struct {
	Config Config
}

// NewClassifier returns a classifier with cfg.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{Config: cfg}
}

// Fit clusters the per-track median descriptors and labels every track.
//
// Tracks with fewer than MinSamples descriptors or with a spread above
// MaxSpread are unknown. When fewer usable tracks remain than clusters, the
// returned Result labels every track unknown and the error wraps
// ErrClassificationAmbiguity; the Result is still usable.
func (c *Classifier) Fit(samples map[int64][]Descriptor) (*Result, error) {
	k := c.Config.Clusters
	if k != 2 && k != 3 {
		return nil, fmt.Errorf("team clusters must be 2 or 3, got %d", k)
	}

	res := &Result{
		Assignments:    make(map[int64]tracks.TeamSide, len(samples)),
		Reasons:        make(map[int64]string),
		Medians:        make(map[int64]Descriptor, len(samples)),
		Clusters:       make(map[int64]int, len(samples)),
		AmbiguityRatio: c.Config.AmbiguityRatio,
	}

	ids := make([]int64, 0, len(samples))
	for id := range samples {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Step 1: Per-track median, reject thin or inconsistent tracks
	var usable []int64
	for _, id := range ids {
		ds := samples[id]
		res.Assignments[id] = tracks.TeamUnknown
		if len(ds) < c.Config.MinSamples || len(ds) == 0 {
			res.Reasons[id] = ReasonInsufficient
			continue
		}
		med, _ := Median(ds)
		res.Medians[id] = med
		if c.Config.MaxSpread > 0 && Spread(ds, med) > c.Config.MaxSpread {
			res.Reasons[id] = ReasonInconsistent
			continue
		}
		usable = append(usable, id)
	}
	if len(usable) < k {
		diagf("only %d usable tracks for %d clusters", len(usable), k)
		return res, fmt.Errorf("%w: %d usable tracks for %d clusters", ErrClassificationAmbiguity, len(usable), k)
	}

	// Step 2: Seeded k-means++ on the medians
	points := make([]Descriptor, len(usable))
	for i, id := range usable {
		points[i] = res.Medians[id]
	}
	rng := rand.New(rand.NewSource(c.Config.Seed))
	cl := kmeans(points, k, rng, c.Config.MaxIterations, c.Config.Restarts)

	// Step 3: Deterministic cluster order and side labels
	order := orderClusters(cl, k)
	res.Centroids = make([]Descriptor, k)
	res.Sides = make([]tracks.TeamSide, k)
	remap := make([]int, k)
	for newIdx, oldIdx := range order {
		res.Centroids[newIdx] = cl.centres[oldIdx]
		remap[oldIdx] = newIdx
	}
	res.Sides[0], res.Sides[1] = tracks.TeamHome, tracks.TeamAway
	if k == 3 {
		res.Sides[2] = tracks.TeamReferee
	}

	// Step 4: Label tracks, flag ambiguous ones
	members := make([][]Descriptor, k)
	for i, id := range usable {
		cluster := remap[cl.labels[i]]
		res.Clusters[id] = cluster
		members[cluster] = append(members[cluster], samples[id]...)
	}
	res.relabel()
	res.Profiles = make([]ColorProfile, k)
	for i := range res.Centroids {
		res.Profiles[i] = buildProfile(res.Sides[i], res.Centroids[i], members[i], rand.New(rand.NewSource(c.Config.Seed+int64(i))))
	}
	for i := range res.Profiles {
		res.Profiles[i].Tracks = res.count(i)
	}

	unknown := 0
	for _, side := range res.Assignments {
		if side == tracks.TeamUnknown {
			unknown++
		}
	}
	diagf("fitted %d clusters over %d tracks (%d unknown)", k, len(ids), unknown)
	return res, nil
}

// orderClusters returns cluster indices in label order. With three
// clusters the smallest becomes the referee cluster (last). The playing
// sides are ordered by centroid hue, then value, so home is the lower hue.
func orderClusters(cl clustering, k int) []int {
	sizes := make([]int, k)
	for _, l := range cl.labels {
		sizes[l]++
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	referee := -1
	if k == 3 {
		sort.SliceStable(idx, func(a, b int) bool { return sizes[idx[a]] < sizes[idx[b]] })
		referee = idx[0]
		idx = idx[1:]
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := cl.centres[idx[a]], cl.centres[idx[b]]
		if ca.H != cb.H {
			return ca.H < cb.H
		}
		return ca.V < cb.V
	})
	if referee >= 0 {
		idx = append(idx, referee)
	}
	return idx
}

// relabel derives Assignments from Medians and Clusters with the current
// Sides mapping.
func (r *Result) relabel() {
	for id := range r.Clusters {
		side, ok := r.sideFor(r.Medians[id])
		if !ok {
			r.Assignments[id] = tracks.TeamUnknown
			r.Reasons[id] = ReasonAmbiguous
			continue
		}
		r.Assignments[id] = side
		delete(r.Reasons, id)
	}
}

// sideFor labels a descriptor, returning false when it is ambiguous.
func (r *Result) sideFor(d Descriptor) (tracks.TeamSide, bool) {
	if len(r.Centroids) == 0 {
		return tracks.TeamUnknown, false
	}
	type cand struct {
		idx  int
		dist float64
	}
	cands := make([]cand, len(r.Centroids))
	for i, c := range r.Centroids {
		cands[i] = cand{i, Distance(d, c)}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
	if len(cands) > 1 && r.AmbiguityRatio > 0 {
		if cands[1].dist == 0 || cands[0].dist/cands[1].dist > r.AmbiguityRatio {
			return tracks.TeamUnknown, false
		}
	}
	return r.Sides[cands[0].idx], true
}

func (r *Result) count(cluster int) int {
	n := 0
	for id, c := range r.Clusters {
		if c == cluster && r.Assignments[id] != tracks.TeamUnknown {
			n++
		}
	}
	return n
}

// Assign labels a new descriptor against the fitted centroids. Ambiguous
// descriptors are unknown.
func (r *Result) Assign(d Descriptor) tracks.TeamSide {
	side, _ := r.sideFor(d)
	return side
}

// Side returns the label of a fitted track, unknown if it was not seen.
func (r *Result) Side(trackID int64) tracks.TeamSide {
	if s, ok := r.Assignments[trackID]; ok {
		return s
	}
	return tracks.TeamUnknown
}

// Override relabels a cluster without refitting. If another cluster held
// side, the two labels are swapped. Track assignments are re-derived.
func (r *Result) Override(cluster int, side tracks.TeamSide) error {
	if cluster < 0 || cluster >= len(r.Sides) {
		return fmt.Errorf("cluster %d out of range [0,%d)", cluster, len(r.Sides))
	}
	switch side {
	case tracks.TeamHome, tracks.TeamAway, tracks.TeamReferee:
	case tracks.TeamUnknown:
		return fmt.Errorf("cannot override cluster %d to %s", cluster, side)
	default:
		return fmt.Errorf("invalid team side %q", side)
	}
	for i, s := range r.Sides {
		if s == side && i != cluster {
			r.Sides[i] = r.Sides[cluster]
			r.Profiles[i].Team = r.Sides[i]
		}
	}
	r.Sides[cluster] = side
	r.Profiles[cluster].Team = side
	r.relabel()
	diagf("cluster %d overridden to %s", cluster, side)
	return nil
}

// buildProfile splits a cluster's raw samples into a dominant and a trim
// colour.
func buildProfile(side tracks.TeamSide, centroid Descriptor, samples []Descriptor, rng *rand.Rand) ColorProfile {
	p := ColorProfile{Team: side, PrimaryHSV: centroid, ClusterCenters: []Descriptor{centroid}}
	if len(samples) < 2 {
		return p
	}
	sub := kmeans(samples, 2, rng, 50, 1)
	sizes := [2]int{}
	for _, l := range sub.labels {
		sizes[l]++
	}
	major, minor := 0, 1
	if sizes[1] > sizes[0] {
		major, minor = 1, 0
	}
	p.PrimaryHSV = sub.centres[major]
	p.ClusterCenters = []Descriptor{sub.centres[major], sub.centres[minor]}
	if sizes[minor] > 0 {
		sec := sub.centres[minor]
		p.SecondaryHSV = &sec
	}
	return p
}
