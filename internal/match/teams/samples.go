package teams

import (
	"math"
	"sort"
	"sync"
)

// Sample is one jersey descriptor observed on a track at a frame.
type Sample struct {
	TrackID int64      `json:"track_id"`
	Frame   int        `json:"frame"`
	Desc    Descriptor `json:"desc"`
}

// SampleSet accumulates jersey samples over a video. It is safe for
// concurrent use.
type SampleSet struct {
	mu      sync.Mutex
	samples []Sample
}

// Add records a descriptor for trackID at frame.
func (s *SampleSet) Add(trackID int64, frame int, d Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, Sample{TrackID: trackID, Frame: frame, Desc: d})
}

// Len returns the number of samples recorded.
func (s *SampleSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// ByTrack groups every sample by track, in frame order.
func (s *SampleSet) ByTrack() map[int64][]Descriptor {
	return s.From(math.MinInt)
}

// From groups the samples observed after frame by track, in frame order.
func (s *SampleSet) From(frame int) map[int64][]Descriptor {
	s.mu.Lock()
	sorted := make([]Sample, 0, len(s.samples))
	for _, smp := range s.samples {
		if smp.Frame > frame {
			sorted = append(sorted, smp)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })
	out := make(map[int64][]Descriptor)
	for _, smp := range sorted {
		out[smp.TrackID] = append(out[smp.TrackID], smp.Desc)
	}
	return out
}

// ReclassifyFrom refits on the samples observed after frame, for example
// after half-time when kits or the broadcast camera change. Labels before
// the checkpoint are left to the caller's earlier Result.
func (c *Classifier) ReclassifyFrom(set *SampleSet, frame int) (*Result, error) {
	diagf("reclassifying from frame %d", frame)
	return c.Fit(set.From(frame))
}
