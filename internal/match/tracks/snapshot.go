package tracks

import (
	"fmt"
	"sort"
)

// State is a serialisable copy of the tracker, written at checkpoints.
// Tracks that have confirmed carry only their last matched point; earlier
// points live in the trajectory store and are handed back through Restore.
// Tracks that have never confirmed are not stored yet and keep every point.
type State struct {
	NextID    int64    `json:"next_id"`
	LastFrame int      `json:"last_frame"`
	Started   bool     `json:"started"`
	Stats     Stats    `json:"stats"`
	Tracks    []*Track `json:"tracks"`
}

// Snapshot captures the tracker state. Deleted tracks that never confirmed
// are omitted; nothing downstream reads them.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := State{
		NextID:    t.nextID,
		LastFrame: t.lastFrame,
		Started:   t.started,
		Stats:     t.stats,
	}
	for _, track := range t.tracks {
		if track.State == TrackDeleted && !track.EverConfirmed {
			continue
		}
		c := track.clone()
		if n := len(c.Points); n > 1 && c.EverConfirmed {
			c.Points = c.Points[n-1:]
		}
		st.Tracks = append(st.Tracks, c)
	}
	sort.Slice(st.Tracks, func(i, j int) bool { return st.Tracks[i].ID < st.Tracks[j].ID })
	return st
}

// Restore replaces the tracker contents with st. history supplies the full
// point lists of tracks by id (typically reloaded from the trajectory
// store); tracks missing from history keep the points carried in st.
func (t *Tracker) Restore(st State, history map[int64][]TrackPoint) error {
	tracks := make(map[int64]*Track, len(st.Tracks))
	for _, track := range st.Tracks {
		if track == nil {
			continue
		}
		if track.ID <= 0 || track.ID >= st.NextID {
			return fmt.Errorf("restore: track id %d outside [1,%d)", track.ID, st.NextID)
		}
		c := track.clone()
		if pts, ok := history[c.ID]; ok && len(pts) > 0 {
			c.Points = mergePoints(pts, c.Points)
		}
		tracks[c.ID] = c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = tracks
	t.nextID = st.NextID
	if t.nextID < 1 {
		t.nextID = 1
	}
	t.lastFrame = st.LastFrame
	t.started = st.Started
	t.stats = st.Stats
	diagf("[Tracking] Restored %d tracks at frame %d", len(tracks), st.LastFrame)
	return nil
}

// mergePoints concatenates two frame-ordered lists, dropping any point not
// strictly after the last kept frame.
func mergePoints(a, b []TrackPoint) []TrackPoint {
	out := make([]TrackPoint, 0, len(a)+len(b))
	last := -1
	first := true
	for _, list := range [][]TrackPoint{a, b} {
		for _, p := range list {
			if !first && p.FrameNumber <= last {
				continue
			}
			out = append(out, p)
			last = p.FrameNumber
			first = false
		}
	}
	return out
}
