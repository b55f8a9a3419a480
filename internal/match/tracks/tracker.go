package tracks

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/match/detect"
)

var (
	ErrUnknownTrack = errors.New("unknown track")
	ErrNotConfirmed = errors.New("team side requires a confirmed track")
	ErrBallTeam     = errors.New("ball tracks carry no team side")
	ErrTeamConflict = errors.New("team side already assigned")
	ErrInvalidTeam  = errors.New("invalid team side")
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	ConfidenceThreshold float64 // Detections below this are dropped before association
	IoUThreshold        float64 // Minimum IoU for an admissible pair
	MaxAge              int     // Consecutive misses before deletion
	MinHits             int     // Consecutive hits needed for confirmation
	LostAfter           int     // Consecutive misses before confirmed → lost
}

// DefaultTrackerConfig returns tracker configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		ConfidenceThreshold: cfg.GetConfidenceThreshold(),
		IoUThreshold:        cfg.GetIoUThreshold(),
		MaxAge:              cfg.GetMaxAge(),
		MinHits:             cfg.GetMinHits(),
		LostAfter:           cfg.GetLostAfter(),
	}
}

// Stats summarises tracker activity for quality reporting.
type Stats struct {
	Frames             int `json:"frames"`
	Created            int `json:"created"`
	Confirmed          int `json:"confirmed"`
	Deleted            int `json:"deleted"`
	DeletedUnconfirmed int `json:"deleted_unconfirmed"`
	Reacquired         int `json:"reacquired"` // lost → confirmed transitions
	DetectionGaps      int `json:"detection_gaps"`
	SkippedFrames      int `json:"skipped_frames"` // frames not after the last processed frame
	LowConfidence      int `json:"low_confidence"`
}

// FragmentationRatio is the share of confirmed identities that ended in
// deletion after being lost. High values suggest one real entity was split
// across several track ids.
func (s Stats) FragmentationRatio() float64 {
	if s.Confirmed == 0 {
		return 0
	}
	return float64(s.Deleted-s.DeletedUnconfirmed) / float64(s.Confirmed)
}

// Tracker manages multi-object tracking for a single video. It is not
// shared between videos.
type Tracker struct {
	Config TrackerConfig

	tracks    map[int64]*Track
	nextID    int64
	lastFrame int
	started   bool
	stats     Stats

	mu sync.RWMutex
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		Config: cfg,
		tracks: make(map[int64]*Track),
		nextID: 1,
	}
}

// Update processes one frame of detections and returns the tracks that are
// confirmed after this frame. Frames must arrive in increasing frame order;
// a frame not after the previous one is ignored.
func (t *Tracker) Update(frame detect.Frame) []*Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn := frame.FrameNumber
	if t.started && fn <= t.lastFrame {
		t.stats.SkippedFrames++
		opsf("[Tracking] Ignoring frame %d: not after %d", fn, t.lastFrame)
		return t.confirmedLocked()
	}
	if t.started && fn-t.lastFrame > 1 {
		t.stats.DetectionGaps++
		diagf("[Tracking] Detection gap: frames %d..%d missing", t.lastFrame+1, fn-1)
	}
	t.started = true
	t.lastFrame = fn
	t.stats.Frames++

	// Step 1: Drop low-confidence detections
	dets := make([]detect.Detection, 0, len(frame.Detections))
	for _, d := range frame.Detections {
		if d.Confidence < t.Config.ConfidenceThreshold {
			t.stats.LowConfidence++
			continue
		}
		dets = append(dets, d)
	}
	if len(frame.Detections) == 0 {
		t.stats.DetectionGaps++
	}

	// Step 2: Associate detections to active tracks (tracks in id order)
	active := t.activeLocked()
	assign := t.associate(active, dets, fn)

	// Step 3: Update matched tracks
	matched := make(map[int64]bool, len(active))
	detUsed := make([]bool, len(dets))
	for row, col := range assign {
		if col < 0 {
			continue
		}
		track := active[row]
		t.update(track, dets[col], frame)
		matched[track.ID] = true
		detUsed[col] = true
	}

	// Step 4: Age unmatched tracks
	for _, track := range active {
		if matched[track.ID] {
			continue
		}
		track.Misses = fn - track.LastFrame
		track.Hits = 0
		t.age(track)
	}

	// Step 5: Initialise new tracks from unassociated detections
	for i, d := range dets {
		if !detUsed[i] {
			t.initTrack(d, frame)
		}
	}

	tracef("[Tracking] frame=%d detections=%d active=%d matched=%d", fn, len(dets), len(active), len(matched))
	return t.confirmedLocked()
}

// associate builds the 1 − IoU cost matrix between predicted track boxes
// and detections and solves it with HungarianAssign. Pairs below the IoU
// threshold and class-incompatible pairs are forbidden.
// Returns assign[row] = detection index or -1, rows aligned with active.
func (t *Tracker) associate(active []*Track, dets []detect.Detection, frame int) []int {
	if len(active) == 0 || len(dets) == 0 {
		out := make([]int, len(active))
		for i := range out {
			out[i] = -1
		}
		return out
	}
	cost := make([][]float64, len(active))
	for i, track := range active {
		cost[i] = make([]float64, len(dets))
		pred := track.Predicted(frame)
		for j, d := range dets {
			if !track.Class.Compatible(d.Class) {
				cost[i][j] = Forbidden
				continue
			}
			iou := pred.IoU(d.BBox)
			if iou < t.Config.IoUThreshold || iou <= 0 {
				cost[i][j] = Forbidden
				continue
			}
			cost[i][j] = 1 - iou
		}
	}
	return HungarianAssign(cost)
}

// update applies a matched detection to a track.
func (t *Tracker) update(track *Track, d detect.Detection, frame detect.Frame) {
	df := frame.FrameNumber - track.LastFrame
	prev := track.BBox.Center()
	cur := d.BBox.Center()
	vx := (cur.X - prev.X) / float64(df)
	vy := (cur.Y - prev.Y) / float64(df)
	if track.HitCount > 1 {
		vx = 0.5*track.VX + 0.5*vx
		vy = 0.5*track.VY + 0.5*vy
	}
	track.VX, track.VY = vx, vy

	if df == 1 {
		track.Hits++
	} else {
		track.Hits = 1
	}
	track.HitCount++
	track.Misses = 0
	track.LastFrame = frame.FrameNumber
	track.BBox = d.BBox
	track.Points = append(track.Points, newPoint(track.ID, d, frame))

	switch track.State {
	case TrackTentative:
		if track.Hits >= t.Config.MinHits {
			t.confirm(track)
		}
	case TrackLost:
		track.State = TrackConfirmed
		t.stats.Reacquired++
		diagf("[Tracking] Track %d re-acquired at frame %d", track.ID, frame.FrameNumber)
	case TrackConfirmed:
	case TrackDeleted:
		opsf("[Tracking] Deleted track %d matched at frame %d", track.ID, frame.FrameNumber)
	}
}

// age applies the miss-driven transitions to an unmatched track.
func (t *Tracker) age(track *Track) {
	switch track.State {
	case TrackConfirmed:
		if track.Misses >= t.Config.MaxAge {
			t.delete(track)
		} else if track.Misses >= t.Config.LostAfter {
			track.State = TrackLost
		}
	case TrackLost, TrackTentative:
		if track.Misses >= t.Config.MaxAge {
			t.delete(track)
		}
	case TrackDeleted:
	}
}

func (t *Tracker) confirm(track *Track) {
	track.State = TrackConfirmed
	if !track.EverConfirmed {
		track.EverConfirmed = true
		t.stats.Confirmed++
	}
}

func (t *Tracker) delete(track *Track) {
	track.State = TrackDeleted
	t.stats.Deleted++
	if !track.EverConfirmed {
		t.stats.DeletedUnconfirmed++
	}
}

// initTrack creates a new tentative track from an unassociated detection.
func (t *Tracker) initTrack(d detect.Detection, frame detect.Frame) *Track {
	track := &Track{
		ID:         t.nextID,
		Class:      d.Class,
		Team:       TeamUnknown,
		State:      TrackTentative,
		FirstFrame: frame.FrameNumber,
		LastFrame:  frame.FrameNumber,
		HitCount:   1,
		Hits:       1,
		BBox:       d.BBox,
	}
	t.nextID++
	track.Points = []TrackPoint{newPoint(track.ID, d, frame)}
	t.tracks[track.ID] = track
	t.stats.Created++
	if track.Hits >= t.Config.MinHits {
		t.confirm(track)
	}
	return track
}

func newPoint(id int64, d detect.Detection, frame detect.Frame) TrackPoint {
	return TrackPoint{
		TrackID:     id,
		FrameNumber: frame.FrameNumber,
		Timestamp:   frame.Timestamp,
		BBox:        d.BBox,
		PixelXY:     d.BBox.FootPoint(),
		Confidence:  d.Confidence,
		Jersey:      d.Jersey,
	}
}

// activeLocked returns non-deleted tracks ordered by id.
func (t *Tracker) activeLocked() []*Track {
	out := make([]*Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		if track.Active() {
			out = append(out, track)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tracker) confirmedLocked() []*Track {
	var out []*Track
	for _, track := range t.tracks {
		if track.State == TrackConfirmed {
			out = append(out, track)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tracks returns every track the tracker has created, deleted ones
// included, ordered by id.
func (t *Tracker) Tracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		out = append(out, track)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Confirmed returns the tracks currently in the confirmed state.
func (t *Tracker) Confirmed() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.confirmedLocked()
}

// Track returns the track with the given id, or nil.
func (t *Tracker) Track(id int64) *Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tracks[id]
}

// Stats returns a copy of the tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// LastFrame returns the last frame number processed, and false before the
// first Update.
func (t *Tracker) LastFrame() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastFrame, t.started
}

// SetTeam assigns a team side to a track. The track must have been
// confirmed and must not be the ball. Changing an existing non-unknown side
// requires reclassify; otherwise ErrTeamConflict is returned.
func (t *Tracker) SetTeam(id int64, side TeamSide, reclassify bool) error {
	if _, err := ParseTeamSide(string(side)); err != nil || side == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTeam, side)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	track, ok := t.tracks[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}
	if track.Class == detect.ClassBall {
		return fmt.Errorf("%w: track %d", ErrBallTeam, id)
	}
	if !track.EverConfirmed {
		return fmt.Errorf("%w: track %d is %s", ErrNotConfirmed, id, track.State)
	}
	if track.Team != TeamUnknown && track.Team != side && !reclassify {
		return fmt.Errorf("%w: track %d is %s", ErrTeamConflict, id, track.Team)
	}
	track.Team = side
	return nil
}
