package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/events"
	"github.com/banshee-data/pitch.report/internal/match/heatmap"
	"github.com/banshee-data/pitch.report/internal/match/physical"
	"github.com/banshee-data/pitch.report/internal/match/storage"
	"github.com/banshee-data/pitch.report/internal/match/tactical"
	"github.com/banshee-data/pitch.report/internal/match/teams"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
	"github.com/banshee-data/pitch.report/internal/timeutil"
)

// ErrNoDetections is returned when a video yields no usable detection.
var ErrNoDetections = errors.New("no usable detections in video")

// JerseySampler samples the torso colour of each box on one frame. Frames
// are requested in increasing order.
type JerseySampler interface {
	SampleFrame(ctx context.Context, frameNumber int, boxes map[int64]detect.BBox) (map[int64]teams.Descriptor, error)
}

// Input describes one video to process.
type Input struct {
	VideoID string // generated when empty
	Name    string // source description stored with the video
	Source  detect.Source

	// Correspondences calibrate the camera. Without a valid calibration the
	// run stays pixel-only and the pitch analytics are skipped.
	Correspondences []calib.Correspondence

	// Sampler fills jersey colours the detector did not supply. Optional.
	Sampler JerseySampler

	// Resume continues from the video's last checkpoint when it has one.
	Resume bool
}

// Result is everything one run produced. Analytics maps are keyed by store
// track id.
type Result struct {
	VideoID     string          `json:"video_id"`
	Frames      int             `json:"frames"`       // frames processed by this run
	ResumedFrom int             `json:"resumed_from"` // checkpoint frame, -1 for a fresh run
	Stats       tracks.Stats    `json:"stats"`
	Tracks      []*tracks.Track `json:"-"` // every track that was ever confirmed
	StoreIDs    map[int64]int64 `json:"store_ids"`

	Calibration    *calib.Matrix `json:"calibration,omitempty"`
	CalibrationErr error         `json:"-"`
	Teams          *teams.Result `json:"teams,omitempty"`
	Reclassified   *teams.Result `json:"reclassified,omitempty"` // refit after ReclassifyFrame
	TeamsErr       error         `json:"-"`

	Players      map[int64]physical.PlayerMetric           `json:"players,omitempty"`
	TeamMetrics  map[tracks.TeamSide]physical.TeamMetric   `json:"team_metrics,omitempty"`
	Heatmaps     map[int64]*heatmap.Heatmap                `json:"heatmaps,omitempty"`
	Zones        map[int64][]float64                       `json:"zones,omitempty"` // StandardZones occupancy
	TeamHeatmaps map[tracks.TeamSide]*heatmap.Heatmap      `json:"team_heatmaps,omitempty"`
	TeamWindows  map[tracks.TeamSide][]heatmap.Window      `json:"team_windows,omitempty"`
	Tactical     map[tracks.TeamSide][]*tactical.Snapshot  `json:"tactical,omitempty"`
	Transitions  map[tracks.TeamSide][]tactical.Transition `json:"transitions,omitempty"`
	Events       []events.Event                            `json:"events,omitempty"`
	XT           []events.PlayerXT                         `json:"xt,omitempty"`

	QualityNotes []string      `json:"quality_notes,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Pipeline processes videos into a store. It holds no per-video state and
// is safe for concurrent use.
type Pipeline struct {
	cfg   Config
	store storage.TrajectoryStore
	clock timeutil.Clock

	phys     *physical.Engine
	heat     *heatmap.Engine
	tact     *tactical.Engine
	detector *events.Detector
}

// New returns a Pipeline writing to store. A nil clock uses wall time.
func New(cfg Config, store storage.TrajectoryStore, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 5 * time.Second
	}
	cfg.Events.HomeAttacksRight = cfg.HomeAttacksRight
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		phys:     physical.NewEngine(cfg.Physical),
		heat:     heatmap.NewEngine(cfg.Heatmap),
		tact:     tactical.NewEngine(cfg.Tactical),
		detector: events.NewDetector(cfg.Events),
	}
}

// run is the state of one video in flight.
type run struct {
	*Pipeline
	in      Input
	res     *Result
	tracker *tracks.Tracker
	sampler JerseySampler
	start   time.Time

	storeIDs        map[int64]int64 // tracker id → store id
	persisted       map[int64]int   // points already written per tracker id
	sinceCheckpoint int
}

// Run processes one video to completion. Detection stream corruption,
// storage failures and ErrNoDetections are fatal; calibration and team
// classification failures degrade the result and are reported in
// QualityNotes. On cancellation a checkpoint is written so the video can
// be resumed.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if in.Source == nil {
		return nil, errors.New("pipeline: nil detection source")
	}
	if in.VideoID == "" {
		in.VideoID = uuid.NewString()
	}
	r := &run{
		Pipeline:  p,
		in:        in,
		tracker:   tracks.NewTracker(p.cfg.Tracker),
		sampler:   in.Sampler,
		start:     p.clock.Now(),
		storeIDs:  make(map[int64]int64),
		persisted: make(map[int64]int),
		res:       &Result{VideoID: in.VideoID, ResumedFrom: -1},
	}
	r.res.StoreIDs = r.storeIDs

	if err := p.store.EnsureVideo(ctx, in.VideoID, in.Name); err != nil {
		return nil, fmt.Errorf("register video %s: %w", in.VideoID, err)
	}
	if err := r.execute(ctx); err != nil {
		r.fail(ctx, err)
		return nil, err
	}
	return r.res, nil
}

func (r *run) execute(ctx context.Context) error {
	if err := r.restore(ctx); err != nil {
		return err
	}
	if err := r.track(ctx); err != nil {
		return err
	}

	r.res.Stats = r.tracker.Stats()
	if r.res.Stats.Created == 0 {
		return fmt.Errorf("%w: video %s", ErrNoDetections, r.in.VideoID)
	}
	for _, tr := range r.tracker.Tracks() {
		if tr.EverConfirmed {
			r.res.Tracks = append(r.res.Tracks, tr)
		}
	}

	if err := r.calibrateAndClassify(ctx); err != nil {
		return err
	}
	if r.res.Calibration != nil {
		if err := r.analyse(ctx); err != nil {
			return err
		}
	}
	r.noteQuality()

	if err := r.store.FinishVideo(ctx, r.in.VideoID, storage.VideoComplete, r.res.Stats.Frames); err != nil {
		return fmt.Errorf("finish video: %w", err)
	}
	r.res.Elapsed = r.clock.Since(r.start)
	diagf("[Pipeline] %s: complete, %d frames, %d tracks, %d events in %s",
		r.in.VideoID, r.res.Stats.Frames, len(r.res.Tracks), len(r.res.Events), r.res.Elapsed)
	return nil
}

// fail marks the video failed. Cancelled runs stay running so they can be
// resumed from their checkpoint.
func (r *run) fail(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		opsf("[Pipeline] %s: stopped at frame %d: %v", r.in.VideoID, r.lastFrame(), err)
		return
	}
	opsf("[Pipeline] %s: failed: %v", r.in.VideoID, err)
	frames := r.tracker.Stats().Frames
	if ferr := r.store.FinishVideo(context.WithoutCancel(ctx), r.in.VideoID, storage.VideoFailed, frames); ferr != nil {
		opsf("[Pipeline] %s: failed to record failure: %v", r.in.VideoID, ferr)
	}
}

func (r *run) lastFrame() int {
	f, _ := r.tracker.LastFrame()
	return f
}

// restore loads the last checkpoint when resuming. The tracker gets its
// state back and each track's point history is reloaded from the store.
func (r *run) restore(ctx context.Context) error {
	if !r.in.Resume {
		return nil
	}
	cp, err := r.store.LoadCheckpoint(ctx, r.in.VideoID)
	if errors.Is(err, storage.ErrNotFound) {
		diagf("[Pipeline] %s: no checkpoint, starting fresh", r.in.VideoID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	// Roll the store back to the checkpoint first: tracks confirmed after
	// it and points written after it are recreated as frames replay.
	keep := make([]int64, 0, len(cp.StoreIDs))
	for _, storeID := range cp.StoreIDs {
		keep = append(keep, storeID)
	}
	pruned, err := r.store.PruneTracks(ctx, r.in.VideoID, keep, cp.Frame)
	if err != nil {
		return fmt.Errorf("prune tracks after checkpoint: %w", err)
	}
	if pruned > 0 {
		diagf("[Pipeline] %s: dropped %d tracks stored after the checkpoint", r.in.VideoID, pruned)
	}
	stored, err := r.store.LoadTrackPoints(ctx, r.in.VideoID)
	if err != nil {
		return fmt.Errorf("load track points: %w", err)
	}

	history := make(map[int64][]tracks.TrackPoint, len(cp.StoreIDs))
	for trackerID, storeID := range cp.StoreIDs {
		var pts []tracks.TrackPoint
		for _, p := range stored[storeID] {
			if p.FrameNumber > cp.Frame {
				break
			}
			p.TrackID = trackerID
			pts = append(pts, p)
		}
		history[trackerID] = pts
	}
	if err := r.tracker.Restore(cp.Tracker, history); err != nil {
		return fmt.Errorf("restore checkpoint at frame %d: %w", cp.Frame, err)
	}
	for trackerID, storeID := range cp.StoreIDs {
		r.storeIDs[trackerID] = storeID
		if tr := r.tracker.Track(trackerID); tr != nil {
			r.persisted[trackerID] = len(tr.Points)
		}
	}
	r.res.ResumedFrom = cp.Frame
	opsf("[Pipeline] %s: resuming from checkpoint at frame %d (%d stored tracks)",
		r.in.VideoID, cp.Frame, len(cp.StoreIDs))
	return nil
}

// track feeds every frame through the tracker, persisting confirmed tracks
// as it goes.
func (r *run) track(ctx context.Context) error {
	progress := rate.NewLimiter(rate.Every(r.cfg.ProgressEvery), 1)
	for {
		if err := ctx.Err(); err != nil {
			return r.stop(ctx, err)
		}
		frame, err := r.in.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return r.stop(ctx, ctx.Err())
			}
			return fmt.Errorf("read detections: %w", err)
		}
		if r.res.ResumedFrom >= 0 && frame.FrameNumber <= r.res.ResumedFrom {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r.stop(ctx, err)
		}

		// A frame once started is written in full, so a checkpoint never
		// runs ahead of the stored points.
		fctx := context.WithoutCancel(ctx)
		confirmed := r.tracker.Update(frame)
		r.res.Frames++
		r.sampleJerseys(ctx, frame.FrameNumber, confirmed)
		if err := r.persist(fctx, confirmed); err != nil {
			return err
		}
		tracef("[Pipeline] %s: frame %d, %d detections, %d confirmed",
			r.in.VideoID, frame.FrameNumber, len(frame.Detections), len(confirmed))

		r.sinceCheckpoint++
		if every := r.cfg.CheckpointEveryFrames; every > 0 && r.sinceCheckpoint >= every {
			if err := r.checkpoint(fctx); err != nil {
				return err
			}
		}
		if progress.Allow() {
			elapsed := r.clock.Since(r.start).Seconds()
			fps := 0.0
			if elapsed > 0 {
				fps = float64(r.res.Frames) / elapsed
			}
			diagf("[Pipeline] %s: frame %d, %d confirmed tracks, %.1f frames/s",
				r.in.VideoID, frame.FrameNumber, len(confirmed), fps)
		}
	}
	// A final checkpoint lets a resumed run skip the whole stream.
	return r.checkpoint(ctx)
}

// stop writes a checkpoint after cancellation and returns cause.
func (r *run) stop(ctx context.Context, cause error) error {
	if err := r.checkpoint(context.WithoutCancel(ctx)); err != nil {
		opsf("[Pipeline] %s: failed to checkpoint on stop: %v", r.in.VideoID, err)
	}
	return cause
}

func (r *run) checkpoint(ctx context.Context) error {
	frame, ok := r.tracker.LastFrame()
	if !ok {
		return nil
	}
	cp := storage.Checkpoint{
		VideoID:  r.in.VideoID,
		Frame:    frame,
		Tracker:  r.tracker.Snapshot(),
		StoreIDs: maps.Clone(r.storeIDs),
		SavedAt:  r.clock.Now(),
	}
	if err := r.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint at frame %d: %w", frame, err)
	}
	r.sinceCheckpoint = 0
	diagf("[Pipeline] %s: checkpoint at frame %d (%d stored tracks)", r.in.VideoID, frame, len(cp.StoreIDs))
	return nil
}

// persist registers newly confirmed tracks and appends every point not yet
// written. A track's tentative points are written when it first confirms.
func (r *run) persist(ctx context.Context, confirmed []*tracks.Track) error {
	for _, tr := range confirmed {
		id, ok := r.storeIDs[tr.ID]
		if !ok {
			var err error
			id, err = r.store.CreateTrack(ctx, r.in.VideoID, tr.Class)
			if err != nil {
				return fmt.Errorf("create track %d: %w", tr.ID, err)
			}
			r.storeIDs[tr.ID] = id
		}
		for _, p := range tr.Points[r.persisted[tr.ID]:] {
			if err := r.store.AppendPoint(ctx, id, p); err != nil {
				return fmt.Errorf("append point of track %d at frame %d: %w", tr.ID, p.FrameNumber, err)
			}
		}
		r.persisted[tr.ID] = len(tr.Points)
	}
	return nil
}

// sampleJerseys asks the sampler for the torso colour of confirmed people
// matched on this frame whose detection carried none. A failing sampler is
// disabled for the rest of the run.
func (r *run) sampleJerseys(ctx context.Context, frameNumber int, confirmed []*tracks.Track) {
	if r.sampler == nil || r.cfg.JerseyEveryFrames <= 0 || frameNumber%r.cfg.JerseyEveryFrames != 0 {
		return
	}
	boxes := make(map[int64]detect.BBox)
	byID := make(map[int64]*tracks.Track)
	for _, tr := range confirmed {
		if !tr.Class.IsPerson() || tr.LastFrame != frameNumber || len(tr.Points) == 0 {
			continue
		}
		if tr.Points[len(tr.Points)-1].Jersey != nil {
			continue
		}
		boxes[tr.ID] = tr.BBox
		byID[tr.ID] = tr
	}
	if len(boxes) == 0 {
		return
	}
	descs, err := r.sampler.SampleFrame(ctx, frameNumber, boxes)
	if err != nil {
		opsf("[Pipeline] %s: jersey sampling failed at frame %d, sampler disabled: %v", r.in.VideoID, frameNumber, err)
		r.sampler = nil
		return
	}
	for id, d := range descs {
		tr, ok := byID[id]
		if !ok {
			continue
		}
		tr.Points[len(tr.Points)-1].Jersey = &detect.HSV{H: d.H, S: d.S, V: d.V}
	}
}
