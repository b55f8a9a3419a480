package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pitch.report/internal/db"
	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/storage"
	"github.com/banshee-data/pitch.report/internal/match/storage/sqlite"
	"github.com/banshee-data/pitch.report/internal/match/tactical"
	"github.com/banshee-data/pitch.report/internal/match/teams"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
	"github.com/banshee-data/pitch.report/internal/testutil"
	"github.com/banshee-data/pitch.report/internal/timeutil"
)

const (
	fps       = 25.0
	numFrames = 250
)

var (
	homeKit    = testutil.Kit(10, 200, 200)
	awayKit    = testutil.Kit(110, 200, 200)
	refereeKit = testutil.Kit(30, 250, 250)
)

// matchWalkers is three home players walking right, three away players
// walking left, a referee and a ball running alongside the middle home
// player.
func matchWalkers(withKits bool) []testutil.Walker {
	kit := func(k *detect.HSV) *detect.HSV {
		if withKits {
			return k
		}
		return nil
	}
	var ws []testutil.Walker
	for _, y := range []float64{20, 34, 48} {
		ws = append(ws,
			testutil.Walker{Class: detect.ClassPlayer, Start: geom.Pt(20, y), Vel: geom.Pt(1, 0), Jersey: kit(homeKit)},
			testutil.Walker{Class: detect.ClassPlayer, Start: geom.Pt(80, y), Vel: geom.Pt(-1, 0), Jersey: kit(awayKit)},
		)
	}
	ws = append(ws,
		testutil.Walker{Class: detect.ClassReferee, Start: geom.Pt(52, 8), Vel: geom.Pt(0.5, 0), Jersey: kit(refereeKit)},
		testutil.Walker{Class: detect.ClassBall, Start: geom.Pt(21.5, 34), Vel: geom.Pt(1, 0)},
	)
	return ws
}

type fixture struct {
	store *sqlite.Store
	clock *timeutil.MockClock
	p     *Pipeline
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := timeutil.NewMockClock(time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC))
	store := sqlite.NewStore(database)
	return &fixture{store: store, clock: clock, p: New(cfg, store, clock)}
}

func matchInput(videoID string, frames []detect.Frame) Input {
	return Input{
		VideoID:         videoID,
		Name:            videoID + ".jsonl",
		Source:          detect.NewSliceSource(frames),
		Correspondences: testutil.DefaultCamera.Correspondences(105, 68),
	}
}

// sideByStart labels tracks by where they started: home on the left half.
func sideByStart(tr *tracks.Track) tracks.TeamSide {
	if tr.Class == detect.ClassReferee {
		return tracks.TeamReferee
	}
	if tr.Points[0].MeterXY.X < 52.5 {
		return tracks.TeamHome
	}
	return tracks.TeamAway
}

// --------------------------------------------------------------------------

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	frames := testutil.Frames(testutil.DefaultCamera, numFrames, fps, matchWalkers(true))

	res, err := f.p.Run(ctx, matchInput("match-1", frames))
	require.NoError(t, err)

	assert.Equal(t, "match-1", res.VideoID)
	assert.Equal(t, numFrames, res.Frames)
	assert.Equal(t, -1, res.ResumedFrom)
	assert.Equal(t, 8, res.Stats.Created)
	assert.Equal(t, 8, res.Stats.Confirmed)
	require.Len(t, res.Tracks, 8)
	require.Len(t, res.StoreIDs, 8)
	assert.Empty(t, res.QualityNotes)

	require.NotNil(t, res.Calibration)
	assert.Less(t, res.Calibration.ReprojectionError, 0.01)
	require.NotNil(t, res.Teams)
	for _, tr := range res.Tracks {
		require.Len(t, tr.Points, numFrames, "track %d", tr.ID)
		if tr.Class == detect.ClassBall {
			assert.Equal(t, tracks.TeamUnknown, tr.Team)
			continue
		}
		assert.Equal(t, sideByStart(tr), tr.Team, "track %d", tr.ID)
	}

	// Pitch positions are recovered through the homography.
	for _, tr := range res.Tracks {
		if tr.Class == detect.ClassBall {
			start := tr.Points[0].MeterXY
			require.NotNil(t, start)
			assert.InDelta(t, 21.5, start.X, 0.05)
			assert.InDelta(t, 34, start.Y, 0.05)
		}
	}

	// Seven people get physical metrics; the ball does not.
	require.Len(t, res.Players, 7)
	for id, m := range res.Players {
		assert.Equal(t, id, m.TrackID)
		if m.Team == tracks.TeamHome || m.Team == tracks.TeamAway {
			assert.InDelta(t, 1.0, m.TopSpeedMps, 0.05, "track %d", id)
			assert.Greater(t, m.TotalDistanceM, 8.0)
		}
	}
	require.Contains(t, res.TeamMetrics, tracks.TeamHome)
	assert.Equal(t, 3, res.TeamMetrics[tracks.TeamHome].Players)
	assert.Equal(t, 3, res.TeamMetrics[tracks.TeamAway].Players)

	assert.Len(t, res.Heatmaps, 7)
	assert.Len(t, res.Zones, 7)
	assert.Contains(t, res.TeamHeatmaps, tracks.TeamHome)
	assert.Contains(t, res.TeamHeatmaps, tracks.TeamAway)
	assert.NotEmpty(t, res.TeamWindows[tracks.TeamHome])

	// 10 s of play in 5 s windows.
	require.Len(t, res.Tactical[tracks.TeamHome], 2)
	snap := res.Tactical[tracks.TeamHome][0]
	assert.Equal(t, 3, snap.Players)
	assert.NotNil(t, res.Transitions)

	// Everything is persisted.
	v, err := f.store.GetVideo(ctx, "match-1")
	require.NoError(t, err)
	assert.Equal(t, storage.VideoComplete, v.Status)
	assert.Equal(t, numFrames, v.Frames)

	points, err := f.store.LoadTrackPoints(ctx, "match-1")
	require.NoError(t, err)
	require.Len(t, points, 8)
	for _, tr := range res.Tracks {
		stored := points[res.StoreIDs[tr.ID]]
		require.Len(t, stored, numFrames, "track %d", tr.ID)
		assert.NotNil(t, stored[0].MeterXY)
		if tr.Class != detect.ClassBall {
			assert.NotNil(t, stored[0].Jersey, "track %d", tr.ID)
		}
	}

	m, err := f.store.LoadCalibration(ctx, "match-1")
	require.NoError(t, err)
	if diff := cmp.Diff(res.Calibration, m, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("stored calibration mismatch (-want +got):\n%s", diff)
	}
	metrics, err := f.store.LoadPlayerMetrics(ctx, "match-1")
	require.NoError(t, err)
	assert.Len(t, metrics, 7)
	evs, err := f.store.LoadEvents(ctx, "match-1")
	require.NoError(t, err)
	assert.Len(t, evs, len(res.Events))

	cp, err := f.store.LoadCheckpoint(ctx, "match-1")
	require.NoError(t, err)
	assert.Equal(t, numFrames-1, cp.Frame)
	assert.Len(t, cp.StoreIDs, 8)
}

func TestRun_GeneratesVideoID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	frames := testutil.Frames(testutil.DefaultCamera, 30, fps, matchWalkers(true))

	res, err := f.p.Run(context.Background(), matchInput("", frames))
	require.NoError(t, err)
	assert.Len(t, res.VideoID, 36)
	_, err = f.store.GetVideo(context.Background(), res.VideoID)
	assert.NoError(t, err)
}

func TestRun_PixelOnlyWithoutCalibration(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	frames := testutil.Frames(testutil.DefaultCamera, 100, fps, matchWalkers(true))

	in := matchInput("pixels", frames)
	in.Correspondences = in.Correspondences[:2]
	res, err := f.p.Run(ctx, in)
	require.NoError(t, err)

	assert.Nil(t, res.Calibration)
	assert.ErrorIs(t, res.CalibrationErr, calib.ErrCalibrationFailure)
	assert.ErrorIs(t, res.CalibrationErr, calib.ErrInsufficientPoints)
	assert.Nil(t, res.Players)
	assert.Nil(t, res.Events)

	// Teams do not need the pitch.
	for _, tr := range res.Tracks {
		if tr.Class == detect.ClassPlayer {
			assert.NotEqual(t, tracks.TeamUnknown, tr.Team)
		}
		for _, p := range tr.Points {
			assert.Nil(t, p.MeterXY)
		}
	}
	require.NotEmpty(t, res.QualityNotes)
	assert.Contains(t, strings.Join(res.QualityNotes, "\n"), "pixel-only")

	_, err = f.store.LoadCalibration(ctx, "pixels")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_FatalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  detect.Source
		wantErr error
	}{
		{
			name:    "no detections",
			source:  detect.NewSliceSource(testutil.Frames(testutil.DefaultCamera, 50, fps, nil)),
			wantErr: ErrNoDetections,
		},
		{
			name:    "empty stream",
			source:  detect.NewSliceSource(nil),
			wantErr: ErrNoDetections,
		},
		{
			name:    "corrupt stream",
			source:  detect.NewJSONLSource(strings.NewReader("{\"frame_number\":0,\"detections\":[]}\n{not json\n")),
			wantErr: detect.ErrCorruptStream,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil)
			ctx := context.Background()

			res, err := f.p.Run(ctx, Input{VideoID: "bad", Source: tt.source})
			assert.Nil(t, res)
			require.ErrorIs(t, err, tt.wantErr)

			v, err := f.store.GetVideo(ctx, "bad")
			require.NoError(t, err)
			assert.Equal(t, storage.VideoFailed, v.Status)
		})
	}

	t.Run("nil source", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.p.Run(context.Background(), Input{})
		assert.Error(t, err)
	})
}

// cancelAt cancels its context once the source hands out frame.
type cancelAt struct {
	src    detect.Source
	frame  int
	cancel context.CancelFunc
}

func (c *cancelAt) Next(ctx context.Context) (detect.Frame, error) {
	fr, err := c.src.Next(ctx)
	if err == nil && fr.FrameNumber == c.frame {
		c.cancel()
	}
	return fr, err
}

func TestRun_ResumeAfterCancel(t *testing.T) {
	t.Parallel()
	// The late walker is still tentative at the checkpoint and only
	// confirms after the resume.
	walkers := append(matchWalkers(true),
		testutil.Walker{Class: detect.ClassPlayer, Start: geom.Pt(40, 60), Vel: geom.Pt(0.5, 0), Jersey: homeKit, From: 98})
	frames := testutil.Frames(testutil.DefaultCamera, numFrames, fps, walkers)

	clean := newFixture(t, nil)
	want, err := clean.p.Run(context.Background(), matchInput("video", frames))
	require.NoError(t, err)

	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := matchInput("video", frames)
	in.Source = &cancelAt{src: in.Source, frame: 100, cancel: cancel}
	_, err = f.p.Run(ctx, in)
	require.ErrorIs(t, err, context.Canceled)

	// Cancelled runs stay resumable.
	v, err := f.store.GetVideo(context.Background(), "video")
	require.NoError(t, err)
	assert.Equal(t, storage.VideoRunning, v.Status)
	cp, err := f.store.LoadCheckpoint(context.Background(), "video")
	require.NoError(t, err)
	assert.Equal(t, 99, cp.Frame)

	in = matchInput("video", frames)
	in.Resume = true
	got, err := f.p.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 99, got.ResumedFrom)
	assert.Equal(t, numFrames-100, got.Frames)
	assert.Equal(t, want.Stats, got.Stats)
	assert.Equal(t, want.StoreIDs, got.StoreIDs)

	approx := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(want.Players, got.Players, approx); diff != "" {
		t.Errorf("player metrics differ after resume (-clean +resumed):\n%s", diff)
	}
	if diff := cmp.Diff(want.Events, got.Events, approx); diff != "" {
		t.Errorf("events differ after resume (-clean +resumed):\n%s", diff)
	}
	if diff := cmp.Diff(want.Tactical, got.Tactical, approx); diff != "" {
		t.Errorf("tactical snapshots differ after resume (-clean +resumed):\n%s", diff)
	}

	wantPoints, err := clean.store.LoadTrackPoints(context.Background(), "video")
	require.NoError(t, err)
	gotPoints, err := f.store.LoadTrackPoints(context.Background(), "video")
	require.NoError(t, err)
	require.Len(t, gotPoints, 9)
	if diff := cmp.Diff(wantPoints, gotPoints, approx); diff != "" {
		t.Errorf("stored points differ after resume (-clean +resumed):\n%s", diff)
	}
	late := got.StoreIDs[9]
	require.NotZero(t, late)
	assert.Len(t, gotPoints[late], numFrames-98)
	assert.Equal(t, 98, gotPoints[late][0].FrameNumber)
}

// crashAt returns a read error once the source reaches frame, like a
// process dying mid-stream. Points after the last checkpoint are already
// in the store when it does.
type crashAt struct {
	src   detect.Source
	frame int
}

func (c *crashAt) Next(ctx context.Context) (detect.Frame, error) {
	fr, err := c.src.Next(ctx)
	if err == nil && fr.FrameNumber == c.frame {
		return detect.Frame{}, errors.New("decoder crashed")
	}
	return fr, err
}

func TestRun_ResumeAfterCrash(t *testing.T) {
	t.Parallel()
	every := func(c *Config) { c.CheckpointEveryFrames = 50 }
	frames := testutil.Frames(testutil.DefaultCamera, numFrames, fps, matchWalkers(true))

	clean := newFixture(t, every)
	want, err := clean.p.Run(context.Background(), matchInput("video", frames))
	require.NoError(t, err)

	f := newFixture(t, every)
	in := matchInput("video", frames)
	in.Source = &crashAt{src: in.Source, frame: 80}
	_, err = f.p.Run(context.Background(), in)
	require.Error(t, err)

	// Frames 50..79 were stored but are past the checkpoint.
	cp, err := f.store.LoadCheckpoint(context.Background(), "video")
	require.NoError(t, err)
	require.Equal(t, 49, cp.Frame)
	stale, err := f.store.LoadTrackPoints(context.Background(), "video")
	require.NoError(t, err)
	for _, pts := range stale {
		require.Len(t, pts, 80)
	}

	in = matchInput("video", frames)
	in.Resume = true
	got, err := f.p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 49, got.ResumedFrom)
	assert.Equal(t, numFrames-50, got.Frames)

	require.Len(t, got.Tracks, len(want.Tracks))
	for _, tr := range got.Tracks {
		require.Len(t, tr.Points, numFrames, "track %d", tr.ID)
		for i := 1; i < len(tr.Points); i++ {
			require.Greater(t, tr.Points[i].FrameNumber, tr.Points[i-1].FrameNumber, "track %d", tr.ID)
		}
	}

	approx := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(want.Heatmaps, got.Heatmaps, approx); diff != "" {
		t.Errorf("heatmaps differ after resume (-clean +resumed):\n%s", diff)
	}
	if diff := cmp.Diff(want.Players, got.Players, approx); diff != "" {
		t.Errorf("player metrics differ after resume (-clean +resumed):\n%s", diff)
	}

	points, err := f.store.LoadTrackPoints(context.Background(), "video")
	require.NoError(t, err)
	require.Len(t, points, 8)
	for _, pts := range points {
		assert.Len(t, pts, numFrames)
	}
}

func TestRun_ResumeWithoutCheckpointStartsFresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	frames := testutil.Frames(testutil.DefaultCamera, 50, fps, matchWalkers(true))

	in := matchInput("fresh", frames)
	in.Resume = true
	res, err := f.p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, -1, res.ResumedFrom)
	assert.Equal(t, 50, res.Frames)
}

// checkpointLog records the frame of every checkpoint saved.
type checkpointLog struct {
	*sqlite.Store
	frames []int
	saved  []time.Time
}

func (c *checkpointLog) SaveCheckpoint(ctx context.Context, cp storage.Checkpoint) error {
	c.frames = append(c.frames, cp.Frame)
	c.saved = append(c.saved, cp.SavedAt)
	return c.Store.SaveCheckpoint(ctx, cp)
}

func TestRun_PeriodicCheckpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.CheckpointEveryFrames = 40 })
	log := &checkpointLog{Store: f.store}
	p := New(f.p.cfg, log, f.clock)
	frames := testutil.Frames(testutil.DefaultCamera, 100, fps, matchWalkers(true))

	_, err := p.Run(context.Background(), matchInput("periodic", frames))
	require.NoError(t, err)

	assert.Equal(t, []int{39, 79, 99}, log.frames)
	for _, at := range log.saved {
		assert.True(t, at.Equal(f.clock.Now()), "checkpoints are stamped by the pipeline clock")
	}

	cp, err := f.store.LoadCheckpoint(context.Background(), "periodic")
	require.NoError(t, err)
	assert.Equal(t, 99, cp.Frame)
	assert.Len(t, cp.StoreIDs, 8)
}

// kitSampler reads kits from pitch position: left of the halfway line is
// home. It fails once failAt frames have been sampled, when set.
type kitSampler struct {
	calls  int
	frames []int
	failAt int
}

func (s *kitSampler) SampleFrame(_ context.Context, frameNumber int, boxes map[int64]detect.BBox) (map[int64]teams.Descriptor, error) {
	s.calls++
	s.frames = append(s.frames, frameNumber)
	if s.failAt > 0 && s.calls >= s.failAt {
		return nil, errors.New("decoder error")
	}
	halfway := testutil.DefaultCamera.Pixel(geom.Pt(52.5, 0)).X
	out := make(map[int64]teams.Descriptor, len(boxes))
	for id, box := range boxes {
		kit := awayKit
		if box.FootPoint().X < halfway {
			kit = homeKit
		}
		out[id] = teams.Descriptor{H: kit.H, S: kit.S, V: kit.V}
	}
	return out, nil
}

func TestRun_JerseySampler(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	frames := testutil.Frames(testutil.DefaultCamera, 100, fps, matchWalkers(false))

	sampler := &kitSampler{}
	in := matchInput("sampled", frames)
	in.Sampler = sampler
	res, err := f.p.Run(context.Background(), in)
	require.NoError(t, err)

	require.NotEmpty(t, sampler.frames)
	for _, fn := range sampler.frames {
		assert.Zero(t, fn%f.p.cfg.JerseyEveryFrames, "frame %d", fn)
	}
	for _, tr := range res.Tracks {
		if tr.Class == detect.ClassPlayer {
			assert.Equal(t, sideByStart(tr), tr.Team, "track %d", tr.ID)
		}
	}
}

func TestRun_FailingSamplerDegradesTeams(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	frames := testutil.Frames(testutil.DefaultCamera, 100, fps, matchWalkers(false))

	sampler := &kitSampler{failAt: 1}
	in := matchInput("broken-sampler", frames)
	in.Sampler = sampler
	res, err := f.p.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, sampler.calls, "sampler is disabled after its first failure")
	assert.ErrorIs(t, res.TeamsErr, teams.ErrClassificationAmbiguity)
	notes := strings.Join(res.QualityNotes, "\n")
	assert.Contains(t, notes, "team classification degraded")
	assert.Contains(t, notes, "6 player tracks without a team")
	// Pitch analytics still run.
	assert.Len(t, res.Players, 7)
}

func TestRun_FragmentationNote(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.MaxFragmentation = 0.05 })

	ws := matchWalkers(true)
	// The first home player leaves the picture long enough to be deleted,
	// then comes back under a new id.
	ws[0].To = 40
	returning := ws[0]
	returning.From, returning.To = 120, 0
	ws = append(ws, returning)
	frames := testutil.Frames(testutil.DefaultCamera, 200, fps, ws)

	res, err := f.p.Run(context.Background(), matchInput("fragmented", frames))
	require.NoError(t, err)
	assert.Equal(t, 9, res.Stats.Created)
	assert.Equal(t, 1, res.Stats.Deleted-res.Stats.DeletedUnconfirmed)
	assert.Contains(t, strings.Join(res.QualityNotes, "\n"), "track fragmentation")
}

func TestRun_ReclassifyFromHalfTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.ReclassifyFrame = 100 })

	// The first-half players leave at frame 100; four second-half players
	// come on at 110, the right-hand side in a new kit.
	ws := matchWalkers(true)
	for i := range ws {
		if ws[i].Class == detect.ClassPlayer {
			ws[i].To = 100
		}
	}
	left, right := testutil.Kit(10, 200, 200), testutil.Kit(60, 200, 200)
	ws = append(ws,
		testutil.Walker{Class: detect.ClassPlayer, Start: geom.Pt(30, 20), Vel: geom.Pt(1, 0), Jersey: left, From: 110},
		testutil.Walker{Class: detect.ClassPlayer, Start: geom.Pt(30, 48), Vel: geom.Pt(1, 0), Jersey: left, From: 110},
		testutil.Walker{Class: detect.ClassPlayer, Start: geom.Pt(70, 20), Vel: geom.Pt(-1, 0), Jersey: right, From: 110},
		testutil.Walker{Class: detect.ClassPlayer, Start: geom.Pt(70, 48), Vel: geom.Pt(-1, 0), Jersey: right, From: 110},
	)
	frames := testutil.Frames(testutil.DefaultCamera, 200, fps, ws)

	res, err := f.p.Run(context.Background(), matchInput("halves", frames))
	require.NoError(t, err)
	require.NotNil(t, res.Reclassified)

	secondHalf := 0
	for _, tr := range res.Tracks {
		if tr.Class != detect.ClassPlayer {
			continue
		}
		assert.Equal(t, sideByStart(tr), tr.Team, "track %d first seen at %d", tr.ID, tr.FirstFrame)
		if tr.FirstFrame > 100 {
			secondHalf++
			assert.Contains(t, res.Reclassified.Assignments, tr.ID)
		}
	}
	assert.Equal(t, 4, secondHalf)
	assert.Len(t, res.Reclassified.Assignments, 4)
}

// --------------------------------------------------------------------------

func TestBatch_IsolatesFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	frames := testutil.Frames(testutil.DefaultCamera, 60, fps, matchWalkers(true))

	inputs := []Input{
		matchInput("a", frames),
		{VideoID: "broken", Source: detect.NewSliceSource(nil)},
		matchInput("b", frames),
		{Source: detect.NewSliceSource(frames), Correspondences: testutil.DefaultCamera.Correspondences(105, 68)},
	}
	out := f.p.Batch(context.Background(), inputs, 2)
	require.Len(t, out, 4)

	assert.Equal(t, "a", out[0].VideoID)
	assert.NoError(t, out[0].Err)
	require.NotNil(t, out[0].Result)
	assert.Equal(t, 60, out[0].Result.Frames)

	assert.Equal(t, "broken", out[1].VideoID)
	assert.ErrorIs(t, out[1].Err, ErrNoDetections)
	assert.Nil(t, out[1].Result)

	assert.NoError(t, out[2].Err)
	assert.NoError(t, out[3].Err)
	assert.NotEmpty(t, out[3].VideoID)
	assert.Equal(t, out[3].VideoID, out[3].Result.VideoID)
}

func TestBatch_Cancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	frames := testutil.Frames(testutil.DefaultCamera, 60, fps, matchWalkers(true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := f.p.Batch(ctx, []Input{matchInput("x", frames), matchInput("y", frames)}, 0)
	for _, br := range out {
		assert.Error(t, br.Err)
	}
}

// --------------------------------------------------------------------------

func TestConfigDirection(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, tactical.AttackRight, cfg.direction(tracks.TeamHome))
	assert.Equal(t, tactical.AttackLeft, cfg.direction(tracks.TeamAway))

	cfg.HomeAttacksRight = false
	assert.Equal(t, tactical.AttackLeft, cfg.direction(tracks.TeamHome))
	assert.Equal(t, tactical.AttackRight, cfg.direction(tracks.TeamAway))

	p := New(cfg, nil, nil)
	assert.False(t, p.cfg.Events.HomeAttacksRight)
	assert.Equal(t, 500, DefaultConfig().CheckpointEveryFrames)
}

func TestMergeBall(t *testing.T) {
	t.Parallel()
	got := mergeBall([]tracks.Sample{
		{Frame: 3, X: 3}, {Frame: 1, X: 1}, {Frame: 3, X: 30}, {Frame: 2, X: 2},
	})
	want := []tracks.Sample{{Frame: 1, X: 1}, {Frame: 2, X: 2}, {Frame: 3, X: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeBall mismatch (-want +got):\n%s", diff)
	}
}
