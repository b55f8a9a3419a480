package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/events"
	"github.com/banshee-data/pitch.report/internal/match/heatmap"
	"github.com/banshee-data/pitch.report/internal/match/physical"
	"github.com/banshee-data/pitch.report/internal/match/tactical"
	"github.com/banshee-data/pitch.report/internal/match/teams"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// calibrateAndClassify runs calibration and team classification side by
// side. They touch disjoint fields of the shared tracks: calibration writes
// point positions, classification reads jerseys and sets team labels
// through the tracker.
func (r *run) calibrateAndClassify(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.calibrate(gctx) })
	g.Go(func() error { return r.classify(gctx) })
	return g.Wait()
}

// calibrate fits the homography and projects every stored point onto the
// pitch. A calibration failure is not fatal: the run continues pixel-only.
func (r *run) calibrate(ctx context.Context) error {
	m, err := calib.Calibrate(r.in.Correspondences, r.cfg.PitchLength, r.cfg.PitchWidth, r.cfg.Calib)
	if errors.Is(err, calib.ErrCalibrationFailure) {
		opsf("[Pipeline] %s: calibration failed, continuing pixel-only: %v", r.in.VideoID, err)
		r.res.CalibrationErr = err
		return nil
	}
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	n := calib.ProjectTracks(m, r.cfg.Calib.MaxReprojectionError, r.res.Tracks)
	if err := r.store.SaveCalibration(ctx, r.in.VideoID, m); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	for _, tr := range r.res.Tracks {
		id, ok := r.storeIDs[tr.ID]
		if !ok {
			continue
		}
		if err := r.store.UpdateMeterPositions(ctx, id, tr.Points); err != nil {
			return fmt.Errorf("update pitch positions of track %d: %w", tr.ID, err)
		}
	}
	r.res.Calibration = m
	diagf("[Pipeline] %s: calibrated (error %.3f m, %d inliers), %d points projected",
		r.in.VideoID, m.ReprojectionError, m.Inliers, n)
	return nil
}

// classify clusters outfield jersey colours into teams and labels every
// confirmed track. Referees are labelled from their detector class and
// goalkeepers, whose kits differ from their team-mates', are assigned
// against the fitted centroids. Ambiguity leaves tracks unknown.
func (r *run) classify(ctx context.Context) error {
	set := &teams.SampleSet{}
	keepers := make(map[int64][]teams.Descriptor)
	for _, tr := range r.res.Tracks {
		for _, p := range tr.Points {
			if p.Jersey == nil {
				continue
			}
			d := teams.Descriptor{H: p.Jersey.H, S: p.Jersey.S, V: p.Jersey.V}
			switch tr.Class {
			case detect.ClassPlayer:
				set.Add(tr.ID, p.FrameNumber, d)
			case detect.ClassGoalkeeper:
				keepers[tr.ID] = append(keepers[tr.ID], d)
			case detect.ClassReferee, detect.ClassBall:
			}
		}
	}

	clf := teams.NewClassifier(r.cfg.Teams)
	res, err := clf.Fit(set.ByTrack())
	switch {
	case errors.Is(err, teams.ErrClassificationAmbiguity):
		opsf("[Pipeline] %s: team classification ambiguous: %v", r.in.VideoID, err)
		r.res.TeamsErr = err
	case err != nil:
		opsf("[Pipeline] %s: team classification failed: %v", r.in.VideoID, err)
		r.res.TeamsErr = err
		res = nil
	}

	var late *teams.Result
	if res != nil && r.cfg.ReclassifyFrame > 0 {
		late, err = clf.ReclassifyFrom(set, r.cfg.ReclassifyFrame)
		if err != nil && !errors.Is(err, teams.ErrClassificationAmbiguity) {
			opsf("[Pipeline] %s: reclassification from frame %d failed: %v", r.in.VideoID, r.cfg.ReclassifyFrame, err)
			late = nil
		}
	}
	r.res.Teams = res
	r.res.Reclassified = late

	for _, tr := range r.res.Tracks {
		side := tracks.TeamUnknown
		switch tr.Class {
		case detect.ClassReferee:
			side = tracks.TeamReferee
		case detect.ClassPlayer:
			if res != nil {
				side = res.Side(tr.ID)
			}
			if late != nil && tr.FirstFrame > r.cfg.ReclassifyFrame {
				side = late.Side(tr.ID)
			}
		case detect.ClassGoalkeeper:
			if med, ok := teams.Median(keepers[tr.ID]); ok && res != nil {
				side = res.Assign(med)
			}
		case detect.ClassBall:
		}
		if side == tracks.TeamUnknown {
			continue
		}
		if err := r.tracker.SetTeam(tr.ID, side, true); err != nil {
			opsf("[Pipeline] %s: failed to label track %d %s: %v", r.in.VideoID, tr.ID, side, err)
			continue
		}
		if id, ok := r.storeIDs[tr.ID]; ok {
			if err := r.store.SetTeamSide(ctx, id, side); err != nil {
				return fmt.Errorf("store team of track %d: %w", tr.ID, err)
			}
		}
	}
	return nil
}

// analysis is the calibrated input shared by the analytics engines, keyed
// by store track id.
type analysis struct {
	players map[int64][]tracks.Sample
	sides   map[int64]tracks.TeamSide
	keepers map[int64]bool
	ball    []tracks.Sample
	ids     []int64 // players keys, sorted
}

func (r *run) analysisInput() analysis {
	a := analysis{
		players: make(map[int64][]tracks.Sample),
		sides:   make(map[int64]tracks.TeamSide),
		keepers: make(map[int64]bool),
	}
	for _, tr := range r.res.Tracks {
		id, ok := r.storeIDs[tr.ID]
		if !ok {
			continue
		}
		samples := tracks.MeterSamples(tr.Points)
		if len(samples) == 0 {
			continue
		}
		if tr.Class == detect.ClassBall {
			a.ball = append(a.ball, samples...)
			continue
		}
		a.players[id] = samples
		a.sides[id] = tr.Team
		a.keepers[id] = tr.Class == detect.ClassGoalkeeper
	}
	a.ball = mergeBall(a.ball)
	a.ids = slices.Sorted(maps.Keys(a.players))
	return a
}

// mergeBall orders ball samples from every ball track by frame, keeping the
// first sample of a frame seen by more than one track.
func mergeBall(samples []tracks.Sample) []tracks.Sample {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Frame < samples[j].Frame })
	out := samples[:0]
	for i, s := range samples {
		if i > 0 && s.Frame == samples[i-1].Frame {
			continue
		}
		out = append(out, s)
	}
	return out
}

func playing(side tracks.TeamSide) bool {
	return side == tracks.TeamHome || side == tracks.TeamAway
}

// analyse runs the analytics engines in parallel over the calibrated
// trajectories and persists their results.
func (r *run) analyse(ctx context.Context) error {
	a := r.analysisInput()
	diagf("[Pipeline] %s: analysing %d people and %d ball samples", r.in.VideoID, len(a.players), len(a.ball))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.physicalMetrics(gctx, a) })
	g.Go(func() error { r.heatmaps(a); return nil })
	g.Go(func() error { r.tactics(a); return nil })
	g.Go(func() error {
		r.res.Events = r.detector.Detect(a.ball, a.players, a.sides)
		r.res.XT = events.Summarise(r.res.Events)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	metrics := make([]physical.PlayerMetric, 0, len(r.res.Players))
	for _, id := range a.ids {
		metrics = append(metrics, r.res.Players[id])
	}
	if err := r.store.SavePlayerMetrics(ctx, r.in.VideoID, metrics); err != nil {
		return fmt.Errorf("save player metrics: %w", err)
	}
	if err := r.store.SaveEvents(ctx, r.in.VideoID, r.res.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	return nil
}

func (r *run) physicalMetrics(ctx context.Context, a analysis) error {
	pm, err := r.phys.ComputeAll(ctx, a.players)
	if err != nil {
		return fmt.Errorf("physical metrics: %w", err)
	}
	bySide := make(map[tracks.TeamSide][]physical.PlayerMetric)
	for _, id := range a.ids {
		m := pm[id]
		m.Team = a.sides[id]
		pm[id] = m
		if playing(m.Team) {
			bySide[m.Team] = append(bySide[m.Team], m)
		}
	}
	teamMetrics := make(map[tracks.TeamSide]physical.TeamMetric, len(bySide))
	for side, list := range bySide {
		teamMetrics[side] = physical.TeamMetrics(list)
	}
	r.res.Players = pm
	r.res.TeamMetrics = teamMetrics
	return nil
}

func (r *run) heatmaps(a analysis) {
	zones := heatmap.StandardZones(r.cfg.PitchLength, r.cfg.PitchWidth)
	perPlayer := make(map[int64]*heatmap.Heatmap, len(a.ids))
	occupancy := make(map[int64][]float64, len(a.ids))
	teamGrids := make(map[tracks.TeamSide][]*heatmap.Heatmap)
	teamSamples := make(map[tracks.TeamSide][]tracks.Sample)
	for _, id := range a.ids {
		h := r.heat.Build(a.players[id])
		perPlayer[id] = h
		occupancy[id] = heatmap.ZoneOccupancy(a.players[id], zones)
		if side := a.sides[id]; playing(side) {
			teamGrids[side] = append(teamGrids[side], h)
			teamSamples[side] = append(teamSamples[side], a.players[id]...)
		}
	}

	teamMaps := make(map[tracks.TeamSide]*heatmap.Heatmap, len(teamGrids))
	windows := make(map[tracks.TeamSide][]heatmap.Window, len(teamGrids))
	for side, grids := range teamGrids {
		h, err := r.heat.Team(grids, r.cfg.Aggregation)
		if err != nil {
			opsf("[Pipeline] %s: %s team heatmap: %v", r.in.VideoID, side, err)
			continue
		}
		teamMaps[side] = h
		if r.cfg.HeatmapWindowS > 0 {
			windows[side] = r.heat.Windows(teamSamples[side], r.cfg.HeatmapWindowS)
		}
	}
	r.res.Heatmaps = perPlayer
	r.res.Zones = occupancy
	r.res.TeamHeatmaps = teamMaps
	r.res.TeamWindows = windows
}

// tactics groups each team's calibrated positions by frame and builds the
// windowed snapshot series. The ball stands in for the carrier the
// defending side presses.
func (r *run) tactics(a analysis) {
	ballAt := make(map[int]geom.Point, len(a.ball))
	for _, s := range a.ball {
		ballAt[s.Frame] = s.Point()
	}

	frames := make(map[tracks.TeamSide]map[int]*tactical.Frame)
	for _, id := range a.ids {
		side := a.sides[id]
		if !playing(side) {
			continue
		}
		if frames[side] == nil {
			frames[side] = make(map[int]*tactical.Frame)
		}
		for _, s := range a.players[id] {
			f, ok := frames[side][s.Frame]
			if !ok {
				f = &tactical.Frame{T: s.T}
				if b, ok := ballAt[s.Frame]; ok {
					f.Carrier = &b
				}
				frames[side][s.Frame] = f
			}
			f.Players = append(f.Players, tactical.Player{TrackID: id, Pos: s.Point(), Goalkeeper: a.keepers[id]})
		}
	}

	series := make(map[tracks.TeamSide][]*tactical.Snapshot, len(frames))
	transitions := make(map[tracks.TeamSide][]tactical.Transition, len(frames))
	for side, byFrame := range frames {
		ordered := make([]tactical.Frame, 0, len(byFrame))
		for _, fn := range slices.Sorted(maps.Keys(byFrame)) {
			ordered = append(ordered, *byFrame[fn])
		}
		dir := r.cfg.direction(side)
		snaps := r.tact.Series(side, ordered, r.cfg.TacticalWindowS, dir)
		series[side] = snaps
		transitions[side] = r.tact.Transitions(snaps, dir)
	}
	r.res.Tactical = series
	r.res.Transitions = transitions
}

// noteQuality records the conditions a reader of the result should know
// about before trusting it.
func (r *run) noteQuality() {
	note := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		r.res.QualityNotes = append(r.res.QualityNotes, msg)
		opsf("[Pipeline] %s: %s", r.in.VideoID, msg)
	}
	st := r.res.Stats
	if ratio := st.FragmentationRatio(); ratio > r.cfg.MaxFragmentation {
		note("track fragmentation %.2f above %.2f (%d confirmed, %d lost for good)",
			ratio, r.cfg.MaxFragmentation, st.Confirmed, st.Deleted-st.DeletedUnconfirmed)
	}
	if st.DetectionGaps > 0 {
		note("%d detection gaps", st.DetectionGaps)
	}
	if st.SkippedFrames > 0 {
		note("%d out-of-order frames ignored", st.SkippedFrames)
	}
	if r.res.CalibrationErr != nil {
		note("calibration unavailable, trajectories are pixel-only and pitch analytics were skipped: %v", r.res.CalibrationErr)
	}
	if r.res.TeamsErr != nil {
		note("team classification degraded: %v", r.res.TeamsErr)
	}
	unknown := 0
	for _, tr := range r.res.Tracks {
		if tr.Class == detect.ClassPlayer && tr.Team == tracks.TeamUnknown {
			unknown++
		}
	}
	if unknown > 0 {
		note("%d player tracks without a team", unknown)
	}
}
