package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/pitch.report/internal/fsutil"
	"github.com/banshee-data/pitch.report/internal/match/events"
	"github.com/banshee-data/pitch.report/internal/match/pipeline"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
	"github.com/banshee-data/pitch.report/internal/security"
	"github.com/banshee-data/pitch.report/internal/units"
)

var sideOrder = []tracks.TeamSide{tracks.TeamHome, tracks.TeamAway, tracks.TeamReferee, tracks.TeamUnknown}

// printSummary writes a human-readable digest of one run. Speeds are shown
// in speedUnits; distances stay in metres.
func printSummary(w io.Writer, res *pipeline.Result, speedUnits string) {
	fmt.Fprintf(w, "Video %s: %d frames in %s", res.VideoID, res.Frames, res.Elapsed.Round(time.Millisecond))
	if res.ResumedFrom >= 0 {
		fmt.Fprintf(w, " (resumed after frame %d)", res.ResumedFrom)
	}
	fmt.Fprintln(w)

	s := res.Stats
	fmt.Fprintf(w, "  tracks: %d created, %d confirmed, %d reacquired, fragmentation %.2f\n",
		s.Created, s.Confirmed, s.Reacquired, s.FragmentationRatio())
	if m := res.Calibration; m != nil {
		fmt.Fprintf(w, "  calibration: %d inliers, reprojection error %.2f m\n", m.Inliers, m.ReprojectionError)
	} else {
		fmt.Fprintln(w, "  calibration: unavailable, pixel-only run")
	}
	fmt.Fprintf(w, "  teams: %s\n", teamCounts(res.Tracks))

	if len(res.Players) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "TRACK\tTEAM\tDIST m\tTOP %s\tAVG %s\tHI m\tSPRINTS\tSTAMINA\t\n", speedUnits, speedUnits)
		for _, id := range slices.Sorted(maps.Keys(res.Players)) {
			pm := res.Players[id]
			fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%d\t%.2f\t\n",
				id, pm.Team, pm.TotalDistanceM,
				units.ConvertSpeed(pm.TopSpeedMps, speedUnits),
				units.ConvertSpeed(pm.AvgSpeedMps, speedUnits),
				pm.HighIntensityDistanceM, pm.SprintCount, pm.StaminaIndex)
		}
		tw.Flush()
	}

	for _, side := range sideOrder[:2] {
		tm, ok := res.TeamMetrics[side]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %s: %d players, %.0f m covered, %d sprints, top speed %.1f %s (track %d)\n",
			side, tm.Players, tm.TotalDistanceM, tm.TotalSprints,
			units.ConvertSpeed(tm.TopSpeedMps, speedUnits), speedUnits, tm.TopSpeedTrackID)
	}

	if len(res.Events) > 0 {
		counts := map[events.EventType]int{}
		for _, ev := range res.Events {
			counts[ev.Type]++
		}
		fmt.Fprintf(w, "  events: %d passes, %d carries, %d shots\n",
			counts[events.EventPass], counts[events.EventCarry], counts[events.EventShot])
		if top := topThreat(res.XT); top != nil {
			fmt.Fprintf(w, "  most threatening: track %d (%s), xT %.3f\n", top.TrackID, top.Team, top.TotalXT)
		}
	}

	for _, note := range res.QualityNotes {
		fmt.Fprintf(w, "  ! %s\n", note)
	}
	fmt.Fprintln(w)
}

func teamCounts(trs []*tracks.Track) string {
	n := map[tracks.TeamSide]int{}
	for _, tr := range trs {
		n[tr.Team]++
	}
	parts := make([]string, 0, len(sideOrder))
	for _, side := range sideOrder {
		if n[side] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", side, n[side]))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func topThreat(xt []events.PlayerXT) *events.PlayerXT {
	if len(xt) == 0 {
		return nil
	}
	best := slices.MaxFunc(xt, func(a, b events.PlayerXT) int {
		if c := cmp.Compare(a.TotalXT, b.TotalXT); c != 0 {
			return c
		}
		return cmp.Compare(b.TrackID, a.TrackID)
	})
	return &best
}

// writeReports writes the JSON result of every successful video. A single
// video goes to path itself unless path is a directory; several videos
// always go to one file each inside path.
func writeReports(fsys fsutil.FileSystem, path string, results []pipeline.BatchResult) error {
	perVideo := len(results) > 1
	if info, err := fsys.Stat(path); err == nil && info.IsDir() {
		perVideo = true
	}
	if perVideo {
		if err := fsys.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	for _, br := range results {
		if br.Result == nil {
			continue
		}
		data, err := json.MarshalIndent(br.Result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report for %s: %w", br.VideoID, err)
		}
		target := path
		if perVideo {
			target = filepath.Join(path, security.SanitizeFilename(br.VideoID)+".json")
		}
		if err := fsys.WriteFile(target, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write report for %s: %w", br.VideoID, err)
		}
	}
	return nil
}
