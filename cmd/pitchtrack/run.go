package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/banshee-data/pitch.report/internal/config"
	"github.com/banshee-data/pitch.report/internal/fsutil"
	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/jersey"
	"github.com/banshee-data/pitch.report/internal/match/pipeline"
	"github.com/banshee-data/pitch.report/internal/match/storage"
	"github.com/banshee-data/pitch.report/internal/security"
	"github.com/banshee-data/pitch.report/internal/timeutil"
	"github.com/banshee-data/pitch.report/internal/units"
)

// options is the validated form of the command line.
type options struct {
	dbPath     string
	configPath string
	calibPath  string
	videoPath  string
	videoID    string
	detections []string
	resume     bool
	parallel   int
	homeLeft   bool
	reclassify int
	units      string
	reportPath string
}

func optionsFromFlags(args []string) (options, error) {
	opts := options{
		dbPath:     *dbPath,
		configPath: *configFile,
		calibPath:  *calibFile,
		videoPath:  *videoFile,
		videoID:    *videoID,
		detections: args,
		resume:     *resume,
		parallel:   *parallel,
		homeLeft:   *homeLeft,
		reclassify: *reclassify,
		units:      *speedUnits,
		reportPath: *reportPath,
	}
	return opts, opts.validate()
}

func (o options) validate() error {
	if len(o.detections) == 0 {
		return errors.New("at least one detections file is required")
	}
	if len(o.detections) > 1 && (o.videoPath != "" || o.videoID != "") {
		return errors.New("-video and -video-id apply to a single detections file")
	}
	if !units.IsValid(o.units) {
		return fmt.Errorf("invalid units %q, valid options: %s", o.units, units.GetValidUnitsString())
	}
	if o.parallel < 0 {
		return fmt.Errorf("-parallel must be non-negative, got %d", o.parallel)
	}
	if o.reclassify < 0 {
		return fmt.Errorf("-reclassify-frame must be non-negative, got %d", o.reclassify)
	}
	if o.reportPath != "" {
		if err := security.ValidateReportPath(o.reportPath); err != nil {
			return fmt.Errorf("invalid -report path: %w", err)
		}
	}
	return nil
}

// defaultVideoID derives a stable id from the detections file name so that
// a rerun with -resume finds the same video.
func defaultVideoID(path string) string {
	base := filepath.Base(path)
	return security.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
}

// openSampler is replaced in tests, which have no video decoder.
var openSampler = func(path string) (pipeline.JerseySampler, io.Closer, error) {
	s, err := jersey.OpenVideo(path)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

// run processes every detections file of opts into store, prints a summary
// per video to out and writes the optional JSON report. It returns an error
// when any video failed.
func run(ctx context.Context, opts options, store storage.TrajectoryStore, board *statusBoard, fsys fsutil.FileSystem, out io.Writer) error {
	tuning := config.DefaultTuningConfig()
	if opts.configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(opts.configPath); err != nil {
			return err
		}
	}
	// A calibration file's pitch size overrides the tuning for every component.
	var corr []calib.Correspondence
	if opts.calibPath != "" {
		in, err := readCalibration(fsys, opts.calibPath, tuning.GetPitchLength(), tuning.GetPitchWidth())
		if err != nil {
			return err
		}
		corr = in.Correspondences
		tuning.PitchLength, tuning.PitchWidth = &in.PitchLength, &in.PitchWidth
	}
	cfg := pipeline.ConfigFromTuning(tuning)
	cfg.HomeAttacksRight = !opts.homeLeft
	cfg.ReclassifyFrame = opts.reclassify

	inputs := make([]pipeline.Input, 0, len(opts.detections))
	seen := make(map[string]string, len(opts.detections))
	for _, path := range opts.detections {
		id := defaultVideoID(path)
		if opts.videoID != "" {
			id = opts.videoID
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%s and %s both map to video id %q", prev, path, id)
		}
		seen[id] = path

		f, err := fsys.Open(path)
		if err != nil {
			return fmt.Errorf("open detections: %w", err)
		}
		defer f.Close()

		board.add(id, path)
		inputs = append(inputs, pipeline.Input{
			VideoID:         id,
			Name:            path,
			Source:          &progressSource{Source: detect.NewJSONLSource(f), board: board, id: id},
			Correspondences: corr,
			Resume:          opts.resume,
		})
	}
	if opts.videoPath != "" {
		s, closer, err := openSampler(opts.videoPath)
		if err != nil {
			return err
		}
		defer closer.Close()
		inputs[0].Sampler = s
	}

	p := pipeline.New(cfg, store, timeutil.RealClock{})
	results := p.Batch(ctx, inputs, opts.parallel)

	var failed int
	for _, br := range results {
		board.finish(br.VideoID, br.Result, br.Err)
		if br.Err != nil {
			failed++
			log.Printf("video %s failed: %v", br.VideoID, br.Err)
			continue
		}
		printSummary(out, br.Result, opts.units)
	}
	if opts.reportPath != "" {
		if err := writeReports(fsys, opts.reportPath, results); err != nil {
			return err
		}
	}

	switch {
	case failed == 0:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("interrupted with %d of %d videos unfinished; rerun with -resume to continue", failed, len(results))
	default:
		return fmt.Errorf("%d of %d videos failed", failed, len(results))
	}
}

func readCalibration(fsys fsutil.FileSystem, path string, length, width float64) (calib.Input, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return calib.Input{}, fmt.Errorf("open calibration: %w", err)
	}
	defer f.Close()
	return calib.ReadInput(f, length, width)
}

// progressSource reports every frame read to the status board.
type progressSource struct {
	detect.Source
	board *statusBoard
	id    string
}

func (s *progressSource) Next(ctx context.Context) (detect.Frame, error) {
	f, err := s.Source.Next(ctx)
	if err == nil {
		s.board.frame(s.id, f.FrameNumber)
	}
	return f, err
}
