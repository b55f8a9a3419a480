package monitoring

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/events"
	"github.com/banshee-data/pitch.report/internal/match/heatmap"
	"github.com/banshee-data/pitch.report/internal/match/physical"
	"github.com/banshee-data/pitch.report/internal/match/pipeline"
	"github.com/banshee-data/pitch.report/internal/match/tactical"
	"github.com/banshee-data/pitch.report/internal/match/teams"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// streamSetters lists every package exposing ops/diag/trace streams.
var streamSetters = []func(ops, diag, trace io.Writer){
	detect.SetLogWriters,
	tracks.SetLogWriters,
	calib.SetLogWriters,
	teams.SetLogWriters,
	physical.SetLogWriters,
	heatmap.SetLogWriters,
	tactical.SetLogWriters,
	events.SetLogWriters,
	pipeline.SetLogWriters,
}

// SetAllLogWriters routes the three log streams of every match package.
// Pass nil for any writer to disable that stream everywhere.
func SetAllLogWriters(ops, diag, trace io.Writer) {
	for _, set := range streamSetters {
		set(ops, diag, trace)
	}
}

// LogStreams holds the writers opened for a run.
type LogStreams struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer

	closers []io.Closer
}

// OpenLogStreams sends ops to stderr and opens diag and trace files when
// their paths are non-empty. A path of "-" selects stderr.
func OpenLogStreams(diagPath, tracePath string) (*LogStreams, error) {
	s := &LogStreams{Ops: os.Stderr}
	var err error
	if s.Diag, err = s.open(diagPath); err != nil {
		s.Close()
		return nil, err
	}
	if s.Trace, err = s.open(tracePath); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *LogStreams) open(path string) (io.Writer, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	s.closers = append(s.closers, f)
	return f, nil
}

// Install routes every match package and Logf to these streams.
func (s *LogStreams) Install() {
	SetAllLogWriters(s.Ops, s.Diag, s.Trace)
	SetLogger(loggerTo(s.Ops, "[pitchtrack] "))
}

// Close closes any files opened for the streams.
func (s *LogStreams) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
