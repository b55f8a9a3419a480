package detect

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrCorruptStream marks a detection stream that cannot be decoded. It is
// fatal for the video being processed.
var ErrCorruptStream = errors.New("corrupt detection stream")

// Source yields frames in increasing frame order. Next returns io.EOF once
// the stream is exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// maxLineBytes bounds a single JSONL record; a 4K frame with a few hundred
// detections is well under this.
const maxLineBytes = 4 << 20

type jsonlDetection struct {
	BBox       *BBox   `json:"bbox"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
	Jersey     *HSV    `json:"jersey"`
}

type jsonlFrame struct {
	FrameNumber *int             `json:"frame_number"`
	Timestamp   float64          `json:"timestamp"`
	Detections  []jsonlDetection `json:"detections"`
}

// JSONLSource reads one JSON frame per line:
//
//	{"frame_number":12,"timestamp":0.48,"detections":[{"bbox":{"x1":..},"confidence":0.9,"class":"person"}]}
//
// Blank lines are skipped. Detections with an unrecognised class are dropped
// and logged; structural decode errors abort with ErrCorruptStream.
type JSONLSource struct {
	sc        *bufio.Scanner
	line      int
	lastFrame int
	started   bool

	// Dropped counts detections discarded for unknown class or invalid box.
	Dropped int
}

// NewJSONLSource wraps r. The caller retains ownership of r.
func NewJSONLSource(r io.Reader) *JSONLSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &JSONLSource{sc: sc}
}

// Next implements Source.
func (s *JSONLSource) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return Frame{}, fmt.Errorf("%w: line %d: %v", ErrCorruptStream, s.line+1, err)
			}
			return Frame{}, io.EOF
		}
		s.line++
		raw := strings.TrimSpace(s.sc.Text())
		if raw == "" {
			continue
		}

		var jf jsonlFrame
		if err := json.Unmarshal([]byte(raw), &jf); err != nil {
			return Frame{}, fmt.Errorf("%w: line %d: %v", ErrCorruptStream, s.line, err)
		}
		if jf.FrameNumber == nil {
			return Frame{}, fmt.Errorf("%w: line %d: missing frame_number", ErrCorruptStream, s.line)
		}
		fn := *jf.FrameNumber
		if s.started && fn <= s.lastFrame {
			return Frame{}, fmt.Errorf("%w: line %d: frame %d not after %d", ErrCorruptStream, s.line, fn, s.lastFrame)
		}
		s.started = true
		s.lastFrame = fn

		frame := Frame{FrameNumber: fn, Timestamp: jf.Timestamp}
		for _, d := range jf.Detections {
			if d.BBox == nil || !d.BBox.Valid() {
				s.Dropped++
				diagf("frame %d: dropping detection with invalid bbox", fn)
				continue
			}
			class, err := ParseObjectClass(d.Class)
			if err != nil {
				s.Dropped++
				diagf("frame %d: %v", fn, err)
				continue
			}
			frame.Detections = append(frame.Detections, Detection{
				FrameNumber: fn,
				BBox:        *d.BBox,
				Confidence:  d.Confidence,
				Class:       class,
				Jersey:      d.Jersey,
			})
		}
		tracef("frame %d t=%.3f detections=%d", fn, frame.Timestamp, len(frame.Detections))
		return frame, nil
	}
}

// SliceSource replays an in-memory list of frames.
type SliceSource struct {
	frames []Frame
	pos    int
}

// NewSliceSource returns a Source over frames. The slice is not copied.
func NewSliceSource(frames []Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}
