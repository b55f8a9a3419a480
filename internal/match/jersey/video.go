package jersey

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/teams"
)

// VideoSampler reads a video file forward and samples torsos on request.
// Frames must be requested in increasing order; the capture never seeks
// backwards.
type VideoSampler struct {
	cap   *gocv.VideoCapture
	frame gocv.Mat
	pos   int // frame number held in frame, -1 before the first read
}

// OpenVideo opens path for sampling.
func OpenVideo(path string) (*VideoSampler, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &VideoSampler{cap: vc, frame: gocv.NewMat(), pos: -1}, nil
}

// SampleFrame advances to frameNumber and samples every box on it.
// Boxes whose torso cannot be sampled are absent from the result.
func (s *VideoSampler) SampleFrame(ctx context.Context, frameNumber int, boxes map[int64]detect.BBox) (map[int64]teams.Descriptor, error) {
	if frameNumber < s.pos {
		return nil, fmt.Errorf("frame %d requested after %d", frameNumber, s.pos)
	}
	for s.pos < frameNumber {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
			return nil, fmt.Errorf("video ended before frame %d", frameNumber)
		}
		s.pos++
	}

	out := make(map[int64]teams.Descriptor, len(boxes))
	for id, box := range boxes {
		if d, ok := SampleTorso(s.frame, box); ok {
			out[id] = d
		}
	}
	return out, nil
}

// Close releases the capture.
func (s *VideoSampler) Close() error {
	s.frame.Close()
	return s.cap.Close()
}
