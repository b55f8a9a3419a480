// Package storage defines the trajectory store contract the match pipeline
// persists through. The reference implementation lives in storage/sqlite.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/events"
	"github.com/banshee-data/pitch.report/internal/match/physical"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Video status values.
const (
	VideoRunning  = "running"
	VideoComplete = "complete"
	VideoFailed   = "failed"
)

// Video is one processed match recording.
type Video struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Status  string    `json:"status"`
	Frames  int       `json:"frames"`
	Created time.Time `json:"created"`
}

// Checkpoint is the resumable state of a video run. StoreIDs maps tracker
// ids to the ids the store assigned when each track was created.
type Checkpoint struct {
	VideoID  string          `json:"video_id"`
	Frame    int             `json:"frame"`
	Tracker  tracks.State    `json:"tracker"`
	StoreIDs map[int64]int64 `json:"store_ids"`
	SavedAt  time.Time       `json:"saved_at"`
}

// TrajectoryStore persists tracks and the analytics derived from them.
// Implementations must be safe for concurrent use.
type TrajectoryStore interface {
	// EnsureVideo registers videoID, leaving an existing row untouched.
	EnsureVideo(ctx context.Context, videoID, source string) error
	// FinishVideo records the final status and processed frame count.
	FinishVideo(ctx context.Context, videoID, status string, frames int) error
	GetVideo(ctx context.Context, videoID string) (*Video, error)

	// CreateTrack registers a track and returns its store id.
	CreateTrack(ctx context.Context, videoID string, class detect.ObjectClass) (int64, error)
	// AppendPoint adds one observation; re-appending a frame replaces it.
	AppendPoint(ctx context.Context, trackID int64, p tracks.TrackPoint) error
	// UpdateMeterPositions rewrites the pitch positions of stored points
	// after calibration.
	UpdateMeterPositions(ctx context.Context, trackID int64, points []tracks.TrackPoint) error
	SetTeamSide(ctx context.Context, trackID int64, side tracks.TeamSide) error
	// PruneTracks rolls the video back to a checkpoint: tracks not listed
	// in keep are deleted, and kept tracks lose their points after
	// afterFrame. It returns how many tracks were removed.
	PruneTracks(ctx context.Context, videoID string, keep []int64, afterFrame int) (int, error)
	// LoadTrackPoints returns every stored point of the video keyed by
	// store track id, in frame order.
	LoadTrackPoints(ctx context.Context, videoID string) (map[int64][]tracks.TrackPoint, error)

	SaveCalibration(ctx context.Context, videoID string, m *calib.Matrix) error
	LoadCalibration(ctx context.Context, videoID string) (*calib.Matrix, error)

	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	// LoadCheckpoint returns ErrNotFound when the video has none.
	LoadCheckpoint(ctx context.Context, videoID string) (*Checkpoint, error)

	// SaveEvents replaces the video's events.
	SaveEvents(ctx context.Context, videoID string, evs []events.Event) error
	LoadEvents(ctx context.Context, videoID string) ([]events.Event, error)
	SavePlayerMetrics(ctx context.Context, videoID string, metrics []physical.PlayerMetric) error
	LoadPlayerMetrics(ctx context.Context, videoID string) ([]physical.PlayerMetric, error)
}
