package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/pitch.report/internal/db"
	"github.com/banshee-data/pitch.report/internal/geom"
	"github.com/banshee-data/pitch.report/internal/match/calib"
	"github.com/banshee-data/pitch.report/internal/match/detect"
	"github.com/banshee-data/pitch.report/internal/match/events"
	"github.com/banshee-data/pitch.report/internal/match/physical"
	"github.com/banshee-data/pitch.report/internal/match/storage"
	"github.com/banshee-data/pitch.report/internal/match/tracks"
)

// Store is the SQLite trajectory store.
type Store struct {
	db *db.DB
}

var _ storage.TrajectoryStore = (*Store)(nil)

// NewStore wraps a migrated database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// EnsureVideo registers videoID if it is not already known.
func (s *Store) EnsureVideo(ctx context.Context, videoID, source string) error {
	if videoID == "" {
		return fmt.Errorf("videoID is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (video_id, source) VALUES (?, ?) ON CONFLICT(video_id) DO NOTHING`,
		videoID, source)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// FinishVideo records the final status of a run.
func (s *Store) FinishVideo(ctx context.Context, videoID, status string, frames int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, frames = ?, updated_unix = UNIXEPOCH('subsec') WHERE video_id = ?`,
		status, frames, videoID)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return requireRow(res, "video", videoID)
}

// GetVideo returns the video row.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*storage.Video, error) {
	var (
		v       storage.Video
		created float64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT video_id, source, status, frames, created_unix FROM videos WHERE video_id = ?`,
		videoID).Scan(&v.ID, &v.Source, &v.Status, &v.Frames, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", videoID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query video: %w", err)
	}
	v.Created = unixTime(created)
	return &v, nil
}

// CreateTrack inserts a track row and returns its id.
func (s *Store) CreateTrack(ctx context.Context, videoID string, class detect.ObjectClass) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (video_id, class) VALUES (?, ?)`, videoID, string(class))
	if err != nil {
		return 0, fmt.Errorf("insert track: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get track insert ID: %w", err)
	}
	return id, nil
}

// AppendPoint inserts or replaces the point of trackID at p.FrameNumber.
func (s *Store) AppendPoint(ctx context.Context, trackID int64, p tracks.TrackPoint) error {
	mx, my := nullPoint(p.MeterXY)
	jh, js, jv := nullHSV(p.Jersey)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO track_points (
			track_id, frame_number, timestamp,
			bbox_x1, bbox_y1, bbox_x2, bbox_y2,
			pixel_x, pixel_y, meter_x, meter_y, confidence,
			jersey_h, jersey_s, jersey_v
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trackID, p.FrameNumber, p.Timestamp,
		p.BBox.X1, p.BBox.Y1, p.BBox.X2, p.BBox.Y2,
		p.PixelXY.X, p.PixelXY.Y, mx, my, p.Confidence,
		jh, js, jv,
	)
	if err != nil {
		return fmt.Errorf("insert track point: %w", err)
	}
	return nil
}

// UpdateMeterPositions rewrites meter_x/meter_y for the given frames of
// trackID in one transaction.
func (s *Store) UpdateMeterPositions(ctx context.Context, trackID int64, points []tracks.TrackPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update positions tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE track_points SET meter_x = ?, meter_y = ? WHERE track_id = ? AND frame_number = ?`)
	if err != nil {
		return fmt.Errorf("prepare update positions: %w", err)
	}
	defer stmt.Close()
	for _, p := range points {
		mx, my := nullPoint(p.MeterXY)
		if _, err := stmt.ExecContext(ctx, mx, my, trackID, p.FrameNumber); err != nil {
			return fmt.Errorf("update position frame %d: %w", p.FrameNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update positions tx: %w", err)
	}
	return nil
}

// SetTeamSide stores the team label of a track.
func (s *Store) SetTeamSide(ctx context.Context, trackID int64, side tracks.TeamSide) error {
	if _, err := tracks.ParseTeamSide(string(side)); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tracks SET team = ? WHERE track_id = ?`, string(side), trackID)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	return requireRow(res, "track", trackID)
}

// PruneTracks deletes the video's tracks whose id is not in keep, with
// their points, and the points of kept tracks after afterFrame. It returns
// the number of tracks removed.
func (s *Store) PruneTracks(ctx context.Context, videoID string, keep []int64, afterFrame int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT track_id FROM tracks WHERE video_id = ?`, videoID)
	if err != nil {
		return 0, fmt.Errorf("query tracks: %w", err)
	}
	kept := make(map[int64]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan track id: %w", err)
		}
		if !kept[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close track rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate tracks: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE track_id = ?`, id); err != nil {
			return 0, fmt.Errorf("delete track %d: %w", id, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM track_points
		WHERE frame_number > ?
			AND track_id IN (SELECT track_id FROM tracks WHERE video_id = ?)`,
		afterFrame, videoID)
	if err != nil {
		return 0, fmt.Errorf("delete points after frame %d: %w", afterFrame, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune tx: %w", err)
	}
	return len(stale), nil
}

// LoadTrackPoints returns the video's points grouped by track id.
func (s *Store) LoadTrackPoints(ctx context.Context, videoID string) (map[int64][]tracks.TrackPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.track_id, p.frame_number, p.timestamp,
			p.bbox_x1, p.bbox_y1, p.bbox_x2, p.bbox_y2,
			p.pixel_x, p.pixel_y, p.meter_x, p.meter_y, p.confidence,
			p.jersey_h, p.jersey_s, p.jersey_v
		FROM track_points p
		JOIN tracks t ON p.track_id = t.track_id
		WHERE t.video_id = ?
		ORDER BY p.track_id, p.frame_number`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query track points: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]tracks.TrackPoint)
	for rows.Next() {
		var (
			p          tracks.TrackPoint
			mx, my     sql.NullFloat64
			jh, js, jv sql.NullFloat64
		)
		if err := rows.Scan(
			&p.TrackID, &p.FrameNumber, &p.Timestamp,
			&p.BBox.X1, &p.BBox.Y1, &p.BBox.X2, &p.BBox.Y2,
			&p.PixelXY.X, &p.PixelXY.Y, &mx, &my, &p.Confidence,
			&jh, &js, &jv,
		); err != nil {
			return nil, fmt.Errorf("scan track point: %w", err)
		}
		if mx.Valid && my.Valid {
			m := geom.Pt(mx.Float64, my.Float64)
			p.MeterXY = &m
		}
		if jh.Valid && js.Valid && jv.Valid {
			p.Jersey = &detect.HSV{H: jh.Float64, S: js.Float64, V: jv.Float64}
		}
		out[p.TrackID] = append(out[p.TrackID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate track points: %w", err)
	}
	return out, nil
}

// SaveCalibration stores the video's homography, replacing any previous one.
func (s *Store) SaveCalibration(ctx context.Context, videoID string, m *calib.Matrix) error {
	if m == nil {
		return fmt.Errorf("nil calibration matrix")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calibrations (video_id, matrix_json, reprojection_error, inliers)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			matrix_json = excluded.matrix_json,
			reprojection_error = excluded.reprojection_error,
			inliers = excluded.inliers,
			created_unix = UNIXEPOCH('subsec')`,
		videoID, string(payload), m.ReprojectionError, m.Inliers)
	if err != nil {
		return fmt.Errorf("insert calibration: %w", err)
	}
	return nil
}

// LoadCalibration returns the stored homography or ErrNotFound.
func (s *Store) LoadCalibration(ctx context.Context, videoID string) (*calib.Matrix, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT matrix_json FROM calibrations WHERE video_id = ?`, videoID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calibration for %s: %w", videoID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query calibration: %w", err)
	}
	var m calib.Matrix
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("decode calibration: %w", err)
	}
	return &m, nil
}

// SaveCheckpoint replaces the video's checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, cp storage.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	saved := cp.SavedAt
	if saved.IsZero() {
		saved = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (video_id, frame_number, state_json, saved_unix)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			frame_number = excluded.frame_number,
			state_json = excluded.state_json,
			saved_unix = excluded.saved_unix`,
		cp.VideoID, cp.Frame, string(payload), float64(saved.UnixNano())/1e9)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the latest checkpoint or ErrNotFound.
func (s *Store) LoadCheckpoint(ctx context.Context, videoID string) (*storage.Checkpoint, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM checkpoints WHERE video_id = ?`, videoID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint for %s: %w", videoID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	var cp storage.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// SaveEvents replaces every event of the video in one transaction.
func (s *Store) SaveEvents(ctx context.Context, videoID string, evs []events.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save events tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			event_id, video_id, event_type, track_id, team,
			start_frame, end_frame, timestamp, xt_gain, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert event: %w", err)
	}
	defer stmt.Close()
	for _, ev := range evs {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, videoID, string(ev.Type), ev.TrackID, string(ev.Team),
			ev.StartFrame, ev.EndFrame, ev.Timestamp, ev.XTGain, string(payload),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save events tx: %w", err)
	}
	return nil
}

// LoadEvents returns the video's events ordered by start frame.
func (s *Store) LoadEvents(ctx context.Context, videoID string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM events WHERE video_id = ? ORDER BY start_frame, event_id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		var ev events.Event
		if err := scanJSON(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SavePlayerMetrics upserts one row per player.
func (s *Store) SavePlayerMetrics(ctx context.Context, videoID string, metrics []physical.PlayerMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save metrics tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO player_metrics (
			video_id, track_id, team, total_distance_m, top_speed_mps, sprint_count, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, track_id) DO UPDATE SET
			team = excluded.team,
			total_distance_m = excluded.total_distance_m,
			top_speed_mps = excluded.top_speed_mps,
			sprint_count = excluded.sprint_count,
			payload_json = excluded.payload_json`)
	if err != nil {
		return fmt.Errorf("prepare insert metric: %w", err)
	}
	defer stmt.Close()
	for _, m := range metrics {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal metric for track %d: %w", m.TrackID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			videoID, m.TrackID, string(m.Team), m.TotalDistanceM, m.TopSpeedMps, m.SprintCount, string(payload),
		); err != nil {
			return fmt.Errorf("insert metric for track %d: %w", m.TrackID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save metrics tx: %w", err)
	}
	return nil
}

// LoadPlayerMetrics returns the video's metrics ordered by track id.
func (s *Store) LoadPlayerMetrics(ctx context.Context, videoID string) ([]physical.PlayerMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM player_metrics WHERE video_id = ? ORDER BY track_id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()
	var out []physical.PlayerMetric
	for rows.Next() {
		var m physical.PlayerMetric
		if err := scanJSON(rows, &m); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanJSON(rows *sql.Rows, v any) error {
	var payload string
	if err := rows.Scan(&payload); err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), v)
}

func requireRow[K any](res sql.Result, what string, key K) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, key, storage.ErrNotFound)
	}
	return nil
}

func nullPoint(p *geom.Point) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.X, Valid: true}, sql.NullFloat64{Float64: p.Y, Valid: true}
}

func nullHSV(c *detect.HSV) (h, s, v sql.NullFloat64) {
	if c == nil {
		return
	}
	return sql.NullFloat64{Float64: c.H, Valid: true},
		sql.NullFloat64{Float64: c.S, Valid: true},
		sql.NullFloat64{Float64: c.V, Valid: true}
}

func unixTime(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9))
}
