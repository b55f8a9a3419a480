// Package tracks owns the tracking layer of the match data model.
//
// Responsibilities: IoU-based detection-to-track association with
// Hungarian assignment, the track lifecycle (tentative, confirmed, lost,
// deleted), per-track point history in image pixels, and the team-side
// invariant on confirmed tracks.
// Key types: Tracker, Track, TrackPoint.
//
// Dependency rule: tracks may depend on detect and geom, but never on the
// calibration or analytics packages. No SQL/database code is allowed in
// this package.
package tracks
