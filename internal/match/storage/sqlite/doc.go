// Package sqlite implements storage.TrajectoryStore on the SQLite schema
// managed by internal/db.
//
// Analytics rows keep a few queryable columns beside a JSON payload holding
// the full value, so the live SQL console can filter on them without the
// schema tracking every metric field.
package sqlite
