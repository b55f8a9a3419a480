// Package detect owns the ingest side of the match data model.
//
// Responsibilities: the per-frame detection record produced by an external
// detector (bounding box, confidence, object class), the frame envelope
// that carries a timestamp, and the Source contract through which the
// pipeline pulls frames. A JSON Lines reader is provided for offline runs.
//
// Dependency rule: detect depends on nothing else in internal/match.
// No SQL/database code is allowed in this package.
package detect
