// Package physical derives per-player physical load metrics from calibrated
// trajectories: distance, speed, high-intensity running, sprints,
// acceleration and a stamina index.
//
// Positions are smoothed per segment before differencing. Steps faster than
// the configured speed ceiling, and accelerations above the acceleration
// ceiling, are treated as tracking noise: they are excluded from every
// aggregate and counted in PlayerMetric.AnomaliesExcluded.
package physical
