// Package pipeline runs one video's detections through tracking,
// calibration, team classification and the analytics engines, persisting
// trajectories and results through a storage.TrajectoryStore.
//
// Tracking is sequential and checkpointed. Calibration and team
// classification run concurrently once tracking finishes, then the physical,
// heatmap, tactical and event engines run in parallel over the calibrated
// trajectories. Batch processes independent videos side by side.
package pipeline
