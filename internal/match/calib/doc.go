// Package calib maps image pixels onto the pitch plane.
//
// A homography is fitted from pixel↔metre correspondences with a
// normalised DLT (gonum SVD), made robust to bad correspondences with a
// seeded RANSAC. Calibration failure is recoverable: ProjectTracks leaves
// trajectories pixel-only when no valid matrix is available.
package calib
