// Package heatmap bins calibrated positions into a pitch grid, smooths the
// grid with a Gaussian kernel and normalises it for display.
//
// The raw grid is kept alongside the normalised one: its cells are
// non-negative and sum to the total sample weight, so team maps can be
// aggregated from player maps without re-reading trajectories.
package heatmap
