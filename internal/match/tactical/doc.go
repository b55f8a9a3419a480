// Package tactical summarises a team's shape at an instant: centroid,
// spread, compactness, three positional lines and the formation they
// imply, defensive block height, and pressing on the ball carrier.
//
// Along-pitch coordinates are oriented by attack direction, so 0 is always
// the team's own goal line.
package tactical
