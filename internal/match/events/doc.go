// Package events detects passes, carries and shots from the ball and
// player trajectories and values each one with a static expected-threat
// (xT) grid.
//
// Possession is the nearest home or away player within a radius of the
// ball. Spells of possession become carries; the ball's flight between
// spells becomes a pass or a shot.
package events
