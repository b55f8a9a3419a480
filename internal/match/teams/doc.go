// Package teams assigns confirmed person tracks to home, away or referee
// from jersey colour.
//
// Each track contributes HSV descriptors sampled from its torso (see the
// jersey package). The per-track medians are clustered with a seeded
// k-means++ so the same samples and seed always give the same labels.
// Tracks that are thin, inconsistent or equidistant between clusters are
// labelled unknown rather than guessed.
package teams
