// Package version carries build metadata stamped in by the linker, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/pitch.report/internal/version.GitSHA=$(git rev-parse --short HEAD)" ./cmd/pitchtrack
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the metadata for -version output.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
