// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for `pcdfuse version`.
func String() string {
	return fmt.Sprintf("pcdfuse %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
