package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version number
	Version = "0.1.0"

	// GitCommit is the git commit hash (injected at build time)
	GitCommit = "unknown"

	// BuildDate is the build date (injected at build time)
	BuildDate = "unknown"
)

// GetVersionString returns a short version string
func GetVersionString() string {
	return fmt.Sprintf("teamail v%s", Version)
}

// GetDetailedVersionString returns version plus build metadata
func GetDetailedVersionString() string {
	return fmt.Sprintf("teamail v%s (commit %s, built %s, %s, %s/%s)",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
