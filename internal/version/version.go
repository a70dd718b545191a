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

// String returns the version line printed in the tagtune banner.
func String() string {
	return fmt.Sprintf("tagtune %s (%s, built %s)", Version, GitSHA, BuildTime)
}
