// Package buildinfo exposes compile-time metadata shared across the server.
package buildinfo

import "fmt"

// The following variables are overridden via ldflags during release builds.
// Defaults cover local development builds.
var (
	// Version is the semantic version or git describe output of the binary.
	Version = "dev"

	// Commit is the git commit SHA baked into the binary.
	Commit = "none"

	// BuildDate records when the binary was built in UTC.
	BuildDate = "unknown"
)

// Summary renders the build metadata as a single human-readable line,
// used by the -v flag and the health endpoint.
func Summary() string {
	return fmt.Sprintf("kite-mcp %s (commit %s, built %s)", Version, Commit, BuildDate)
}
