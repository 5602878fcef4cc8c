// Package version carries build metadata stamped in at link time.
package version

import "fmt"

// Set via -ldflags at release build time; defaults describe a source build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the human-readable version line printed by `gantry version`.
func String() string {
	return fmt.Sprintf("gantry %s (commit %s, built %s)", Version, Commit, Date)
}
