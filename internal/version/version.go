package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	Version   = "dev"                           // ex: v0.1.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-08-29T18:42:00Z
	GoVersion = runtime.Version()
)

// String returns a one-line version banner.
func String() string {
	return fmt.Sprintf("castlink %s (%s, built %s, %s)", Version, Commit, BuildDate, GoVersion)
}
