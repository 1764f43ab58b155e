// Package env exposes build-time identity used by report headers and
// user-agent style strings. Version is overridden at build time via
// -ldflags "-X github.com/ostafen/digler/internal/env.Version=...".
package env

const AppName = "digler"

var Version = "dev"

// CommitHash and BuildTime are likewise set via -ldflags -X.
var (
	CommitHash = "unknown"
	BuildTime  = "unknown"
)
