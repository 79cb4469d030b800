// Package version exposes build metadata injected with -ldflags.
package version

import "runtime"

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/NERVsystems/ecoroute/pkg/version.BuildVersion=v1.2.0"
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// Info returns version metadata as a flat map for health and metrics labels
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"commit":     BuildCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
