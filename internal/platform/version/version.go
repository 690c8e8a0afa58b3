// Package version exposes the gateway's build metadata for the /version
// endpoint and startup logs.
package version

import "runtime"

// Injected via -ldflags at build time; the defaults identify a local dev build.
var (
	// Version is the release tag of the gateway build
	Version = "dev"
	// Commit is the git commit SHA the binary was built from
	Commit = "unknown"
	// BuildTime is the ISO 8601 build timestamp
	BuildTime = "unknown"
)

// Info is the payload served by the /version endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get assembles the build info of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
