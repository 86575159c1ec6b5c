package buildinfo

import (
	"runtime"
)

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/minutes-cli/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/minutes-cli/pkg/buildinfo.Commit=4e1c0a2
// -X github.com/otherjamesbrown/minutes-cli/pkg/buildinfo.BuildTime=2026-03-02T09:15:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Name is the binary name reported in version output and the User-Agent.
const Name = "minutes"

// Info holds build information for the binary.
type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build info.
func Get() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a human-readable one-liner like "v0.3.0 (4e1c0a2, 2026-03-02T09:15:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// UserAgent returns the User-Agent header value sent with API requests,
// e.g. "minutes/v0.3.0 (linux/amd64)".
func UserAgent() string {
	return Name + "/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
