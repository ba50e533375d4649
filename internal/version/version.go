// Package version exposes build metadata for the health endpoint and logs.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is overridable via ldflags for tagged release builds. When left
// at "dev" the module version from build info is used instead, if present.
var Version = "dev"

// Info is the build metadata reported by the daemon.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get assembles Info from ldflags and the embedded build info.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: "unknown",
		BuildDate: "unknown",
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.GitCommit = s.Value
		case "vcs.time":
			info.BuildDate = s.Value
		}
	}
	return info
}

// String returns the short version string.
func String() string {
	return Get().Version
}
