// Package config holds BlazeWatch build information.
package config

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/good-yellow-bee/blazewatch/pkg/config.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo is reported by /version, the version commands and the build_info metric.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the build information. Without ldflags, commit and build
// time fall back to the VCS stamp the go tool embeds.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "unknown":
				info.Commit = shortRevision(s.Value)
			case s.Key == "vcs.time" && info.BuildTime == "unknown":
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// VersionString formats the build information on one line.
func VersionString() string {
	info := GetBuildInfo()
	return fmt.Sprintf("blazewatch %s (%s) built at %s with %s",
		info.Version, info.Commit, info.BuildTime, info.GoVersion)
}

// UserAgent returns the User-Agent header value for a BlazeWatch client.
func UserAgent(client string) string {
	return fmt.Sprintf("%s/%s (%s/%s)", client, Version, runtime.GOOS, runtime.GOARCH)
}
