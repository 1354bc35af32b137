// Package version reports the version of the cachestate binary along with the VCS metadata Go embeds at build time.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Version is the semantic version of the build. It may be overridden with ldflags.
var Version = "0.1.0"

// Info describes the version and build metadata of the binary.
type Info struct {
	Version    string    `json:"version"`
	Commit     string    `json:"commit,omitempty"`
	CommitTime time.Time `json:"commitTime,omitempty"`
	Dirty      bool      `json:"dirty"`
	GoVersion  string    `json:"goVersion"`
}

// GetInfo returns the version information of the running binary.
func GetInfo() Info {
	var settings []debug.BuildSetting
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		settings = buildInfo.Settings
	}
	return newInfo(Version, runtime.Version(), settings)
}

// newInfo builds an Info from the vcs.* build settings. Unknown or malformed settings are ignored.
func newInfo(version string, goVersion string, settings []debug.BuildSetting) Info {
	info := Info{Version: version, GoVersion: goVersion}
	for _, kv := range settings {
		switch kv.Key {
		case "vcs.revision":
			info.Commit = kv.Value
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, kv.Value); err == nil {
				info.CommitTime = t
			}
		case "vcs.modified":
			info.Dirty = kv.Value == "true"
		}
	}
	return info
}

// ShortCommit returns the commit hash abbreviated to 7 characters, with a -dirty suffix if the tree was modified.
func (i Info) ShortCommit() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if commit != "" && i.Dirty {
		commit += "-dirty"
	}
	return commit
}

// Short returns a single line version string, e.g. 0.1.0+abc1234.
func (i Info) Short() string {
	if i.Commit == "" {
		return i.Version
	}
	return i.Version + "+" + i.ShortCommit()
}

// String returns a multi-line description of the build.
func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cachestate version %s\n", i.Version)
	if i.Commit != "" {
		fmt.Fprintf(&sb, "  Commit:     %s\n", i.ShortCommit())
	}
	if !i.CommitTime.IsZero() {
		fmt.Fprintf(&sb, "  Built:      %s\n", i.CommitTime.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&sb, "  Go version: %s\n", i.GoVersion)
	return sb.String()
}
