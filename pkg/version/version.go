package version

import (
	"fmt"
	"runtime/debug"
)

// Build variables set via ldflags:
// -X 'github.com/compozy/flowfix/pkg/version.Version=v0.3.0'
// -X 'github.com/compozy/flowfix/pkg/version.CommitHash=abc123'
// -X 'github.com/compozy/flowfix/pkg/version.BuildDate=2025-01-01T00:00:00Z'
var (
	Version    = "unknown"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Info is the build information of the binary.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

// Get returns the build information. Values missing from ldflags are filled
// from the module build info when the binary was built with go install.
func Get() Info {
	info := Info{Version: Version, CommitHash: CommitHash, BuildDate: BuildDate}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fillFromBuildInfo(info, bi)
}

func fillFromBuildInfo(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "unknown" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.CommitHash == "unknown":
			info.CommitHash = s.Value
		case s.Key == "vcs.time" && info.BuildDate == "unknown":
			info.BuildDate = s.Value
		}
	}
	return info
}

// String formats the build information for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildDate)
}
