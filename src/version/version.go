package version

import (
	"fmt"
	"runtime/debug"
)

// These variables are injected at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func init() {
	// `go install ...@version` builds carry no ldflags but do carry module
	// and VCS info.
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	fromBuildInfo(info)
}

func fromBuildInfo(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" && len(s.Value) >= 8 {
				Commit = s.Value[:8]
			}
		case "vcs.time":
			if BuildDate == "unknown" {
				BuildDate = s.Value
			}
		}
	}
}

// String returns a human-readable version string.
func String() string {
	return fmt.Sprintf("verbuild %s (%s, %s)", Version, Commit, BuildDate)
}
