// Package misc keeps program identification shared by all commands.
package misc

import (
	"runtime/debug"
)

const appName = "cssdeps"

// Set by linker: -ldflags "-X cssdeps/misc.version=... -X cssdeps/misc.gitHash=...".
var (
	version = ""
	gitHash = ""
)

func GetAppName() string {
	return appName
}

// GetVersion returns program version, module version from build information
// is used when nothing was set at link time.
func GetVersion() string {
	if version != "" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "(devel)"
}

// GetGitHash returns revision program was built from.
func GetGitHash() string {
	if gitHash != "" {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
