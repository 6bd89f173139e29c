// Package buildinfo exposes the version stamped at build time.
package buildinfo

import "runtime/debug"

// Version is set via -ldflags "-X agentfleet/internal/buildinfo.Version=…".
// When unset, the module version from build info is used.
var Version = ""

func init() {
	if Version != "" {
		return
	}
	Version = "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}
