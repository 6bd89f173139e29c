//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

var (
	DefaultSocketPath = "/tmp/agentfleetd.sock"
	DefaultDataRoot   = defaultDataRoot()
)

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/usr/local/var/lib/agentfleet"
	}
	return filepath.Join(home, "Library", "Application Support", "agentfleet")
}
