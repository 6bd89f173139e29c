//go:build linux

package config

var (
	DefaultSocketPath = "/var/run/agentfleetd.sock"
	DefaultDataRoot   = "/var/lib/agentfleet"
)
