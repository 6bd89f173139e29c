//go:build !linux && !darwin

package config

var (
	DefaultSocketPath = "/tmp/agentfleetd.sock"
	DefaultDataRoot   = "/var/lib/agentfleet"
)
