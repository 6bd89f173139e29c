package agentfleet

import (
	"time"
)

// AuthMode selects which credential source configures an agent container.
type AuthMode string

const (
	AuthOAuth  AuthMode = "oauth"
	AuthAPIKey AuthMode = "api_key"
)

// Valid reports whether the mode is one of the known credential sources.
func (m AuthMode) Valid() bool {
	return m == AuthOAuth || m == AuthAPIKey
}

// ContainerRecord is the last-applied configuration of a managed container,
// keyed by name in the registry. It is a cache, not a liveness source:
// status is always re-read from the runtime. TokenRef names a secret slot
// in the daemon environment; the secret value itself is never stored.
type ContainerRecord struct {
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	CreatedAt     time.Time         `json:"created_at"`
	AuthMode      AuthMode          `json:"auth_mode"`
	TokenRef      string            `json:"token_ref"`
	ServerID      string            `json:"server_id"`
	WorkspacePath string            `json:"workspace_path"`
	MCPConfig     string            `json:"mcp_config,omitempty"`
	EnvRefs       []string          `json:"env_refs,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// ContainerStatus is the runtime-derived liveness of a container.
type ContainerStatus uint8

const (
	StatusUnknown ContainerStatus = iota
	StatusRunning
	StatusExited
	StatusAbsent
)

func (s ContainerStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	case StatusAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// MarshalText lets the status render as its string form in JSON payloads.
func (s ContainerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form produced by MarshalText.
func (s *ContainerStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "running":
		*s = StatusRunning
	case "exited":
		*s = StatusExited
	case "absent":
		*s = StatusAbsent
	default:
		*s = StatusUnknown
	}
	return nil
}
