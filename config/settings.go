package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agentfleet/fleet"

	"gopkg.in/yaml.v3"
)

// Settings configures the daemon. Everything has a working default; the
// file is optional.
type Settings struct {
	Socket       string `yaml:"socket,omitempty"`
	DataRoot     string `yaml:"data_root,omitempty"`
	DefaultImage string `yaml:"default_image,omitempty"`
	Debug        bool   `yaml:"debug,omitempty"`

	// ExecTimeout bounds gateway commands. Zero keeps the built-in default.
	ExecTimeout time.Duration `yaml:"exec_timeout,omitempty"`

	// DenyRules extends the built-in command denylist.
	DenyRules []string `yaml:"deny_rules,omitempty"`

	// Probes overrides the health check battery.
	Probes *fleet.ProbeConfig `yaml:"probes,omitempty"`
}

// RegistryPath is the container registry document inside the data root.
func (s Settings) RegistryPath() string {
	return filepath.Join(s.DataRoot, "registry.json")
}

// EventLogPath is the SQLite audit database inside the data root.
func (s Settings) EventLogPath() string {
	return filepath.Join(s.DataRoot, "events.db")
}

// LoadSettings reads the daemon settings file, applying defaults for
// anything unset. A missing file yields pure defaults.
func LoadSettings(path string) (Settings, error) {
	s := Settings{
		Socket:   DefaultSocketPath,
		DataRoot: DefaultDataRoot,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	if s.Socket == "" {
		s.Socket = DefaultSocketPath
	}
	if s.DataRoot == "" {
		s.DataRoot = DefaultDataRoot
	}
	return s, nil
}
