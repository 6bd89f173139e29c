// Package template turns a Docker Compose file into launch configuration,
// so operators describe agent containers the same way they describe any
// other service. Only the subset of compose a managed agent container can
// use is honored; secrets stay out of the file — environment entries name
// slots in the daemon's environment and must not carry values.
package template

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentfleet"
	"agentfleet/fleet"

	"github.com/compose-spec/compose-go/v2/loader"
	compose "github.com/compose-spec/compose-go/v2/types"
)

const composeFilename = "agentfleet.yaml"

// Labels carrying per-service launch settings inside the compose file.
const (
	labelAuthMode = "agentfleet.auth_mode"
	labelTokenRef = "agentfleet.token_ref"
	labelServerID = "agentfleet.server_id"
)

// Template is a parsed compose project holding launch defaults per service.
type Template struct {
	project *compose.Project
}

// Load parses compose YAML into a Template.
func Load(ctx context.Context, data []byte) (*Template, error) {
	configDetails := compose.ConfigDetails{
		ConfigFiles: []compose.ConfigFile{
			{Filename: composeFilename, Content: data},
		},
	}

	project, err := loader.LoadWithContext(ctx, configDetails)
	if err != nil {
		return nil, fmt.Errorf("parse launch template: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, fmt.Errorf("launch template has no services")
	}

	return &Template{project: project}, nil
}

// Services lists the service names defined by the template, sorted.
func (t *Template) Services() []string {
	names := make([]string, 0, len(t.project.Services))
	for name := range t.project.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LaunchEnv maps the named service to launch overrides. Bind mounts select
// the workspace and MCP config by their in-container target; environment
// keys become secret slot references.
func (t *Template) LaunchEnv(service string) (fleet.LaunchEnv, error) {
	svc, ok := t.project.Services[service]
	if !ok {
		return fleet.LaunchEnv{}, fmt.Errorf("service %q not in template: %w", service, agentfleet.ErrNotFound)
	}

	env := fleet.LaunchEnv{Image: svc.Image}

	for _, v := range svc.Volumes {
		switch v.Target {
		case fleet.WorkspaceTarget:
			env.WorkspacePath = v.Source
		case fleet.MCPConfigTarget:
			env.MCPConfig = v.Source
		default:
			return fleet.LaunchEnv{}, fmt.Errorf("service %q: unsupported mount target %q", service, v.Target)
		}
	}

	refs, err := environmentRefs(service, svc.Environment)
	if err != nil {
		return fleet.LaunchEnv{}, err
	}
	env.EnvRefs = refs

	labels := map[string]string{}
	for k, v := range svc.Labels {
		switch k {
		case labelAuthMode:
			mode := agentfleet.AuthMode(v)
			if !mode.Valid() {
				return fleet.LaunchEnv{}, fmt.Errorf("service %q: unknown auth mode %q", service, v)
			}
			env.AuthMode = mode
		case labelTokenRef:
			env.TokenRef = v
		case labelServerID:
			env.ServerID = v
		default:
			labels[k] = v
		}
	}
	if len(labels) > 0 {
		env.Labels = labels
	}

	return env, nil
}

// environmentRefs collects slot names. A compose entry with a value would
// put a credential in the file, so it is rejected outright.
func environmentRefs(service string, env compose.MappingWithEquals) ([]string, error) {
	if len(env) == 0 {
		return nil, nil
	}

	refs := make([]string, 0, len(env))
	for key, value := range env {
		if value != nil && strings.TrimSpace(*value) != "" {
			return nil, fmt.Errorf("service %q: environment %q carries a value; name a secret slot instead", service, key)
		}
		refs = append(refs, key)
	}
	sort.Strings(refs)
	return refs, nil
}
