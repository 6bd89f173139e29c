package dockerd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentfleet"
	"agentfleet/fleet"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	dockerfilters "github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Label set distinguishing managed agent containers from everything else
// on the host.
const (
	LabelManaged = "agentfleet.managed"
	LabelName    = "agentfleet.name"
	managedValue = "true"
)

// Runtime implements fleet.Runtime using the Docker Engine API.
type Runtime struct {
	docker client.APIClient
}

var _ fleet.Runtime = (*Runtime)(nil)

// NewRuntime wraps a Docker client.
func NewRuntime(docker client.APIClient) *Runtime {
	return &Runtime{docker: docker}
}

// Ping reports whether the engine answers.
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.docker.Ping(ctx); err != nil {
		return engineUnavailable(err)
	}
	return nil
}

func (r *Runtime) List(ctx context.Context, includeStopped bool) ([]fleet.Summary, error) {
	filters := dockerfilters.NewArgs(dockerfilters.Arg("label", LabelManaged+"="+managedValue))

	containers, err := r.docker.ContainerList(ctx, container.ListOptions{
		All:     includeStopped,
		Filters: filters,
	})
	if err != nil {
		return nil, translate(fmt.Errorf("list containers: %w", err))
	}

	out := make([]fleet.Summary, 0, len(containers))
	for _, c := range containers {
		name := c.Labels[LabelName]
		if name == "" && len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, fleet.Summary{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			Status:  statusFromState(c.State),
			Created: time.Unix(c.Created, 0).UTC(),
			Labels:  c.Labels,
		})
	}
	return out, nil
}

func (r *Runtime) Inspect(ctx context.Context, name string) (fleet.Summary, error) {
	info, err := r.docker.ContainerInspect(ctx, name)
	if err != nil {
		return fleet.Summary{}, translate(fmt.Errorf("inspect container %s: %w", name, err))
	}

	s := fleet.Summary{
		ID:     info.ID,
		Name:   strings.TrimPrefix(info.Name, "/"),
		Status: agentfleet.StatusUnknown,
	}
	if info.Config != nil {
		s.Image = info.Config.Image
		s.Labels = info.Config.Labels
		if label := info.Config.Labels[LabelName]; label != "" {
			s.Name = label
		}
	}
	if info.State != nil {
		if info.State.Running {
			s.Status = agentfleet.StatusRunning
		} else {
			s.Status = agentfleet.StatusExited
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, info.Created); err == nil {
		s.Created = created.UTC()
	}
	return s, nil
}

func (r *Runtime) Create(ctx context.Context, spec fleet.CreateSpec) (string, error) {
	labels := map[string]string{
		LabelManaged: managedValue,
		LabelName:    spec.Name,
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	cfg := &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Cmd:    spec.Command,
		Labels: labels,
	}

	restart := container.RestartPolicyUnlessStopped
	if spec.RestartPolicy != "" {
		restart = container.RestartPolicyMode(spec.RestartPolicy)
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: restart},
	}

	hostCfg.Mounts = make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	if len(spec.Ports) > 0 {
		exposed := make(nat.PortSet, len(spec.Ports))
		bindings := make(nat.PortMap, len(spec.Ports))
		for _, p := range spec.Ports {
			proto := strings.ToLower(strings.TrimSpace(p.Protocol))
			if proto == "" {
				proto = "tcp"
			}
			port := nat.Port(p.ContainerPort + "/" + proto)
			exposed[port] = struct{}{}
			bindings[port] = []nat.PortBinding{{HostIP: p.HostIP, HostPort: p.HostPort}}
		}
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	resp, err := r.docker.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		// No implicit pull: a missing image is a create failure, because
		// image building and distribution are outside the fleet's scope.
		if errdefs.IsConflict(err) {
			return "", fmt.Errorf("container name %s already in use: %w", spec.Name, agentfleet.ErrConflict)
		}
		if client.IsErrConnectionFailed(err) {
			return "", engineUnavailable(err)
		}
		return "", &agentfleet.CreateError{Name: spec.Name, Err: err}
	}
	return resp.ID, nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	if err := r.docker.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return translate(fmt.Errorf("start container %s: %w", id, err))
	}
	return nil
}

// Stop is idempotent — stopping an already-stopped or missing container
// succeeds.
func (r *Runtime) Stop(ctx context.Context, id string) error {
	if err := r.docker.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return translate(fmt.Errorf("stop container %s: %w", id, err))
	}
	return nil
}

// Remove is idempotent — removing a missing container succeeds.
func (r *Runtime) Remove(ctx context.Context, id string) error {
	if err := r.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return translate(fmt.Errorf("remove container %s: %w", id, err))
	}
	return nil
}

func statusFromState(state string) agentfleet.ContainerStatus {
	switch state {
	case "running", "restarting":
		return agentfleet.StatusRunning
	case "exited", "created", "paused", "dead", "removing":
		return agentfleet.StatusExited
	default:
		return agentfleet.StatusUnknown
	}
}

// translate folds engine-specific failures into the closed taxonomy. The
// engine message survives inside the wrapped chain for diagnostics.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case client.IsErrConnectionFailed(err):
		return engineUnavailable(err)
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%v: %w", err, agentfleet.ErrNotFound)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%v: %w", err, agentfleet.ErrConflict)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%v: %w", err, agentfleet.ErrTimeout)
	default:
		return &agentfleet.EngineError{Err: err}
	}
}

func engineUnavailable(err error) error {
	return fmt.Errorf("%v: %w", err, agentfleet.ErrEngineUnavailable)
}
