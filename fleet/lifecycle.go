package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentfleet"
	"agentfleet/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Action describes what a lifecycle operation actually did.
type Action uint8

const (
	ActionCreated Action = iota + 1
	ActionResumed
	ActionAlreadyRunning
	ActionStopped
	ActionRemoved
	ActionAbsent
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionResumed:
		return "resumed"
	case ActionAlreadyRunning:
		return "already_running"
	case ActionStopped:
		return "stopped"
	case ActionRemoved:
		return "removed"
	case ActionAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// MarshalText renders the action as its string form in JSON payloads.
func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// LaunchEnv is the required configuration supplied by the caller's
// environment at launch time. Non-empty fields override the registry's
// last-known record; token refs name secret slots, never values.
type LaunchEnv struct {
	Image         string              `json:"image,omitempty"`
	AuthMode      agentfleet.AuthMode `json:"auth_mode,omitempty"`
	TokenRef      string              `json:"token_ref,omitempty"`
	ServerID      string              `json:"server_id,omitempty"`
	WorkspacePath string              `json:"workspace_path,omitempty"`
	MCPConfig     string              `json:"mcp_config,omitempty"`
	EnvRefs       []string            `json:"env_refs,omitempty"`
	Labels        map[string]string   `json:"labels,omitempty"`
}

// LaunchResult reports the launch outcome.
type LaunchResult struct {
	Action Action                      `json:"action"`
	ID     string                      `json:"id"`
	Record *agentfleet.ContainerRecord `json:"record,omitempty"`
}

// ShutdownResult reports the shutdown outcome.
type ShutdownResult struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Launch brings the named container to running. Already-running containers
// are a no-op; stopped ones are started; absent ones are created from the
// registry's last-known record merged with env, then started and confirmed
// running by a bounded poll. The registry record is written only after a
// successful creation so a later launch can recreate the container
// identically.
func (m *Manager) Launch(ctx context.Context, name string, env LaunchEnv) (res LaunchResult, err error) {
	op := telemetry.Start(ctx, m.tracer, "fleet.launch", attribute.String("container", name))
	ctx = op.Context()
	defer func() {
		op.End(err)
		m.record(ctx, Event{Container: name, Op: "launch", Action: res.Action.String(), Error: errString(err)})
	}()

	var summary Summary
	absent := false
	err = op.Step("inspect", func(ctx context.Context) error {
		var ierr error
		summary, ierr = m.runtime.Inspect(ctx, name)
		if errors.Is(ierr, agentfleet.ErrNotFound) {
			absent = true
			return nil
		}
		return ierr
	})
	if err != nil {
		return LaunchResult{}, err
	}

	switch {
	case !absent && summary.Status == agentfleet.StatusRunning:
		return LaunchResult{Action: ActionAlreadyRunning, ID: summary.ID}, nil

	case !absent:
		// Exists but stopped — resume it.
		if err = op.Step("start", func(ctx context.Context) error {
			return m.runtime.Start(ctx, summary.ID)
		}); err != nil {
			return LaunchResult{}, err
		}
		if err = op.Step("confirm", func(ctx context.Context) error {
			return m.confirmRunning(ctx, name)
		}); err != nil {
			return LaunchResult{}, err
		}
		slog.Info("Container resumed.", "container", name, "id", summary.ID)
		return LaunchResult{Action: ActionResumed, ID: summary.ID}, nil
	}

	// Absent — build a creation spec from the last-known record plus the
	// caller's environment.
	rec, spec, err := m.buildLaunch(name, env)
	if err != nil {
		return LaunchResult{}, err
	}

	var id string
	if err = op.Step("create", func(ctx context.Context) error {
		var cerr error
		id, cerr = m.runtime.Create(ctx, spec)
		return cerr
	}); err != nil {
		return LaunchResult{}, err
	}
	if err = op.Step("start", func(ctx context.Context) error {
		return m.runtime.Start(ctx, id)
	}); err != nil {
		return LaunchResult{}, err
	}
	if err = op.Step("confirm", func(ctx context.Context) error {
		return m.confirmRunning(ctx, name)
	}); err != nil {
		return LaunchResult{}, err
	}
	if err = op.Step("persist", func(ctx context.Context) error {
		if uerr := m.registry.Upsert(rec); uerr != nil {
			return fmt.Errorf("persist record for %s: %w", name, uerr)
		}
		return nil
	}); err != nil {
		return LaunchResult{}, err
	}

	slog.Info("Container created.", "container", name, "id", id, "image", rec.Image)
	return LaunchResult{Action: ActionCreated, ID: id, Record: &rec}, nil
}

// Shutdown stops the named container and optionally removes it. The
// registry record is left intact either way — it tracks configuration,
// not existence. An absent container is a successful no-op.
func (m *Manager) Shutdown(ctx context.Context, name string, remove bool) (res ShutdownResult, err error) {
	op := telemetry.Start(ctx, m.tracer, "fleet.shutdown",
		attribute.String("container", name), attribute.Bool("remove", remove))
	ctx = op.Context()
	defer func() {
		op.End(err)
		m.record(ctx, Event{Container: name, Op: "shutdown", Action: res.Action.String(), Error: errString(err)})
	}()

	summary, ierr := m.runtime.Inspect(ctx, name)
	if errors.Is(ierr, agentfleet.ErrNotFound) {
		return ShutdownResult{Action: ActionAbsent}, nil
	}
	if ierr != nil {
		return ShutdownResult{}, ierr
	}

	if err = op.Step("stop", func(ctx context.Context) error {
		return m.runtime.Stop(ctx, summary.ID)
	}); err != nil {
		return ShutdownResult{}, err
	}
	if !remove {
		slog.Info("Container stopped.", "container", name, "id", summary.ID)
		return ShutdownResult{Action: ActionStopped, ID: summary.ID}, nil
	}

	if err = op.Step("remove", func(ctx context.Context) error {
		return m.runtime.Remove(ctx, summary.ID)
	}); err != nil {
		return ShutdownResult{}, err
	}
	slog.Info("Container removed.", "container", name, "id", summary.ID)
	return ShutdownResult{Action: ActionRemoved, ID: summary.ID}, nil
}

// Restart composes Shutdown(remove=false) and Launch, propagating the
// first failure.
func (m *Manager) Restart(ctx context.Context, name string, env LaunchEnv) (LaunchResult, error) {
	if _, err := m.Shutdown(ctx, name, false); err != nil {
		return LaunchResult{}, err
	}
	res, err := m.Launch(ctx, name, env)
	if err != nil {
		return LaunchResult{}, err
	}
	m.record(ctx, Event{Container: name, Op: "restart", Action: res.Action.String()})
	return res, nil
}

// buildLaunch merges the last-known record with the launch environment and
// validates the result. Env fields win; the registry fills the gaps.
func (m *Manager) buildLaunch(name string, env LaunchEnv) (agentfleet.ContainerRecord, CreateSpec, error) {
	rec, _ := m.registry.Get(name)
	rec.Name = name

	if env.Image != "" {
		rec.Image = env.Image
	}
	if rec.Image == "" {
		rec.Image = m.defaultImage
	}
	if env.AuthMode != "" {
		rec.AuthMode = env.AuthMode
	}
	if rec.AuthMode == "" {
		rec.AuthMode = agentfleet.AuthAPIKey
	}
	if env.TokenRef != "" {
		rec.TokenRef = env.TokenRef
	}
	if env.ServerID != "" {
		rec.ServerID = env.ServerID
	}
	if env.WorkspacePath != "" {
		rec.WorkspacePath = env.WorkspacePath
	}
	if env.MCPConfig != "" {
		rec.MCPConfig = env.MCPConfig
	}
	if len(env.EnvRefs) > 0 {
		rec.EnvRefs = env.EnvRefs
	}
	if len(env.Labels) > 0 {
		rec.Labels = env.Labels
	}
	rec.CreatedAt = time.Now().UTC()

	var missing []string
	if rec.TokenRef == "" {
		missing = append(missing, "token_ref")
	}
	if rec.ServerID == "" {
		missing = append(missing, "server_id")
	}
	if rec.WorkspacePath == "" {
		missing = append(missing, "workspace_path")
	}
	if !rec.AuthMode.Valid() {
		missing = append(missing, "auth_mode")
	}
	if len(missing) > 0 {
		return rec, CreateSpec{}, fmt.Errorf("launch %s: %s unset: %w",
			name, strings.Join(missing, ", "), agentfleet.ErrMissingConfiguration)
	}

	containerEnv, err := m.resolveEnv(rec)
	if err != nil {
		return rec, CreateSpec{}, err
	}

	mounts := []Mount{{Source: rec.WorkspacePath, Target: WorkspaceTarget}}
	if rec.MCPConfig != "" {
		mounts = append(mounts, Mount{Source: rec.MCPConfig, Target: MCPConfigTarget, ReadOnly: true})
	}

	spec := CreateSpec{
		Name:          name,
		Image:         rec.Image,
		Env:           containerEnv,
		Mounts:        mounts,
		Labels:        rec.Labels,
		RestartPolicy: "unless-stopped",
	}
	return rec, spec, nil
}

// resolveEnv turns secret slot names into container environment values.
// An unresolvable slot is missing configuration, not a runtime fault.
func (m *Manager) resolveEnv(rec agentfleet.ContainerRecord) ([]string, error) {
	token, ok := m.secrets(rec.TokenRef)
	if !ok || token == "" {
		return nil, fmt.Errorf("secret slot %q unset: %w", rec.TokenRef, agentfleet.ErrMissingConfiguration)
	}

	env := []string{
		"DISCORD_TOKEN=" + token,
		"AGENT_AUTH_MODE=" + string(rec.AuthMode),
		"AGENT_SERVER_ID=" + rec.ServerID,
	}
	for _, ref := range rec.EnvRefs {
		val, ok := m.secrets(ref)
		if !ok {
			return nil, fmt.Errorf("env slot %q unset: %w", ref, agentfleet.ErrMissingConfiguration)
		}
		env = append(env, ref+"="+val)
	}
	return env, nil
}

// confirmRunning polls the runtime until the container reports running.
// Attempt count and interval are fixed caps — container start is expected
// to be fast, so the backoff is short and flat, and the poll always
// terminates.
func (m *Manager) confirmRunning(ctx context.Context, name string) error {
	var last agentfleet.ContainerStatus
	for attempt := 0; attempt < m.confirmAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.confirmInterval):
			}
		}

		summary, err := m.runtime.Inspect(ctx, name)
		if err != nil {
			return err
		}
		if summary.Status == agentfleet.StatusRunning {
			return nil
		}
		last = summary.Status
	}
	return fmt.Errorf("container %s is %s after start: %w", name, last, agentfleet.ErrTimeout)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
