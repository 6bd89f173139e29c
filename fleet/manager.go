// Package fleet orchestrates the lifecycle of agent-hosting containers:
// launch, shutdown, restart, health probing, and gated command execution.
// It owns no engine state — liveness is re-queried from the Runtime before
// every decision, and the Registry only remembers last-applied
// configuration.
package fleet

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"agentfleet"

	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultImage is used when neither the registry record nor the launch
	// environment names one.
	DefaultImage = "agent-container:latest"

	// WorkspaceTarget is where the host workspace is mounted inside the
	// container.
	WorkspaceTarget = "/workspace"

	// MCPConfigTarget is where the MCP config file is mounted when set.
	MCPConfigTarget = "/home/agent/.mcp.json"

	defaultConfirmAttempts = 5
	defaultConfirmInterval = 400 * time.Millisecond
)

// SecretSource resolves a named secret slot to its value. The default is
// the process environment; the value never leaves the launch path.
type SecretSource func(ref string) (string, bool)

// Manager drives container lifecycle decisions against the runtime and
// registry. Concurrent calls for different names are independent; calls
// for the same name race benignly — the engine's per-name atomicity and
// the registry's last-write-wins resolve them.
type Manager struct {
	runtime  Runtime
	registry Registry
	sink     EventSink
	secrets  SecretSource
	tracer   trace.Tracer

	defaultImage    string
	confirmAttempts int
	confirmInterval time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultImage overrides the image used when none is configured.
func WithDefaultImage(img string) ManagerOption {
	return func(m *Manager) { m.defaultImage = img }
}

// WithConfirmPoll tunes the bounded poll that confirms a started container
// is running. Both values are fixed caps — the poll always terminates.
func WithConfirmPoll(attempts int, interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if attempts > 0 {
			m.confirmAttempts = attempts
		}
		if interval > 0 {
			m.confirmInterval = interval
		}
	}
}

// WithSecretSource overrides where token refs are resolved.
func WithSecretSource(src SecretSource) ManagerOption {
	return func(m *Manager) { m.secrets = src }
}

// WithEventSink records lifecycle activity to the given sink.
func WithEventSink(sink EventSink) ManagerOption {
	return func(m *Manager) { m.sink = sink }
}

// WithTracer emits operation/step spans for launch and shutdown.
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *Manager) { m.tracer = tracer }
}

// NewManager creates a lifecycle manager.
func NewManager(runtime Runtime, registry Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		runtime:         runtime,
		registry:        registry,
		secrets:         os.LookupEnv,
		defaultImage:    DefaultImage,
		confirmAttempts: defaultConfirmAttempts,
		confirmInterval: defaultConfirmInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ContainerView merges a live runtime summary with the registry record for
// the same name. Registered is false for unmanaged containers that only
// exist live; Status is absent for registry entries with no live container.
type ContainerView struct {
	Name       string                     `json:"name"`
	ID         string                     `json:"id,omitempty"`
	Image      string                     `json:"image"`
	Status     agentfleet.ContainerStatus `json:"status"`
	Created    time.Time                  `json:"created,omitempty"`
	AuthMode   agentfleet.AuthMode        `json:"auth_mode,omitempty"`
	ServerID   string                     `json:"server_id,omitempty"`
	Registered bool                       `json:"registered"`
}

// Status returns the fleet view: every managed container the runtime knows
// about plus every registered configuration, merged by name.
func (m *Manager) Status(ctx context.Context) ([]ContainerView, error) {
	live, err := m.runtime.List(ctx, true)
	if err != nil {
		return nil, err
	}

	views := make(map[string]ContainerView, len(live))
	for _, s := range live {
		views[s.Name] = ContainerView{
			Name:    s.Name,
			ID:      s.ID,
			Image:   s.Image,
			Status:  s.Status,
			Created: s.Created,
		}
	}

	for name, rec := range m.registry.Load() {
		v, ok := views[name]
		if !ok {
			v = ContainerView{Name: name, Image: rec.Image, Status: agentfleet.StatusAbsent}
		}
		v.AuthMode = rec.AuthMode
		v.ServerID = rec.ServerID
		v.Registered = true
		views[name] = v
	}

	out := make([]ContainerView, 0, len(views))
	for _, v := range views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// record sends an audit event, logging sink failures instead of
// propagating them.
func (m *Manager) record(ctx context.Context, e Event) {
	if m.sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := m.sink.RecordEvent(ctx, e); err != nil {
		slog.Warn("Event sink write failed.", "op", e.Op, "container", e.Container, "err", err)
	}
}
