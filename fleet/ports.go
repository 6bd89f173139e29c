package fleet

import (
	"context"
	"time"

	"agentfleet"
)

// Summary is the runtime's view of one container. It is always fetched
// live — the adapter never caches across calls.
type Summary struct {
	ID      string
	Name    string
	Image   string
	Status  agentfleet.ContainerStatus
	Created time.Time
	Labels  map[string]string
}

// Mount is a host path bound into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// PortBinding publishes a container port on the host.
type PortBinding struct {
	HostIP        string
	HostPort      string
	ContainerPort string
	Protocol      string // tcp when empty
}

// CreateSpec is everything the runtime needs to create a container.
type CreateSpec struct {
	Name          string
	Image         string
	Env           []string
	Mounts        []Mount
	Ports         []PortBinding
	Labels        map[string]string
	Command       []string
	RestartPolicy string
}

// ExecResult is the captured outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runtime abstracts the container engine. Implementations translate engine
// failures into the agentfleet error taxonomy before returning, and every
// operation is idempotent and timeout-bounded. In production this is the
// Docker adapter; in tests it is a fake recording calls.
type Runtime interface {
	// List returns all managed containers, optionally including stopped ones.
	List(ctx context.Context, includeStopped bool) ([]Summary, error)

	// Inspect returns the container by name, or ErrNotFound.
	Inspect(ctx context.Context, name string) (Summary, error)

	// Create makes a container from spec and returns its id. A missing
	// image is a CreateError; a name collision is ErrConflict.
	Create(ctx context.Context, spec CreateSpec) (string, error)

	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error

	// Exec runs argv inside the container. The timeout terminates the
	// remote process on expiry — no zombie survives a timed-out call —
	// and surfaces as ErrTimeout.
	Exec(ctx context.Context, id string, argv []string, timeout time.Duration) (ExecResult, error)
}

// Registry is the durable configuration store port.
type Registry interface {
	Load() map[string]agentfleet.ContainerRecord
	Get(name string) (agentfleet.ContainerRecord, bool)
	Upsert(rec agentfleet.ContainerRecord) error
}

// Event is one audit row describing a fleet operation.
type Event struct {
	At        time.Time
	Container string
	Op        string // launch | shutdown | restart | exec | health
	Action    string
	Error     string
	Detail    string
}

// EventSink records fleet activity for later inspection. Sink failures are
// logged by callers and never fail the operation being recorded.
type EventSink interface {
	RecordEvent(ctx context.Context, e Event) error
	RecordHealthReport(ctx context.Context, r agentfleet.HealthReport) error
	RecordCommand(ctx context.Context, r agentfleet.CommandResult) error
}
