package agentfleet

import (
	"errors"
	"fmt"
)

// Closed failure taxonomy. The runtime adapter translates every engine
// error into one of these before it reaches the lifecycle manager, health
// checker, or command gateway; the daemon maps them onto envelope kinds.
var (
	// ErrEngineUnavailable means the container engine daemon is unreachable.
	// Fatal for the whole operation; nothing in the core retries it.
	ErrEngineUnavailable = errors.New("container engine unavailable")

	// ErrNotFound means the named container (or exec session) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTimeout means a bounded operation ran out of time. It is converted
	// to a structured result by the gateway, never surfaced as a fault.
	ErrTimeout = errors.New("operation timed out")

	// ErrConflict means a name is already in use with a different
	// configuration.
	ErrConflict = errors.New("name conflict")

	// ErrMissingConfiguration means required launch input was absent.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrInvalidCommand means the gateway received empty command text.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrRejected means the gateway denylist matched the command.
	ErrRejected = errors.New("command rejected")
)

// Envelope error kinds, one per taxonomy member.
const (
	KindEngineUnavailable    = "engine_unavailable"
	KindNotFound             = "not_found"
	KindTimeout              = "timeout"
	KindConflict             = "conflict"
	KindMissingConfiguration = "missing_configuration"
	KindInvalidCommand       = "invalid_command"
	KindRejected             = "rejected"
	KindCreateError          = "create_error"
	KindExecError            = "exec_error"
	KindInternal             = "internal"
)

// CreateError wraps an engine failure during container creation, keeping
// the original engine message for diagnostics.
type CreateError struct {
	Name string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("create container %s: %v", e.Name, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// ExecError wraps an engine failure during command execution.
type ExecError struct {
	Container string
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec in container %s: %v", e.Container, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// EngineError wraps an engine failure that matched no sentinel, so every
// error leaving the runtime adapter is a member of the taxonomy. The
// failing verb and engine text are already in the wrapped message.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string { return e.Err.Error() }

func (e *EngineError) Unwrap() error { return e.Err }

// Kind maps an error from the taxonomy to its envelope kind. Sentinel
// checks run before the wrapper checks so that a CreateError wrapping
// ErrConflict reports as a conflict, not a generic create failure.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEngineUnavailable):
		return KindEngineUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrMissingConfiguration):
		return KindMissingConfiguration
	case errors.Is(err, ErrInvalidCommand):
		return KindInvalidCommand
	case errors.Is(err, ErrRejected):
		return KindRejected
	}

	var ce *CreateError
	if errors.As(err, &ce) {
		return KindCreateError
	}
	var ee *ExecError
	if errors.As(err, &ee) {
		return KindExecError
	}
	return KindInternal
}
