package dockerd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"agentfleet"
	"agentfleet/fleet"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// The Docker API has no way to kill a running exec session, so the timeout
// is enforced inside the container by wrapping argv in coreutils timeout.
// The wrapper sends TERM on expiry and KILL after the grace window, which
// guarantees no process outlives a timed-out call. Exit codes 124 and 137
// are the wrapper reporting expiry.
const (
	execKillGrace   = 5 * time.Second
	exitTimedOut    = 124
	exitKilled      = 137
	localExecMargin = 10 * time.Second
)

// Exec runs argv inside the container, bounded by timeout.
func (r *Runtime) Exec(ctx context.Context, id string, argv []string, timeout time.Duration) (fleet.ExecResult, error) {
	if len(argv) == 0 {
		return fleet.ExecResult{}, &agentfleet.ExecError{Container: id, Err: errors.New("empty command")}
	}
	if timeout <= 0 {
		return fleet.ExecResult{}, &agentfleet.ExecError{Container: id, Err: fmt.Errorf("non-positive timeout %s", timeout)}
	}

	wrapped := append([]string{
		"timeout",
		"-k", wrapperSeconds(execKillGrace),
		wrapperSeconds(timeout),
	}, argv...)

	// Local deadline is a backstop for a hung engine, not the primary
	// timeout; the in-container wrapper fires first.
	ctx, cancel := context.WithTimeout(ctx, timeout+execKillGrace+localExecMargin)
	defer cancel()

	resp, err := r.docker.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          wrapped,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fleet.ExecResult{}, execFailure(id, fmt.Errorf("create exec: %w", err))
	}

	attach, err := r.docker.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return fleet.ExecResult{}, execFailure(id, fmt.Errorf("attach exec: %w", err))
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- copyErr
	}()

	select {
	case err = <-done:
		if err != nil {
			return fleet.ExecResult{}, execFailure(id, fmt.Errorf("read exec output: %w", err))
		}
	case <-ctx.Done():
		return fleet.ExecResult{}, fmt.Errorf("exec in %s: %w", id, agentfleet.ErrTimeout)
	}

	info, err := r.docker.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return fleet.ExecResult{}, execFailure(id, fmt.Errorf("inspect exec: %w", err))
	}

	if info.ExitCode == exitTimedOut || info.ExitCode == exitKilled {
		return fleet.ExecResult{}, fmt.Errorf("exec in %s after %s: %w", id, timeout, agentfleet.ErrTimeout)
	}

	return fleet.ExecResult{
		ExitCode: info.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// wrapperSeconds renders a duration as a seconds argument for the
// in-container timeout wrapper. Whole-second truncation would render
// sub-second bounds as "0", which the wrapper reads as no limit, so
// fractional values keep their fraction.
func wrapperSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// execFailure keeps engine-level translation (unreachable daemon, missing
// container) ahead of the generic exec wrapper.
func execFailure(id string, err error) error {
	t := translate(err)
	var ee *agentfleet.EngineError
	if errors.As(t, &ee) {
		return &agentfleet.ExecError{Container: id, Err: err}
	}
	return t
}
