package dockerd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"testing"
	"time"

	"agentfleet"
	"agentfleet/fleet"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/docker/docker/client"
)

// fakeDocker records calls and returns configured responses.
// Embeds client.APIClient so unused methods panic if called.
type fakeDocker struct {
	client.APIClient

	listResult    []container.Summary
	listErr       error
	inspectResult types.ContainerJSON
	inspectErr    error
	createErr     error
	startErr      error
	stopErr       error
	removeErr     error

	execExit   int
	execErr    error
	execOutput []byte

	createdConfig *container.Config
	createdHost   *container.HostConfig
	execCmd       []string

	calls []string
}

func (f *fakeDocker) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	f.calls = append(f.calls, "List")
	return f.listResult, f.listErr
}

func (f *fakeDocker) ContainerInspect(_ context.Context, _ string) (types.ContainerJSON, error) {
	f.calls = append(f.calls, "Inspect")
	return f.inspectResult, f.inspectErr
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.calls = append(f.calls, "Create")
	f.createdConfig = cfg
	f.createdHost = host
	return container.CreateResponse{ID: "fake-id"}, f.createErr
}

func (f *fakeDocker) ContainerStart(_ context.Context, _ string, _ container.StartOptions) error {
	f.calls = append(f.calls, "Start")
	return f.startErr
}

func (f *fakeDocker) ContainerStop(_ context.Context, _ string, _ container.StopOptions) error {
	f.calls = append(f.calls, "Stop")
	return f.stopErr
}

func (f *fakeDocker) ContainerRemove(_ context.Context, _ string, _ container.RemoveOptions) error {
	f.calls = append(f.calls, "Remove")
	return f.removeErr
}

func (f *fakeDocker) ContainerExecCreate(_ context.Context, _ string, cfg container.ExecOptions) (types.IDResponse, error) {
	f.calls = append(f.calls, "ExecCreate")
	f.execCmd = cfg.Cmd
	return types.IDResponse{ID: "fake-exec-id"}, f.execErr
}

func (f *fakeDocker) ContainerExecAttach(_ context.Context, _ string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	f.calls = append(f.calls, "ExecAttach")
	return types.HijackedResponse{
		Reader: bufio.NewReader(bytes.NewReader(f.execOutput)),
		Conn:   &nopConn{},
	}, nil
}

func (f *fakeDocker) ContainerExecInspect(_ context.Context, _ string) (container.ExecInspect, error) {
	f.calls = append(f.calls, "ExecInspect")
	return container.ExecInspect{ExitCode: f.execExit}, nil
}

// nopConn implements net.Conn for test use.
type nopConn struct{}

func (nopConn) Read([]byte) (int, error)        { return 0, io.EOF }
func (nopConn) Write(b []byte) (int, error)     { return len(b), nil }
func (nopConn) Close() error                    { return nil }
func (nopConn) LocalAddr() net.Addr             { return nil }
func (nopConn) RemoteAddr() net.Addr            { return nil }
func (nopConn) SetDeadline(time.Time) error     { return nil }
func (nopConn) SetReadDeadline(time.Time) error { return nil }
func (nopConn) SetWriteDeadline(time.Time) error {
	return nil
}

func muxStdout(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(s)); err != nil {
		t.Fatalf("mux stdout: %v", err)
	}
	return buf.Bytes()
}

func TestList_MapsManagedContainers(t *testing.T) {
	docker := &fakeDocker{
		listResult: []container.Summary{
			{
				ID:      "abc",
				Names:   []string{"/agent-main"},
				Image:   "agent-container:latest",
				State:   "running",
				Created: 1700000000,
				Labels:  map[string]string{LabelManaged: "true", LabelName: "main"},
			},
			{
				ID:    "def",
				Names: []string{"/stray"},
				Image: "agent-container:latest",
				State: "exited",
			},
		},
	}
	r := NewRuntime(docker)

	got, err := r.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "main" {
		t.Errorf("Name = %q, want label value %q", got[0].Name, "main")
	}
	if got[0].Status != agentfleet.StatusRunning {
		t.Errorf("Status = %v, want running", got[0].Status)
	}
	if got[1].Name != "stray" {
		t.Errorf("Name = %q, want trimmed docker name %q", got[1].Name, "stray")
	}
	if got[1].Status != agentfleet.StatusExited {
		t.Errorf("Status = %v, want exited", got[1].Status)
	}
}

func TestInspect_NotFound(t *testing.T) {
	docker := &fakeDocker{inspectErr: errdefs.ErrNotFound}
	r := NewRuntime(docker)

	_, err := r.Inspect(context.Background(), "ghost")
	if !errors.Is(err, agentfleet.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInspect_RunningState(t *testing.T) {
	docker := &fakeDocker{
		inspectResult: types.ContainerJSON{
			ContainerJSONBase: &types.ContainerJSONBase{
				ID:    "abc",
				Name:  "/agent-main",
				State: &types.ContainerState{Running: true},
			},
			Config: &container.Config{
				Image:  "agent-container:latest",
				Labels: map[string]string{LabelName: "main"},
			},
		},
	}
	r := NewRuntime(docker)

	got, err := r.Inspect(context.Background(), "main")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.Status != agentfleet.StatusRunning {
		t.Errorf("Status = %v, want running", got.Status)
	}
	if got.Name != "main" {
		t.Errorf("Name = %q, want %q", got.Name, "main")
	}
	if got.Image != "agent-container:latest" {
		t.Errorf("Image = %q", got.Image)
	}
}

func TestCreate_InjectsManagedLabels(t *testing.T) {
	docker := &fakeDocker{}
	r := NewRuntime(docker)

	id, err := r.Create(context.Background(), fleet.CreateSpec{
		Name:  "main",
		Image: "agent-container:latest",
		Mounts: []fleet.Mount{
			{Source: "/srv/ws", Target: "/workspace"},
			{Source: "/srv/mcp.json", Target: "/home/agent/.mcp.json", ReadOnly: true},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "fake-id" {
		t.Errorf("id = %q", id)
	}
	if docker.createdConfig.Labels[LabelManaged] != managedValue {
		t.Errorf("managed label missing: %v", docker.createdConfig.Labels)
	}
	if docker.createdConfig.Labels[LabelName] != "main" {
		t.Errorf("name label = %q", docker.createdConfig.Labels[LabelName])
	}
	if len(docker.createdHost.Mounts) != 2 {
		t.Fatalf("mounts = %d, want 2", len(docker.createdHost.Mounts))
	}
	if !docker.createdHost.Mounts[1].ReadOnly {
		t.Error("second mount should be read-only")
	}
	if docker.createdHost.RestartPolicy.Name != container.RestartPolicyUnlessStopped {
		t.Errorf("restart policy = %v", docker.createdHost.RestartPolicy.Name)
	}

	// Create never pulls.
	want := []string{"Create"}
	if !slices.Equal(docker.calls, want) {
		t.Errorf("calls = %v, want %v", docker.calls, want)
	}
}

func TestCreate_NameConflict(t *testing.T) {
	docker := &fakeDocker{createErr: errdefs.ErrConflict}
	r := NewRuntime(docker)

	_, err := r.Create(context.Background(), fleet.CreateSpec{Name: "main", Image: "img"})
	if !errors.Is(err, agentfleet.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestCreate_MissingImage(t *testing.T) {
	docker := &fakeDocker{createErr: errors.New("No such image: agent-container:latest")}
	r := NewRuntime(docker)

	_, err := r.Create(context.Background(), fleet.CreateSpec{Name: "main", Image: "agent-container:latest"})
	var ce *agentfleet.CreateError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CreateError", err)
	}
	if ce.Name != "main" {
		t.Errorf("CreateError.Name = %q", ce.Name)
	}
}

func TestStart_UnclassifiedErrorJoinsTaxonomy(t *testing.T) {
	cause := errors.New("layer does not exist")
	docker := &fakeDocker{startErr: cause}
	r := NewRuntime(docker)

	err := r.Start(context.Background(), "abc")
	var ee *agentfleet.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want EngineError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not preserved: %v", err)
	}
	if agentfleet.Kind(err) != agentfleet.KindInternal {
		t.Errorf("Kind = %q, want internal", agentfleet.Kind(err))
	}
}

func TestStop_MissingContainerSucceeds(t *testing.T) {
	docker := &fakeDocker{stopErr: errdefs.ErrNotFound}
	r := NewRuntime(docker)

	if err := r.Stop(context.Background(), "ghost"); err != nil {
		t.Errorf("Stop: %v, want nil on missing container", err)
	}
}

func TestRemove_MissingContainerSucceeds(t *testing.T) {
	docker := &fakeDocker{removeErr: errdefs.ErrNotFound}
	r := NewRuntime(docker)

	if err := r.Remove(context.Background(), "ghost"); err != nil {
		t.Errorf("Remove: %v, want nil on missing container", err)
	}
}

func TestExec_WrapsCommandWithTimeout(t *testing.T) {
	docker := &fakeDocker{execOutput: muxStdout(t, "1.2.3\n")}
	r := NewRuntime(docker)

	got, err := r.Exec(context.Background(), "main", []string{"claude", "--version"}, 10*time.Second)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got.Stdout != "1.2.3\n" {
		t.Errorf("Stdout = %q", got.Stdout)
	}
	if got.ExitCode != 0 {
		t.Errorf("ExitCode = %d", got.ExitCode)
	}

	want := []string{"timeout", "-k", "5", "10", "claude", "--version"}
	if !slices.Equal(docker.execCmd, want) {
		t.Errorf("exec cmd = %v, want %v", docker.execCmd, want)
	}
}

func TestExec_SubSecondTimeoutKeepsBound(t *testing.T) {
	// Whole-second truncation would render these as "0", which the
	// in-container wrapper treats as no limit at all.
	cases := []struct {
		timeout time.Duration
		want    string
	}{
		{500 * time.Millisecond, "0.5"},
		{90*time.Second + 500*time.Millisecond, "90.5"},
		{10 * time.Second, "10"},
	}
	for _, tc := range cases {
		docker := &fakeDocker{execOutput: muxStdout(t, "")}
		r := NewRuntime(docker)

		if _, err := r.Exec(context.Background(), "main", []string{"sleep", "3600"}, tc.timeout); err != nil {
			t.Fatalf("Exec(%s): %v", tc.timeout, err)
		}
		want := []string{"timeout", "-k", "5", tc.want, "sleep", "3600"}
		if !slices.Equal(docker.execCmd, want) {
			t.Errorf("timeout %s: exec cmd = %v, want %v", tc.timeout, docker.execCmd, want)
		}
	}
}

func TestExec_NonPositiveTimeoutRejected(t *testing.T) {
	docker := &fakeDocker{}
	r := NewRuntime(docker)

	_, err := r.Exec(context.Background(), "main", []string{"ls"}, 0)
	var ee *agentfleet.ExecError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want ExecError", err)
	}
	if len(docker.calls) != 0 {
		t.Errorf("engine called with unbounded exec: %v", docker.calls)
	}
}

func TestExec_TimeoutExitCode(t *testing.T) {
	for _, exit := range []int{124, 137} {
		docker := &fakeDocker{execExit: exit}
		r := NewRuntime(docker)

		_, err := r.Exec(context.Background(), "main", []string{"sleep", "999"}, time.Second)
		if !errors.Is(err, agentfleet.ErrTimeout) {
			t.Errorf("exit %d: err = %v, want ErrTimeout", exit, err)
		}
	}
}

func TestExec_NonZeroExitIsNotAnError(t *testing.T) {
	docker := &fakeDocker{execExit: 127, execOutput: muxStdout(t, "")}
	r := NewRuntime(docker)

	got, err := r.Exec(context.Background(), "main", []string{"nosuch"}, time.Second)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got.ExitCode != 127 {
		t.Errorf("ExitCode = %d, want 127", got.ExitCode)
	}
}

func TestExec_CreateFailureWrapped(t *testing.T) {
	execErr := errors.New("engine exploded")
	docker := &fakeDocker{execErr: execErr}
	r := NewRuntime(docker)

	_, err := r.Exec(context.Background(), "main", []string{"ls"}, time.Second)
	var ee *agentfleet.ExecError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want ExecError", err)
	}
	if !errors.Is(err, execErr) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestExec_MissingContainer(t *testing.T) {
	docker := &fakeDocker{execErr: errdefs.ErrNotFound}
	r := NewRuntime(docker)

	_, err := r.Exec(context.Background(), "ghost", []string{"ls"}, time.Second)
	if !errors.Is(err, agentfleet.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
