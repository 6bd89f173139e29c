package fleet

import (
	"context"
	"fmt"
	"time"

	"agentfleet"
)

// fakeRuntime is a behavioral runtime double: it keeps a name → Summary
// map, records the call sequence, and lets tests inject failures per
// operation.
type fakeRuntime struct {
	calls      []string
	containers map[string]*Summary

	listErr    error
	inspectErr error
	createErr  error
	startErr   error
	stopErr    error
	removeErr  error

	created []CreateSpec
	execs   [][]string
	execFn  func(argv []string) (ExecResult, error)

	nextID int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: map[string]*Summary{}}
}

func (f *fakeRuntime) addContainer(name string, status agentfleet.ContainerStatus) *Summary {
	f.nextID++
	s := &Summary{
		ID:      fmt.Sprintf("id-%d", f.nextID),
		Name:    name,
		Image:   "agent:latest",
		Status:  status,
		Created: time.Now(),
	}
	f.containers[name] = s
	return s
}

func (f *fakeRuntime) byID(id string) *Summary {
	for _, s := range f.containers {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (f *fakeRuntime) List(context.Context, bool) ([]Summary, error) {
	f.calls = append(f.calls, "List")
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Summary, 0, len(f.containers))
	for _, s := range f.containers {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeRuntime) Inspect(_ context.Context, name string) (Summary, error) {
	f.calls = append(f.calls, "Inspect")
	if f.inspectErr != nil {
		return Summary{}, f.inspectErr
	}
	s, ok := f.containers[name]
	if !ok {
		return Summary{}, fmt.Errorf("container %s: %w", name, agentfleet.ErrNotFound)
	}
	return *s, nil
}

func (f *fakeRuntime) Create(_ context.Context, spec CreateSpec) (string, error) {
	f.calls = append(f.calls, "Create")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, spec)
	s := f.addContainer(spec.Name, agentfleet.StatusExited)
	s.Image = spec.Image
	return s.ID, nil
}

func (f *fakeRuntime) Start(_ context.Context, id string) error {
	f.calls = append(f.calls, "Start")
	if f.startErr != nil {
		return f.startErr
	}
	if s := f.byID(id); s != nil {
		s.Status = agentfleet.StatusRunning
	}
	return nil
}

func (f *fakeRuntime) Stop(_ context.Context, id string) error {
	f.calls = append(f.calls, "Stop")
	if f.stopErr != nil {
		return f.stopErr
	}
	if s := f.byID(id); s != nil {
		s.Status = agentfleet.StatusExited
	}
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, id string) error {
	f.calls = append(f.calls, "Remove")
	if f.removeErr != nil {
		return f.removeErr
	}
	for name, s := range f.containers {
		if s.ID == id {
			delete(f.containers, name)
		}
	}
	return nil
}

func (f *fakeRuntime) Exec(_ context.Context, _ string, argv []string, _ time.Duration) (ExecResult, error) {
	f.calls = append(f.calls, "Exec")
	f.execs = append(f.execs, argv)
	if f.execFn != nil {
		return f.execFn(argv)
	}
	return ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}

// fakeRegistry is an in-memory Registry.
type fakeRegistry struct {
	records map[string]agentfleet.ContainerRecord
	upserts int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: map[string]agentfleet.ContainerRecord{}}
}

func (f *fakeRegistry) Load() map[string]agentfleet.ContainerRecord {
	out := make(map[string]agentfleet.ContainerRecord, len(f.records))
	for k, v := range f.records {
		out[k] = v
	}
	return out
}

func (f *fakeRegistry) Get(name string) (agentfleet.ContainerRecord, bool) {
	rec, ok := f.records[name]
	return rec, ok
}

func (f *fakeRegistry) Upsert(rec agentfleet.ContainerRecord) error {
	f.upserts++
	f.records[rec.Name] = rec
	return nil
}

// fakeSink records audit writes.
type fakeSink struct {
	events   []Event
	reports  []agentfleet.HealthReport
	commands []agentfleet.CommandResult
}

func (f *fakeSink) RecordEvent(_ context.Context, e Event) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) RecordHealthReport(_ context.Context, r agentfleet.HealthReport) error {
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeSink) RecordCommand(_ context.Context, r agentfleet.CommandResult) error {
	f.commands = append(f.commands, r)
	return nil
}

// testSecrets resolves the slots tests rely on.
func testSecrets(ref string) (string, bool) {
	vals := map[string]string{
		"DISCORD_TOKEN_A":   "tok-a",
		"ANTHROPIC_API_KEY": "key-1",
	}
	v, ok := vals[ref]
	return v, ok
}

func testEnv() LaunchEnv {
	return LaunchEnv{
		Image:         "agent:latest",
		AuthMode:      agentfleet.AuthAPIKey,
		TokenRef:      "DISCORD_TOKEN_A",
		ServerID:      "guild-1",
		WorkspacePath: "/srv/agents/agent-a",
	}
}

func newTestManager(rt *fakeRuntime, reg *fakeRegistry, opts ...ManagerOption) *Manager {
	base := []ManagerOption{
		WithSecretSource(testSecrets),
		WithConfirmPoll(3, time.Millisecond),
	}
	return NewManager(rt, reg, append(base, opts...)...)
}
