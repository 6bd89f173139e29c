package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"agentfleet"
	"agentfleet/fleet"
)

type fakeFleet struct {
	views       []fleet.ContainerView
	statusErr   error
	launchRes   fleet.LaunchResult
	launchErr   error
	shutdownRes fleet.ShutdownResult
	launchEnv   fleet.LaunchEnv
	launchName  string
	remove      bool
}

func (f *fakeFleet) Status(_ context.Context) ([]fleet.ContainerView, error) {
	return f.views, f.statusErr
}

func (f *fakeFleet) Launch(_ context.Context, name string, env fleet.LaunchEnv) (fleet.LaunchResult, error) {
	f.launchName = name
	f.launchEnv = env
	return f.launchRes, f.launchErr
}

func (f *fakeFleet) Shutdown(_ context.Context, _ string, remove bool) (fleet.ShutdownResult, error) {
	f.remove = remove
	return f.shutdownRes, nil
}

func (f *fakeFleet) Restart(_ context.Context, name string, env fleet.LaunchEnv) (fleet.LaunchResult, error) {
	f.launchName = name
	f.launchEnv = env
	return f.launchRes, f.launchErr
}

type fakeHealth struct {
	report agentfleet.HealthReport
	ran    string
}

func (f *fakeHealth) Run(_ context.Context, name string) agentfleet.HealthReport {
	f.ran = name
	f.report.Container = name
	return f.report
}

type fakeGateway struct {
	result agentfleet.CommandResult
	err    error
	text   string
}

func (f *fakeGateway) Execute(_ context.Context, name, text string) (agentfleet.CommandResult, error) {
	f.text = text
	f.result.Container = name
	return f.result, f.err
}

type fakeRegistry struct {
	records   []agentfleet.ContainerRecord
	deleted   []string
	deleteErr error
}

func (f *fakeRegistry) List() []agentfleet.ContainerRecord { return f.records }

func (f *fakeRegistry) Delete(name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

type fakeEvents struct {
	events    []fleet.Event
	limit     int
	report    agentfleet.HealthReport
	hasReport bool
	commands  []agentfleet.CommandResult
}

func (f *fakeEvents) RecentEvents(_ context.Context, _ string, limit int) ([]fleet.Event, error) {
	f.limit = limit
	return f.events, nil
}

func (f *fakeEvents) LatestHealthReport(_ context.Context, _ string) (agentfleet.HealthReport, bool, error) {
	return f.report, f.hasReport, nil
}

func (f *fakeEvents) RecentCommands(_ context.Context, _ string, limit int) ([]agentfleet.CommandResult, error) {
	f.limit = limit
	return f.commands, nil
}

type testServer struct {
	*Server
	fleet    *fakeFleet
	health   *fakeHealth
	gateway  *fakeGateway
	registry *fakeRegistry
	events   *fakeEvents
}

func newTestServer() *testServer {
	ts := &testServer{
		fleet:    &fakeFleet{},
		health:   &fakeHealth{},
		gateway:  &fakeGateway{},
		registry: &fakeRegistry{},
		events:   &fakeEvents{},
	}
	ts.Server = NewServer(ts.fleet, ts.health, ts.gateway, ts.registry, ts.events, "test")
	return ts
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return rec, env
}

func TestPing(t *testing.T) {
	ts := newTestServer()

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/ping", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("ping: code=%d env=%+v", rec.Code, env)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer()
	ts.fleet.views = []fleet.ContainerView{
		{Name: "main", Status: agentfleet.StatusRunning, Registered: true},
	}

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/status", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status: code=%d env=%+v", rec.Code, env)
	}

	data, _ := json.Marshal(env.Data)
	var views []fleet.ContainerView
	if err := json.Unmarshal(data, &views); err != nil {
		t.Fatalf("decode views: %v", err)
	}
	if len(views) != 1 || views[0].Name != "main" || views[0].Status != agentfleet.StatusRunning {
		t.Errorf("views = %+v", views)
	}
}

func TestStatus_EngineUnavailable(t *testing.T) {
	ts := newTestServer()
	ts.fleet.statusErr = fmt.Errorf("dial unix: %w", agentfleet.ErrEngineUnavailable)

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/status", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("code = %d, want 502", rec.Code)
	}
	if env.Success || env.Error == nil || env.Error.Kind != agentfleet.KindEngineUnavailable {
		t.Errorf("env = %+v", env)
	}
}

func TestLaunch_PassesOverrides(t *testing.T) {
	ts := newTestServer()
	ts.fleet.launchRes = fleet.LaunchResult{Action: fleet.ActionCreated, ID: "abc"}

	body := fleet.LaunchEnv{Image: "agent:v2", ServerID: "42"}
	rec, env := doRequest(t, ts.Server, http.MethodPost, "/v1/containers/main/launch", body)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("launch: code=%d env=%+v", rec.Code, env)
	}
	if ts.fleet.launchName != "main" {
		t.Errorf("name = %q", ts.fleet.launchName)
	}
	if ts.fleet.launchEnv.Image != "agent:v2" || ts.fleet.launchEnv.ServerID != "42" {
		t.Errorf("env = %+v", ts.fleet.launchEnv)
	}
}

func TestLaunch_EmptyBody(t *testing.T) {
	ts := newTestServer()

	rec, env := doRequest(t, ts.Server, http.MethodPost, "/v1/containers/main/launch", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("launch with empty body: code=%d env=%+v", rec.Code, env)
	}
	if !reflect.DeepEqual(ts.fleet.launchEnv, fleet.LaunchEnv{}) {
		t.Errorf("env = %+v, want zero", ts.fleet.launchEnv)
	}
}

func TestLaunch_MissingConfiguration(t *testing.T) {
	ts := newTestServer()
	ts.fleet.launchErr = fmt.Errorf("token_ref required: %w", agentfleet.ErrMissingConfiguration)

	rec, env := doRequest(t, ts.Server, http.MethodPost, "/v1/containers/main/launch", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Kind != agentfleet.KindMissingConfiguration {
		t.Errorf("env = %+v", env)
	}
}

func TestShutdown_RemoveFlag(t *testing.T) {
	ts := newTestServer()
	ts.fleet.shutdownRes = fleet.ShutdownResult{Action: fleet.ActionRemoved}

	rec, env := doRequest(t, ts.Server, http.MethodPost, "/v1/containers/main/shutdown",
		map[string]bool{"remove": true})
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("shutdown: code=%d env=%+v", rec.Code, env)
	}
	if !ts.fleet.remove {
		t.Error("remove flag not forwarded")
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer()
	ts.health.report = agentfleet.HealthReport{Passed: true}

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/containers/main/health", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("health: code=%d env=%+v", rec.Code, env)
	}

	data, _ := json.Marshal(env.Data)
	var report agentfleet.HealthReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Container != "main" || !report.Passed {
		t.Errorf("report = %+v", report)
	}
}

func TestExec_Success(t *testing.T) {
	ts := newTestServer()
	ts.gateway.result = agentfleet.CommandResult{Stdout: "ok\n", Succeeded: true}

	rec, env := doRequest(t, ts.Server, http.MethodPost, "/v1/containers/main/exec",
		map[string]string{"command": "ls -la"})
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("exec: code=%d env=%+v", rec.Code, env)
	}
	if ts.gateway.text != "ls -la" {
		t.Errorf("command = %q", ts.gateway.text)
	}
}

func TestExec_RejectedCarriesRule(t *testing.T) {
	ts := newTestServer()
	ts.gateway.result = agentfleet.CommandResult{MatchedRule: "rm -rf"}
	ts.gateway.err = fmt.Errorf("command matches denylist rule %q: %w", "rm -rf", agentfleet.ErrRejected)

	rec, env := doRequest(t, ts.Server, http.MethodPost, "/v1/containers/main/exec",
		map[string]string{"command": "rm -rf /"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403", rec.Code)
	}
	if env.Error == nil || env.Error.Kind != agentfleet.KindRejected || env.Error.Rule != "rm -rf" {
		t.Errorf("env = %+v", env)
	}
}

func TestRegistryListAndDelete(t *testing.T) {
	ts := newTestServer()
	ts.registry.records = []agentfleet.ContainerRecord{{Name: "main", Image: "agent:v1"}}

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/registry", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("registry list: code=%d env=%+v", rec.Code, env)
	}

	rec, env = doRequest(t, ts.Server, http.MethodDelete, "/v1/registry/main", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("registry delete: code=%d env=%+v", rec.Code, env)
	}
	if len(ts.registry.deleted) != 1 || ts.registry.deleted[0] != "main" {
		t.Errorf("deleted = %v", ts.registry.deleted)
	}
}

func TestHealthLatest_ReturnsStoredReport(t *testing.T) {
	ts := newTestServer()
	ts.events.report = agentfleet.HealthReport{Container: "main", Passed: true}
	ts.events.hasReport = true

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/containers/main/health/latest", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("health/latest: code=%d env=%+v", rec.Code, env)
	}
	if ts.health.ran != "" {
		t.Errorf("battery ran for %q, want stored report only", ts.health.ran)
	}
}

func TestHealthLatest_NoReportIsNotFound(t *testing.T) {
	ts := newTestServer()

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/containers/main/health/latest", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
	if env.Error == nil || env.Error.Kind != agentfleet.KindNotFound {
		t.Errorf("error = %+v, want kind not_found", env.Error)
	}
}

func TestCommands_LimitForwarded(t *testing.T) {
	ts := newTestServer()
	ts.events.commands = []agentfleet.CommandResult{{Container: "main", Command: "ls"}}

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/containers/main/commands?limit=3", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("commands: code=%d env=%+v", rec.Code, env)
	}
	if ts.events.limit != 3 {
		t.Errorf("limit = %d, want 3", ts.events.limit)
	}
}

func TestEvents_LimitForwarded(t *testing.T) {
	ts := newTestServer()

	rec, env := doRequest(t, ts.Server, http.MethodGet, "/v1/events?limit=5", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("events: code=%d env=%+v", rec.Code, env)
	}
	if ts.events.limit != 5 {
		t.Errorf("limit = %d, want 5", ts.events.limit)
	}
}
