// Package daemon exposes fleet operations over a unix-socket HTTP/JSON
// API. Every response uses the same envelope so callers can branch on
// success without inspecting status codes:
//
//	{"success": true,  "data": …}
//	{"success": false, "error": {"kind": …, "message": …, "rule": …}}
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"agentfleet"
	"agentfleet/fleet"

	"github.com/go-chi/chi/v5"
)

// Fleet is the lifecycle surface the server needs from the manager.
type Fleet interface {
	Status(ctx context.Context) ([]fleet.ContainerView, error)
	Launch(ctx context.Context, name string, env fleet.LaunchEnv) (fleet.LaunchResult, error)
	Shutdown(ctx context.Context, name string, remove bool) (fleet.ShutdownResult, error)
	Restart(ctx context.Context, name string, env fleet.LaunchEnv) (fleet.LaunchResult, error)
}

// HealthRunner runs the probe battery for one container.
type HealthRunner interface {
	Run(ctx context.Context, name string) agentfleet.HealthReport
}

// CommandRunner forwards free-text commands through the gateway.
type CommandRunner interface {
	Execute(ctx context.Context, name, text string) (agentfleet.CommandResult, error)
}

// RegistryReader lists and prunes stored container records.
type RegistryReader interface {
	List() []agentfleet.ContainerRecord
	Delete(name string) error
}

// EventReader pages through the audit trail.
type EventReader interface {
	RecentEvents(ctx context.Context, container string, limit int) ([]fleet.Event, error)
	LatestHealthReport(ctx context.Context, container string) (agentfleet.HealthReport, bool, error)
	RecentCommands(ctx context.Context, container string, limit int) ([]agentfleet.CommandResult, error)
}

type Server struct {
	fleet    Fleet
	health   HealthRunner
	gateway  CommandRunner
	registry RegistryReader
	events   EventReader
	version  string
}

func NewServer(f Fleet, h HealthRunner, g CommandRunner, r RegistryReader, e EventReader, version string) *Server {
	return &Server{fleet: f, health: h, gateway: g, registry: r, events: e, version: version}
}

// Router builds the HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Get("/status", s.handleStatus)
		r.Route("/containers/{name}", func(r chi.Router) {
			r.Post("/launch", s.handleLaunch)
			r.Post("/shutdown", s.handleShutdown)
			r.Post("/restart", s.handleRestart)
			r.Get("/health", s.handleHealth)
			r.Get("/health/latest", s.handleHealthLatest)
			r.Post("/exec", s.handleExec)
			r.Get("/commands", s.handleCommands)
		})
		r.Get("/registry", s.handleRegistryList)
		r.Delete("/registry/{name}", s.handleRegistryDelete)
		r.Get("/events", s.handleEvents)
	})
	return r
}

type envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	views, err := s.fleet.Status(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, views)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var env fleet.LaunchEnv
	if err := decodeBody(r, &env); err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := s.fleet.Launch(r.Context(), name, env)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body struct {
		Remove bool `json:"remove"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := s.fleet.Shutdown(r.Context(), name, body.Remove)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var env fleet.LaunchEnv
	if err := decodeBody(r, &env); err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := s.fleet.Restart(r.Context(), name, env)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Run(r.Context(), chi.URLParam(r, "name"))
	writeData(w, http.StatusOK, report)
}

// handleHealthLatest returns the stored report from the last battery run
// without touching the container.
func (s *Server) handleHealthLatest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.events == nil {
		writeError(w, fmt.Errorf("no health report recorded for %s: %w", name, agentfleet.ErrNotFound), "")
		return
	}

	report, ok, err := s.events.LatestHealthReport(r.Context(), name)
	if err != nil {
		writeError(w, err, "")
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("no health report recorded for %s: %w", name, agentfleet.ErrNotFound), "")
		return
	}
	writeData(w, http.StatusOK, report)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeData(w, http.StatusOK, []agentfleet.CommandResult{})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.events.RecentCommands(r.Context(), chi.URLParam(r, "name"), limit)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, results)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body struct {
		Command string `json:"command"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}

	result, err := s.gateway.Execute(r.Context(), name, body.Command)
	if err != nil {
		writeError(w, err, result.MatchedRule)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleRegistryList(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleRegistryDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.registry.Delete(name); err != nil {
		writeError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"deleted": name})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeData(w, http.StatusOK, []fleet.Event{})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	container := r.URL.Query().Get("container")

	events, err := s.events.RecentEvents(r.Context(), container, limit)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, events)
}

// decodeBody tolerates an empty body; launch and shutdown work with no
// overrides at all.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		slog.Warn("Response encode failed.", "err", err)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeEnvelopeError(w, http.StatusBadRequest, envelopeError{
		Kind:    agentfleet.KindInvalidCommand,
		Message: "malformed request body: " + err.Error(),
	})
}

func writeError(w http.ResponseWriter, err error, rule string) {
	kind := agentfleet.Kind(err)
	writeEnvelopeError(w, statusFor(kind), envelopeError{
		Kind:    kind,
		Message: err.Error(),
		Rule:    rule,
	})
}

func writeEnvelopeError(w http.ResponseWriter, status int, e envelopeError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: false, Error: &e}); err != nil {
		slog.Warn("Response encode failed.", "err", err)
	}
}

func statusFor(kind string) int {
	switch kind {
	case agentfleet.KindNotFound:
		return http.StatusNotFound
	case agentfleet.KindConflict:
		return http.StatusConflict
	case agentfleet.KindRejected:
		return http.StatusForbidden
	case agentfleet.KindInvalidCommand, agentfleet.KindMissingConfiguration:
		return http.StatusBadRequest
	case agentfleet.KindTimeout:
		return http.StatusGatewayTimeout
	case agentfleet.KindEngineUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
