package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"agentfleet/config"
	"agentfleet/fleet"
	"agentfleet/infra/dockerd"
	"agentfleet/infra/sqlite"
	"agentfleet/internal/buildinfo"
	"agentfleet/registry"
	"agentfleet/telemetry"

	"golang.org/x/sync/errgroup"
)

// Run wires the full daemon — engine client, registry, event log, manager,
// checker, gateway — and serves the API until ctx is cancelled.
func Run(ctx context.Context, settings config.Settings) error {
	docker, err := dockerd.NewClient()
	if err != nil {
		return err
	}
	defer docker.Close()

	events, err := sqlite.Open(settings.EventLogPath())
	if err != nil {
		return err
	}
	defer events.Close()

	provider := telemetry.NewLogProvider()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	runtime := dockerd.NewRuntime(docker)
	store := registry.New(settings.RegistryPath())

	managerOpts := []fleet.ManagerOption{
		fleet.WithEventSink(events),
		fleet.WithTracer(provider.Tracer("agentfleet")),
	}
	if settings.DefaultImage != "" {
		managerOpts = append(managerOpts, fleet.WithDefaultImage(settings.DefaultImage))
	}
	manager := fleet.NewManager(runtime, store, managerOpts...)

	checkerOpts := []fleet.CheckerOption{fleet.WithCheckerSink(events)}
	if settings.Probes != nil {
		checkerOpts = append(checkerOpts, fleet.WithProbeConfig(*settings.Probes))
	}
	checker := fleet.NewChecker(runtime, checkerOpts...)

	gatewayOpts := []fleet.GatewayOption{fleet.WithGatewaySink(events)}
	if settings.ExecTimeout > 0 {
		gatewayOpts = append(gatewayOpts, fleet.WithExecTimeout(settings.ExecTimeout))
	}
	if len(settings.DenyRules) > 0 {
		gatewayOpts = append(gatewayOpts, fleet.WithExtraRules(settings.DenyRules))
	}
	gateway := fleet.NewGateway(runtime, gatewayOpts...)

	srv := NewServer(manager, checker, gateway, store, events, buildinfo.Version)
	return srv.ListenAndServe(ctx, settings.Socket)
}

// ListenAndServe serves the API on a unix socket and blocks until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	// Remove stale socket from a previous run (may not exist).
	_ = os.Remove(socketPath)
	defer func() { _ = os.Remove(socketPath) }()

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", socketPath, err)
	}

	httpSrv := &http.Server{Handler: s.Router()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Daemon listening.", "socket", socketPath, "version", s.version)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
