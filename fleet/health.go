package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentfleet"
)

// Probe names, in battery order.
const (
	ProbeLiveness     = "liveness"
	ProbeAgentBinary  = "agent-binary"
	ProbeIntegration  = "mcp-connectivity"
	ProbeFunctional   = "functional"
	timeoutDetail     = "timeout"
	defaultMarker     = "Connected"
	defaultAgentProbe = "ping"
)

// ProbeConfig fixes the battery's commands and per-probe timeouts. Each
// timeout is independent; the functional probe gets the longest one
// because it exercises the agent end to end.
type ProbeConfig struct {
	VersionArgv    []string      `yaml:"version_argv"`
	VersionTimeout time.Duration `yaml:"version_timeout"`

	IntegrationArgv    []string      `yaml:"integration_argv"`
	IntegrationMarker  string        `yaml:"integration_marker"`
	IntegrationTimeout time.Duration `yaml:"integration_timeout"`

	FunctionalArgv    []string      `yaml:"functional_argv"`
	FunctionalTimeout time.Duration `yaml:"functional_timeout"`
}

// DefaultProbeConfig targets the claude agent CLI the fleet's containers
// ship with.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		VersionArgv:        []string{"claude", "--version"},
		VersionTimeout:     10 * time.Second,
		IntegrationArgv:    []string{"claude", "mcp", "list"},
		IntegrationMarker:  defaultMarker,
		IntegrationTimeout: 15 * time.Second,
		FunctionalArgv:     []string{"claude", "-p", defaultAgentProbe},
		FunctionalTimeout:  60 * time.Second,
	}
}

// normalize fills zero fields from the defaults so a partial config from
// the settings file still yields a complete battery.
func (c ProbeConfig) normalize() ProbeConfig {
	def := DefaultProbeConfig()
	if len(c.VersionArgv) == 0 {
		c.VersionArgv = def.VersionArgv
	}
	if c.VersionTimeout <= 0 {
		c.VersionTimeout = def.VersionTimeout
	}
	if len(c.IntegrationArgv) == 0 {
		c.IntegrationArgv = def.IntegrationArgv
	}
	if c.IntegrationMarker == "" {
		c.IntegrationMarker = def.IntegrationMarker
	}
	if c.IntegrationTimeout <= 0 {
		c.IntegrationTimeout = def.IntegrationTimeout
	}
	if len(c.FunctionalArgv) == 0 {
		c.FunctionalArgv = def.FunctionalArgv
	}
	if c.FunctionalTimeout <= 0 {
		c.FunctionalTimeout = def.FunctionalTimeout
	}
	return c
}

// Checker runs the fixed probe battery against one container. Probes after
// liveness never short-circuit — the report always shows the full picture.
type Checker struct {
	runtime Runtime
	cfg     ProbeConfig
	sink    EventSink
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithProbeConfig overrides the default battery.
func WithProbeConfig(cfg ProbeConfig) CheckerOption {
	return func(c *Checker) { c.cfg = cfg.normalize() }
}

// WithCheckerSink persists reports to the given sink.
func WithCheckerSink(sink EventSink) CheckerOption {
	return func(c *Checker) { c.sink = sink }
}

// NewChecker creates a health checker.
func NewChecker(runtime Runtime, opts ...CheckerOption) *Checker {
	c := &Checker{runtime: runtime, cfg: DefaultProbeConfig()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the battery. A probe that times out is recorded as failed
// with detail "timeout", never raised. When liveness fails, the remaining
// probes are marked skipped — there is nothing to exec against — and the
// report fails.
func (c *Checker) Run(ctx context.Context, name string) agentfleet.HealthReport {
	report := agentfleet.HealthReport{
		Container: name,
		CheckedAt: time.Now().UTC(),
	}

	live := c.liveness(ctx, name, &report)
	if !live {
		for _, probe := range []string{ProbeAgentBinary, ProbeIntegration, ProbeFunctional} {
			report.Probes = append(report.Probes, agentfleet.ProbeResult{
				Name:   probe,
				Status: agentfleet.ProbeSkipped,
				Detail: "container not running",
			})
		}
		report.Passed = false
		c.persist(ctx, report)
		return report
	}

	report.Probes = append(report.Probes,
		c.execProbe(ctx, name, ProbeAgentBinary, c.cfg.VersionArgv, c.cfg.VersionTimeout, func(res ExecResult) string {
			if strings.TrimSpace(res.Stdout) == "" {
				return "empty version output"
			}
			return ""
		}),
		c.execProbe(ctx, name, ProbeIntegration, c.cfg.IntegrationArgv, c.cfg.IntegrationTimeout, func(res ExecResult) string {
			if !strings.Contains(res.Stdout, c.cfg.IntegrationMarker) {
				return fmt.Sprintf("marker %q not found in status output", c.cfg.IntegrationMarker)
			}
			return ""
		}),
		c.execProbe(ctx, name, ProbeFunctional, c.cfg.FunctionalArgv, c.cfg.FunctionalTimeout, func(res ExecResult) string {
			if strings.TrimSpace(res.Stdout) == "" {
				return "empty response"
			}
			return ""
		}),
	)

	report.Passed = true
	for _, p := range report.Probes {
		if p.Status == agentfleet.ProbeFailed {
			report.Passed = false
		}
	}
	c.persist(ctx, report)
	return report
}

func (c *Checker) liveness(ctx context.Context, name string, report *agentfleet.HealthReport) bool {
	start := time.Now()
	summary, err := c.runtime.Inspect(ctx, name)
	result := agentfleet.ProbeResult{Name: ProbeLiveness, Elapsed: time.Since(start)}

	switch {
	case errors.Is(err, agentfleet.ErrNotFound):
		result.Status = agentfleet.ProbeFailed
		result.Detail = "container absent"
	case err != nil:
		result.Status = agentfleet.ProbeFailed
		result.Detail = err.Error()
	case summary.Status != agentfleet.StatusRunning:
		result.Status = agentfleet.ProbeFailed
		result.Detail = "status " + summary.Status.String()
	default:
		result.Status = agentfleet.ProbePassed
	}

	report.Probes = append(report.Probes, result)
	return result.Status == agentfleet.ProbePassed
}

// execProbe runs one command probe. verify inspects a zero-exit result and
// returns a failure detail, or "" to pass.
func (c *Checker) execProbe(ctx context.Context, name, probe string, argv []string, timeout time.Duration, verify func(ExecResult) string) agentfleet.ProbeResult {
	start := time.Now()
	result := agentfleet.ProbeResult{Name: probe}

	res, err := c.runtime.Exec(ctx, name, argv, timeout)
	result.Elapsed = time.Since(start)

	switch {
	case errors.Is(err, agentfleet.ErrTimeout):
		result.Status = agentfleet.ProbeFailed
		result.Detail = timeoutDetail
	case err != nil:
		result.Status = agentfleet.ProbeFailed
		result.Detail = err.Error()
	case res.ExitCode != 0:
		result.Status = agentfleet.ProbeFailed
		result.Detail = fmt.Sprintf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	default:
		if detail := verify(res); detail != "" {
			result.Status = agentfleet.ProbeFailed
			result.Detail = detail
		} else {
			result.Status = agentfleet.ProbePassed
		}
	}
	return result
}

func (c *Checker) persist(ctx context.Context, report agentfleet.HealthReport) {
	if c.sink == nil {
		return
	}
	if err := c.sink.RecordHealthReport(ctx, report); err != nil {
		slog.Warn("Health report sink write failed.", "container", report.Container, "err", err)
	}
}
