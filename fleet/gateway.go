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

// denylist holds lowercase substrings of destructive operations. Matching
// is a coarse, best-effort safety net for commands arriving from an
// automated caller — substring checks are evadable by obfuscation, so this
// is defense-in-depth, not a sandbox or a security boundary.
var denylist = []string{
	"rm -rf",
	"rm -fr",
	"rm --recursive",
	"mkfs",
	"dd if=",
	"of=/dev/",
	"> /dev/sd",
	"shutdown",
	"reboot",
	"poweroff",
	"halt",
	"init 0",
	"kill -9 1",
	"killall",
	":(){",
	"wipefs",
}

const defaultExecTimeout = 2 * time.Minute

// Gateway validates operator commands and forwards the survivors into a
// running container through the runtime's exec.
type Gateway struct {
	runtime Runtime
	sink    EventSink
	entry   []string
	extra   []string
	timeout time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithExecTimeout bounds forwarded commands.
func WithExecTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithEntry overrides the in-container entry point; the command text is
// appended as the final argument. Default is a login shell.
func WithEntry(argv []string) GatewayOption {
	return func(g *Gateway) {
		if len(argv) > 0 {
			g.entry = argv
		}
	}
}

// WithExtraRules extends the denylist with operator-configured substrings.
func WithExtraRules(rules []string) GatewayOption {
	return func(g *Gateway) {
		for _, r := range rules {
			if r = strings.TrimSpace(strings.ToLower(r)); r != "" {
				g.extra = append(g.extra, r)
			}
		}
	}
}

// WithGatewaySink records command outcomes to the given sink.
func WithGatewaySink(sink EventSink) GatewayOption {
	return func(g *Gateway) { g.sink = sink }
}

// NewGateway creates a command gateway.
func NewGateway(runtime Runtime, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		runtime: runtime,
		entry:   []string{"sh", "-lc"},
		timeout: defaultExecTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Match returns the denylist rule the command text matches, or "".
func (g *Gateway) Match(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range denylist {
		if strings.Contains(lower, rule) {
			return rule
		}
	}
	for _, rule := range g.extra {
		if strings.Contains(lower, rule) {
			return rule
		}
	}
	return ""
}

// Execute validates and forwards one command. Empty text is
// ErrInvalidCommand; a denylist match is ErrRejected and the runtime is
// never touched; a runtime timeout becomes a structured failed result, not
// an error. Every outcome lands in the command log.
func (g *Gateway) Execute(ctx context.Context, name, text string) (agentfleet.CommandResult, error) {
	text = strings.TrimSpace(text)
	result := agentfleet.CommandResult{Container: name, Command: text}

	if text == "" {
		return result, fmt.Errorf("empty command: %w", agentfleet.ErrInvalidCommand)
	}

	if rule := g.Match(text); rule != "" {
		result.MatchedRule = rule
		result.Detail = "rejected by denylist"
		g.persist(ctx, result)
		slog.Warn("Command rejected.", "container", name, "rule", rule)
		return result, fmt.Errorf("command matches denylist rule %q: %w", rule, agentfleet.ErrRejected)
	}

	argv := append(append([]string{}, g.entry...), text)
	start := time.Now()
	res, err := g.runtime.Exec(ctx, name, argv, g.timeout)
	result.Elapsed = time.Since(start)

	if errors.Is(err, agentfleet.ErrTimeout) {
		result.Detail = "timed out"
		g.persist(ctx, result)
		return result, nil
	}
	if err != nil {
		g.persistError(ctx, result, err)
		return result, err
	}

	result.Stdout = res.Stdout
	result.Stderr = res.Stderr
	result.ExitCode = res.ExitCode
	result.Succeeded = res.ExitCode == 0
	g.persist(ctx, result)
	return result, nil
}

func (g *Gateway) persist(ctx context.Context, result agentfleet.CommandResult) {
	if g.sink == nil {
		return
	}
	if err := g.sink.RecordCommand(ctx, result); err != nil {
		slog.Warn("Command log write failed.", "container", result.Container, "err", err)
	}
}

func (g *Gateway) persistError(ctx context.Context, result agentfleet.CommandResult, err error) {
	result.Detail = err.Error()
	g.persist(ctx, result)
}
