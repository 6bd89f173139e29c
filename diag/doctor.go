// Package diag runs host-level checks that explain why fleet operations
// fail before they fail: engine reachability, clock sanity, and data
// directory health.
package diag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beevik/ntp"
)

const (
	defaultNTPPool      = "pool.ntp.org"
	defaultNTPThreshold = 500 * time.Millisecond
)

// Check is one diagnostic outcome with a suggested fix when it fails.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

// Pinger is the slice of the engine client the doctor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Doctor aggregates the host checks.
type Doctor struct {
	engine    Pinger
	dataRoot  string
	pool      string
	threshold time.Duration

	// queryNTP is swapped in tests to avoid real network traffic.
	queryNTP func(pool string) (time.Duration, error)
}

type Option func(*Doctor)

func WithNTPPool(pool string) Option {
	return func(d *Doctor) { d.pool = pool }
}

func WithClockThreshold(threshold time.Duration) Option {
	return func(d *Doctor) { d.threshold = threshold }
}

func New(engine Pinger, dataRoot string, opts ...Option) *Doctor {
	d := &Doctor{
		engine:    engine,
		dataRoot:  dataRoot,
		pool:      defaultNTPPool,
		threshold: defaultNTPThreshold,
		queryNTP: func(pool string) (time.Duration, error) {
			resp, err := ntp.Query(pool)
			if err != nil {
				return 0, err
			}
			return resp.ClockOffset, nil
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes every check and returns all outcomes, failures included.
func (d *Doctor) Run(ctx context.Context) []Check {
	return []Check{
		d.checkEngine(ctx),
		d.checkClock(),
		d.checkDataRoot(),
	}
}

func (d *Doctor) checkEngine(ctx context.Context) Check {
	c := Check{Name: "docker-engine"}
	if d.engine == nil {
		c.Detail = "no engine client"
		c.Fix = "start the docker daemon and re-run"
		return c
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.engine.Ping(ctx); err != nil {
		c.Detail = err.Error()
		c.Fix = "start the docker daemon or point DOCKER_HOST at a reachable socket"
		return c
	}
	c.Passed = true
	return c
}

func (d *Doctor) checkClock() Check {
	c := Check{Name: "host-clock"}
	offset, err := d.queryNTP(d.pool)
	if err != nil {
		c.Detail = fmt.Sprintf("ntp query %s: %v", d.pool, err)
		c.Fix = "check outbound UDP 123 connectivity"
		return c
	}

	c.Detail = fmt.Sprintf("offset %s", offset.Round(time.Millisecond))
	if offset.Abs() >= d.threshold {
		c.Fix = "enable NTP synchronization on this host"
		return c
	}
	c.Passed = true
	return c
}

func (d *Doctor) checkDataRoot() Check {
	c := Check{Name: "data-root"}
	if err := os.MkdirAll(d.dataRoot, 0o700); err != nil {
		c.Detail = err.Error()
		c.Fix = "fix permissions on " + d.dataRoot
		return c
	}

	probe := filepath.Join(d.dataRoot, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		c.Detail = err.Error()
		c.Fix = "fix permissions on " + d.dataRoot
		return c
	}
	_ = os.Remove(probe)

	c.Passed = true
	c.Detail = d.dataRoot
	return c
}
