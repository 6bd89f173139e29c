// Package sdk provides a Go client for the agentfleet daemon. CLI commands
// and external automation use this to talk to the unix socket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"agentfleet"
	"agentfleet/fleet"
)

// Client talks HTTP/JSON over the daemon's unix socket.
type Client struct {
	http *http.Client
}

// Dial builds a client for the daemon socket. No connection is made until
// the first call.
func Dial(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		http: &http.Client{Transport: transport},
	}
}

// APIError is a decoded error envelope from the daemon.
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap maps the envelope kind back onto the error taxonomy so callers
// can use errors.Is across the API boundary.
func (e *APIError) Unwrap() error {
	switch e.Kind {
	case agentfleet.KindEngineUnavailable:
		return agentfleet.ErrEngineUnavailable
	case agentfleet.KindNotFound:
		return agentfleet.ErrNotFound
	case agentfleet.KindTimeout:
		return agentfleet.ErrTimeout
	case agentfleet.KindConflict:
		return agentfleet.ErrConflict
	case agentfleet.KindMissingConfiguration:
		return agentfleet.ErrMissingConfiguration
	case agentfleet.KindInvalidCommand:
		return agentfleet.ErrInvalidCommand
	case agentfleet.KindRejected:
		return agentfleet.ErrRejected
	default:
		return nil
	}
}

// Ping checks daemon liveness and returns its version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var data map[string]string
	if err := c.get(ctx, "/v1/ping", &data); err != nil {
		return "", err
	}
	return data["version"], nil
}

// Status lists every managed container merged with its registry record.
func (c *Client) Status(ctx context.Context) ([]fleet.ContainerView, error) {
	var views []fleet.ContainerView
	if err := c.get(ctx, "/v1/status", &views); err != nil {
		return nil, err
	}
	return views, nil
}

// Launch starts (or creates) the named container.
func (c *Client) Launch(ctx context.Context, name string, env fleet.LaunchEnv) (fleet.LaunchResult, error) {
	var res fleet.LaunchResult
	err := c.post(ctx, "/v1/containers/"+url.PathEscape(name)+"/launch", env, &res)
	return res, err
}

// Shutdown stops the named container, optionally removing it.
func (c *Client) Shutdown(ctx context.Context, name string, remove bool) (fleet.ShutdownResult, error) {
	var res fleet.ShutdownResult
	body := map[string]bool{"remove": remove}
	err := c.post(ctx, "/v1/containers/"+url.PathEscape(name)+"/shutdown", body, &res)
	return res, err
}

// Restart stops then launches the named container.
func (c *Client) Restart(ctx context.Context, name string, env fleet.LaunchEnv) (fleet.LaunchResult, error) {
	var res fleet.LaunchResult
	err := c.post(ctx, "/v1/containers/"+url.PathEscape(name)+"/restart", env, &res)
	return res, err
}

// Health runs the probe battery against the named container.
func (c *Client) Health(ctx context.Context, name string) (agentfleet.HealthReport, error) {
	var report agentfleet.HealthReport
	err := c.get(ctx, "/v1/containers/"+url.PathEscape(name)+"/health", &report)
	return report, err
}

// LastHealth returns the most recent stored health report without
// running the battery. ErrNotFound when no report has been recorded.
func (c *Client) LastHealth(ctx context.Context, name string) (agentfleet.HealthReport, error) {
	var report agentfleet.HealthReport
	err := c.get(ctx, "/v1/containers/"+url.PathEscape(name)+"/health/latest", &report)
	return report, err
}

// Commands pages the command log for one container, newest first.
func (c *Client) Commands(ctx context.Context, name string, limit int) ([]agentfleet.CommandResult, error) {
	path := "/v1/containers/" + url.PathEscape(name) + "/commands"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var results []agentfleet.CommandResult
	if err := c.get(ctx, path, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Exec forwards a command through the gateway.
func (c *Client) Exec(ctx context.Context, name, command string) (agentfleet.CommandResult, error) {
	var result agentfleet.CommandResult
	body := map[string]string{"command": command}
	err := c.post(ctx, "/v1/containers/"+url.PathEscape(name)+"/exec", body, &result)
	return result, err
}

// Registry lists the stored container records.
func (c *Client) Registry(ctx context.Context) ([]agentfleet.ContainerRecord, error) {
	var records []agentfleet.ContainerRecord
	if err := c.get(ctx, "/v1/registry", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Prune deletes the stored record for a name.
func (c *Client) Prune(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, "http://agentfleetd/v1/registry/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Events pages the audit trail, newest first.
func (c *Client) Events(ctx context.Context, container string, limit int) ([]fleet.Event, error) {
	path := "/v1/events"
	q := url.Values{}
	if container != "" {
		q.Set("container", container)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var events []fleet.Event
	if err := c.get(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://agentfleetd"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://agentfleetd"+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("daemon: %w", env.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// WaitReady polls ping until the daemon answers or ctx expires. Used right
// after daemon start.
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		if _, err := c.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
