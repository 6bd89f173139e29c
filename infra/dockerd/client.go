// Package dockerd implements the fleet runtime port against the Docker
// Engine API. The adapter holds no state across calls — every query hits
// the live daemon — and translates engine failures into the agentfleet
// error taxonomy before they reach the core.
package dockerd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/client"
)

const pingTimeout = 2 * time.Second

// NewClient connects to the Docker daemon, trying the environment
// configuration first and then well-known socket locations, so the daemon
// works out of the box with Docker Desktop and Colima.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		if pingOK(cli) {
			return cli, nil
		}
		_ = cli.Close()
	}

	home := os.Getenv("HOME")
	sockets := []string{
		"unix:///var/run/docker.sock",
		"unix://" + home + "/.docker/run/docker.sock",
		"unix://" + home + "/.colima/docker.sock",
	}
	for _, sock := range sockets {
		cli, err := client.NewClientWithOpts(
			client.WithHost(sock),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}
		if pingOK(cli) {
			return cli, nil
		}
		_ = cli.Close()
	}

	return nil, fmt.Errorf("could not connect to docker daemon")
}

func pingOK(cli *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	_, err := cli.Ping(ctx)
	return err == nil
}
