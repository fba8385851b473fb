// Package docker reads container state through the Docker Engine API.
//
// Lifecycle commands go through the runtime CLI (see package command); this
// adapter covers the read side, where the API gives cleaner results than
// scraping CLI output: demultiplexed log snapshots, run listings, daemon
// reachability and network setup.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/bdobrica/Shigoto/internal/shigoto/runtime"
)

const (
	labelManagedBy = "shigoto.managed-by"
	managedByValue = "shigoto"
)

// engineAPI is the subset of the Docker client used by Engine.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Engine implements runtime.LogSource using the Docker Engine API.
type Engine struct {
	client  engineAPI
	network string
}

// New creates an Engine using DOCKER_HOST or the default socket path.
func New(networkName string) (*Engine, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Engine{client: cli, network: networkName}, nil
}

// Close releases the underlying client.
func (e *Engine) Close() error {
	return e.client.Close()
}

// Ping checks that the daemon is reachable and returns its API version.
func (e *Engine) Ping(ctx context.Context) (string, error) {
	p, err := e.client.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("ping docker daemon: %w", err)
	}
	return p.APIVersion, nil
}

// EnsureNetwork creates the configured network if it doesn't exist. The
// predefined host, bridge and none networks are left alone.
func (e *Engine) EnsureNetwork(ctx context.Context) error {
	switch e.network {
	case "", "host", "bridge", "none":
		return nil
	}
	nets, err := e.client.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", e.network)),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == e.network {
			return nil
		}
	}
	_, err = e.client.NetworkCreate(ctx, e.network, network.CreateOptions{
		Driver:     "bridge",
		Attachable: true,
		Labels:     map[string]string{labelManagedBy: managedByValue},
	})
	if err != nil {
		return fmt.Errorf("create network %q: %w", e.network, err)
	}
	return nil
}

// ListRuns returns the state of every run container, stopped ones included.
func (e *Engine) ListRuns(ctx context.Context) ([]runtime.Status, error) {
	list, err := e.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", runtime.RunContainerName(""))),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]runtime.Status, 0, len(list))
	for _, c := range list {
		// The name filter is a substring match; keep exact prefix matches only.
		for _, name := range c.Names {
			runID, ok := runtime.RunIDFromContainerName(name)
			if !ok {
				continue
			}
			out = append(out, runtime.Status{
				RunID:         runID,
				ContainerName: runtime.RunContainerName(runID),
				State:         runtime.ParseContainerState(c.State),
			})
			break
		}
	}
	return out, nil
}

// Stdout returns everything the container has written to standard output so
// far. Standard error is discarded.
func (e *Engine) Stdout(ctx context.Context, containerName string) (string, error) {
	inspect, err := e.client.ContainerInspect(ctx, containerName)
	if err != nil {
		return "", fmt.Errorf("inspect container %s: %w", containerName, err)
	}

	rc, err := e.client.ContainerLogs(ctx, containerName, container.LogsOptions{
		ShowStdout: true,
	})
	if err != nil {
		return "", fmt.Errorf("logs for container %s: %w", containerName, err)
	}
	defer rc.Close()

	return readStdout(rc, isTTY(inspect))
}

// readStdout decodes a log stream. Without a TTY the daemon multiplexes
// stdout and stderr into framed chunks.
func readStdout(r io.Reader, tty bool) (string, error) {
	var out bytes.Buffer
	if tty {
		if _, err := io.Copy(&out, r); err != nil {
			return "", fmt.Errorf("read logs: %w", err)
		}
		return out.String(), nil
	}
	if _, err := stdcopy.StdCopy(&out, io.Discard, r); err != nil {
		return "", fmt.Errorf("demultiplex logs: %w", err)
	}
	return out.String(), nil
}

func isTTY(inspect types.ContainerJSON) bool {
	return inspect.Config != nil && inspect.Config.Tty
}
