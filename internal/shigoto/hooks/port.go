package hooks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/bdobrica/Shigoto/internal/shigoto/command"
	"github.com/bdobrica/Shigoto/internal/shigoto/runtime"
)

var portPattern = regexp.MustCompile(`http server listening on port (\d+)`)

// ParsePort returns the port from the first "http server listening on port N"
// line in output.
func ParsePort(containerName, output string) (int, error) {
	m := portPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, &PortDiscoveryError{Container: containerName, Reason: "no listening announcement in output"}
	}
	port, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &PortDiscoveryError{Container: containerName, Reason: fmt.Sprintf("invalid port %q", m[1]), Err: err}
	}
	if port < 1 || port > 65535 {
		return 0, &PortDiscoveryError{Container: containerName, Reason: fmt.Sprintf("port %d out of range", port)}
	}
	return port, nil
}

// DiscoverPort takes one snapshot of the container's output and parses the
// control port from it. It does not wait for the announcement to appear.
func DiscoverPort(ctx context.Context, logs runtime.LogSource, containerName string) (int, error) {
	out, err := logs.Stdout(ctx, containerName)
	if err != nil {
		return 0, &PortDiscoveryError{Container: containerName, Reason: "read output", Err: err}
	}
	return ParsePort(containerName, out)
}

// CommandLogs reads container output through the runtime CLI ("docker logs").
type CommandLogs struct {
	Runner        command.Runner
	RuntimeBinary string
}

// Stdout implements runtime.LogSource. The CLI writes the container's stdout
// to its own stdout, so stderr is ignored.
func (c CommandLogs) Stdout(ctx context.Context, containerName string) (string, error) {
	bin := c.RuntimeBinary
	if bin == "" {
		bin = "docker"
	}
	res, err := c.Runner.Run(ctx, bin, "logs", containerName)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("%s exited %d: %s", res.Escaped(), res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}
