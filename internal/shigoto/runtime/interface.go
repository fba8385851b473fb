package runtime

import "context"

// LogSource returns a point-in-time snapshot of the standard output a
// container has written so far. It never waits for further output.
type LogSource interface {
	Stdout(ctx context.Context, containerName string) (string, error)
}
