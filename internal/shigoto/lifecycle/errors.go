package lifecycle

import (
	"errors"
	"fmt"

	"github.com/bdobrica/Shigoto/internal/shigoto/command"
)

// ErrInvalidRequest is wrapped by errors for requests missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// RuntimeCommandError reports a runtime command that ran but exited non-zero
// during an operation whose failure must reach the coordinator.
type RuntimeCommandError struct {
	Op        string
	Container string
	Result    command.Result
}

func (e *RuntimeCommandError) Error() string {
	return fmt.Sprintf("%s %s: %s exited %d: %s",
		e.Op, e.Container, e.Result.Escaped(), e.Result.ExitCode, e.Result.Stderr)
}
