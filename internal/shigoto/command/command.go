// Package command is the boundary between the agent and the external tools it
// drives: the container runtime CLI and the checkpoint tool.
//
// A Runner reports two kinds of outcome. A non-nil error means the process
// could not be launched at all (missing binary, permission denied). A process
// that ran but exited non-zero is reported through Result.ExitCode with a nil
// error, so callers decide per operation whether that is fatal.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// Runner invokes an external command and captures its outcome.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Result is the captured outcome of a command that was launched.
type Result struct {
	Command  string
	Args     []string
	// ExitCode is -1 when the process was terminated by a signal.
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Escaped renders the command line quoted for a POSIX shell.
func (r Result) Escaped() string {
	return Escape(r.Command, r.Args...)
}

// Escape quotes name and args for a POSIX shell.
func Escape(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(name))
	for _, a := range args {
		parts = append(parts, shellescape.Quote(a))
	}
	return strings.Join(parts, " ")
}

// LaunchError is returned when a command could not be started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Env, when non-nil, replaces the inherited environment of every child.
	Env []string
}

// NewExecRunner returns a runner that inherits the agent's environment.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Command: name,
		Args:    args,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, &LaunchError{Command: name, Err: err}
}
