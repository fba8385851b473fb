// Package commandtest provides a scriptable command.Runner for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/Shigoto/internal/shigoto/command"
)

// Call records one invocation seen by Fake.
type Call struct {
	Name string
	Args []string
	At   time.Time
}

// Line returns the invocation joined with single spaces.
func (c Call) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Handler produces the outcome for a matched invocation.
type Handler func(ctx context.Context, name string, args []string) (command.Result, error)

type rule struct {
	prefix  string
	handler Handler
}

// Fake is a command.Runner that records calls and answers them from rules
// matched by command-line prefix. The most recently added matching rule wins.
// Unmatched calls succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	calls []Call
}

// New returns an empty Fake.
func New() *Fake { return &Fake{} }

// On registers h for invocations whose Line starts with prefix.
func (f *Fake) On(prefix string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{prefix: prefix, handler: h})
	return f
}

// Exit answers matching invocations with the given exit code and output.
func (f *Fake) Exit(prefix string, code int, stdout, stderr string) *Fake {
	return f.On(prefix, func(_ context.Context, name string, args []string) (command.Result, error) {
		return command.Result{Command: name, Args: args, ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
	})
}

// Fail answers matching invocations with a launch error.
func (f *Fake) Fail(prefix string, err error) *Fake {
	return f.On(prefix, func(_ context.Context, name string, args []string) (command.Result, error) {
		return command.Result{Command: name, Args: args}, &command.LaunchError{Command: name, Err: err}
	})
}

// Run implements command.Runner.
func (f *Fake) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	call := Call{Name: name, Args: append([]string(nil), args...), At: time.Now()}
	line := call.Line()

	f.mu.Lock()
	f.calls = append(f.calls, call)
	var h Handler
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.rules[i].prefix) {
			h = f.rules[i].handler
			break
		}
	}
	f.mu.Unlock()

	if h == nil {
		return command.Result{Command: name, Args: args}, nil
	}
	return h(ctx, name, args)
}

// Calls returns a snapshot of every recorded invocation.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsWithPrefix returns the recorded invocations whose Line starts with prefix.
func (f *Fake) CallsWithPrefix(prefix string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.Line(), prefix) {
			out = append(out, c)
		}
	}
	return out
}
