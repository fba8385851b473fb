// Package hooks delivers lifecycle signals to the control server running
// inside a task container.
//
// The control server binds an ephemeral port and announces it on stdout
// ("http server listening on port N"). The dispatcher reads that port from a
// log snapshot and issues GET /<kind>?cause=<cause> from inside the container
// with the runtime's exec command. PostStart is retried with capped
// exponential backoff; PreStop is attempted once.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bdobrica/Shigoto/common/retry"
	"github.com/bdobrica/Shigoto/internal/shigoto/command"
	"github.com/bdobrica/Shigoto/internal/shigoto/metrics"
	"github.com/bdobrica/Shigoto/internal/shigoto/observability"
	"github.com/bdobrica/Shigoto/internal/shigoto/runtime"
)

const (
	// PostStartMaxRetries bounds PostStart to seven attempts in total.
	PostStartMaxRetries = 6

	postStartBase   = 50 * time.Millisecond
	postStartMax    = 1150 * time.Millisecond
	postStartJitter = 50 * time.Millisecond
)

// PostStartSchedule is the wait before PostStart retry n:
// min(2^n * 50ms, 1150ms) plus up to 50ms of jitter.
var PostStartSchedule = retry.CappedExponential{
	Base:   postStartBase,
	Max:    postStartMax,
	Jitter: postStartJitter,
}

// defaultFetch is run inside the container with the hook URL appended.
var defaultFetch = []string{"busybox", "wget", "-q", "-O-"}

// Config controls how hooks reach the container.
type Config struct {
	// RuntimeBinary is the container runtime CLI (default "docker").
	RuntimeBinary string
	// FetchCommand is the in-container HTTP client invocation; the hook URL
	// is appended as the final argument.
	FetchCommand []string
	// Host is the address the control server listens on inside the
	// container (default 127.0.0.1).
	Host string
}

// Dispatcher sends lifecycle signals. It holds no per-container state and is
// safe for concurrent use.
type Dispatcher struct {
	cfg     Config
	runner  command.Runner
	logs    runtime.LogSource
	logger  *slog.Logger
	metrics *metrics.Metrics
	timer   func() backoff.Timer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics records delivery attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTimer supplies the backoff timer for each Send. Tests use it to observe
// the schedule without sleeping.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(d *Dispatcher) { d.timer = newTimer }
}

// New returns a Dispatcher that reads ports from logs and executes hook
// requests through runner.
func New(runner command.Runner, logs runtime.LogSource, cfg Config, opts ...Option) *Dispatcher {
	if cfg.RuntimeBinary == "" {
		cfg.RuntimeBinary = "docker"
	}
	if len(cfg.FetchCommand) == 0 {
		cfg.FetchCommand = defaultFetch
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	d := &Dispatcher{
		cfg:    cfg,
		runner: runner,
		logs:   logs,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SendPostStart notifies the container that it has been resumed.
func (d *Dispatcher) SendPostStart(ctx context.Context, containerName string, cause RestoreCause) error {
	return d.Send(ctx, containerName, PostStart(cause))
}

// SendPreStop notifies the container that it is about to be torn down.
func (d *Dispatcher) SendPreStop(ctx context.Context, containerName string, cause TerminateCause) error {
	return d.Send(ctx, containerName, PreStop(cause))
}

// Send delivers sig to the container. Every attempt re-reads the port, so a
// control server that announces itself late is picked up by a PostStart retry.
func (d *Dispatcher) Send(ctx context.Context, containerName string, sig Signal) error {
	log := observability.WithTrace(ctx, d.logger).With(
		"container", containerName,
		"hook", string(sig.Kind()),
		"cause", sig.Cause(),
	)

	cfg := d.policy(sig.Kind())
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("hook delivery failed, retrying", "attempt", attempt, "delay", delay, "err", err)
	}
	if d.timer != nil {
		cfg.Timer = d.timer()
	}

	attempts, err := retry.Do(ctx, cfg, func(int) error {
		err := d.attempt(ctx, containerName, sig)
		d.metrics.HookAttempt(string(sig.Kind()), err)
		return err
	})
	if err != nil {
		log.Error("hook delivery failed", "attempts", attempts, "err", err)
		return &HookError{Kind: sig.Kind(), Container: containerName, Attempts: attempts, Err: err}
	}
	log.Info("hook delivered", "attempts", attempts)
	return nil
}

// policy selects the retry budget for a hook kind.
func (d *Dispatcher) policy(kind Kind) retry.Config {
	switch kind {
	case KindPostStart:
		return retry.Config{MaxRetries: PostStartMaxRetries, Schedule: PostStartSchedule}
	default:
		return retry.Config{MaxRetries: 0}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, containerName string, sig Signal) error {
	port, err := DiscoverPort(ctx, d.logs, containerName)
	if err != nil {
		return err
	}

	args := make([]string, 0, len(d.cfg.FetchCommand)+3)
	args = append(args, "exec", containerName)
	args = append(args, d.cfg.FetchCommand...)
	args = append(args, d.URL(port, sig))

	res, err := d.runner.Run(ctx, d.cfg.RuntimeBinary, args...)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s exited %d: %s", res.Escaped(), res.ExitCode, res.Stderr)
	}
	return nil
}

// URL returns the in-container address for sig on port.
func (d *Dispatcher) URL(port int, sig Signal) string {
	return "http://" + d.cfg.Host + ":" + strconv.Itoa(port) + sig.Path()
}
