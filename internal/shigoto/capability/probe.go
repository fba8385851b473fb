// Package capability detects whether this machine can genuinely checkpoint
// and restore containers.
//
// Detection is fail-closed: any doubt about the checkpoint tool or the
// runtime's checkpoint support resolves to simulated restores (pause/unpause)
// and is never reported as an error.
package capability

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bdobrica/Shigoto/internal/shigoto/command"
)

// Capability is the outcome of a probe.
type Capability struct {
	// CanCheckpoint is true when both the checkpoint tool and the runtime's
	// checkpoint command are usable.
	CanCheckpoint bool
	// WillSimulate is true when restores must use pause/unpause.
	WillSimulate bool
}

// Config selects the binaries probed.
type Config struct {
	// RuntimeBinary is the container runtime CLI (default "docker").
	RuntimeBinary string
	// CheckpointBinary is the checkpoint tool (default "criu").
	CheckpointBinary string
	// ForceSimulate makes every restore simulated regardless of detection.
	ForceSimulate bool
}

// Observer is notified once per completed detection.
type Observer func(Capability)

// Probe runs detection at most once and caches the result. All methods are
// safe for concurrent use.
type Probe struct {
	cfg      Config
	runner   command.Runner
	logger   *slog.Logger
	observer Observer

	group singleflight.Group

	mu          sync.RWMutex
	initialized bool
	canCheckpt  bool
}

// Option configures a Probe.
type Option func(*Probe)

// WithLogger sets the logger used for degradation messages.
func WithLogger(l *slog.Logger) Option {
	return func(p *Probe) { p.logger = l }
}

// WithObserver registers a callback invoked after each detection.
func WithObserver(o Observer) Option {
	return func(p *Probe) { p.observer = o }
}

// New returns a probe that has not run yet.
func New(runner command.Runner, cfg Config, opts ...Option) *Probe {
	if cfg.RuntimeBinary == "" {
		cfg.RuntimeBinary = "docker"
	}
	if cfg.CheckpointBinary == "" {
		cfg.CheckpointBinary = "criu"
	}
	p := &Probe{cfg: cfg, runner: runner, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Initialize returns the cached capability, running detection first if this
// is the first call. Concurrent first callers share a single detection.
func (p *Probe) Initialize(ctx context.Context) Capability {
	if c, ok := p.cached(); ok {
		return c
	}
	v, _, _ := p.group.Do("probe", func() (any, error) {
		// A caller may have finished detection between cached() and Do.
		if c, ok := p.cached(); ok {
			return c, nil
		}
		can := p.detect(ctx)

		p.mu.Lock()
		p.canCheckpt = can
		p.initialized = true
		p.mu.Unlock()

		c := p.derive(can)
		if p.observer != nil {
			p.observer(c)
		}
		p.logger.Info("checkpoint capability detected",
			"can_checkpoint", c.CanCheckpoint,
			"will_simulate", c.WillSimulate,
			"force_simulate", p.cfg.ForceSimulate)
		return c, nil
	})
	return v.(Capability)
}

// Reprobe discards the cached result and runs detection again.
func (p *Probe) Reprobe(ctx context.Context) Capability {
	p.mu.Lock()
	p.initialized = false
	p.mu.Unlock()
	return p.Initialize(ctx)
}

// Current returns the cached capability and whether detection has run.
func (p *Probe) Current() (Capability, bool) {
	return p.cached()
}

func (p *Probe) cached() (Capability, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return Capability{}, false
	}
	return p.derive(p.canCheckpt), true
}

func (p *Probe) derive(can bool) Capability {
	return Capability{
		CanCheckpoint: can,
		WillSimulate:  !can || p.cfg.ForceSimulate,
	}
}

// detect runs the checkpoint tool's version command, then the runtime's
// checkpoint command. The first failure ends detection.
func (p *Probe) detect(ctx context.Context) bool {
	if !p.try(ctx, "checkpoint tool unavailable", p.cfg.CheckpointBinary, "--version") {
		return false
	}
	if !p.try(ctx, "runtime checkpoint support unavailable", p.cfg.RuntimeBinary, "checkpoint", "--help") {
		return false
	}
	return true
}

func (p *Probe) try(ctx context.Context, msg, name string, args ...string) bool {
	res, err := p.runner.Run(ctx, name, args...)
	if err != nil {
		p.logger.Warn(msg+", restores will be simulated", "command", command.Escape(name, args...), "err", err)
		return false
	}
	if !res.OK() {
		p.logger.Warn(msg+", restores will be simulated",
			"command", res.Escaped(),
			"exit_code", res.ExitCode,
			"stderr", res.Stderr)
		return false
	}
	return true
}
