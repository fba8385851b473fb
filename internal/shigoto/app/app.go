// Package app wires the agent together and runs it until a termination
// signal arrives.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdobrica/Shigoto/common/version"
	"github.com/bdobrica/Shigoto/internal/shigoto/api"
	"github.com/bdobrica/Shigoto/internal/shigoto/capability"
	"github.com/bdobrica/Shigoto/internal/shigoto/command"
	"github.com/bdobrica/Shigoto/internal/shigoto/hooks"
	"github.com/bdobrica/Shigoto/internal/shigoto/lifecycle"
	"github.com/bdobrica/Shigoto/internal/shigoto/metrics"
	"github.com/bdobrica/Shigoto/internal/shigoto/runtime"
	"github.com/bdobrica/Shigoto/internal/shigoto/runtime/docker"
	"github.com/bdobrica/Shigoto/internal/shigoto/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App is the running agent.
type App struct {
	cfg      *Config
	logger   *slog.Logger
	runner   command.Runner
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	probe    *capability.Probe
	manager  *lifecycle.Manager
	server   *api.Server
	engine   *docker.Engine

	shutdownTracing telemetry.Shutdown
}

// Option configures an App.
type Option func(*App)

// WithRunner replaces the os/exec command runner.
func WithRunner(r command.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithLogger sets the base logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New builds every component. Nothing touches the runtime until Serve.
func New(cfg *Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.runner == nil {
		a.runner = command.NewExecRunner()
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)
	a.metrics = m

	a.shutdownTracing = func(context.Context) error { return nil }
	if cfg.TracingEnabled {
		shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: "shigoto",
			Version:     version.Version,
			NodeName:    cfg.NodeName,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	}

	var logs runtime.LogSource = hooks.CommandLogs{Runner: a.runner, RuntimeBinary: cfg.RuntimeBinary}
	if cfg.LogSource == LogSourceEngine || cfg.WatchInterval > 0 {
		engine, err := docker.New(cfg.Network)
		if err != nil {
			return nil, err
		}
		a.engine = engine
		if cfg.LogSource == LogSourceEngine {
			logs = engine
		}
	}

	a.probe = capability.New(a.runner, capability.Config{
		RuntimeBinary:    cfg.RuntimeBinary,
		CheckpointBinary: cfg.CheckpointBinary,
		ForceSimulate:    cfg.ForceSimulate,
	},
		capability.WithLogger(a.logger),
		capability.WithObserver(func(c capability.Capability) {
			m.SetCapability(c.CanCheckpoint, c.WillSimulate)
		}),
	)

	dispatcher := hooks.New(a.runner, logs, hooks.Config{RuntimeBinary: cfg.RuntimeBinary},
		hooks.WithLogger(a.logger),
		hooks.WithMetrics(m),
	)

	a.manager = lifecycle.New(a.runner, a.probe, dispatcher, lifecycle.Config{
		RuntimeBinary:   cfg.RuntimeBinary,
		Network:         cfg.Network,
		NodeName:        cfg.NodeName,
		CoordinatorHost: cfg.CoordinatorHost,
		CoordinatorPort: cfg.CoordinatorPort,
		OTLPEndpoint:    cfg.OTLPEndpoint,
	},
		lifecycle.WithLogger(a.logger),
		lifecycle.WithMetrics(m),
	)

	a.server = api.New(cfg.HTTPAddr, a.manager,
		api.WithToken(cfg.APIToken),
		api.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
		api.WithLogger(a.logger),
	)
	return a, nil
}

// Handler returns the operation API handler.
func (a *App) Handler() http.Handler {
	return a.server
}

// Run serves until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve prepares the runtime, probes checkpoint support, starts the API and
// blocks until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Info("starting shigoto",
		"version", version.Info(),
		"node", a.cfg.NodeName,
		"coordinator", fmt.Sprintf("%s:%d", a.cfg.CoordinatorHost, a.cfg.CoordinatorPort),
	)

	if a.engine != nil {
		apiVersion, err := a.engine.Ping(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("docker engine reachable", "api_version", apiVersion)
		if err := a.engine.EnsureNetwork(ctx); err != nil {
			return err
		}
	}

	c := a.manager.Capability(ctx)
	a.logger.Info("checkpoint capability",
		"can_checkpoint", c.CanCheckpoint,
		"will_simulate", c.WillSimulate,
	)

	if a.engine != nil && a.cfg.WatchInterval > 0 {
		w := runtime.NewWatcher(a.engine, runtime.WatcherConfig{
			Interval: a.cfg.WatchInterval,
			Report:   a.reportRuns,
		}, a.logger)
		go w.Run(ctx)
	}

	if err := a.server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down")
	a.Stop()
	return nil
}

func (a *App) reportRuns(counts map[runtime.ContainerState]int) {
	byState := make(map[string]int, len(counts))
	for state, n := range counts {
		byState[string(state)] = n
	}
	a.metrics.SetRuns(byState)
}

// Stop shuts down the API and releases resources.
func (a *App) Stop() {
	a.server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("flush traces", "err", err)
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("close docker client", "err", err)
		}
	}
}
