// Package lifecycle implements the operations the coordinator invokes on this
// machine: index, create, restore, delete and get.
//
// Containers are addressed by deterministic names (see runtime.RunContainerName);
// the container runtime is the only record of what exists. Operations on
// different runs share nothing but the capability probe, so callers may run
// them concurrently.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bdobrica/Shigoto/common/redact"
	"github.com/bdobrica/Shigoto/internal/shigoto/capability"
	"github.com/bdobrica/Shigoto/internal/shigoto/command"
	"github.com/bdobrica/Shigoto/internal/shigoto/hooks"
	"github.com/bdobrica/Shigoto/internal/shigoto/metrics"
	"github.com/bdobrica/Shigoto/internal/shigoto/observability"
	"github.com/bdobrica/Shigoto/internal/shigoto/runtime"
)

const tracerName = "github.com/bdobrica/Shigoto/internal/shigoto/lifecycle"

// Operation names used in logs, spans and metrics.
const (
	OpIndex   = "index"
	OpCreate  = "create"
	OpRestore = "restore"
	OpDelete  = "delete"
	OpGet     = "get"
)

// Signaler delivers lifecycle hooks to a container.
type Signaler interface {
	SendPostStart(ctx context.Context, containerName string, cause hooks.RestoreCause) error
	SendPreStop(ctx context.Context, containerName string, cause hooks.TerminateCause) error
}

// Config is the machine-level configuration injected into task containers.
type Config struct {
	// RuntimeBinary is the container runtime CLI (default "docker").
	RuntimeBinary string
	// Network is the network task containers join (default "host").
	Network string
	// NodeName identifies this machine to the coordinator and to tasks.
	NodeName string
	// CoordinatorHost and CoordinatorPort locate the coordinator.
	CoordinatorHost string
	CoordinatorPort int
	// OTLPEndpoint is the telemetry collector tasks export to.
	OTLPEndpoint string
}

// Manager runs lifecycle operations against the container runtime.
type Manager struct {
	cfg     Config
	runner  command.Runner
	probe   *capability.Probe
	hooks   Signaler
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records operation outcomes.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer(tracerName) }
}

// New returns a Manager. The probe is shared by every operation and runs on
// first use.
func New(runner command.Runner, probe *capability.Probe, signaler Signaler, cfg Config, opts ...Option) *Manager {
	if cfg.RuntimeBinary == "" {
		cfg.RuntimeBinary = "docker"
	}
	if cfg.Network == "" {
		cfg.Network = "host"
	}
	m := &Manager{
		cfg:    cfg,
		runner: runner,
		probe:  probe,
		hooks:  signaler,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Capability returns the probe result, running the probe if needed.
func (m *Manager) Capability(ctx context.Context) capability.Capability {
	return m.probe.Initialize(ctx)
}

// CurrentCapability returns the probe result without probing; ok is false
// until the first operation (or Capability) has run it.
func (m *Manager) CurrentCapability() (c capability.Capability, ok bool) {
	return m.probe.Current()
}

// Index launches a short-lived container that enumerates the tasks in
// req.ImageRef and waits for it to exit. A non-zero exit is logged and
// swallowed; only a failure to launch the runtime is returned.
func (m *Manager) Index(ctx context.Context, req runtime.IndexRequest) error {
	if req.ImageRef == "" || req.ShortCode == "" {
		return invalid("index requires imageRef and shortCode")
	}
	name := runtime.IndexContainerName(req.ShortCode)
	return m.run(ctx, OpIndex, name, func(ctx context.Context, log *slog.Logger) error {
		m.probe.Initialize(ctx)

		args := []string{"run", "--rm", "--name", name, "--network", m.cfg.Network}
		args = appendEnv(args,
			"INDEX_TASKS", "true",
			"TASK_SECRET_KEY", req.APIKey,
			"TASK_API_URL", req.APIURL,
			"TASK_ENV_ID", req.EnvID,
			"OTEL_EXPORTER_OTLP_ENDPOINT", m.cfg.OTLPEndpoint,
			"NODE_NAME", m.cfg.NodeName,
			"COORDINATOR_HOST", m.cfg.CoordinatorHost,
			"COORDINATOR_PORT", strconv.Itoa(m.cfg.CoordinatorPort),
			"POD_NAME", name,
		)
		args = append(args, req.ImageRef)

		return m.launchWorkload(ctx, log, OpIndex, args, req.APIKey)
	})
}

// Create launches a detached run container. Like Index, a non-zero exit is
// logged and swallowed.
func (m *Manager) Create(ctx context.Context, req runtime.CreateRequest) error {
	if req.Image == "" || req.RunID == "" {
		return invalid("create requires image and runId")
	}
	name := runtime.RunContainerName(req.RunID)
	return m.run(ctx, OpCreate, name, func(ctx context.Context, log *slog.Logger) error {
		m.probe.Initialize(ctx)

		args := []string{"run", "-d", "--name", name, "--network", m.cfg.Network}
		args = appendEnv(args,
			"TASK_ENV_ID", req.EnvID,
			"TASK_RUN_ID", req.RunID,
			"OTEL_EXPORTER_OTLP_ENDPOINT", m.cfg.OTLPEndpoint,
			"COORDINATOR_HOST", m.cfg.CoordinatorHost,
			"COORDINATOR_PORT", strconv.Itoa(m.cfg.CoordinatorPort),
			"POD_NAME", name,
			"NODE_NAME", m.cfg.NodeName,
		)
		args = append(args, req.Image)

		return m.launchWorkload(ctx, log, OpCreate, args)
	})
}

// Restore resumes a suspended run and then sends it PostStart. With real
// checkpoint support the container is started from req.CheckpointRef;
// otherwise it is unpaused, which requires it to be paused already.
//
// If the hook fails the container is already running; the error is still
// returned so the coordinator can decide what to do.
func (m *Manager) Restore(ctx context.Context, req runtime.RestoreRequest) error {
	if req.RunID == "" {
		return invalid("restore requires runId")
	}
	name := runtime.RunContainerName(req.RunID)
	return m.run(ctx, OpRestore, name, func(ctx context.Context, log *slog.Logger) error {
		c := m.probe.Initialize(ctx)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("shigoto.simulated", c.WillSimulate))

		var args []string
		if c.WillSimulate {
			args = []string{"unpause", name}
		} else {
			if req.CheckpointRef == "" {
				return invalid("restore requires checkpointRef when checkpointing is enabled")
			}
			args = []string{"start", "--checkpoint=" + req.CheckpointRef, name}
		}

		res, err := m.runner.Run(ctx, m.cfg.RuntimeBinary, args...)
		if err != nil {
			return fmt.Errorf("%s %s: %w", OpRestore, name, err)
		}
		if !res.OK() {
			return &RuntimeCommandError{Op: OpRestore, Container: name, Result: res}
		}
		log.Info("container resumed", "simulated", c.WillSimulate)

		return m.hooks.SendPostStart(ctx, name, hooks.CauseRestore)
	})
}

// Delete sends PreStop to the run's container. The container itself is left
// for an external reaper to remove.
func (m *Manager) Delete(ctx context.Context, req runtime.DeleteRequest) error {
	if req.RunID == "" {
		return invalid("delete requires runId")
	}
	name := runtime.RunContainerName(req.RunID)
	return m.run(ctx, OpDelete, name, func(ctx context.Context, log *slog.Logger) error {
		m.probe.Initialize(ctx)
		return m.hooks.SendPreStop(ctx, name, hooks.CauseTerminate)
	})
}

// Get reports a run's status. Runtime state is not inspected yet, so State
// is always unknown.
func (m *Manager) Get(ctx context.Context, req runtime.GetRequest) (runtime.Status, error) {
	if req.RunID == "" {
		return runtime.Status{}, invalid("get requires runId")
	}
	name := runtime.RunContainerName(req.RunID)
	status := runtime.Status{RunID: req.RunID, ContainerName: name, State: runtime.StateUnknown}
	err := m.run(ctx, OpGet, name, func(context.Context, *slog.Logger) error { return nil })
	return status, err
}

// launchWorkload runs a container whose non-zero exit is a workload problem,
// not an agent problem: it is logged with full diagnostics and swallowed.
func (m *Manager) launchWorkload(ctx context.Context, log *slog.Logger, op string, args []string, secrets ...string) error {
	res, err := m.runner.Run(ctx, m.cfg.RuntimeBinary, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !res.OK() {
		m.metrics.WorkloadExitFailure(op)
		log.Error("container exited non-zero",
			"exit_code", res.ExitCode,
			"command", escapeRedacted(res),
			"stdout", redactOutput(res.Stdout, secrets),
			"stderr", redactOutput(res.Stderr, secrets),
		)
		return nil
	}
	log.Info("container launched", "output", truncate(redact.String(res.Stdout, secrets...), 256))
	return nil
}

// run wraps an operation with a span, a trace-scoped logger and metrics.
func (m *Manager) run(ctx context.Context, op, container string, fn func(context.Context, *slog.Logger) error) error {
	ctx, span := m.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(
		attribute.String("shigoto.container", container),
	))
	defer span.End()

	log := observability.WithTrace(ctx, m.logger).With("op", op, "container", container)
	start := time.Now()
	err := fn(ctx, log)
	elapsed := time.Since(start)
	m.metrics.ObserveOperation(op, err, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("operation failed", "err", err, "duration", elapsed)
		return err
	}
	log.Debug("operation finished", "duration", elapsed)
	return nil
}

// appendEnv appends "-e KEY=VALUE" pairs; kv alternates keys and values.
func appendEnv(args []string, kv ...string) []string {
	for i := 0; i+1 < len(kv); i += 2 {
		args = append(args, "-e", kv[i]+"="+kv[i+1])
	}
	return args
}
