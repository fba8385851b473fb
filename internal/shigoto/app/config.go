package app

import (
	"fmt"
	"os"
	"time"

	"github.com/bdobrica/Shigoto/common/environment"
)

// Log sources for control-port discovery.
const (
	LogSourceCLI    = "cli"
	LogSourceEngine = "engine"
)

// Config holds agent configuration.
type Config struct {
	// NodeName identifies this machine. Defaults to the hostname.
	NodeName string
	// CoordinatorHost and CoordinatorPort are passed to every task container.
	CoordinatorHost string
	CoordinatorPort int
	// OTLPEndpoint is the collector task containers export to. When
	// TracingEnabled is set the agent exports its own spans there too.
	OTLPEndpoint   string
	TracingEnabled bool
	// ForceSimulate makes every restore use pause/unpause.
	ForceSimulate bool

	// HTTPAddr is the listen address of the operation API.
	HTTPAddr string
	// APIToken, when set, is required as a bearer token on /v1 routes.
	APIToken string

	RuntimeBinary    string
	CheckpointBinary string
	// Network is the container network tasks join. A network other than the
	// predefined ones is created at startup through the Engine API.
	Network string
	// LogSource selects how container output is read for port discovery:
	// "cli" runs "<runtime> logs", "engine" uses the Docker Engine API.
	LogSource string
	// WatchInterval enables a loop that reports run container states through
	// the Engine API. Zero disables it.
	WatchInterval time.Duration

	LogLevel  string
	LogFormat string
}

// LoadConfig reads the configuration from src.
func LoadConfig(src *environment.Source) (*Config, error) {
	cfg := &Config{
		NodeName:         src.StringOr("SHIGOTO_NODE_NAME", ""),
		CoordinatorHost:  src.StringOr("COORDINATOR_HOST", "127.0.0.1"),
		CoordinatorPort:  src.IntOr("COORDINATOR_PORT", 8020),
		OTLPEndpoint:     src.StringOr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TracingEnabled:   src.BoolOr("SHIGOTO_TRACING_ENABLED", false),
		ForceSimulate:    src.BoolOr("FORCE_CHECKPOINT_SIMULATION", true),
		HTTPAddr:         src.StringOr("SHIGOTO_HTTP_ADDR", ":8000"),
		APIToken:         src.StringOr("SHIGOTO_API_TOKEN", ""),
		RuntimeBinary:    src.StringOr("SHIGOTO_RUNTIME_BIN", "docker"),
		CheckpointBinary: src.StringOr("SHIGOTO_CHECKPOINT_BIN", "criu"),
		Network:          src.StringOr("SHIGOTO_NETWORK", "host"),
		LogSource:        src.StringOr("SHIGOTO_LOG_SOURCE", LogSourceCLI),
		WatchInterval:    src.DurationOr("SHIGOTO_WATCH_INTERVAL", 0),
		LogLevel:         src.StringOr("LOG_LEVEL", "info"),
		LogFormat:        src.StringOr("LOG_FORMAT", "text"),
	}

	if cfg.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("SHIGOTO_NODE_NAME unset and hostname unavailable: %w", err)
		}
		cfg.NodeName = host
	}
	if cfg.CoordinatorPort < 1 || cfg.CoordinatorPort > 65535 {
		return nil, fmt.Errorf("COORDINATOR_PORT %d out of range", cfg.CoordinatorPort)
	}
	switch cfg.LogSource {
	case LogSourceCLI, LogSourceEngine:
	default:
		return nil, fmt.Errorf("SHIGOTO_LOG_SOURCE must be %q or %q, got %q", LogSourceCLI, LogSourceEngine, cfg.LogSource)
	}
	if cfg.WatchInterval < 0 {
		return nil, fmt.Errorf("SHIGOTO_WATCH_INTERVAL must not be negative")
	}
	if cfg.TracingEnabled && cfg.OTLPEndpoint == "" {
		return nil, fmt.Errorf("SHIGOTO_TRACING_ENABLED requires OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return cfg, nil
}
