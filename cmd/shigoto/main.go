// Shigoto is the per-machine task execution agent.
//
// It launches task containers on behalf of the coordinator, resumes
// checkpointed or paused runs and signals running tasks through their
// in-container control server. Configuration is read from environment
// variables, optionally backed by a flat YAML file.
//
// Environment variables:
//
//	SHIGOTO_CONFIG_FILE          - YAML file of KEY: value defaults (environment wins)
//	SHIGOTO_NODE_NAME            - machine identity (default: hostname)
//	COORDINATOR_HOST             - coordinator address passed to tasks (default "127.0.0.1")
//	COORDINATOR_PORT             - coordinator port passed to tasks (default 8020)
//	OTEL_EXPORTER_OTLP_ENDPOINT  - collector URL passed to tasks
//	SHIGOTO_TRACING_ENABLED      - export the agent's own spans to the collector (default false)
//	FORCE_CHECKPOINT_SIMULATION  - always restore with pause/unpause (default true)
//	SHIGOTO_HTTP_ADDR            - operation API listen address (default ":8000")
//	SHIGOTO_API_TOKEN            - bearer token required on /v1 routes (default: none)
//	SHIGOTO_RUNTIME_BIN          - container runtime CLI (default "docker")
//	SHIGOTO_CHECKPOINT_BIN       - checkpoint tool (default "criu")
//	SHIGOTO_NETWORK              - network task containers join (default "host")
//	SHIGOTO_LOG_SOURCE           - "cli" or "engine" for reading container output (default "cli")
//	SHIGOTO_WATCH_INTERVAL       - poll run container states via the Engine API, e.g. "30s" (default: off)
//	LOG_LEVEL                    - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT                   - "text" or "json" (default: "text")
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bdobrica/Shigoto/common/environment"
	"github.com/bdobrica/Shigoto/common/version"
	"github.com/bdobrica/Shigoto/internal/shigoto/app"
	"github.com/bdobrica/Shigoto/internal/shigoto/observability"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	src, err := environment.FromFile(os.Getenv("SHIGOTO_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	cfg, err := app.LoadConfig(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger := observability.Setup(cfg.LogLevel, cfg.LogFormat)

	agent, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialize shigoto", "err", err)
		os.Exit(1)
	}

	if err := agent.Run(); err != nil {
		slog.Error("shigoto exited with error", "err", err)
		os.Exit(1)
	}
}
