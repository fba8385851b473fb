// Package api exposes the lifecycle operations to the coordinator over HTTP.
//
// Endpoints:
//
//	POST   /v1/index                  → runtime.IndexRequest   → 202 Accepted
//	POST   /v1/runs                   → runtime.CreateRequest  → 202 Accepted
//	POST   /v1/runs/{runID}/restore   → {"checkpointRef": ...} → 200 OK
//	DELETE /v1/runs/{runID}                                    → 200 OK
//	GET    /v1/runs/{runID}                                    → runtime.Status
//	GET    /health, /status, /metrics
//
// Every request is served on its own goroutine. Operations are detached from
// the request's cancellation: once started, a runtime command or hook retry
// sequence runs to completion even if the coordinator disconnects.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/bdobrica/Shigoto/common/trace"
	"github.com/bdobrica/Shigoto/common/version"
	"github.com/bdobrica/Shigoto/internal/shigoto/capability"
	"github.com/bdobrica/Shigoto/internal/shigoto/command"
	"github.com/bdobrica/Shigoto/internal/shigoto/hooks"
	"github.com/bdobrica/Shigoto/internal/shigoto/lifecycle"
	"github.com/bdobrica/Shigoto/internal/shigoto/runtime"
)

// maxBodyBytes caps request bodies; operation payloads are a few hundred bytes.
const maxBodyBytes = 1 << 20

// Operations is the lifecycle surface served by the API.
type Operations interface {
	Index(ctx context.Context, req runtime.IndexRequest) error
	Create(ctx context.Context, req runtime.CreateRequest) error
	Restore(ctx context.Context, req runtime.RestoreRequest) error
	Delete(ctx context.Context, req runtime.DeleteRequest) error
	Get(ctx context.Context, req runtime.GetRequest) (runtime.Status, error)
	CurrentCapability() (capability.Capability, bool)
}

// Server is the coordinator-facing HTTP server.
type Server struct {
	addr      string
	ops       Operations
	token     string
	metrics   http.Handler
	logger    *slog.Logger
	startedAt time.Time
	mux       *http.ServeMux
	server    *http.Server
	stopOnce  sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on /v1 routes.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates and configures the server (does not start it).
func New(addr string, ops Operations, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		ops:       ops,
		logger:    slog.Default(),
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("POST /v1/index", s.handleIndex)
	v1.HandleFunc("POST /v1/runs", s.handleCreate)
	v1.HandleFunc("POST /v1/runs/{runID}/restore", s.handleRestore)
	v1.HandleFunc("DELETE /v1/runs/{runID}", s.handleDelete)
	v1.HandleFunc("GET /v1/runs/{runID}", s.handleGet)

	s.mux.Handle("/v1/", s.authMiddleware(v1))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
	return s
}

// ServeHTTP implements http.Handler so the server can be tested with
// httptest without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins listening in the background. It returns once the listener is
// bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api server: listen %s: %w", s.addr, err)
	}

	// No WriteTimeout: a restore may spend several seconds in hook retries.
	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("api server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts down the server, waiting briefly for in-flight operations.
// Calls after the first are no-ops.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("api server shutdown error", "err", err)
		}
	})
}

// authMiddleware rejects requests without the configured bearer token. An
// empty token disables authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if auth[len("Bearer "):] != s.token {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// operationContext detaches the operation from request cancellation and
// carries the coordinator's trace over.
func operationContext(w http.ResponseWriter, r *http.Request) context.Context {
	ctx := context.WithoutCancel(r.Context())
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
	ctx = trace.Ensure(ctx, r.Header.Get(trace.Header))
	w.Header().Set(trace.Header, trace.FromContext(ctx))
	return ctx
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req runtime.IndexRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := operationContext(w, r)
	if err := s.ops.Index(ctx, req); err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"container": runtime.IndexContainerName(req.ShortCode)})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req runtime.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := operationContext(w, r)
	if err := s.ops.Create(ctx, req); err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"container": runtime.RunContainerName(req.RunID)})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CheckpointRef string `json:"checkpointRef"`
	}
	if r.ContentLength != 0 && !decode(w, r, &body) {
		return
	}
	req := runtime.RestoreRequest{RunID: r.PathValue("runID"), CheckpointRef: body.CheckpointRef}
	ctx := operationContext(w, r)
	if err := s.ops.Restore(ctx, req); err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := operationContext(w, r)
	if err := s.ops.Delete(ctx, runtime.DeleteRequest{RunID: r.PathValue("runID")}); err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signaled"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := operationContext(w, r)
	st, err := s.ops.Get(ctx, runtime.GetRequest{RunID: r.PathValue("runID")})
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- health & status ---

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type capabilityStatus struct {
	Initialized   bool `json:"initialized"`
	CanCheckpoint bool `json:"can_checkpoint"`
	WillSimulate  bool `json:"will_simulate"`
}

type statusResponse struct {
	Status     string           `json:"status"`
	Version    string           `json:"version"`
	Commit     string           `json:"commit"`
	BuildTime  string           `json:"build_time"`
	StartedAt  time.Time        `json:"started_at"`
	UptimeSecs float64          `json:"uptime_seconds"`
	Capability capabilityStatus `json:"capability"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.ops.CurrentCapability()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  s.startedAt,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
		Capability: capabilityStatus{
			Initialized:   ok,
			CanCheckpoint: c.CanCheckpoint,
			WillSimulate:  c.WillSimulate,
		},
	})
}

// --- helpers ---

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeOpError maps operation errors onto HTTP statuses. Runtime and hook
// failures are reported as 502: the agent is healthy, the workload is not.
func (s *Server) writeOpError(w http.ResponseWriter, err error) {
	var (
		rce    *lifecycle.RuntimeCommandError
		hookE  *hooks.HookError
		portE  *hooks.PortDiscoveryError
		launch *command.LaunchError
	)
	switch {
	case errors.Is(err, lifecycle.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &rce):
		writeError(w, http.StatusBadGateway, "runtime_command", err.Error())
	case errors.As(err, &hookE):
		writeError(w, http.StatusBadGateway, "lifecycle_hook", err.Error())
	case errors.As(err, &portE):
		writeError(w, http.StatusBadGateway, "port_discovery", err.Error())
	case errors.As(err, &launch):
		writeError(w, http.StatusInternalServerError, "launch", err.Error())
	default:
		s.logger.Error("unexpected operation error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: failed to encode JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}
