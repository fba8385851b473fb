package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunLister enumerates run containers known to the runtime.
type RunLister interface {
	ListRuns(ctx context.Context) ([]Status, error)
}

// WatcherConfig configures the observation loop.
type WatcherConfig struct {
	// Interval is how often to poll container state. Defaults to 30s.
	Interval time.Duration
	// Report receives the number of runs per state after every pass.
	Report func(counts map[ContainerState]int)
}

// Watcher periodically lists run containers and logs state changes. It keeps
// only the last observed state in memory; the runtime stays the source of
// truth.
type Watcher struct {
	lister RunLister
	cfg    WatcherConfig
	logger *slog.Logger
	last   map[string]ContainerState
}

// NewWatcher creates a Watcher. A nil logger means slog.Default().
func NewWatcher(l RunLister, cfg WatcherConfig, logger *slog.Logger) *Watcher {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{lister: l, cfg: cfg, logger: logger}
}

// Run starts the observation loop. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("run watcher starting", "interval", w.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("run watcher stopping")
			return
		case <-ticker.C:
			if err := w.Observe(ctx); err != nil {
				w.logger.Warn("run watcher pass failed", "err", err)
			}
		}
	}
}

// Observe runs a single pass. Not safe for concurrent use with itself.
func (w *Watcher) Observe(ctx context.Context) error {
	runs, err := w.lister.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	current := make(map[string]ContainerState, len(runs))
	counts := make(map[ContainerState]int)
	for _, r := range runs {
		current[r.RunID] = r.State
		counts[r.State]++

		prev, seen := w.last[r.RunID]
		switch {
		case w.last == nil:
			// First pass establishes the baseline.
		case !seen:
			w.logger.Info("run container appeared", "run_id", r.RunID, "state", r.State)
		case prev != r.State:
			w.logger.Info("run state changed", "run_id", r.RunID, "from", prev, "to", r.State)
		}
	}
	for runID, prev := range w.last {
		if _, ok := current[runID]; !ok {
			w.logger.Info("run container removed", "run_id", runID, "last_state", prev)
		}
	}
	w.last = current

	if w.cfg.Report != nil {
		w.cfg.Report(counts)
	}
	return nil
}
