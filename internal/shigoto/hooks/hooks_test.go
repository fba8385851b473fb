package hooks_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Shigoto/internal/shigoto/command"
	"github.com/bdobrica/Shigoto/internal/shigoto/command/commandtest"
	"github.com/bdobrica/Shigoto/internal/shigoto/hooks"
	"github.com/bdobrica/Shigoto/internal/shigoto/metrics"
)

const sampleOutput = "starting worker\nhttp server listening on port 4000\nready\n"

// recordingTimer fires immediately and records each requested delay.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (r *recordingTimer) Start(d time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func (r *recordingTimer) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newDispatcher(runner *commandtest.Fake, opts ...hooks.Option) *hooks.Dispatcher {
	logs := hooks.CommandLogs{Runner: runner}
	return hooks.New(runner, logs, hooks.Config{}, opts...)
}

// failExecTimes makes the first n hook requests exit 1 and later ones succeed.
func failExecTimes(runner *commandtest.Fake, n int32) *atomic.Int32 {
	var calls atomic.Int32
	runner.On("docker exec", func(_ context.Context, name string, args []string) (command.Result, error) {
		c := calls.Add(1)
		if c <= n {
			return command.Result{Command: name, Args: args, ExitCode: 1, Stderr: "wget: can't connect to remote host"}, nil
		}
		return command.Result{Command: name, Args: args}, nil
	})
	return &calls
}

func TestParsePort(t *testing.T) {
	port, err := hooks.ParsePort("task-run-run_9", "...\nhttp server listening on port 4000\n...")
	require.NoError(t, err)
	assert.Equal(t, 4000, port)
}

func TestParsePort_FirstMatchWins(t *testing.T) {
	port, err := hooks.ParsePort("c", "http server listening on port 4100\nhttp server listening on port 4200\n")
	require.NoError(t, err)
	assert.Equal(t, 4100, port)
}

func TestParsePort_Errors(t *testing.T) {
	for _, out := range []string{
		"",
		"server starting\n",
		"http server listening on port \n",
		"http server listening on port 99999999999999999999999\n",
		"http server listening on port 70000\n",
	} {
		_, err := hooks.ParsePort("task-run-x", out)
		var pde *hooks.PortDiscoveryError
		require.Truef(t, errors.As(err, &pde), "output %q: expected PortDiscoveryError, got %v", out, err)
		assert.Equal(t, "task-run-x", pde.Container)
	}
}

func TestSignalPaths(t *testing.T) {
	assert.Equal(t, "/postStart?cause=restore", hooks.PostStart(hooks.CauseRestore).Path())
	assert.Equal(t, "/preStop?cause=terminate", hooks.PreStop(hooks.CauseTerminate).Path())
	assert.Equal(t, hooks.KindPostStart, hooks.PostStart(hooks.CauseRestore).Kind())
	assert.Equal(t, "terminate", hooks.PreStop(hooks.CauseTerminate).Cause())
}

func TestSendPostStart_RequestShape(t *testing.T) {
	runner := commandtest.New().Exit("docker logs task-run-run_9", 0, sampleOutput, "")
	d := newDispatcher(runner)

	require.NoError(t, d.SendPostStart(context.Background(), "task-run-run_9", hooks.CauseRestore))

	execs := runner.CallsWithPrefix("docker exec")
	require.Len(t, execs, 1)
	assert.Equal(t,
		"docker exec task-run-run_9 busybox wget -q -O- http://127.0.0.1:4000/postStart?cause=restore",
		execs[0].Line())
}

func TestSendPostStart_SucceedsOnSeventhAttempt(t *testing.T) {
	runner := commandtest.New().Exit("docker logs", 0, sampleOutput, "")
	calls := failExecTimes(runner, 6)
	timer := newRecordingTimer()
	d := newDispatcher(runner, hooks.WithTimer(func() backoff.Timer { return timer }))

	require.NoError(t, d.SendPostStart(context.Background(), "task-run-run_9", hooks.CauseRestore))
	assert.Equal(t, int32(7), calls.Load())

	delays := timer.Delays()
	require.Len(t, delays, 6)
	for n, got := range delays {
		lo := time.Duration(50<<uint(n)) * time.Millisecond
		if lo > 1150*time.Millisecond {
			lo = 1150 * time.Millisecond
		}
		hi := lo + 50*time.Millisecond
		assert.Truef(t, got >= lo && got <= hi, "retry %d delay %v outside [%v, %v]", n, got, lo, hi)
	}
}

func TestSendPostStart_ExhaustsRetries(t *testing.T) {
	runner := commandtest.New().
		Exit("docker logs", 0, sampleOutput, "").
		Exit("docker exec", 1, "", "connection refused")
	timer := newRecordingTimer()
	d := newDispatcher(runner, hooks.WithTimer(func() backoff.Timer { return timer }))

	err := d.SendPostStart(context.Background(), "task-run-run_9", hooks.CauseRestore)

	var hookErr *hooks.HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, hooks.KindPostStart, hookErr.Kind)
	assert.Equal(t, 7, hookErr.Attempts)
	assert.Contains(t, err.Error(), "postStart")
	assert.Len(t, runner.CallsWithPrefix("docker exec"), 7)
	assert.Len(t, timer.Delays(), 6)
}

func TestSendPostStart_LatePortAnnouncementIsRetried(t *testing.T) {
	var snapshots atomic.Int32
	runner := commandtest.New().On("docker logs", func(_ context.Context, name string, args []string) (command.Result, error) {
		out := "starting worker\n"
		if snapshots.Add(1) >= 3 {
			out = sampleOutput
		}
		return command.Result{Command: name, Args: args, Stdout: out}, nil
	})
	timer := newRecordingTimer()
	d := newDispatcher(runner, hooks.WithTimer(func() backoff.Timer { return timer }))

	require.NoError(t, d.SendPostStart(context.Background(), "task-run-run_9", hooks.CauseRestore))
	assert.Equal(t, int32(3), snapshots.Load())
	assert.Len(t, runner.CallsWithPrefix("docker exec"), 1)
}

func TestSendPreStop_NeverRetries(t *testing.T) {
	runner := commandtest.New().
		Exit("docker logs", 0, sampleOutput, "").
		Exit("docker exec", 1, "", "connection refused")
	d := newDispatcher(runner)

	start := time.Now()
	err := d.SendPreStop(context.Background(), "task-run-run_9", hooks.CauseTerminate)
	elapsed := time.Since(start)

	var hookErr *hooks.HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, hooks.KindPreStop, hookErr.Kind)
	assert.Equal(t, 1, hookErr.Attempts)
	assert.Len(t, runner.CallsWithPrefix("docker exec"), 1)
	assert.Less(t, elapsed, 40*time.Millisecond, "preStop must fail without backoff")
}

func TestSendPreStop_MissingPortIsPortDiscoveryError(t *testing.T) {
	runner := commandtest.New().Exit("docker logs", 0, "no announcement here\n", "")
	d := newDispatcher(runner)

	err := d.SendPreStop(context.Background(), "task-run-run_9", hooks.CauseTerminate)

	var pde *hooks.PortDiscoveryError
	require.True(t, errors.As(err, &pde))
	assert.Empty(t, runner.CallsWithPrefix("docker exec"))
}

func TestSend_LogReadFailure(t *testing.T) {
	runner := commandtest.New().Exit("docker logs", 1, "", "Error: No such container: task-run-gone")
	d := newDispatcher(runner)

	err := d.SendPreStop(context.Background(), "task-run-gone", hooks.CauseTerminate)
	var pde *hooks.PortDiscoveryError
	require.True(t, errors.As(err, &pde))
	assert.Contains(t, err.Error(), "No such container")
}

func TestSend_RecordsAttemptMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	runner := commandtest.New().Exit("docker logs", 0, sampleOutput, "")
	failExecTimes(runner, 2)
	d := newDispatcher(runner,
		hooks.WithMetrics(metrics.New(reg)),
		hooks.WithTimer(func() backoff.Timer { return newRecordingTimer() }))

	require.NoError(t, d.SendPostStart(context.Background(), "task-run-run_9", hooks.CauseRestore))
	// postStart/error and postStart/ok
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "shigoto_hook_attempts_total"))
}

func TestConfig_CustomRuntimeAndFetch(t *testing.T) {
	runner := commandtest.New().Exit("podman logs", 0, sampleOutput, "")
	d := hooks.New(runner, hooks.CommandLogs{Runner: runner, RuntimeBinary: "podman"}, hooks.Config{
		RuntimeBinary: "podman",
		FetchCommand:  []string{"curl", "-fsS"},
	})

	require.NoError(t, d.SendPreStop(context.Background(), "task-run-1", hooks.CauseTerminate))
	execs := runner.CallsWithPrefix("podman exec")
	require.Len(t, execs, 1)
	assert.Equal(t, "podman exec task-run-1 curl -fsS http://127.0.0.1:4000/preStop?cause=terminate", execs[0].Line())
}
