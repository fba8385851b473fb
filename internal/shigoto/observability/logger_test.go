package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/bdobrica/Shigoto/common/trace"
	"github.com/bdobrica/Shigoto/internal/shigoto/observability"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := observability.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithTrace_AddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	base := observability.NewLogger(&buf, "info", "json")
	ctx := trace.WithTraceID(context.Background(), "t_abc")

	observability.WithTrace(ctx, base).Info("restore finished")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["trace_id"] != "t_abc" {
		t.Errorf("trace_id = %v, want t_abc", rec["trace_id"])
	}
}

func TestWithTrace_NoTraceReturnsBase(t *testing.T) {
	base := observability.NewLogger(&bytes.Buffer{}, "info", "text")
	if got := observability.WithTrace(context.Background(), base); got != base {
		t.Error("expected base logger when ctx has no trace")
	}
}
