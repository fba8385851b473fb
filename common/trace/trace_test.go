package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/bdobrica/Shigoto/common/trace"
)

func TestGenerateID_Unique(t *testing.T) {
	a, b := trace.GenerateID(), trace.GenerateID()
	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
	if !strings.HasPrefix(a, "t_") {
		t.Errorf("expected t_ prefix, got %q", a)
	}
}

func TestEnsure(t *testing.T) {
	ctx := trace.Ensure(context.Background(), "t_given")
	if got := trace.FromContext(ctx); got != "t_given" {
		t.Fatalf("got %q, want t_given", got)
	}
	// An existing ID is never replaced.
	if got := trace.FromContext(trace.Ensure(ctx, "t_other")); got != "t_given" {
		t.Fatalf("got %q, want t_given", got)
	}
	if got := trace.FromContext(trace.Ensure(context.Background(), "")); got == "" {
		t.Fatal("expected a generated ID")
	}
}
