package environment_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/Shigoto/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if got := environment.Env.StringOr("TEST_STRING", "default"); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := environment.Env.StringOr("TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value")
	v, err := environment.Env.RequiredString("TEST_REQUIRED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "value" {
		t.Errorf("expected %q, got %q", "value", v)
	}

	_, err = environment.Env.RequiredString("TEST_REQUIRED_MISSING")
	if err == nil {
		t.Error("expected error for missing variable, got nil")
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !environment.Env.BoolOr("TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("TEST_BOOL", "0")
	if environment.Env.BoolOr("TEST_BOOL", true) {
		t.Error("expected false")
	}
	if !environment.Env.BoolOr("TEST_BOOL_MISSING", true) {
		t.Error("expected default true")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := environment.Env.IntOr("TEST_INT", 0); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT_BAD", "notanint")
	if got := environment.Env.IntOr("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("expected default 7 for bad value, got %d", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("TEST_DUR", "30s")
	if got := environment.Env.DurationOr("TEST_DUR", time.Minute); got != 30*time.Second {
		t.Errorf("expected 30s, got %v", got)
	}
	if got := environment.Env.DurationOr("TEST_DUR_MISSING", time.Minute); got != time.Minute {
		t.Errorf("expected 1m, got %v", got)
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b , c")
	got := environment.Env.StringSliceOr("TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected result: %v", got)
	}
}

func TestFromFile_OverlayAndPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shigoto.yaml")
	doc := "TEST_OVERLAY_HOST: 10.0.0.4\nTEST_OVERLAY_PORT: 8020\nTEST_OVERLAY_SIM: false\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := environment.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got := src.StringOr("TEST_OVERLAY_HOST", ""); got != "10.0.0.4" {
		t.Errorf("host = %q, want 10.0.0.4", got)
	}
	if got := src.IntOr("TEST_OVERLAY_PORT", 0); got != 8020 {
		t.Errorf("port = %d, want 8020", got)
	}
	if src.BoolOr("TEST_OVERLAY_SIM", true) {
		t.Error("expected overlay false to win over default")
	}

	// The environment wins over the file.
	t.Setenv("TEST_OVERLAY_HOST", "192.168.1.9")
	if got := src.StringOr("TEST_OVERLAY_HOST", ""); got != "192.168.1.9" {
		t.Errorf("host = %q, want env value", got)
	}
}

func TestFromFile_EmptyPathIsEnv(t *testing.T) {
	src, err := environment.FromFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src != environment.Env {
		t.Error("expected the plain environment source")
	}
}

func TestFromYAML_RejectsNested(t *testing.T) {
	if _, err := environment.FromYAML([]byte("NESTED:\n  a: 1\n")); err == nil {
		t.Fatal("expected error for nested value")
	}
}
