package redact_test

import (
	"testing"

	"github.com/bdobrica/Shigoto/common/redact"
)

func TestString_RedactsSensitiveValues(t *testing.T) {
	secret := "tr_dev_0123456789"
	line := "docker run -e TASK_SECRET_KEY=tr_dev_0123456789 img"
	got := redact.String(line, secret)
	const want = "docker run -e TASK_SECRET_KEY=[REDACTED] img"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	line := "abc token"
	got := redact.String(line, "abc")
	if got != line {
		t.Fatalf("short value should not be redacted; got %q", got)
	}
}

func TestEnvAssignments(t *testing.T) {
	args := []string{"run", "-e", "TASK_SECRET_KEY=abc", "-e", "TASK_ENV_ID=env_1", "--name", "x"}
	got := redact.EnvAssignments(args)
	if got[2] != "TASK_SECRET_KEY=[REDACTED]" {
		t.Errorf("secret not redacted: %q", got[2])
	}
	if got[4] != "TASK_ENV_ID=env_1" {
		t.Errorf("non-secret changed: %q", got[4])
	}
	if args[2] != "TASK_SECRET_KEY=abc" {
		t.Error("input slice must not be modified")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	cases := map[string]bool{
		"TASK_SECRET_KEY": true,
		"API_TOKEN":       true,
		"db_password":     true,
		"TASK_ENV_ID":     false,
		"POD_NAME":        false,
	}
	for k, want := range cases {
		if got := redact.IsSensitiveKey(k); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", k, got, want)
		}
	}
}
