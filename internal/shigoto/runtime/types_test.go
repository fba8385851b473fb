package runtime

import (
	"fmt"
	"testing"
)

func TestContainerNames(t *testing.T) {
	if got := IndexContainerName("abc123"); got != "task-index-abc123" {
		t.Errorf("IndexContainerName = %q", got)
	}
	if got := RunContainerName("run_9"); got != "task-run-run_9" {
		t.Errorf("RunContainerName = %q", got)
	}
}

func TestRunContainerName_Deterministic(t *testing.T) {
	if RunContainerName("run_1") != RunContainerName("run_1") {
		t.Fatal("same input produced different names")
	}
}

func TestRunContainerName_Injective(t *testing.T) {
	seen := map[string]string{}
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("run_%d", i)
		name := RunContainerName(id)
		if prev, ok := seen[name]; ok {
			t.Fatalf("%q and %q both map to %q", prev, id, name)
		}
		seen[name] = id
	}
}

func TestNamespacesDoNotCollide(t *testing.T) {
	// Any identifier in one namespace must not produce a name in the other.
	for _, id := range []string{"", "x", "abc123", "index-abc", "run-1"} {
		if _, ok := RunIDFromContainerName(IndexContainerName(id)); ok {
			t.Errorf("index name for %q parsed as a run container", id)
		}
		if IndexContainerName(id) == RunContainerName(id) {
			t.Errorf("names collide for %q", id)
		}
	}
}

func TestRunIDFromContainerName(t *testing.T) {
	cases := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"task-run-run_9", "run_9", true},
		{"/task-run-run_9", "run_9", true},
		{"task-index-abc", "", false},
		{"other", "", false},
	}
	for _, tc := range cases {
		id, ok := RunIDFromContainerName(tc.in)
		if id != tc.wantID || ok != tc.wantOK {
			t.Errorf("RunIDFromContainerName(%q) = (%q, %v), want (%q, %v)", tc.in, id, ok, tc.wantID, tc.wantOK)
		}
	}
}

func TestParseContainerState(t *testing.T) {
	cases := []struct {
		input string
		want  ContainerState
	}{
		{"running", StateRunning},
		{"RUNNING", StateRunning},
		{"stopped", StateExited},
		{"exited", StateExited},
		{"created", StateCreated},
		{"paused", StatePaused},
		{"removing", StateRemoving},
		{"dead", StateUnknown},
		{"", StateUnknown},
	}
	for _, tc := range cases {
		if got := ParseContainerState(tc.input); got != tc.want {
			t.Errorf("ParseContainerState(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
