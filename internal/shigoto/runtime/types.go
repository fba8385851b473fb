// Package runtime defines the requests, naming rules and shared types for
// task containers managed by the agent.
package runtime

import "strings"

const (
	indexPrefix = "task-index-"
	runPrefix   = "task-run-"
)

// IndexContainerName returns the container name used to introspect a task
// version identified by shortCode.
func IndexContainerName(shortCode string) string {
	return indexPrefix + shortCode
}

// RunContainerName returns the container name for a run.
func RunContainerName(runID string) string {
	return runPrefix + runID
}

// RunIDFromContainerName reverses RunContainerName. ok is false for names
// outside the run namespace, including index containers.
func RunIDFromContainerName(name string) (runID string, ok bool) {
	name = strings.TrimPrefix(name, "/")
	if !strings.HasPrefix(name, runPrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, runPrefix), true
}

// IndexRequest describes an image whose tasks should be enumerated.
type IndexRequest struct {
	ImageRef  string `json:"imageRef"`
	ShortCode string `json:"shortCode"`
	APIKey    string `json:"apiKey"`
	APIURL    string `json:"apiUrl"`
	EnvID     string `json:"envId"`
}

// CreateRequest describes a run container to launch.
type CreateRequest struct {
	Image string `json:"image"`
	EnvID string `json:"envId"`
	RunID string `json:"runId"`
}

// RestoreRequest describes a suspended run to resume.
type RestoreRequest struct {
	RunID         string `json:"runId"`
	CheckpointRef string `json:"checkpointRef"`
}

// DeleteRequest identifies a run to signal for termination.
type DeleteRequest struct {
	RunID string `json:"runId"`
}

// GetRequest identifies a run whose status is requested.
type GetRequest struct {
	RunID string `json:"runId"`
}

// ContainerState mirrors docker container states.
type ContainerState string

const (
	StateRunning  ContainerState = "running"
	StateExited   ContainerState = "exited"
	StateCreated  ContainerState = "created"
	StatePaused   ContainerState = "paused"
	StateRemoving ContainerState = "removing"
	StateUnknown  ContainerState = "unknown"
)

// ParseContainerState maps a runtime status string to a ContainerState.
func ParseContainerState(s string) ContainerState {
	switch strings.ToLower(s) {
	case "running":
		return StateRunning
	case "exited", "stopped":
		return StateExited
	case "created":
		return StateCreated
	case "paused":
		return StatePaused
	case "removing":
		return StateRemoving
	default:
		return StateUnknown
	}
}

// Status is reported for a run by Get.
type Status struct {
	RunID         string         `json:"runId"`
	ContainerName string         `json:"containerName"`
	State         ContainerState `json:"state"`
}
