package hooks

import "fmt"

// PortDiscoveryError is returned when a container's output does not announce
// its control port.
type PortDiscoveryError struct {
	Container string
	Reason    string
	Err       error
}

func (e *PortDiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discover control port of %s: %s: %v", e.Container, e.Reason, e.Err)
	}
	return fmt.Sprintf("discover control port of %s: %s", e.Container, e.Reason)
}

func (e *PortDiscoveryError) Unwrap() error { return e.Err }

// HookError is returned when a signal could not be delivered.
type HookError struct {
	Kind      Kind
	Container string
	Attempts  int
	Err       error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook for %s failed after %d attempt(s): %v", e.Kind, e.Container, e.Attempts, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
