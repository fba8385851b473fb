package hooks

import "net/url"

// Kind names a lifecycle hook endpoint inside the task container.
type Kind string

const (
	KindPostStart Kind = "postStart"
	KindPreStop   Kind = "preStop"
)

// RestoreCause explains why a PostStart signal is sent.
type RestoreCause string

// TerminateCause explains why a PreStop signal is sent.
type TerminateCause string

const (
	CauseRestore   RestoreCause   = "restore"
	CauseTerminate TerminateCause = "terminate"
)

// Signal is a lifecycle notification. Build it with PostStart or PreStop so
// that the cause always matches the kind.
type Signal struct {
	kind  Kind
	cause string
}

// PostStart returns the signal sent after a container resumes.
func PostStart(cause RestoreCause) Signal {
	return Signal{kind: KindPostStart, cause: string(cause)}
}

// PreStop returns the signal sent before a container is torn down.
func PreStop(cause TerminateCause) Signal {
	return Signal{kind: KindPreStop, cause: string(cause)}
}

// Kind returns the hook endpoint the signal targets.
func (s Signal) Kind() Kind { return s.kind }

// Cause returns the cause tag sent with the signal.
func (s Signal) Cause() string { return s.cause }

// Path is the request path and query for the control server, e.g.
// "/postStart?cause=restore".
func (s Signal) Path() string {
	return "/" + string(s.kind) + "?cause=" + url.QueryEscape(s.cause)
}
