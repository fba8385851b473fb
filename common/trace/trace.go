// Package trace provides trace ID generation and context propagation so that
// an operation's log lines, spans and runtime commands can be correlated.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying a trace ID between the coordinator and
// the agent.
const Header = "X-Trace-ID"

type traceKey struct{}

// GenerateID returns a new random trace ID.
func GenerateID() string {
	return "t_" + uuid.NewString()
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns ctx unchanged when it already carries a trace ID, otherwise
// a child context with id (or a generated one when id is empty).
func Ensure(ctx context.Context, id string) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	if id == "" {
		id = GenerateID()
	}
	return WithTraceID(ctx, id)
}
