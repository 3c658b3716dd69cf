// Package tracing carries request correlation through contexts and
// initializes the OpenTelemetry tracer provider.
package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey ContextKey = "trace_id"
	// SessionIDKey is the context key for the agent session ID.
	SessionIDKey ContextKey = "session_id"
	// RunIDKey is the context key for one run of a session.
	RunIDKey ContextKey = "run_id"
)

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSessionID adds a session ID to the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetSessionID retrieves the session ID from the context.
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// NewRunContext stamps a fresh run ID and the session ID onto the
// context for one run.
func NewRunContext(ctx context.Context, sessionID string) context.Context {
	ctx = WithRunID(ctx, uuid.New().String())
	return WithSessionID(ctx, sessionID)
}

// LoggerFromContext returns the base logger enriched with whatever
// correlation ids the context carries.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	builder := base.With()
	if id := GetTraceID(ctx); id != "" {
		builder = builder.Str("trace_id", id)
	}
	if id := GetSessionID(ctx); id != "" {
		builder = builder.Str("session_id", id)
	}
	if id := GetRunID(ctx); id != "" {
		builder = builder.Str("run_id", id)
	}
	return builder.Logger()
}
