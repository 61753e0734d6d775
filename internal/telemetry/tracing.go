// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package telemetry provides tracing spans around agent prompt execution,
// worktree provisioning, and merges. It wraps the global OpenTelemetry
// tracer rather than owning an exporter: wiring a concrete span
// destination (stdout, OTLP collector, or otherwise) is left to the
// process embedding this package via otel.SetTracerProvider.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GetTracer returns a tracer with the given name from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span with the given name and options.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracer := GetTracer(tracerName)
	return tracer.Start(ctx, spanName, opts...)
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// AddAttributes adds attributes to the current span.
func AddAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attrs...))
	}
}

// SetSpanStatus sets the status of the current span.
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// TraceID returns the trace ID from the current span.
func TraceID(ctx context.Context) string {
	return trace.SpanFromContext(ctx).SpanContext().TraceID().String()
}

// Attribute keys used across the orchestrator's span instrumentation.
const (
	AttrTaskID       = attribute.Key("task.id")
	AttrBranch       = attribute.Key("task.branch")
	AttrLockName     = attribute.Key("lock.name")
	AttrEngine       = attribute.Key("agent.engine")
	AttrSessionID    = attribute.Key("agent.session_id")
	AttrModel        = attribute.Key("agent.model")
	AttrOutcome      = attribute.Key("task.outcome")
	AttrTokensUsed   = attribute.Key("agent.tokens_used")
	AttrCostUSD      = attribute.Key("agent.cost_usd")
	AttrError        = attribute.Key("error")
	AttrErrorMessage = attribute.Key("error.message")
	AttrDuration     = attribute.Key("duration_ms")
)

// TaskAttrs creates the standard attribute set attached to every span
// scoped to one task.
func TaskAttrs(taskID, branch string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTaskID.String(taskID),
		AttrBranch.String(branch),
	}
}

// AgentAttrs creates attributes describing which engine and session ran a
// prompt.
func AgentAttrs(engine, sessionID, model string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrEngine.String(engine)}
	if sessionID != "" {
		attrs = append(attrs, AttrSessionID.String(sessionID))
	}
	if model != "" {
		attrs = append(attrs, AttrModel.String(model))
	}
	return attrs
}

// ErrorAttrs creates attributes describing a failure, or an empty slice if
// err is nil.
func ErrorAttrs(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		AttrError.Bool(true),
		AttrErrorMessage.String(err.Error()),
	}
}

// DurationAttrs creates a duration attribute in milliseconds.
func DurationAttrs(d time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{AttrDuration.Int64(d.Milliseconds())}
}
