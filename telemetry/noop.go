package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// The noop implementations back engine.New's nil-dependency
// substitution: a host that configures no observability still gets a
// working scheduler, and tests that don't assert on telemetry stay
// silent.

type (
	// NoopLogger discards every message.
	NoopLogger struct{}

	// NoopMetrics drops all counters, timers and gauges.
	NoopMetrics struct{}

	// NoopTracer hands out inert spans and leaves the context untouched.
	NoopTracer struct{}

	noopSpan struct{}
)

// NewNoopLogger returns the discarding Logger.
func NewNoopLogger() Logger { return NoopLogger{} }

// NewNoopMetrics returns the discarding Metrics recorder.
func NewNoopMetrics() Metrics { return NoopMetrics{} }

// NewNoopTracer returns the inert Tracer.
func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

func (NoopMetrics) IncCounter(string, float64, ...string)        {}
func (NoopMetrics) RecordTimer(string, time.Duration, ...string) {}
func (NoopMetrics) RecordGauge(string, float64, ...string)       {}

func (NoopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracer) Span(context.Context) Span { return noopSpan{} }

func (noopSpan) End(...trace.SpanEndOption)              {}
func (noopSpan) AddEvent(string, ...any)                 {}
func (noopSpan) SetStatus(codes.Code, string)            {}
func (noopSpan) RecordError(error, ...trace.EventOption) {}
