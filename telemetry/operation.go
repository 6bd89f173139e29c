// Package telemetry wraps fleet operations in OpenTelemetry spans: one
// span per operation, one child span per step. The daemon installs a
// processor that mirrors step lifecycles to slog, so operations read as
// structured step logs without an external collector.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation is an in-flight traced operation. A nil tracer produces a
// no-op Operation, so callers never branch on whether tracing is wired.
type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// Start opens the operation span. The returned Operation is safe to use
// even when tracer is nil.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) *Operation {
	if tracer == nil {
		return &Operation{ctx: ctx}
	}
	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return &Operation{ctx: spanCtx, tracer: tracer, span: span}
}

// Context returns the operation's span context for child calls.
func (o *Operation) Context() context.Context {
	if o == nil || o.ctx == nil {
		return context.Background()
	}
	return o.ctx
}

// Step runs fn inside a child span named id. The step span records and
// re-raises fn's error unchanged.
func (o *Operation) Step(id string, fn func(context.Context) error) error {
	if o == nil || o.tracer == nil {
		return fn(o.Context())
	}

	stepCtx, span := o.tracer.Start(o.ctx, id)
	defer span.End()

	err := fn(stepCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// End closes the operation span, recording err when non-nil.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	o.span.End()
}
