// Package otel holds the tracing helpers shared by the launcher's background loops.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on launcher spans
const (
	AttrWorkloadID   = attribute.Key("workload.id")
	AttrWorkloadType = attribute.Key("workload.type")
	AttrDataplaneID  = attribute.Key("dataplane.id")
	AttrNamespace    = attribute.Key("k8s.namespace")
	AttrTaskName     = attribute.Key("task.name")
	AttrResultCount  = attribute.Key("result.count")
)

// StartSpan starts a span on tracer, or hands back the span already in ctx when tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed. Nil span or nil err is a no-op.
// The status description stays generic; the error text only goes into the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
