package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/vigil/task"
)

// tracerName is the instrumentation scope name for vigil tracing.
const tracerName = "github.com/xraph/vigil"

// Tracing returns middleware that wraps invocation execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: vigil.call.id, vigil.call.name,
// vigil.call.worker_id, and vigil.call.actor_id when set. On error, the
// span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) ([][]byte, error) {
		attrs := []attribute.KeyValue{
			attribute.String("vigil.call.id", inv.CallID.String()),
			attribute.String("vigil.call.name", inv.Name),
			attribute.String("vigil.call.worker_id", inv.WorkerID.String()),
		}
		if !inv.ActorID.IsNil() {
			attrs = append(attrs, attribute.String("vigil.call.actor_id", inv.ActorID.String()))
		}

		ctx, span := tracer.Start(ctx, "vigil.call.execute",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		values, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return values, err
	}
}
