package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/deskmate/internal/worker"
)

// WorkerMiddleware records a span per orchestration loop job. A nil tracer
// yields a pass-through middleware.
func WorkerMiddleware(tracer trace.Tracer) worker.Middleware {
	if tracer == nil {
		return func(_ string, next worker.Func) worker.Func { return next }
	}

	return func(name string, next worker.Func) worker.Func {
		return func(ctx context.Context) (any, error) {
			ctx, span := tracer.Start(ctx, SpanPrefixJob+name,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String(AttrJobName, name),
					attribute.Bool(AttrInLoop, worker.InLoop(ctx)),
				),
			)
			defer span.End()

			v, err := next(ctx)
			switch {
			case err == nil:
				span.SetStatus(codes.Ok, "")
			case errors.Is(err, context.Canceled):
				span.SetAttributes(attribute.Bool(AttrTaskCanceled, true))
			default:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return v, err
		}
	}
}
