package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "reviewflow"

// StartEvaluationSpan starts a span for an automated evaluation.
func StartEvaluationSpan(ctx context.Context, analysisID, documentID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "evaluation",
		trace.WithAttributes(
			attribute.String("analysis.id", analysisID),
			attribute.String("document.id", documentID),
			attribute.String("document.kind", kind),
		),
	)
}

// StartDispatchSpan starts a span for a notification dispatch.
func StartDispatchSpan(ctx context.Context, eventKind, documentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("event.kind", eventKind),
			attribute.String("document.id", documentID),
		),
	)
}
