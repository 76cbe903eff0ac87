package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "claimpilot"

// StartRunSpan starts a span for one claim processing run.
func StartRunSpan(ctx context.Context, claimID, claimType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "claim.run",
		trace.WithAttributes(
			attribute.String("claim.id", claimID),
			attribute.String("claim.type", claimType),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a run.
func StartToolCallSpan(ctx context.Context, claimID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "claim.toolcall",
		trace.WithAttributes(
			attribute.String("claim.id", claimID),
			attribute.String("toolcall.tool", tool),
		),
	)
}

// StartReviewSpan starts a span for a human review action.
func StartReviewSpan(ctx context.Context, claimID, action string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "claim.review",
		trace.WithAttributes(
			attribute.String("claim.id", claimID),
			attribute.String("review.action", action),
		),
	)
}
