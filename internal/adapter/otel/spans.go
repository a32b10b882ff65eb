package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "helpdesk"

// StartProcessSpan starts a span covering one score-decide-execute cycle.
func StartProcessSpan(ctx context.Context, ticketID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ticket.process",
		trace.WithAttributes(
			attribute.String("ticket.id", ticketID),
		),
	)
}

// StartExecuteSpan starts a span for one autonomous action execution.
func StartExecuteSpan(ctx context.Context, ticketID, actionType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "action.execute",
		trace.WithAttributes(
			attribute.String("ticket.id", ticketID),
			attribute.String("action.type", actionType),
		),
	)
}

// StartRollbackSpan starts a span for a rollback of a ledger entry.
func StartRollbackSpan(ctx context.Context, entryID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "action.rollback",
		trace.WithAttributes(
			attribute.String("action.entry_id", entryID),
		),
	)
}
