package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "helpdesk"

// Metrics holds the engine's metric instruments.
type Metrics struct {
	ActionsExecuted   metric.Int64Counter
	ActionsFailed     metric.Int64Counter
	ActionsRolledBack metric.Int64Counter
	TicketsReopened   metric.Int64Counter
	ScoringFailures   metric.Int64Counter
	Confidence        metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ActionsExecuted, err = meter.Int64Counter("helpdesk.actions.executed",
		metric.WithDescription("Autonomous actions executed, by action type"))
	if err != nil {
		return nil, err
	}

	m.ActionsFailed, err = meter.Int64Counter("helpdesk.actions.failed",
		metric.WithDescription("Autonomous action executions that failed"))
	if err != nil {
		return nil, err
	}

	m.ActionsRolledBack, err = meter.Int64Counter("helpdesk.actions.rolled_back",
		metric.WithDescription("Autonomous actions rolled back"))
	if err != nil {
		return nil, err
	}

	m.TicketsReopened, err = meter.Int64Counter("helpdesk.tickets.reopened",
		metric.WithDescription("Tickets reopened after a failed resolution"))
	if err != nil {
		return nil, err
	}

	m.ScoringFailures, err = meter.Int64Counter("helpdesk.scoring.failures",
		metric.WithDescription("Scoring service calls that failed after retries"))
	if err != nil {
		return nil, err
	}

	m.Confidence, err = meter.Float64Histogram("helpdesk.scoring.confidence",
		metric.WithDescription("Confidence scores returned by the scoring service"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAction bumps the executed counter with the action type attribute.
func (m *Metrics) RecordAction(ctx context.Context, actionType string) {
	m.ActionsExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action.type", actionType)))
}

// RecordActionFailure bumps the failed counter with the action type attribute.
func (m *Metrics) RecordActionFailure(ctx context.Context, actionType string) {
	m.ActionsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action.type", actionType)))
}
