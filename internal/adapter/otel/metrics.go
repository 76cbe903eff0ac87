package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "claimpilot"

// Metrics holds all ClaimPilot metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	ManualReviews metric.Int64Counter
	ToolCalls     metric.Int64Counter
	RunDuration   metric.Float64Histogram
	RunIterations metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("claimpilot.runs.started",
		metric.WithDescription("Number of claim processing runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("claimpilot.runs.completed",
		metric.WithDescription("Number of claim processing runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("claimpilot.runs.failed",
		metric.WithDescription("Number of claim processing runs failed"))
	if err != nil {
		return nil, err
	}

	m.ManualReviews, err = meter.Int64Counter("claimpilot.runs.manual_review",
		metric.WithDescription("Number of runs resolved to manual review"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("claimpilot.toolcalls",
		metric.WithDescription("Number of tool calls executed"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("claimpilot.run.duration_seconds",
		metric.WithDescription("Claim run duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.RunIterations, err = meter.Int64Histogram("claimpilot.run.iterations",
		metric.WithDescription("Model turns per claim run"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
