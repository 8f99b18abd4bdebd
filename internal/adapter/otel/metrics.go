package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "reviewflow"

// Metrics holds all ReviewFlow metric instruments.
type Metrics struct {
	Transitions         metric.Int64Counter
	AnalysesCompleted   metric.Int64Counter
	AnalysesFailed      metric.Int64Counter
	AnalysisDuration    metric.Float64Histogram
	NotificationsSent   metric.Int64Counter
	NotificationsFailed metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Transitions, err = meter.Int64Counter("reviewflow.documents.transitions",
		metric.WithDescription("Number of accepted workflow transitions"))
	if err != nil {
		return nil, err
	}

	m.AnalysesCompleted, err = meter.Int64Counter("reviewflow.analyses.completed",
		metric.WithDescription("Number of completed automated evaluations"))
	if err != nil {
		return nil, err
	}

	m.AnalysesFailed, err = meter.Int64Counter("reviewflow.analyses.failed",
		metric.WithDescription("Number of failed or timed-out automated evaluations"))
	if err != nil {
		return nil, err
	}

	m.AnalysisDuration, err = meter.Float64Histogram("reviewflow.analysis.duration_seconds",
		metric.WithDescription("Automated evaluation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.NotificationsSent, err = meter.Int64Counter("reviewflow.notifications.sent",
		metric.WithDescription("Number of notifications delivered"))
	if err != nil {
		return nil, err
	}

	m.NotificationsFailed, err = meter.Int64Counter("reviewflow.notifications.failed",
		metric.WithDescription("Number of notification deliveries that failed"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
