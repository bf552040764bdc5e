package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/profiledir"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session metrics
	ReconciliationsTotal metric.Int64Counter
	TransitionsTotal     metric.Int64Counter

	// Identity API metrics
	IdentityRequestsTotal   metric.Int64Counter
	IdentityRequestDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ReconciliationsTotal, _ = meter.Int64Counter(
		"profiledir.session.reconciliations.total",
		metric.WithDescription("Total number of session reconciliations by outcome"),
		metric.WithUnit("{reconciliation}"),
	)

	m.TransitionsTotal, _ = meter.Int64Counter(
		"profiledir.session.transitions.total",
		metric.WithDescription("Total number of published session changes by event"),
		metric.WithUnit("{transition}"),
	)

	m.IdentityRequestsTotal, _ = meter.Int64Counter(
		"profiledir.identity.requests.total",
		metric.WithDescription("Total number of identity API requests by operation and outcome"),
		metric.WithUnit("{request}"),
	)

	m.IdentityRequestDuration, _ = meter.Float64Histogram(
		"profiledir.identity.request.duration",
		metric.WithDescription("Duration of identity API requests"),
		metric.WithUnit("ms"),
	)

	return m
}

// RecordReconciliation counts a finished reconciliation.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string) {
	m.ReconciliationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTransition counts a published session change.
func (m *Metrics) RecordTransition(ctx context.Context, event string) {
	m.TransitionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordIdentityRequest counts an identity API call and its latency.
func (m *Metrics) RecordIdentityRequest(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.IdentityRequestsTotal.Add(ctx, 1, attrs)
	m.IdentityRequestDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
