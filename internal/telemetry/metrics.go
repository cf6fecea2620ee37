// Package telemetry records cadence engine metrics with OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/velmie/cadence"
)

const instrumentationName = "github.com/velmie/cadence"

// Metrics implements cadence.Metrics with OpenTelemetry instruments.
type Metrics struct {
	batchDuration  metric.Float64Histogram
	enrolled       metric.Int64Counter
	advanced       metric.Int64Counter
	completed      metric.Int64Counter
	errors         metric.Int64Counter
	retries        metric.Int64Counter
	dead           metric.Int64Counter
	dispatchErrors metric.Int64Counter
	due            metric.Int64Gauge
}

var _ cadence.Metrics = (*Metrics)(nil)

// New registers the instruments on provider, the global provider when nil.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)

	var (
		m   Metrics
		err error
	)
	m.batchDuration, err = meter.Float64Histogram("cadence.batch.duration",
		metric.WithDescription("Time to process one scheduler batch"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: batch duration histogram: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.enrolled, "cadence.enrollments.created", "Enrollments created", "{enrollment}"},
		{&m.advanced, "cadence.steps.advanced", "Steps processed by the advancer", "{step}"},
		{&m.completed, "cadence.enrollments.completed", "Enrollments that finished their cadence", "{enrollment}"},
		{&m.errors, "cadence.advance.errors", "Failed advances", "{error}"},
		{&m.retries, "cadence.advance.retries", "Failed advances left for a later retry", "{enrollment}"},
		{&m.dead, "cadence.advance.dead", "Enrollments marked failed", "{enrollment}"},
		{&m.dispatchErrors, "cadence.dispatch.errors", "Step dispatches the dispatcher rejected", "{dispatch}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("telemetry: %s counter: %w", c.name, err)
		}
	}

	m.due, err = meter.Int64Gauge("cadence.enrollments.due",
		metric.WithDescription("Active enrollments whose next activity is due"),
		metric.WithUnit("{enrollment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: due gauge: %w", err)
	}

	return &m, nil
}

func (m *Metrics) ObserveBatchDuration(d time.Duration) {
	m.batchDuration.Record(context.Background(), d.Seconds())
}

func (m *Metrics) AddEnrolled(n int)       { add(m.enrolled, n) }
func (m *Metrics) AddAdvanced(n int)       { add(m.advanced, n) }
func (m *Metrics) AddCompleted(n int)      { add(m.completed, n) }
func (m *Metrics) AddErrors(n int)         { add(m.errors, n) }
func (m *Metrics) AddRetries(n int)        { add(m.retries, n) }
func (m *Metrics) AddDead(n int)           { add(m.dead, n) }
func (m *Metrics) AddDispatchErrors(n int) { add(m.dispatchErrors, n) }

func (m *Metrics) SetDue(n int) {
	m.due.Record(context.Background(), int64(n))
}

func add(c metric.Int64Counter, n int) {
	if n <= 0 {
		return
	}
	c.Add(context.Background(), int64(n))
}
