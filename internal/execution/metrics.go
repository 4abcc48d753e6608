package execution

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "vmorch/execution"

type metrics struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	active   metric.Int64UpDownCounter
	logBytes metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(instrumentationName)

	started, err := meter.Int64Counter("vmorch_jobs_started_total",
		metric.WithDescription("Jobs accepted by the execution manager"))
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter("vmorch_jobs_finished_total",
		metric.WithDescription("Jobs that left the running state"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("vmorch_jobs_active",
		metric.WithDescription("Jobs with a live process"))
	if err != nil {
		return nil, err
	}
	logBytes, err := meter.Int64Counter("vmorch_job_log_bytes_total",
		metric.WithDescription("Captured output bytes"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return &metrics{started: started, finished: finished, active: active, logBytes: logBytes}, nil
}

func (m *metrics) jobStarted(kind Kind) {
	m.started.Add(context.Background(), 1, metric.WithAttributes(attribute.String("strategy", string(kind))))
}

func (m *metrics) jobFinished(kind Kind, status string) {
	m.finished.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("strategy", string(kind)),
		attribute.String("status", status),
	))
}

func (m *metrics) activeDelta(n int64) {
	m.active.Add(context.Background(), n)
}

func (m *metrics) output(stream string, n int) {
	m.logBytes.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("stream", stream)))
}
