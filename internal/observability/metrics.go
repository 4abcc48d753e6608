// Package observability sets up OpenTelemetry metrics and tracing.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "vmorch"

// InitMetrics installs a global MeterProvider backed by a Prometheus
// exporter. It returns the /metrics handler and the provider shutdown.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// EventDropCounter returns a callback that counts evicted event subscribers
// as vmorch_events_dropped_total.
func EventDropCounter() (func(), error) {
	counter, err := otel.Meter(meterName).Int64Counter(
		"vmorch_events_dropped_total",
		otelmetric.WithDescription("Event subscribers evicted because their buffer was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	return func() { counter.Add(context.Background(), 1) }, nil
}
