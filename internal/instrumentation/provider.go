package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/yonagi/mailharvest"

// Provider bundles the meter provider and the metrics recorder built on
// top of it. Metrics are exported in Prometheus format via the default
// registry, so promhttp.Handler() serves them.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	metrics       *Metrics
}

// NewProvider sets up a Prometheus-backed OpenTelemetry meter provider.
func NewProvider(ctx context.Context, serviceVersion string) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("mailharvest"),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	metrics, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}

	return &Provider{meterProvider: mp, metrics: metrics}, nil
}

// Metrics returns the metrics recorder.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
