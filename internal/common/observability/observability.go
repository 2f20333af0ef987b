// internal/common/observability/observability.go
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider    *metric.MeterProvider
	meter            otelmetric.Meter
	envelopeCounter  otelmetric.Int64Counter
	envelopeDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	envelopeCounter, _ := meter.Int64Counter(
		"envelopes.processed",
		otelmetric.WithDescription("Number of envelopes processed"),
	)

	envelopeDuration, _ := meter.Float64Histogram(
		"envelopes.duration",
		otelmetric.WithDescription("Envelope processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:    provider,
		meter:            meter,
		envelopeCounter:  envelopeCounter,
		envelopeDuration: envelopeDuration,
	}
}

func (o *Observability) RecordEnvelopeProcessed(ctx context.Context, stage, result string) {
	if o.envelopeCounter != nil {
		o.envelopeCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("result", result),
		))
	}
}

func (o *Observability) RecordEnvelopeDuration(ctx context.Context, stage string, duration time.Duration) {
	if o.envelopeDuration != nil {
		o.envelopeDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("stage", stage),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
