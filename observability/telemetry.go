// Package observability wires OpenTelemetry tracing and metrics for the
// notification pipeline. When disabled, every operation is a no-op so callers
// never need to guard their instrumentation sites.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/kart-io/alerthub"

// Config controls telemetry export
type Config struct {
	// Enabled turns on OTLP export; when false all instruments are no-ops
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Endpoint is the OTLP HTTP collector endpoint (host:port)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// ServiceName identifies this process in traces and metrics
	ServiceName string `json:"service_name" yaml:"service_name"`
	// Insecure disables TLS towards the collector
	Insecure bool `json:"insecure" yaml:"insecure"`
}

// DefaultConfig returns disabled telemetry defaults
func DefaultConfig() *Config {
	return &Config{
		Endpoint:    "localhost:4318",
		ServiceName: "alerthub",
	}
}

// Telemetry bundles the tracer and the pipeline instruments
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	tracer trace.Tracer

	processed       metric.Int64Counter
	persistFailures metric.Int64Counter
	handlerFailures metric.Int64Counter
	processDuration metric.Float64Histogram
}

// NewNoop returns a telemetry instance whose instruments do nothing
func NewNoop() *Telemetry {
	t := &Telemetry{tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName)}
	t.initInstruments(metricnoop.NewMeterProvider().Meter(instrumentationName))
	return t
}

// New creates a telemetry instance. With Enabled false it returns a no-op
// instance and never touches the network.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if cfg == nil || !cfg.Enabled {
		return NewNoop(), nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	t := &Telemetry{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(instrumentationName),
	}
	t.initInstruments(mp.Meter(instrumentationName))
	return t, nil
}

func (t *Telemetry) initInstruments(meter metric.Meter) {
	t.processed, _ = meter.Int64Counter("alerthub.notifications.processed",
		metric.WithDescription("Notifications accepted by the processing pipeline"))
	t.persistFailures, _ = meter.Int64Counter("alerthub.notifications.persist_failures",
		metric.WithDescription("Notifications that could not be persisted"))
	t.handlerFailures, _ = meter.Int64Counter("alerthub.handlers.failures",
		metric.WithDescription("Handler deliveries that returned an error or panicked"))
	t.processDuration, _ = meter.Float64Histogram("alerthub.notifications.process_duration",
		metric.WithDescription("End-to-end pipeline duration"),
		metric.WithUnit("ms"))
}

// StartSpan begins a pipeline span
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// RecordProcessed counts a notification entering the pipeline
func (t *Telemetry) RecordProcessed(ctx context.Context, notifType string) {
	t.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", notifType)))
}

// RecordPersistFailure counts a failed persistence attempt
func (t *Telemetry) RecordPersistFailure(ctx context.Context) {
	t.persistFailures.Add(ctx, 1)
}

// RecordHandlerFailure counts a handler delivery failure
func (t *Telemetry) RecordHandlerFailure(ctx context.Context, handlerID string) {
	t.handlerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("handler", handlerID)))
}

// RecordDuration records the pipeline duration
func (t *Telemetry) RecordDuration(ctx context.Context, d time.Duration) {
	t.processDuration.Record(ctx, float64(d.Milliseconds()))
}

// Shutdown flushes and stops the exporters
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer provider: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
