package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the meter provider and the instruments for the fetch
// pipeline. A zero Telemetry (telemetry disabled) is safe to use: every
// recording method no-ops when its instrument is nil.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	fetchesTotal  metric.Int64Counter
	fetchDuration metric.Float64Histogram
	fetchesActive metric.Int64UpDownCounter
	cacheLookups  metric.Int64Counter

	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a new telemetry instance backed by a Prometheus exporter.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         otel.Meter(cfg.ServiceName),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	return t, nil
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	if t.fetchesTotal, err = t.meter.Int64Counter("fetches_total",
		metric.WithDescription("Total number of fetch requests"),
	); err != nil {
		return err
	}

	if t.fetchDuration, err = t.meter.Float64Histogram("fetch_duration_seconds",
		metric.WithDescription("Duration of fetch requests"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if t.fetchesActive, err = t.meter.Int64UpDownCounter("fetches_active",
		metric.WithDescription("Number of fetches currently in flight"),
	); err != nil {
		return err
	}

	if t.cacheLookups, err = t.meter.Int64Counter("cache_lookups_total",
		metric.WithDescription("Cache lookups partitioned by result"),
	); err != nil {
		return err
	}

	if t.dbOperationsTotal, err = t.meter.Int64Counter("db_operations_total",
		metric.WithDescription("Total number of database operations"),
	); err != nil {
		return err
	}

	if t.dbOperationDuration, err = t.meter.Float64Histogram("db_operation_duration_seconds",
		metric.WithDescription("Duration of database operations"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	return nil
}

// Handler exposes the Prometheus scrape endpoint.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.Handler()
}

// FetchStarted marks a fetch as in flight.
func (t *Telemetry) FetchStarted(ctx context.Context) {
	if t.fetchesActive != nil {
		t.fetchesActive.Add(ctx, 1)
	}
}

// FetchFinished marks an in-flight fetch as done.
func (t *Telemetry) FetchFinished(ctx context.Context) {
	if t.fetchesActive != nil {
		t.fetchesActive.Add(ctx, -1)
	}
}

// RecordFetch records the outcome and duration of a completed fetch.
func (t *Telemetry) RecordFetch(ctx context.Context, kind, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)

	if t.fetchesTotal != nil {
		t.fetchesTotal.Add(ctx, 1, attrs)
	}

	if t.fetchDuration != nil {
		t.fetchDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordCacheLookup records a cache hit or miss.
func (t *Telemetry) RecordCacheLookup(ctx context.Context, hit bool) {
	if t.cacheLookups == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	t.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// InstrumentDBOperation wraps a database operation with a span and metrics.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if t.dbOperationsTotal == nil {
		return fn(ctx)
	}

	var span trace.Span

	ctx, span = t.tracer.Start(ctx, "db."+operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)

	t.dbOperationsTotal.Add(ctx, 1, attrs)
	t.dbOperationDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	return err
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.meterProvider == nil {
		return nil
	}

	return t.meterProvider.Shutdown(ctx)
}
