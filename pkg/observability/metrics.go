package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics and Prometheus integration
// for the execution engine.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	ordersSubmittedTotal metric.Int64Counter
	ordersTerminalTotal  metric.Int64Counter
	queueDepth           metric.Int64UpDownCounter
	workerLeaseDuration  metric.Float64Histogram
	venueQuoteLatency    metric.Float64Histogram
	venueSwapLatency     metric.Float64Histogram
	retriesTotal         metric.Int64Counter
	subscribersActive    metric.Int64UpDownCounter
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Namespace      string
	Port           int
	Enabled        bool
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(cfg.ServiceName)

	mp := &MetricsProvider{
		meterProvider: meterProvider,
		meter:         meter,
		registry:      registry,
	}

	if err := mp.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return mp, nil
}

func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	mp.ordersSubmittedTotal, err = mp.meter.Int64Counter(
		"orders_submitted_total",
		metric.WithDescription("Total number of orders accepted by Submit"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create orders_submitted_total counter: %w", err)
	}

	mp.ordersTerminalTotal, err = mp.meter.Int64Counter(
		"orders_terminal_total",
		metric.WithDescription("Total number of orders reaching a terminal status, by status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create orders_terminal_total counter: %w", err)
	}

	mp.queueDepth, err = mp.meter.Int64UpDownCounter(
		"queue_depth",
		metric.WithDescription("Number of jobs currently enqueued or leased"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queue_depth gauge: %w", err)
	}

	mp.workerLeaseDuration, err = mp.meter.Float64Histogram(
		"worker_lease_duration_seconds",
		metric.WithDescription("Time a worker held a job's lease, from dequeue to ack"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker_lease_duration histogram: %w", err)
	}

	mp.venueQuoteLatency, err = mp.meter.Float64Histogram(
		"venue_quote_duration_seconds",
		metric.WithDescription("Venue driver Quote call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return fmt.Errorf("failed to create venue_quote_duration histogram: %w", err)
	}

	mp.venueSwapLatency, err = mp.meter.Float64Histogram(
		"venue_swap_duration_seconds",
		metric.WithDescription("Venue driver Swap call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return fmt.Errorf("failed to create venue_swap_duration histogram: %w", err)
	}

	mp.retriesTotal, err = mp.meter.Int64Counter(
		"order_retries_total",
		metric.WithDescription("Total number of order processing retries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create order_retries_total counter: %w", err)
	}

	mp.subscribersActive, err = mp.meter.Int64UpDownCounter(
		"subscribers_active",
		metric.WithDescription("Number of live order-status subscription sinks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscribers_active gauge: %w", err)
	}

	return nil
}

// RecordOrderSubmitted records an accepted order.
func (mp *MetricsProvider) RecordOrderSubmitted(ctx context.Context) {
	if mp.ordersSubmittedTotal == nil {
		return
	}
	mp.ordersSubmittedTotal.Add(ctx, 1)
}

// RecordOrderTerminal records an order reaching Confirmed or Failed.
func (mp *MetricsProvider) RecordOrderTerminal(ctx context.Context, status string) {
	if mp.ordersTerminalTotal == nil {
		return
	}
	mp.ordersTerminalTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// IncrementQueueDepth increments the queue depth gauge on enqueue/dequeue.
func (mp *MetricsProvider) IncrementQueueDepth(ctx context.Context, delta int64) {
	if mp.queueDepth == nil {
		return
	}
	mp.queueDepth.Add(ctx, delta)
}

// RecordWorkerLease records how long a worker held a job's lease.
func (mp *MetricsProvider) RecordWorkerLease(ctx context.Context, duration time.Duration) {
	if mp.workerLeaseDuration == nil {
		return
	}
	mp.workerLeaseDuration.Record(ctx, duration.Seconds())
}

// RecordVenueQuote records a venue driver Quote call.
func (mp *MetricsProvider) RecordVenueQuote(ctx context.Context, venue string, duration time.Duration, success bool) {
	if mp.venueQuoteLatency == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	mp.venueQuoteLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("venue", venue),
		attribute.String("status", status),
	))
}

// RecordVenueSwap records a venue driver Swap call.
func (mp *MetricsProvider) RecordVenueSwap(ctx context.Context, venue string, duration time.Duration, success bool) {
	if mp.venueSwapLatency == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	mp.venueSwapLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("venue", venue),
		attribute.String("status", status),
	))
}

// RecordRetry records an order processing retry.
func (mp *MetricsProvider) RecordRetry(ctx context.Context) {
	if mp.retriesTotal == nil {
		return
	}
	mp.retriesTotal.Add(ctx, 1)
}

// IncrementSubscribers increments the active subscriber gauge.
func (mp *MetricsProvider) IncrementSubscribers(ctx context.Context) {
	if mp.subscribersActive == nil {
		return
	}
	mp.subscribersActive.Add(ctx, 1)
}

// DecrementSubscribers decrements the active subscriber gauge.
func (mp *MetricsProvider) DecrementSubscribers(ctx context.Context) {
	if mp.subscribersActive == nil {
		return
	}
	mp.subscribersActive.Add(ctx, -1)
}

// StartMetricsServer starts the Prometheus metrics HTTP server.
func (mp *MetricsProvider) StartMetricsServer(port int) error {
	if mp.registry == nil {
		return fmt.Errorf("metrics not enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics provider.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.meterProvider == nil {
		return nil
	}
	return mp.meterProvider.Shutdown(ctx)
}
