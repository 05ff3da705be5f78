package observability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)), nil
}

// Meter returns a meter from mp, or from the global provider when mp is nil.
func Meter(mp metric.MeterProvider) metric.Meter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(InstrumentationName)
}

// Instrument names.
const (
	MetricRequests        = "restclient.requests"
	MetricRequestsActive  = "restclient.requests.active"
	MetricDuration        = "restclient.request.duration"
	MetricErrors          = "restclient.errors"
	MetricPoolConnections = "restclient.pool.connections"
	MetricPoolEvictions   = "restclient.pool.evictions"
)

// ClientMetrics records outbound calls for one or more clients.
type ClientMetrics struct {
	requests metric.Int64Counter
	active   metric.Int64UpDownCounter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewClientMetrics creates the client instruments on meter.
func NewClientMetrics(meter metric.Meter) (*ClientMetrics, error) {
	var m ClientMetrics
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	m.requests, err = meter.Int64Counter(MetricRequests,
		metric.WithDescription("Completed outbound requests by status code"))
	collect(err)
	m.active, err = meter.Int64UpDownCounter(MetricRequestsActive,
		metric.WithDescription("Outbound requests in flight"))
	collect(err)
	m.duration, err = meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Outbound request duration"),
		metric.WithUnit("s"))
	collect(err)
	m.errors, err = meter.Int64Counter(MetricErrors,
		metric.WithDescription("Failed outbound requests by error code"))
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("observability: client instruments: %w", errors.Join(errs...))
	}
	return &m, nil
}

// RecordRequestStart increments the in-flight count.
func (m *ClientMetrics) RecordRequestStart(ctx context.Context, client string) {
	m.active.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientName, client)))
}

// RecordRequestEnd decrements the in-flight count and records a completed
// request. status is 0 when no response was received.
func (m *ClientMetrics) RecordRequestEnd(ctx context.Context, client, method string, status int, duration time.Duration) {
	m.active.Add(ctx, -1, metric.WithAttributes(attribute.String(AttrClientName, client)))
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientName, client),
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPStatus, strconv.Itoa(status)),
	))
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrClientName, client),
		attribute.String(AttrHTTPMethod, method),
	))
}

// RecordError counts a failed request by error code.
func (m *ClientMetrics) RecordError(ctx context.Context, client, code string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientName, client),
		attribute.String(AttrErrorCode, code),
	))
}

// PoolStatsFunc reports a pool's leased and idle connection counts and the
// number of connections evicted so far.
type PoolStatsFunc func() (leased, idle, evicted int64)

// ObservePool registers instruments that read pool statistics at collection
// time. Unregister the returned registration when the pool is closed.
func ObservePool(meter metric.Meter, client string, stats PoolStatsFunc) (metric.Registration, error) {
	conns, err := meter.Int64ObservableGauge(MetricPoolConnections,
		metric.WithDescription("Pooled connections by state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricPoolConnections, err)
	}

	evictions, err := meter.Int64ObservableCounter(MetricPoolEvictions,
		metric.WithDescription("Pooled connections closed by the idle evictor"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricPoolEvictions, err)
	}

	clientAttr := attribute.String(AttrClientName, client)
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		leased, idle, evicted := stats()
		o.ObserveInt64(conns, leased, metric.WithAttributes(clientAttr, attribute.String(AttrPoolState, "leased")))
		o.ObserveInt64(conns, idle, metric.WithAttributes(clientAttr, attribute.String(AttrPoolState, "idle")))
		o.ObserveInt64(evictions, evicted, metric.WithAttributes(clientAttr))
		return nil
	}, conns, evictions)
}
