package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/kbukum/restkit/logger"
)

// InstrumentationName identifies spans and instruments produced by restkit.
const InstrumentationName = "github.com/kbukum/restkit"

// Config describes OTLP/HTTP export of traces and metrics for a process.
type Config struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	Environment    string `yaml:"environment" mapstructure:"environment"`

	// Endpoint is the collector's host:port.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`

	// SampleRate is the fraction of traces kept, in (0, 1]. Zero means 1.
	SampleRate     float64       `yaml:"sample_rate" mapstructure:"sample_rate"`
	DisableTraces  bool          `yaml:"disable_traces" mapstructure:"disable_traces"`
	DisableMetrics bool          `yaml:"disable_metrics" mapstructure:"disable_metrics"`
	ExportInterval time.Duration `yaml:"export_interval" mapstructure:"export_interval"`
}

// ApplyDefaults fills unset fields. service and version name the process
// when the config does not.
func (c *Config) ApplyDefaults(service, version string) {
	if c.ServiceName == "" {
		c.ServiceName = service
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = version
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
	if c.ExportInterval == 0 {
		c.ExportInterval = 15 * time.Second
	}
}

// Setup installs global tracer and meter providers exporting to
// cfg.Endpoint and returns a function that flushes and shuts them down.
// A disabled config leaves the no-op providers in place.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}
	cfg.ApplyDefaults("restkit", "unknown")

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	var closers []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	if !cfg.DisableTraces {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		closers = append(closers, tp.Shutdown)
	}
	if !cfg.DisableMetrics {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		closers = append(closers, mp.Shutdown)
	}

	logger.Get("observability").Info("telemetry export enabled", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"traces", !cfg.DisableTraces,
		"metrics", !cfg.DisableMetrics,
		"sample_rate", cfg.SampleRate,
	))
	return shutdown, nil
}

// newResource describes the service without pinning a semconv schema, so
// it merges with resource.Default() whatever schema the SDK carries.
func newResource(service, version, environment string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String(AttrServiceName, service),
			attribute.String(AttrServiceVersion, version),
			attribute.String(AttrEnvironment, environment),
		),
	)
}
