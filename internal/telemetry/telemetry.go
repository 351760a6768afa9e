package telemetry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName scopes every roster span and instrument.
const instrumentationName = "github.com/wolfeidau/roster"

const defaultMetricInterval = 10 * time.Second

// Tracer returns the tracer used for roster spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func rosterMeter() metric.Meter {
	return otel.GetMeterProvider().Meter(instrumentationName)
}

// Config controls what InitTelemetry exports and where to.
type Config struct {
	ServiceName string
	Version     string

	// SampleRatio is the fraction of root traces kept. Spans with a parent
	// follow the parent's decision.
	SampleRatio float64

	// Endpoint is the OTLP gRPC host:port. Empty leaves it to the
	// OTEL_EXPORTER_OTLP_* environment variables.
	Endpoint string
	Insecure bool

	// MetricInterval is how often metrics are pushed. Zero means 10s.
	MetricInterval time.Duration

	// Attributes are added to the resource of every span and metric.
	Attributes map[string]string
}

// sampler keeps SampleRatio of the root traces. Ratios outside [0, 1] are clamped.
func (c Config) sampler() sdktrace.Sampler {
	ratio := min(max(c.SampleRatio, 0), 1)
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func (c Config) metricInterval() time.Duration {
	if c.MetricInterval <= 0 {
		return defaultMetricInterval
	}
	return c.MetricInterval
}

func (c Config) resource(ctx context.Context) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.Version),
	}
	for _, k := range slices.Sorted(maps.Keys(c.Attributes)) {
		attrs = append(attrs, attribute.String(k, c.Attributes[k]))
	}

	// OTEL_RESOURCE_ATTRIBUTES wins over the attributes above.
	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
	)
}

// InitTelemetry installs global OTLP trace and meter providers for the roster
// and returns a function that flushes and stops them. A provider that cannot be
// created is skipped with a warning.
func InitTelemetry(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdowns []func(context.Context) error

	spans, err := otlptracegrpc.New(ctx, cfg.traceOptions()...)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create trace exporter, continuing without tracing")
	} else {
		tp := newTracerProvider(cfg, res, sdktrace.NewBatchSpanProcessor(spans))
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	instruments, err := otlpmetricgrpc.New(ctx, cfg.metricOptions()...)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create metric exporter, continuing without metrics")
	} else {
		mp := newMeterProvider(res, sdkmetric.NewPeriodicReader(instruments,
			sdkmetric.WithInterval(cfg.metricInterval())))
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Float64("sample_ratio", cfg.SampleRatio).
		Str("endpoint", cfg.Endpoint).
		Msg("OpenTelemetry initialized")

	return func(ctx context.Context) error {
		var errs []error
		for _, shutdown := range shutdowns {
			errs = append(errs, shutdown(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func (c Config) traceOptions() []otlptracegrpc.Option {
	var opts []otlptracegrpc.Option
	if c.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(c.Endpoint))
	}
	if c.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func (c Config) metricOptions() []otlpmetricgrpc.Option {
	var opts []otlpmetricgrpc.Option
	if c.Endpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(c.Endpoint))
	}
	if c.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func newTracerProvider(cfg Config, res *resource.Resource, processor sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
}

func newMeterProvider(res *resource.Resource, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
}
