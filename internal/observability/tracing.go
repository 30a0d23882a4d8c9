package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TracingOptions selects the OTLP/HTTP collector spans are exported to.
type TracingOptions struct {
	// Endpoint is host:port or a full URL. Empty disables export.
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	SampleRatio float64
}

// InitTracing installs a global tracer provider exporting to opts.Endpoint
// and returns its shutdown. With no endpoint the global no-op provider is
// kept and shutdown does nothing.
func InitTracing(ctx context.Context, opts TracingOptions) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	expOpts := make([]otlptracehttp.Option, 0, 2)
	if strings.Contains(endpoint, "://") {
		expOpts = append(expOpts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		expOpts = append(expOpts, otlptracehttp.WithEndpoint(endpoint))
	}
	if opts.Insecure {
		expOpts = append(expOpts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: otlp exporter: %w", err)
	}

	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = "edgeparams"
	}
	attrs := resource.WithAttributes(semconv.ServiceName(name))
	if opts.Version != "" {
		attrs = resource.WithAttributes(semconv.ServiceName(name), semconv.ServiceVersion(opts.Version))
	}
	res, err := resource.New(ctx, attrs)
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warn().Err(err).Msg("observability.tracing export")
	}))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info().Str("endpoint", endpoint).Str("service", name).Float64("sample_ratio", ratio).
		Msg("observability.InitTracing")
	return tp.Shutdown, nil
}
