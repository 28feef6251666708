// Package otelx installs the global OpenTelemetry tracer provider.
package otelx

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Options struct {
	Enabled   bool
	Endpoint  string
	Insecure  bool
	Headers   map[string]string
	Sample    float64
	Service   string
	Component string
	Version   string
}

func (o Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	var errs []error
	if o.Endpoint == "" {
		errs = append(errs, errors.New("otel endpoint required when tracing is enabled"))
	}
	if o.Sample < 0 || o.Sample > 1 {
		errs = append(errs, errors.New("otel sample ratio must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// ServiceName is Service, suffixed with "."+Component when set.
func (o Options) ServiceName() string {
	if o.Component == "" {
		return o.Service
	}
	return o.Service + "." + o.Component
}

// Init installs the W3C trace-context propagator and a tracer provider, and
// returns the provider's shutdown func. Disabled tracing still gets an SDK
// provider without an exporter, so request ids in logs and the X-Trace-Id
// response header keep working.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	exp, err := newExporter(ctx, o)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, o Options) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
		otlptracegrpc.WithTimeout(5 * time.Second),
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(o.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(o.Headers))
	}

	// bounded so an unreachable collector cannot stall startup
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return otlptracegrpc.New(ctx, opts...)
}

// newResource ignores detector errors: a partial resource still names the
// service.
func newResource(ctx context.Context, o Options) *resource.Resource {
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.ServiceName()),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)
	return res
}
