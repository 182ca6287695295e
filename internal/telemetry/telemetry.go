// Package telemetry configures optional OTLP tracing.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Options selects the exporter. An empty Endpoint disables tracing.
type Options struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global tracer provider exporting over OTLP/gRPC.
// Exporter failures are logged and tracing stays disabled.
func Setup(ctx context.Context, opts Options, log *zap.Logger) Shutdown {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Endpoint == "" {
		log.Debug("tracing disabled")
		return noop
	}

	eopts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		eopts = append(eopts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, eopts...)
	if err != nil {
		log.Warn("otel exporter", zap.Error(err))
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	))
	if err != nil {
		log.Warn("otel resource", zap.Error(err))
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	log.Info("tracing enabled", zap.String("endpoint", opts.Endpoint))
	return provider.Shutdown
}
