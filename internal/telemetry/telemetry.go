// Package telemetry wires an OpenTelemetry tracer provider for the
// replica core, grounded on the teacher's internal/telemetry package.
// Unlike the teacher, spans are recorded via an in-process logging
// exporter rather than shipped to a remote collector over gRPC (see
// DESIGN.md for why the OTLP exporter was dropped): the tracer API and
// SDK are real, the network sink is not.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracer         trace.Tracer
	tracerMu       sync.RWMutex
	tracerProvider *sdktrace.TracerProvider
)

func init() {
	tracer = noop.NewTracerProvider().Tracer("vrd")
}

// Init sets up the tracer provider according to cfg and returns a
// shutdown function to flush and release it. When cfg.Enabled is
// false, every subsequent Tracer() call returns a no-op tracer (zero
// overhead, same as the teacher's disabled path).
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		tracerMu.Lock()
		tracer = noop.NewTracerProvider().Tracer("vrd")
		tracerMu.Unlock()
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRate)
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(newLogExporter()),
	)
	otel.SetTracerProvider(provider)

	tracerMu.Lock()
	tracerProvider = provider
	tracer = provider.Tracer("vrd")
	tracerMu.Unlock()

	return provider.Shutdown, nil
}

// Tracer returns the current tracer, safe to call concurrently with
// Init.
func Tracer() trace.Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	return tracer
}
