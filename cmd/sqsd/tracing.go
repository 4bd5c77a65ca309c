package main

import (
	"context"
	"fmt"

	"github.com/finch-technologies/go-sqs-listener/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// newTracerProvider exports spans over OTLP when an endpoint is configured
// and returns a no-op provider otherwise.
func newTracerProvider(ctx context.Context, cfg config.Config) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.OtlpEndpoint == "" {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.OtlpProtocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.OtlpEndpoint))
	case "http/protobuf", "":
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OtlpEndpoint))
	default:
		return nil, nil, usageErrorf("unsupported OTLP protocol %q", cfg.OtlpProtocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "sqsd"))),
	)
	return provider, provider.Shutdown, nil
}
