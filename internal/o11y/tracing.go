package o11y

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Attribute keys used on span attributes and clog context values.
const (
	AttrCommand  = "command"
	AttrRegion   = "region"
	AttrUsername = "username"
	AttrOS       = "os"
	AttrTemplate = "template"
)

const (
	envTracesEndpoint = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	envLogsEndpoint   = "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"
)

// SetupTracing configures the global otel TracerProvider. When
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT is set, spans are exported via OTLP/HTTP.
// The returned shutdown is never nil.
func SetupTracing(ctx context.Context) (func(context.Context) error, error) {
	if os.Getenv(envTracesEndpoint) == "" {
		return noShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return noShutdown, err
	}

	res, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		return noShutdown, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func noShutdown(context.Context) error { return nil }
