package o11y

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

const instrumentationName = "github.com/avishayil/secure-ec2"

// SetupLogExport returns a slog handler that forwards records over OTLP/HTTP
// when OTEL_EXPORTER_OTLP_LOGS_ENDPOINT is set, and a nil handler otherwise.
// The returned shutdown is never nil.
func SetupLogExport(ctx context.Context) (slog.Handler, func(context.Context) error, error) {
	if os.Getenv(envLogsEndpoint) == "" {
		return nil, noShutdown, nil
	}

	exporter, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, noShutdown, err
	}

	res, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		return nil, noShutdown, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)),
		sdklog.WithResource(res),
	)

	return otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)), provider.Shutdown, nil
}
